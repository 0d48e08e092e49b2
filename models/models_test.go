package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestOptionTypeValid(t *testing.T) {
	if !Call.Valid() || !Put.Valid() {
		t.Fatal("call and put must be valid")
	}
	if OptionType("straddle").Valid() {
		t.Fatal("unknown type tag must be invalid")
	}
}

func TestIsOTM(t *testing.T) {
	cases := []struct {
		typ       OptionType
		moneyness float64
		want      bool
	}{
		{Call, 1.05, true},
		{Call, 0.95, false},
		{Call, 1.00, false},
		{Put, 0.95, true},
		{Put, 1.05, false},
		{Put, 1.00, false},
	}
	for _, c := range cases {
		tr := FilteredTrade{Trade: Trade{Type: c.typ}, Moneyness: c.moneyness}
		if got := tr.IsOTM(); got != c.want {
			t.Errorf("IsOTM(%s, %g) = %v, want %v", c.typ, c.moneyness, got, c.want)
		}
	}
}

func TestTimeBucketContains(t *testing.T) {
	b := TimeBucket{
		Start: time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC),
		Width: 5 * time.Minute,
	}
	if !b.Contains(b.Start) {
		t.Fatal("start instant belongs to the bucket")
	}
	if !b.Contains(b.Start.Add(4*time.Minute + 59*time.Second)) {
		t.Fatal("instant just before the end belongs to the bucket")
	}
	if b.Contains(b.End()) {
		t.Fatal("end instant belongs to the next bucket")
	}
	if b.Contains(b.Start.Add(-time.Nanosecond)) {
		t.Fatal("instant before the start does not belong")
	}
}

func TestDefinedNodes(t *testing.T) {
	s := Surface{IV: [][]float64{
		{0.18, math.NaN(), 0.20},
		{math.NaN(), math.NaN(), 0.21},
	}}
	if got := s.DefinedNodes(); got != 3 {
		t.Fatalf("DefinedNodes = %d, want 3", got)
	}
}

func TestSurfaceJSONRoundTrip(t *testing.T) {
	s := Surface{
		Moneyness: []float64{0.9, 1.1},
		Maturity:  []float64{5},
		IV:        [][]float64{{0.18, math.NaN()}},
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Surface
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.IV[0][0] != 0.18 {
		t.Fatalf("defined node = %g", got.IV[0][0])
	}
	if !math.IsNaN(got.IV[0][1]) {
		t.Fatalf("null node = %g, want NaN", got.IV[0][1])
	}
}

func TestOtmPointOf(t *testing.T) {
	tr := FilteredTrade{
		Trade:        Trade{Type: Call, IV: 0.22, Size: 7},
		Moneyness:    1.08,
		DaysToExpiry: 12.5,
	}
	p := OtmPointOf(tr)
	if p.Moneyness != 1.08 || p.DaysToExpiry != 12.5 || p.IV != 0.22 || p.Size != 7 {
		t.Fatalf("OtmPointOf = %+v", p)
	}
}
