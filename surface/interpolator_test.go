package surface

import (
	"math"
	"testing"
	"time"

	"volflow/config"
	"volflow/models"
)

func surfaceConfig() config.SurfaceConfig {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return cfg.Surface
}

func otmTrade(typ models.OptionType, m, dte, iv float64) models.FilteredTrade {
	return models.FilteredTrade{
		Trade: models.Trade{
			Timestamp:  time.Date(2023, 12, 1, 15, 0, 0, 0, time.UTC),
			Ticker:     "SPY",
			Strike:     m * 450,
			Type:       typ,
			Price:      1.25,
			Size:       10,
			IV:         iv,
			Underlying: 450,
		},
		Moneyness:    m,
		DaysToExpiry: dte,
	}
}

func testBucket() models.TimeBucket {
	return models.TimeBucket{
		Start: time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC),
		Width: 5 * time.Minute,
	}
}

func TestInterpolateProducesSurface(t *testing.T) {
	it := NewInterpolator(surfaceConfig(), nil)
	trades := []models.FilteredTrade{
		otmTrade(models.Call, 1.05, 5, 0.18),
		otmTrade(models.Call, 1.15, 5, 0.18),
		otmTrade(models.Call, 1.10, 30, 0.18),
		otmTrade(models.Put, 0.90, 5, 0.18),
		otmTrade(models.Put, 0.85, 30, 0.18),
	}

	s, ok := it.Interpolate(testBucket(), trades)
	if !ok {
		t.Fatal("expected a renderable surface")
	}
	if len(s.IV) != 18 || len(s.IV[0]) != 25 {
		t.Fatalf("grid shape = %dx%d, want 18x25", len(s.IV), len(s.IV[0]))
	}
	if s.DefinedNodes() == 0 {
		t.Fatal("no node received an interpolated value")
	}
	if len(s.OtmPoints) != 5 {
		t.Fatalf("OtmPoints = %d, want 5", len(s.OtmPoints))
	}
	if len(s.Calls) != 3 || len(s.Puts) != 2 {
		t.Fatalf("legs = %d calls, %d puts; want 3 and 2", len(s.Calls), len(s.Puts))
	}
	for _, row := range s.IV {
		for _, v := range row {
			if !math.IsNaN(v) && math.Abs(v-0.18) > 1e-9 {
				t.Fatalf("interior node = %g, want 0.18", v)
			}
		}
	}
}

func TestInterpolateSkipsSparseBucket(t *testing.T) {
	it := NewInterpolator(surfaceConfig(), nil)
	trades := []models.FilteredTrade{
		otmTrade(models.Call, 1.05, 5, 0.18),
		otmTrade(models.Put, 0.95, 5, 0.20),
	}

	if _, ok := it.Interpolate(testBucket(), trades); ok {
		t.Fatal("two OTM points must not produce a surface")
	}
}

func TestInterpolateIgnoresNonOTMTrades(t *testing.T) {
	it := NewInterpolator(surfaceConfig(), nil)
	trades := []models.FilteredTrade{
		// ITM and ATM rows never reach the fit.
		otmTrade(models.Call, 0.95, 5, 0.18),
		otmTrade(models.Put, 1.05, 5, 0.18),
		otmTrade(models.Call, 1.00, 5, 0.18),
		otmTrade(models.Call, 1.05, 5, 0.18),
		otmTrade(models.Call, 1.10, 20, 0.19),
	}

	if _, ok := it.Interpolate(testBucket(), trades); ok {
		t.Fatal("only two OTM points remain, bucket must be skipped")
	}
}

func TestInterpolateIdempotent(t *testing.T) {
	it := NewInterpolator(surfaceConfig(), nil)
	trades := []models.FilteredTrade{
		otmTrade(models.Call, 1.05, 5, 0.15),
		otmTrade(models.Call, 1.15, 8, 0.25),
		otmTrade(models.Put, 0.90, 20, 0.22),
		otmTrade(models.Put, 0.85, 35, 0.30),
	}

	a, ok := it.Interpolate(testBucket(), trades)
	if !ok {
		t.Fatal("expected a renderable surface")
	}
	b, ok := it.Interpolate(testBucket(), trades)
	if !ok {
		t.Fatal("expected a renderable surface on repeat")
	}
	for ti := range a.IV {
		for mi := range a.IV[ti] {
			x, y := a.IV[ti][mi], b.IV[ti][mi]
			if math.IsNaN(x) != math.IsNaN(y) || (!math.IsNaN(x) && x != y) {
				t.Fatalf("node [%d][%d] differs between runs: %g vs %g", ti, mi, x, y)
			}
		}
	}
}
