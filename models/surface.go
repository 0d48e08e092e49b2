package models

import (
	"encoding/json"
	"math"
	"time"
)

// TimeBucket is a half-open interval [Start, Start+Width) in the trading
// time zone. Buckets are contiguous and non-overlapping; a trade belongs to
// exactly one bucket determined by truncating its timestamp to the width.
type TimeBucket struct {
	Start time.Time     `json:"start"`
	Width time.Duration `json:"width"`
}

// End returns the exclusive end of the interval.
func (b TimeBucket) End() time.Time {
	return b.Start.Add(b.Width)
}

// Contains reports whether ts falls inside the half-open interval.
func (b TimeBucket) Contains(ts time.Time) bool {
	return !ts.Before(b.Start) && ts.Before(b.End())
}

// Surface is one time bucket's interpolated IV grid over the
// (moneyness, days-to-expiry) plane. IV is indexed [maturity][moneyness];
// nodes outside the convex hull of the contributing points hold NaN. The
// raw contributing points are retained for overlay rendering.
type Surface struct {
	Bucket    TimeBucket      `json:"bucket"`
	Moneyness []float64       `json:"moneyness"`
	Maturity  []float64       `json:"maturity"`
	IV        [][]float64     `json:"iv"`
	OtmPoints []OtmPoint      `json:"otm_points"`
	Puts      []FilteredTrade `json:"puts"`
	Calls     []FilteredTrade `json:"calls"`
}

// MarshalJSON renders undefined grid nodes as null; NaN has no JSON
// representation.
func (s Surface) MarshalJSON() ([]byte, error) {
	type alias Surface
	iv := make([][]*float64, len(s.IV))
	for ti, row := range s.IV {
		out := make([]*float64, len(row))
		for mi := range row {
			if !math.IsNaN(row[mi]) {
				v := row[mi]
				out[mi] = &v
			}
		}
		iv[ti] = out
	}
	return json.Marshal(struct {
		alias
		IV [][]*float64 `json:"iv"`
	}{alias: alias(s), IV: iv})
}

// UnmarshalJSON restores null nodes to NaN.
func (s *Surface) UnmarshalJSON(data []byte) error {
	type alias Surface
	var aux struct {
		alias
		IV [][]*float64 `json:"iv"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Surface(aux.alias)
	s.IV = make([][]float64, len(aux.IV))
	for ti, row := range aux.IV {
		out := make([]float64, len(row))
		for mi, v := range row {
			if v == nil {
				out[mi] = math.NaN()
			} else {
				out[mi] = *v
			}
		}
		s.IV[ti] = out
	}
	return nil
}

// DefinedNodes counts grid nodes carrying an interpolated value.
func (s Surface) DefinedNodes() int {
	var n int
	for _, row := range s.IV {
		for _, v := range row {
			if !math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}

// SurfaceEntry pairs a bucket with its renderable surface.
type SurfaceEntry struct {
	Bucket  TimeBucket `json:"bucket"`
	Surface Surface    `json:"surface"`
}

// SurfaceSeries is the ordered sequence of renderable per-bucket surfaces
// covering the session, ascending by bucket start. Buckets with no
// producible surface are absent.
type SurfaceSeries struct {
	Ticker  string         `json:"ticker"`
	Date    string         `json:"date"`
	Entries []SurfaceEntry `json:"entries"`
}

// SurfaceBatch wraps one bucket's surface for the writer channel.
type SurfaceBatch struct {
	BatchID     string    `json:"batch_id"`
	RunID       string    `json:"run_id"`
	Ticker      string    `json:"ticker"`
	Surface     Surface   `json:"surface"`
	RecordCount int       `json:"record_count"`
	ProcessedAt time.Time `json:"processed_at"`
}
