package models

import (
	"time"
)

// OptionType identifies the side of an option contract.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// Valid reports whether the type tag is one of the known sides.
func (t OptionType) Valid() bool {
	return t == Call || t == Put
}

// Trade is a single raw options trade as delivered by the tape feed.
// Timestamps are UTC instants; Expiry carries the contract's expiration date.
// Trades are read once from the feed and never mutated.
type Trade struct {
	Timestamp  time.Time  `json:"timestamp"`
	Ticker     string     `json:"ticker"`
	Strike     float64    `json:"strike"`
	Type       OptionType `json:"type"`
	Price      float64    `json:"price"`
	Size       int64      `json:"size"`
	IV         float64    `json:"iv"`
	Underlying float64    `json:"underlying"`
	Expiry     time.Time  `json:"expiry"`
}

// FilteredTrade is a Trade that passed the record filter, extended with the
// derived surface coordinates and the start of the time bucket it belongs to.
type FilteredTrade struct {
	Trade
	Moneyness    float64   `json:"moneyness"`
	DaysToExpiry float64   `json:"days_to_expiry"`
	BucketStart  time.Time `json:"bucket_start"`
}

// IsOTM reports whether the trade sits on the out-of-the-money side:
// calls struck above spot, puts struck below. At-the-money (moneyness
// exactly 1) counts as neither.
func (t FilteredTrade) IsOTM() bool {
	switch t.Type {
	case Call:
		return t.Moneyness > 1
	case Put:
		return t.Moneyness < 1
	}
	return false
}

// OtmPoint is the scattered observation the surface fit consumes.
type OtmPoint struct {
	Moneyness    float64 `json:"moneyness"`
	DaysToExpiry float64 `json:"days_to_expiry"`
	IV           float64 `json:"iv"`
	Size         int64   `json:"size"`
}

// OtmPointOf projects a filtered trade onto surface coordinates.
func OtmPointOf(t FilteredTrade) OtmPoint {
	return OtmPoint{
		Moneyness:    t.Moneyness,
		DaysToExpiry: t.DaysToExpiry,
		IV:           t.IV,
		Size:         t.Size,
	}
}
