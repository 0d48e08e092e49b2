package processor

import (
	"time"

	"volflow/models"
)

// sessionCloseHour is the exchange close in the trading time zone; an
// option's last tradable instant on expiry day.
const sessionCloseHour = 16

// Coordinates are the derived surface coordinates of a single trade.
type Coordinates struct {
	Moneyness    float64
	DaysToExpiry float64
}

// MapCoordinates derives (moneyness, days-to-expiry) for a trade. Moneyness
// is strike over spot. Days-to-expiry runs from the trade timestamp to the
// session close on expiry day, evaluated in the trading time zone, and keeps
// its fractional part so trades minutes apart late on expiry day stay
// distinguishable on the maturity axis. Pure; validation happens in Filter.
func MapCoordinates(t models.Trade, loc *time.Location) Coordinates {
	expiry := expiryInstant(t.Expiry, loc)
	days := expiry.Sub(t.Timestamp).Hours() / 24

	return Coordinates{
		Moneyness:    t.Strike / t.Underlying,
		DaysToExpiry: days,
	}
}

// expiryInstant pins the expiry date to the session close in the trading
// time zone.
func expiryInstant(date time.Time, loc *time.Location) time.Time {
	d := date.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), sessionCloseHour, 0, 0, 0, loc)
}
