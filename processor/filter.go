package processor

import (
	"time"

	"volflow/config"
	"volflow/logger"
	"volflow/models"
)

// Filter validates raw tape rows and derives surface coordinates for the
// survivors. Malformed or out-of-range rows are excluded silently; a bad
// tick is expected tape noise, not an error.
type Filter struct {
	cfg config.SurfaceConfig
	loc *time.Location
	log *logger.Log
}

func NewFilter(cfg config.SurfaceConfig) *Filter {
	return &Filter{
		cfg: cfg,
		loc: cfg.Location(),
		log: logger.GetLogger(),
	}
}

// Apply filters trades and maps coordinates, preserving input order. An
// empty result is a valid degenerate output, handled downstream.
func (f *Filter) Apply(trades []models.Trade) []models.FilteredTrade {
	log := f.log.WithComponent("record_filter")

	var dropped struct {
		malformed int
		iv        int
		moneyness int
		expiry    int
	}

	out := make([]models.FilteredTrade, 0, len(trades))
	for _, t := range trades {
		if t.Price <= 0 || t.Size <= 0 || t.Underlying <= 0 || t.Strike <= 0 || !t.Type.Valid() {
			dropped.malformed++
			log.WithFields(logger.Fields{
				"strike": t.Strike, "price": t.Price, "size": t.Size,
				"underlying": t.Underlying, "type": string(t.Type),
			}).Debug("dropping malformed row")
			continue
		}

		c := MapCoordinates(t, f.loc)

		// Range bounds are inclusive on both ends.
		if t.IV < f.cfg.IVMin || t.IV > f.cfg.IVMax {
			dropped.iv++
			continue
		}
		if c.Moneyness < f.cfg.MoneynessMin || c.Moneyness > f.cfg.MoneynessMax {
			dropped.moneyness++
			continue
		}
		if c.DaysToExpiry < 0 || c.DaysToExpiry > f.cfg.MaxDaysToExp {
			dropped.expiry++
			continue
		}

		out = append(out, models.FilteredTrade{
			Trade:        t,
			Moneyness:    c.Moneyness,
			DaysToExpiry: c.DaysToExpiry,
		})
	}

	logger.IncrementTradesFiltered(len(out))
	log.WithFields(logger.Fields{
		"input":             len(trades),
		"kept":              len(out),
		"dropped_malformed": dropped.malformed,
		"dropped_iv":        dropped.iv,
		"dropped_moneyness": dropped.moneyness,
		"dropped_expiry":    dropped.expiry,
	}).Info("record filter applied")

	return out
}
