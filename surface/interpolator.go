package surface

import (
	"errors"

	"volflow/config"
	"volflow/logger"
	"volflow/models"
)

// Interpolator turns one bucket's filtered trades into an interpolated IV
// surface. Only out-of-the-money observations contribute to the fit; the
// put and call legs are kept on the result for overlay rendering.
type Interpolator struct {
	cfg    config.SurfaceConfig
	grid   Grid
	fitter Fitter
	log    *logger.Log
}

func NewInterpolator(cfg config.SurfaceConfig, fitter Fitter) *Interpolator {
	if fitter == nil {
		fitter = DelaunayFitter{}
	}
	return &Interpolator{
		cfg:    cfg,
		grid:   NewGrid(cfg),
		fitter: fitter,
		log:    logger.GetLogger(),
	}
}

// Interpolate builds the surface for a single bucket. The boolean reports
// whether the bucket produced a renderable surface; buckets with too few
// distinct OTM points are skipped, never failed.
func (it *Interpolator) Interpolate(bucket models.TimeBucket, trades []models.FilteredTrade) (models.Surface, bool) {
	log := it.log.WithComponent("surface_interpolator").WithFields(logger.Fields{
		"bucket_start": bucket.Start,
	})

	var puts, calls []models.FilteredTrade
	points := make([]models.OtmPoint, 0, len(trades))
	for _, t := range trades {
		if !t.IsOTM() {
			continue
		}
		switch t.Type {
		case models.Put:
			puts = append(puts, t)
		case models.Call:
			calls = append(calls, t)
		}
		points = append(points, models.OtmPointOf(t))
	}

	if len(points) < it.cfg.MinPoints {
		log.WithFields(logger.Fields{
			"otm_points": len(points),
			"min_points": it.cfg.MinPoints,
		}).Debug("skipping bucket: not enough OTM observations")
		logger.IncrementBucketsSkipped()
		return models.Surface{}, false
	}

	iv, err := it.fitter.Fit(points, it.grid)
	if err != nil {
		if errors.Is(err, ErrInsufficientPoints) {
			log.WithError(err).Debug("skipping bucket: triangulation not possible")
			logger.IncrementBucketsSkipped()
			return models.Surface{}, false
		}
		log.WithError(err).Error("surface fit failed")
		logger.IncrementBucketsSkipped()
		return models.Surface{}, false
	}

	return models.Surface{
		Bucket:    bucket,
		Moneyness: it.grid.Moneyness,
		Maturity:  it.grid.Maturity,
		IV:        iv,
		OtmPoints: points,
		Puts:      puts,
		Calls:     calls,
	}, true
}
