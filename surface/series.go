package surface

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"volflow/config"
	"volflow/logger"
	"volflow/models"
)

// ErrEmptySeries signals that no bucket in the session produced a renderable
// surface. The series returned alongside it is valid and empty; callers log
// a warning and write nothing.
var ErrEmptySeries = errors.New("no renderable surfaces in session")

// Builder fans the session's buckets across a fixed worker pool and collects
// the per-bucket surfaces into an ordered series.
type Builder struct {
	cfg          config.SurfaceConfig
	interpolator *Interpolator
	log          *logger.Log
}

func NewBuilder(cfg config.SurfaceConfig, fitter Fitter) *Builder {
	return &Builder{
		cfg:          cfg,
		interpolator: NewInterpolator(cfg, fitter),
		log:          logger.GetLogger(),
	}
}

// Build interpolates every bucket and returns the surfaces ascending by
// bucket start. Buckets that produce no surface are absent from the result.
// When no bucket is renderable the returned series is empty and the error
// is ErrEmptySeries.
func (b *Builder) Build(ctx context.Context, ticker, date string, buckets []models.TimeBucket, groups map[time.Time][]models.FilteredTrade) (models.SurfaceSeries, error) {
	log := b.log.WithComponent("surface_builder").WithFields(logger.Fields{
		"ticker":  ticker,
		"date":    date,
		"buckets": len(buckets),
	})

	series := models.SurfaceSeries{Ticker: ticker, Date: date}
	if len(buckets) == 0 {
		return series, ErrEmptySeries
	}

	type result struct {
		surface models.Surface
		ok      bool
	}
	results := make([]result, len(buckets))

	workers := b.cfg.MaxWorkers
	if workers > len(buckets) {
		workers = len(buckets)
	}

	jobs := make(chan int, len(buckets))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				bucket := buckets[i]
				s, ok := b.interpolator.Interpolate(bucket, groups[bucket.Start])
				results[i] = result{surface: s, ok: ok}
			}
		}()
	}

	for i := range buckets {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return series, err
	}

	for i, r := range results {
		if !r.ok {
			continue
		}
		series.Entries = append(series.Entries, models.SurfaceEntry{
			Bucket:  buckets[i],
			Surface: r.surface,
		})
		logger.IncrementSurfacesBuilt()
	}
	sort.Slice(series.Entries, func(i, j int) bool {
		return series.Entries[i].Bucket.Start.Before(series.Entries[j].Bucket.Start)
	})

	if len(series.Entries) == 0 {
		log.Warn("session produced no renderable surfaces")
		return series, ErrEmptySeries
	}

	log.WithFields(logger.Fields{"surfaces": len(series.Entries)}).Info("surface series built")
	return series, nil
}
