package processor

import (
	"sort"
	"time"

	"volflow/config"
	"volflow/logger"
	"volflow/models"
)

// Bucketer partitions filtered trades into fixed-width time buckets keyed by
// the trade timestamp truncated to the bucket width in the trading time
// zone. Buckets without trades are never materialized.
type Bucketer struct {
	width time.Duration
	loc   *time.Location
	log   *logger.Log
}

func NewBucketer(cfg config.SurfaceConfig) *Bucketer {
	return &Bucketer{
		width: cfg.BucketWidth,
		loc:   cfg.Location(),
		log:   logger.GetLogger(),
	}
}

// Bucket groups trades by bucket start. The returned bucket slice is sorted
// ascending by start; insertion order inside a bucket follows input order.
// Every input trade lands in exactly one bucket.
func (b *Bucketer) Bucket(trades []models.FilteredTrade) ([]models.TimeBucket, map[time.Time][]models.FilteredTrade) {
	groups := make(map[time.Time][]models.FilteredTrade)

	for _, t := range trades {
		start := b.bucketStart(t.Timestamp)
		t.BucketStart = start
		groups[start] = append(groups[start], t)
	}

	starts := make([]time.Time, 0, len(groups))
	for s := range groups {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	buckets := make([]models.TimeBucket, 0, len(starts))
	for _, s := range starts {
		buckets = append(buckets, models.TimeBucket{Start: s, Width: b.width})
	}

	b.log.WithComponent("bucketer").WithFields(logger.Fields{
		"trades":  len(trades),
		"buckets": len(buckets),
		"width":   b.width.String(),
	}).Info("trades bucketed")

	return buckets, groups
}

// bucketStart truncates the instant to the nearest lower multiple of the
// width, anchored at local midnight. time.Truncate alone counts from the
// epoch in UTC, which drifts from local wall-clock multiples for widths
// that do not divide an hour.
func (b *Bucketer) bucketStart(ts time.Time) time.Time {
	local := ts.In(b.loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, b.loc)
	elapsed := local.Sub(midnight)
	return midnight.Add(elapsed - elapsed%b.width)
}
