package surface

import (
	"context"
	"errors"
	"testing"
	"time"

	"volflow/models"
)

func denseBucketTrades() []models.FilteredTrade {
	return []models.FilteredTrade{
		otmTrade(models.Call, 1.05, 5, 0.15),
		otmTrade(models.Call, 1.15, 8, 0.25),
		otmTrade(models.Put, 0.90, 20, 0.22),
		otmTrade(models.Put, 0.85, 35, 0.30),
	}
}

func TestBuildOrdersEntriesAndSkipsSparseBuckets(t *testing.T) {
	b := NewBuilder(surfaceConfig(), nil)

	start := time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC)
	width := 5 * time.Minute
	buckets := []models.TimeBucket{
		{Start: start, Width: width},
		{Start: start.Add(width), Width: width},
		{Start: start.Add(2 * width), Width: width},
	}
	groups := map[time.Time][]models.FilteredTrade{
		buckets[0].Start: denseBucketTrades(),
		buckets[1].Start: {otmTrade(models.Call, 1.05, 5, 0.18)}, // too sparse
		buckets[2].Start: denseBucketTrades(),
	}

	series, err := b.Build(context.Background(), "SPY", "2023-12-01", buckets, groups)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if series.Ticker != "SPY" || series.Date != "2023-12-01" {
		t.Fatalf("series identity = %s %s", series.Ticker, series.Date)
	}
	if len(series.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(series.Entries))
	}
	if !series.Entries[0].Bucket.Start.Equal(buckets[0].Start) {
		t.Fatalf("first entry starts at %v", series.Entries[0].Bucket.Start)
	}
	if !series.Entries[1].Bucket.Start.Equal(buckets[2].Start) {
		t.Fatalf("second entry starts at %v", series.Entries[1].Bucket.Start)
	}
	if !series.Entries[0].Bucket.Start.Before(series.Entries[1].Bucket.Start) {
		t.Fatal("entries not ascending by bucket start")
	}
}

func TestBuildEmptySessionReturnsErrEmptySeries(t *testing.T) {
	b := NewBuilder(surfaceConfig(), nil)

	series, err := b.Build(context.Background(), "SPY", "2023-12-01", nil, nil)
	if !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("Build error = %v, want ErrEmptySeries", err)
	}
	if len(series.Entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(series.Entries))
	}
}

func TestBuildAllSparseReturnsErrEmptySeries(t *testing.T) {
	b := NewBuilder(surfaceConfig(), nil)

	start := time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC)
	buckets := []models.TimeBucket{{Start: start, Width: 5 * time.Minute}}
	groups := map[time.Time][]models.FilteredTrade{
		start: {otmTrade(models.Call, 1.05, 5, 0.18)},
	}

	series, err := b.Build(context.Background(), "SPY", "2023-12-01", buckets, groups)
	if !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("Build error = %v, want ErrEmptySeries", err)
	}
	if len(series.Entries) != 0 {
		t.Fatalf("entries = %d, want 0", len(series.Entries))
	}
}

func TestBuildCancelledContext(t *testing.T) {
	b := NewBuilder(surfaceConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Date(2023, 12, 1, 10, 0, 0, 0, time.UTC)
	buckets := []models.TimeBucket{{Start: start, Width: 5 * time.Minute}}
	groups := map[time.Time][]models.FilteredTrade{start: denseBucketTrades()}

	_, err := b.Build(ctx, "SPY", "2023-12-01", buckets, groups)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Build error = %v, want context.Canceled", err)
	}
}
