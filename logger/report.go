package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsFeed     int64
	errorsSurface  int64
	errorsWriter   int64
	warnsFeed      int64
	warnsSurface   int64
	warnsWriter    int64
	tradesRead     int64
	tradesFiltered int64
	surfacesBuilt  int64
	bucketsSkipped int64
	artifactWrites int64
	channels       sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	switch {
	case strings.Contains(component, "feed"):
		atomic.AddInt64(&warnsFeed, 1)
	case strings.Contains(component, "surface"):
		atomic.AddInt64(&warnsSurface, 1)
	case strings.Contains(component, "writer"):
		atomic.AddInt64(&warnsWriter, 1)
	}
}

func recordError(component string) {
	switch {
	case strings.Contains(component, "feed"):
		atomic.AddInt64(&errorsFeed, 1)
	case strings.Contains(component, "surface"):
		atomic.AddInt64(&errorsSurface, 1)
	case strings.Contains(component, "writer"):
		atomic.AddInt64(&errorsWriter, 1)
	}
}

// IncrementTradesRead records raw trades delivered by the tape feed.
func IncrementTradesRead(n int) {
	atomic.AddInt64(&tradesRead, int64(n))
	recordChannel("feed_tape", n)
}

// IncrementTradesFiltered records trades that survived the record filter.
func IncrementTradesFiltered(n int) {
	atomic.AddInt64(&tradesFiltered, int64(n))
}

// IncrementSurfacesBuilt records renderable per-bucket surfaces.
func IncrementSurfacesBuilt() {
	atomic.AddInt64(&surfacesBuilt, 1)
}

// IncrementBucketsSkipped records buckets without a producible surface.
func IncrementBucketsSkipped() {
	atomic.AddInt64(&bucketsSkipped, 1)
}

// IncrementArtifactWrite records one artifact written (file, object or message).
func IncrementArtifactWrite(size int64) {
	atomic.AddInt64(&artifactWrites, 1)
	recordChannel("artifact_write", int(size))
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and pipeline statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	fields := Fields{
		"errors_feed":     atomic.LoadInt64(&errorsFeed),
		"errors_surface":  atomic.LoadInt64(&errorsSurface),
		"errors_writer":   atomic.LoadInt64(&errorsWriter),
		"warns_feed":      atomic.LoadInt64(&warnsFeed),
		"warns_surface":   atomic.LoadInt64(&warnsSurface),
		"warns_writer":    atomic.LoadInt64(&warnsWriter),
		"trades_read":     atomic.LoadInt64(&tradesRead),
		"trades_filtered": atomic.LoadInt64(&tradesFiltered),
		"surfaces_built":  atomic.LoadInt64(&surfacesBuilt),
		"buckets_skipped": atomic.LoadInt64(&bucketsSkipped),
		"artifact_writes": atomic.LoadInt64(&artifactWrites),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       int64(memStats.Used) / 1024 / 1024,
		"disk_mb":         int64(diskStats.Used) / 1024 / 1024,
		"channels":        channelData,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("TradesRead"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&tradesRead)))},
		cwtypes.MetricDatum{MetricName: aws.String("TradesFiltered"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&tradesFiltered)))},
		cwtypes.MetricDatum{MetricName: aws.String("SurfacesBuilt"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&surfacesBuilt)))},
		cwtypes.MetricDatum{MetricName: aws.String("BucketsSkipped"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&bucketsSkipped)))},
		cwtypes.MetricDatum{MetricName: aws.String("ArtifactWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&artifactWrites)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsFeed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsFeed)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsSurface"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsSurface)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsWriter"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(atomic.LoadInt64(&errorsWriter)))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
