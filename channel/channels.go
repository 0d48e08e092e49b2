package channel

import (
	"context"
	"sync"
	"time"

	"volflow/logger"
	"volflow/models"
)

type ChannelStats struct {
	SurfaceSent    int64
	SurfaceDropped int64
}

// Channels bundles the typed channels connecting the surface pipeline to the
// artifact writers. One SurfaceBatch flows per renderable bucket.
type Channels struct {
	Surfaces chan models.SurfaceBatch

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(surfaceBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Surfaces: make(chan models.SurfaceBatch, surfaceBufferSize),
		log:      log,
	}

	log.WithComponent("surface_channels").WithFields(logger.Fields{
		"surface_buffer_size": surfaceBufferSize,
	}).Info("surface channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Surfaces)
	c.log.WithComponent("surface_channels").Info("surface channels closed")
}

func (c *Channels) IncrementSurfaceSent() {
	c.statsMutex.Lock()
	c.stats.SurfaceSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementSurfaceDropped() {
	c.statsMutex.Lock()
	c.stats.SurfaceDropped++
	c.statsMutex.Unlock()
}

// SendSurface delivers a batch to the writers. Unlike the hot market-data
// path there is no drop-on-full here: every renderable surface must reach
// the writers, so the send blocks until buffer space frees or ctx ends.
func (c *Channels) SendSurface(ctx context.Context, batch models.SurfaceBatch) bool {
	select {
	case c.Surfaces <- batch:
		c.IncrementSurfaceSent()
		logger.RecordChannelMessage("surfaces", batch.RecordCount)
		return true
	case <-ctx.Done():
		c.IncrementSurfaceDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// StartMetricsReporting periodically logs channel depth and stats until the
// context is cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.GetStats()
			c.log.WithComponent("surface_channels").WithFields(logger.Fields{
				"surface_sent":    stats.SurfaceSent,
				"surface_dropped": stats.SurfaceDropped,
				"surface_depth":   len(c.Surfaces),
				"surface_cap":     cap(c.Surfaces),
			}).Debug("channel stats")
		}
	}
}
