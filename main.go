package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"volflow/channel"
	"volflow/config"
	"volflow/feed"
	"volflow/logger"
	"volflow/models"
	"volflow/processor"
	"volflow/surface"
	"volflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	runID := uuid.New().String()
	log.WithFields(logger.Fields{
		"service": cfg.Volflow.Name,
		"version": cfg.Volflow.Version,
		"run_id":  runID,
		"ticker":  cfg.Feed.Ticker,
		"date":    cfg.Feed.Date,
	}).Info("starting volflow")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}
	if cfg.Storage.S3.Enabled && cfg.Storage.S3.Region != "" {
		logger.InitCloudWatch(cfg.Storage.S3.Region, "VolFlow", "VolFlow")
	}

	channels := channel.NewChannels(cfg.Channels.SurfaceBuffer)
	go channels.StartMetricsReporting(ctx)

	surfaceWriter, err := writer.NewSurfaceWriter(cfg, channels)
	if err != nil {
		log.WithError(err).Error("failed to create surface writer")
		os.Exit(1)
	}
	if err := surfaceWriter.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start surface writer")
		os.Exit(1)
	}

	src, err := feed.NewSource(cfg)
	if err != nil {
		log.WithError(err).Error("failed to create tape source")
		os.Exit(1)
	}

	// Acquisition is all or nothing: a partial tape would silently skew
	// every surface downstream.
	trades, err := src.Fetch(ctx)
	if err != nil {
		log.WithError(err).Error("failed to fetch session tape")
		os.Exit(1)
	}

	filtered := processor.NewFilter(cfg.Surface).Apply(trades)
	buckets, groups := processor.NewBucketer(cfg.Surface).Bucket(filtered)

	builder := surface.NewBuilder(cfg.Surface, nil)
	series, err := builder.Build(ctx, cfg.Feed.Ticker, cfg.Feed.Date, buckets, groups)
	switch {
	case errors.Is(err, surface.ErrEmptySeries):
		log.WithFields(logger.Fields{
			"ticker": cfg.Feed.Ticker,
			"date":   cfg.Feed.Date,
		}).Warn("no renderable surfaces for session")
	case err != nil:
		log.WithError(err).Error("failed to build surface series")
		os.Exit(1)
	}

	for _, entry := range series.Entries {
		batch := models.SurfaceBatch{
			BatchID:     uuid.New().String(),
			RunID:       runID,
			Ticker:      series.Ticker,
			Surface:     entry.Surface,
			RecordCount: len(entry.Surface.OtmPoints),
			ProcessedAt: time.Now().UTC(),
		}
		if !channels.SendSurface(ctx, batch) {
			log.Warn("shutdown requested before all surfaces were written")
			break
		}
	}

	channels.Close()
	surfaceWriter.Stop()

	if _, err := writer.NewDatasetWriter(cfg, runID).WriteSeries(series); err != nil {
		log.WithError(err).Error("failed to write series document")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"trades":   len(trades),
		"filtered": len(filtered),
		"buckets":  len(buckets),
		"surfaces": len(series.Entries),
	}).Info("volflow finished")
}
