package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"

	appconfig "volflow/config"
	"volflow/channel"
	"volflow/logger"
	"volflow/models"
)

// SurfaceWriter drains the surface channel and persists each batch in the
// enabled formats: a JSON document per bucket, a parquet file per bucket
// (locally and, when configured, to S3 under hive-style partitions), and
// optionally a Kafka message for live consumers.
type SurfaceWriter struct {
	config   *appconfig.Config
	channels *channel.Channels
	s3Client *s3.Client
	kafka    *kafkaPublisher
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

func NewSurfaceWriter(cfg *appconfig.Config, channels *channel.Channels) (*SurfaceWriter, error) {
	log := logger.GetLogger()

	w := &SurfaceWriter{
		config:   cfg,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      log,
	}

	if cfg.Storage.S3.Enabled {
		client, err := newS3Client(context.Background(), cfg.Storage.S3)
		if err != nil {
			return nil, err
		}
		w.s3Client = client
	}
	if cfg.Storage.Kafka.Enabled {
		pub, err := newKafkaPublisher(cfg)
		if err != nil {
			return nil, err
		}
		w.kafka = pub
	}

	log.WithComponent("surface_writer").WithFields(logger.Fields{
		"json_enabled":    cfg.Writer.Formats.JSON.Enabled,
		"parquet_enabled": cfg.Writer.Formats.Parquet.Enabled,
		"s3_enabled":      cfg.Storage.S3.Enabled,
		"kafka_enabled":   cfg.Storage.Kafka.Enabled,
	}).Info("surface writer initialized")

	return w, nil
}

func (w *SurfaceWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("surface writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	log := w.log.WithComponent("surface_writer").WithFields(logger.Fields{"operation": "start"})

	numWorkers := w.config.Writer.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	log.WithFields(logger.Fields{"workers": numWorkers}).Info("starting surface writer")

	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}
	return nil
}

// Stop waits for the workers to drain the channel. The channel must be
// closed by the producer first.
func (w *SurfaceWriter) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.log.WithComponent("surface_writer").Info("stopping surface writer")
	w.wg.Wait()
	if w.kafka != nil {
		w.kafka.close()
	}
	w.log.WithComponent("surface_writer").Info("surface writer stopped")
}

func (w *SurfaceWriter) worker(workerID int) {
	defer w.wg.Done()

	log := w.log.WithComponent("surface_writer").WithFields(logger.Fields{
		"worker_id": workerID,
	})

	for {
		select {
		case <-w.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case batch, ok := <-w.channels.Surfaces:
			if !ok {
				log.Debug("surface channel closed, worker stopping")
				return
			}
			w.processBatch(batch)
		}
	}
}

func (w *SurfaceWriter) processBatch(batch models.SurfaceBatch) {
	log := w.log.WithComponent("surface_writer").WithFields(logger.Fields{
		"batch_id":     batch.BatchID,
		"ticker":       batch.Ticker,
		"bucket_start": batch.Surface.Bucket.Start,
		"record_count": batch.RecordCount,
	})

	if w.config.Writer.Formats.JSON.Enabled {
		if err := w.writeJSON(batch); err != nil {
			log.WithError(err).Error("failed to write JSON artifact")
		}
	}

	if w.config.Writer.Formats.Parquet.Enabled {
		if dir := w.config.Writer.Formats.Parquet.Dir; dir != "" {
			if err := w.writeParquetLocal(batch, dir); err != nil {
				log.WithError(err).Error("failed to write local parquet file")
			}
		}
		if w.s3Client != nil {
			data, err := createParquetFile(batch, w.config.Writer.Formats.Parquet.Compression)
			if err != nil {
				log.WithError(err).Error("failed to create parquet file")
				return
			}
			key := w.objectKey(batch)
			if err := w.uploadToS3(w.ctx, key, data); err != nil {
				log.WithError(err).
					WithEnv("S3_BUCKET").
					WithFields(logger.Fields{"bucket": w.config.Storage.S3.Bucket, "s3_key": key}).
					Error("failed to upload to S3")
			} else {
				logger.IncrementArtifactWrite(int64(len(data)))
			}
		}
	}

	if w.kafka != nil {
		if err := w.kafka.publish(w.ctx, batch); err != nil {
			log.WithError(err).Warn("failed to publish batch to kafka")
		}
	}

	log.Debug("batch processed")
}

func (w *SurfaceWriter) writeJSON(batch models.SurfaceBatch) error {
	dir := w.config.Writer.Formats.JSON.Dir
	if dir == "" {
		dir = "output"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	name := fmt.Sprintf("%s_%s_surface.json",
		batch.Ticker, batch.Surface.Bucket.Start.UTC().Format("20060102150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write JSON artifact: %w", err)
	}

	logger.IncrementArtifactWrite(int64(len(data)))
	return nil
}

func (w *SurfaceWriter) writeParquetLocal(batch models.SurfaceBatch, dir string) error {
	full := filepath.Join(dir, w.objectKey(batch))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create parquet dir: %w", err)
	}

	fw, err := local.NewLocalFileWriter(full)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	if err := writeParquet(fw, batch, w.config.Writer.Formats.Parquet.Compression); err != nil {
		fw.Close()
		return err
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close parquet file: %w", err)
	}

	if info, err := os.Stat(full); err == nil {
		logger.IncrementArtifactWrite(info.Size())
	}
	return nil
}

// objectKey builds the hive-style partition path for a batch, ending in a
// unique parquet filename.
func (w *SurfaceWriter) objectKey(batch models.SurfaceBatch) string {
	start := batch.Surface.Bucket.Start

	parts := []string{fmt.Sprintf("ticker=%s", batch.Ticker)}

	timePath := w.config.Writer.Partition.TimeFormat
	timePath = strings.ReplaceAll(timePath, "{year}", fmt.Sprintf("%04d", start.Year()))
	timePath = strings.ReplaceAll(timePath, "{month}", fmt.Sprintf("%02d", start.Month()))
	timePath = strings.ReplaceAll(timePath, "{day}", fmt.Sprintf("%02d", start.Day()))
	timePath = strings.ReplaceAll(timePath, "{hour}", fmt.Sprintf("%02d", start.Hour()))
	parts = append(parts, timePath)

	filename := fmt.Sprintf("%s_surface_%s_%s.parquet",
		batch.Ticker,
		start.UTC().Format("20060102150405"),
		uuid.New().String()[:8])

	if prefix := w.config.Storage.S3.Prefix; prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	key := filepath.Join(append(parts, filename)...)
	return filepath.ToSlash(key)
}
