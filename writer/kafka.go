package writer

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	appconfig "volflow/config"
	"volflow/logger"
	"volflow/models"
)

// kafkaPublisher pushes each surface batch to a topic for live consumers,
// keyed by bucket start so one bucket's updates land on one partition.
type kafkaPublisher struct {
	writer *kafka.Writer
	log    *logger.Log
}

func newKafkaPublisher(cfg *appconfig.Config) (*kafkaPublisher, error) {
	if len(cfg.Storage.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	p := &kafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Storage.Kafka.Brokers...),
			Topic:    cfg.Storage.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		log: logger.GetLogger(),
	}
	p.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"brokers": cfg.Storage.Kafka.Brokers,
		"topic":   cfg.Storage.Kafka.Topic,
	}).Debug("kafka publisher initialized")
	return p, nil
}

func (p *kafkaPublisher) publish(ctx context.Context, batch models.SurfaceBatch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(batch.Surface.Bucket.Start.UTC().Format("20060102150405")),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	p.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"batch_id": batch.BatchID,
		"records":  batch.RecordCount,
	}).Debug("batch published to kafka")
	return nil
}

func (p *kafkaPublisher) close() {
	p.writer.Close()
}
