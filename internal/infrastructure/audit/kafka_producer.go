// Package audit publishes and records key lifecycle events.
package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/realmkeys/internal/config"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes key lifecycle events to a Kafka topic.
// Messages are keyed by tenant so that one tenant's events stay ordered within a partition.
type KafkaProducer struct {
	writer messageWriter
	secret string
	logger logger.Logger
}

var _ service.KeyLifecycleRegistry = (*KafkaProducer)(nil)

// NewKafkaProducer creates a new KafkaProducer.
func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.LifecycleTopic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		BatchTimeout: cfg.BatchTimeout,
	}
	return newKafkaProducer(writer, cfg.SigningSecret, log)
}

func newKafkaProducer(writer messageWriter, secret string, log logger.Logger) *KafkaProducer {
	return &KafkaProducer{
		writer: writer,
		secret: secret,
		logger: log.WithComponent("KafkaProducer"),
	}
}

// LogEvent sends a lifecycle event to the Kafka topic.
func (p *KafkaProducer) LogEvent(ctx context.Context, event models.KeyLifecycleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error(ctx, "failed to marshal lifecycle event", err)
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.TenantID),
		Value: payload,
		Time:  event.EventTimestamp,
	}
	if p.secret != "" {
		msg.Headers = append(msg.Headers, kafka.Header{
			Key:   SignatureHeader,
			Value: []byte(SignPayload(payload, p.secret)),
		})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(ctx, "failed to write message to Kafka", err,
			logger.String("tenant_id", event.TenantID),
			logger.String("kid", event.KeyID),
		)
		return err
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
