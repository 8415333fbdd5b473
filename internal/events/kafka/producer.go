// File: internal/events/kafka/producer.go
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ruther77/MassaCorp-sub001/internal/config"
	"github.com/ruther77/MassaCorp-sub001/internal/domain/service"
	"github.com/ruther77/MassaCorp-sub001/internal/events/models"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/telemetry"
)

// Producer публикует события аудита в Kafka в формате CloudEvents
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	source   string
	clock    service.Clock
	logger   *zap.Logger
}

// NewSaramaConfig returns the producer settings: idempotent, acks from all replicas.
func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_6_0_0
	return cfg
}

// NewProducer dials the brokers of cfg.
func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 || cfg.AuditTopic == "" {
		return nil, errors.New("kafka: brokers and audit topic are required")
	}
	sp, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewProducerFromSync(sp, cfg.AuditTopic, cfg.Source, nil, logger), nil
}

// NewProducerFromSync wraps an existing sync producer.
func NewProducerFromSync(sp sarama.SyncProducer, topic, source string, clock service.Clock, logger *zap.Logger) *Producer {
	if source == "" {
		source = models.DefaultCloudEventSource
	}
	if clock == nil {
		clock = service.SystemClock{}
	}
	return &Producer{
		producer: sp,
		topic:    topic,
		source:   source,
		clock:    clock,
		logger:   logger.Named("kafka_producer"),
	}
}

// PublishCloudEvent wraps payload in a CloudEvent and sends it synchronously.
// The subject is the partition key, so one tenant's events stay ordered.
func (p *Producer) PublishCloudEvent(ctx context.Context, eventType, subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	event := models.CloudEvent{
		SpecVersion:     models.CloudEventSpecVersion,
		ID:              uuid.NewString(),
		Source:          p.source,
		Type:            eventType,
		DataContentType: models.CloudEventDataContentType,
		Subject:         subject,
		Time:            p.clock.Now().UTC(),
		TraceID:         telemetry.TraceID(ctx),
		Data:            data,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal CloudEvent: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Value:     sarama.ByteEncoder(body),
		Timestamp: event.Time,
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-type"), Value: []byte("application/cloudevents+json")},
			{Key: []byte("ce_type"), Value: []byte(eventType)},
		},
	}
	if subject != "" {
		msg.Key = sarama.StringEncoder(subject)
	}

	start := time.Now()
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.Error("Failed to send CloudEvent to Kafka",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.String("event_type", eventType),
			zap.String("event_id", event.ID))
		return fmt.Errorf("failed to send CloudEvent to Kafka: %w", err)
	}
	p.logger.Debug("CloudEvent sent to Kafka",
		zap.String("event_type", eventType),
		zap.String("event_id", event.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.Duration("took", time.Since(start)))
	return nil
}

// Close закрывает продюсера Kafka
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	p.logger.Info("Kafka producer closed")
	return nil
}

var _ service.EventPublisher = (*Producer)(nil)
