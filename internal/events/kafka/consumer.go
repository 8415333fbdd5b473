// File: internal/events/kafka/consumer.go
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"

	"github.com/ruther77/MassaCorp-sub001/internal/config"
	"github.com/ruther77/MassaCorp-sub001/internal/events/models"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/metrics"
)

const consumeRetryDelay = time.Second

// EventHandler обрабатывает одно десериализованное CloudEvent.
type EventHandler func(ctx context.Context, event models.CloudEvent) error

// ConsumerGroup reads CloudEvents from a sarama consumer group and routes
// them to the handler registered for their type.
type ConsumerGroup struct {
	group    sarama.ConsumerGroup
	topics   []string
	handlers map[string]EventHandler
	logger   *zap.Logger
}

// NewConsumerSaramaConfig returns the consumer settings.
func NewConsumerSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	cfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRange
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	return cfg
}

// NewConsumerGroup joins cfg.ConsumerGroup and subscribes to the directory topic.
func NewConsumerGroup(cfg config.KafkaConfig, logger *zap.Logger) (*ConsumerGroup, error) {
	if len(cfg.Brokers) == 0 || cfg.DirectoryTopic == "" || cfg.ConsumerGroup == "" {
		return nil, errors.New("kafka: brokers, directory topic and consumer group are required")
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, NewConsumerSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return NewConsumerGroupFromClient(group, []string{cfg.DirectoryTopic}, logger), nil
}

// NewConsumerGroupFromClient wraps an existing sarama consumer group.
func NewConsumerGroupFromClient(group sarama.ConsumerGroup, topics []string, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		group:    group,
		topics:   topics,
		handlers: make(map[string]EventHandler),
		logger:   logger.Named("kafka_consumer_group"),
	}
}

// RegisterHandler registers the handler for eventType. It must be called before Run.
func (c *ConsumerGroup) RegisterHandler(eventType string, handler EventHandler) {
	c.logger.Info("Registering handler", zap.String("event_type", eventType))
	c.handlers[eventType] = handler
}

// Run consumes until ctx is done or the group is closed. A rebalance ends a
// Consume call, so it is called in a loop.
func (c *ConsumerGroup) Run(ctx context.Context) error {
	c.logger.Info("Consumer group started", zap.Strings("topics", c.topics))
	for {
		err := c.group.Consume(ctx, c.topics, c)
		if ctx.Err() != nil {
			c.logger.Info("Consumer group context cancelled")
			return nil
		}
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			c.logger.Info("Consumer group closed")
			return nil
		}
		if err != nil {
			c.logger.Error("Error from consumer", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(consumeRetryDelay):
			}
		}
	}
}

// Close leaves the group.
func (c *ConsumerGroup) Close() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	c.logger.Info("Consumer group closed successfully")
	return nil
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (c *ConsumerGroup) Setup(session sarama.ConsumerGroupSession) error {
	c.logger.Info("Consumer group setup", zap.String("member_id", session.MemberID()))
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (c *ConsumerGroup) Cleanup(session sarama.ConsumerGroupSession) error {
	c.logger.Info("Consumer group cleanup", zap.String("member_id", session.MemberID()))
	return nil
}

// ConsumeClaim blocks until the claim is drained or the session ends.
func (c *ConsumerGroup) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.dispatch(ctx, message)
			// Прерванная обработка не коммитится: сообщение придет снова.
			if ctx.Err() != nil {
				return nil
			}
			session.MarkMessage(message, "")
		}
	}
}

func (c *ConsumerGroup) dispatch(ctx context.Context, message *sarama.ConsumerMessage) {
	var event models.CloudEvent
	err := json.Unmarshal(message.Value, &event)
	if err == nil {
		err = event.Validate()
	}
	if err != nil {
		c.logger.Error("Rejected malformed CloudEvent",
			zap.Error(err),
			zap.String("topic", message.Topic),
			zap.Int32("partition", message.Partition),
			zap.Int64("offset", message.Offset))
		metrics.DirectoryEventsTotal.WithLabelValues("malformed", metrics.StatusFailure).Inc()
		return
	}

	handler, ok := c.handlers[event.Type]
	if !ok {
		c.logger.Debug("No handler registered for event type", zap.String("event_type", event.Type))
		metrics.DirectoryEventsTotal.WithLabelValues("unregistered", "ignored").Inc()
		return
	}

	if err := handler(ctx, event); err != nil {
		c.logger.Error("Error processing event",
			zap.Error(err),
			zap.String("event_type", event.Type),
			zap.String("event_id", event.ID))
		metrics.DirectoryEventsTotal.WithLabelValues(event.Type, metrics.StatusFailure).Inc()
		return
	}
	metrics.DirectoryEventsTotal.WithLabelValues(event.Type, metrics.StatusSuccess).Inc()
}
