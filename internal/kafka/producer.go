package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-payments/internal/logger"
)

// Publisher is what the domain packages depend on.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, event interface{}) error
}

// Producer writes JSON events to any topic through one shared writer.
type Producer struct {
	Writer *kafka.Writer
	log    *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	return &Producer{
		Writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
		log: log,
	}
}

// Publish keys the message so events for one order land on one partition.
func (p *Producer) Publish(ctx context.Context, topic, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	err = p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
	if err != nil {
		p.log.LogKafka("PUBLISH_FAILED", topic, fmt.Sprintf("publish failed for key %s: %v", key, err))
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.log.LogKafka("PUBLISH", topic, "published key "+key)
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// LogPublisher stands in when Kafka is disabled and only logs the events.
type LogPublisher struct {
	Log *logger.Logger
}

func (p LogPublisher) Publish(_ context.Context, topic, key string, event interface{}) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	p.Log.Info("KAFKA", fmt.Sprintf("kafka disabled, dropping %s event %s: %s", topic, key, value))
	return nil
}
