package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"ms-payments/internal/logger"
)

// Handler processes one message. A failed message is retried with backoff
// and its offset is committed only once the handler succeeds, so later
// messages never overtake it. Handlers that want to skip a message return nil.
type Handler func(ctx context.Context, msg kafka.Message) error

const (
	defaultMinBackoff = 200 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

type Consumer struct {
	reader     *kafka.Reader
	log        *logger.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, log: log, minBackoff: defaultMinBackoff, maxBackoff: defaultMaxBackoff}
}

// Run fetches until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	topic := c.reader.Config().Topic
	c.log.LogKafka("CONSUME", topic, "consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.log.LogKafka("CONSUME", topic, "consumer stopped")
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error reading from %s: %v", topic, err))
			continue
		}

		if err := c.process(ctx, handle, msg); err != nil {
			c.log.LogKafka("CONSUME", topic, fmt.Sprintf("consumer stopped with offset %d uncommitted", msg.Offset))
			return nil
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error("KAFKA", fmt.Sprintf("Commit failed for %s offset %d: %v", topic, msg.Offset, err))
		}
	}
}

// process runs handle until it succeeds. It only gives up when ctx ends and
// then returns ctx's error.
func (c *Consumer) process(ctx context.Context, handle Handler, msg kafka.Message) error {
	backoff := c.minBackoff
	for attempt := 1; ; attempt++ {
		err := handle(ctx, msg)
		if err == nil {
			return nil
		}
		c.log.Error("KAFKA", fmt.Sprintf("Handler failed for %s offset %d key %s (attempt %d), retrying in %s: %v",
			msg.Topic, msg.Offset, msg.Key, attempt, backoff, err))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		if backoff *= 2; backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
