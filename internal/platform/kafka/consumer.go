package kafka

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"trustplane/internal/platform/config"
)

// Message is a consumed record reduced to what handlers need.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// Handler processes one consumed message. Returning an error does not stop
// the consume loop; poison records must not wedge the partition.
type Handler func(ctx context.Context, msg *Message) error

// Consumer runs a consume loop over one or more topics in a consumer group.
type Consumer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewConsumer connects a group consumer for the given topics.
func NewConsumer(cfg config.KafkaConfig, topics []string, logger *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return &Consumer{client: client, logger: logger}, nil
}

// Run polls until the context is cancelled, invoking the handler per record.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			msg := &Message{Topic: record.Topic, Key: record.Key, Value: record.Value}
			if err := handler(ctx, msg); err != nil {
				c.logger.WarnContext(ctx, "kafka message handler failed",
					"topic", record.Topic,
					"key", string(record.Key),
					"error", err,
				)
			}
		})
	}
}

// Close shuts down the consumer client.
func (c *Consumer) Close() {
	c.client.Close()
}
