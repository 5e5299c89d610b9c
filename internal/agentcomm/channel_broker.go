package agentcomm

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"trustplane/internal/platform/config"
	"trustplane/internal/platform/kafka"
	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

// BrokerChannel moves agent messages over Kafka topics. Outbound messages are
// produced keyed by message id; inbound messages are consumed from the inbound
// topic and fed to the communicator. Broker metadata stays inside this file;
// correlation travels in the message body, never in headers.
type BrokerChannel struct {
	cfg      config.KafkaConfig
	producer *kafka.Producer
	consumer *kafka.Consumer
	logger   *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewBrokerChannel connects producer and consumer clients and ensures the
// channel topics exist.
func NewBrokerChannel(ctx context.Context, cfg config.KafkaConfig, logger *slog.Logger) (*BrokerChannel, error) {
	producer, err := kafka.NewProducer(cfg, logger)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "broker channel producer")
	}
	if err := producer.EnsureTopics(ctx, cfg.OutboundTopic, cfg.InboundTopic); err != nil {
		producer.Close()
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "broker channel topics")
	}
	consumer, err := kafka.NewConsumer(cfg, []string{cfg.InboundTopic}, logger)
	if err != nil {
		producer.Close()
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "broker channel consumer")
	}
	return &BrokerChannel{
		cfg:      cfg,
		producer: producer,
		consumer: consumer,
		logger:   logger,
	}, nil
}

func (c *BrokerChannel) Type() id.ChannelType { return id.ChannelTypeBroker }

func (c *BrokerChannel) Start(ctx context.Context, inbound chan<- *AgentMessage) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.consumer.Run(ctx, func(ctx context.Context, record *kafka.Message) error {
			var msg AgentMessage
			if err := json.Unmarshal(record.Value, &msg); err != nil {
				// Malformed records are skipped; one bad producer must not
				// wedge the partition.
				c.logger.WarnContext(ctx, "dropping malformed broker message",
					"topic", record.Topic,
					"key", string(record.Key),
					"error", err,
				)
				return nil
			}
			select {
			case inbound <- &msg:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			c.logger.Error("broker channel consume loop exited", "error", err)
		}
	}()
	return nil
}

func (c *BrokerChannel) Send(ctx context.Context, msg *AgentMessage) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return dErrors.New(dErrors.CodeUnavailable, "broker channel closed")
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "marshal agent message")
	}
	if err := c.producer.Produce(ctx, c.cfg.OutboundTopic, []byte(msg.ID.String()), value); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "broker channel send failed")
	}
	return nil
}

func (c *BrokerChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.consumer.Close()
	c.wg.Wait()
	c.producer.Close()
	return nil
}
