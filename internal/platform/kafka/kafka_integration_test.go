//go:build integration

package kafka_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"trustplane/internal/platform/config"
	"trustplane/internal/platform/kafka"
	"trustplane/pkg/testutil/containers"
)

type KafkaSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	cfg      config.KafkaConfig
}

func TestKafkaSuite(t *testing.T) {
	suite.Run(t, new(KafkaSuite))
}

func (s *KafkaSuite) SetupSuite() {
	s.redpanda = containers.NewRedpandaContainer(s.T())
	s.cfg = config.KafkaConfig{
		Brokers:       s.redpanda.Brokers,
		EventTopic:    "trustplane.test.events",
		ConsumerGroup: "trustplane-test",
	}
}

func (s *KafkaSuite) TestProduceConsumeRoundTrip() {
	t := s.T()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	producer, err := kafka.NewProducer(s.cfg, logger)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, producer.EnsureTopics(context.Background(), s.cfg.EventTopic))

	consumer, err := kafka.NewConsumer(s.cfg, []string{s.cfg.EventTopic}, logger)
	require.NoError(t, err)
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		received []*kafka.Message
	)
	go func() {
		_ = consumer.Run(ctx, func(_ context.Context, msg *kafka.Message) error {
			mu.Lock()
			received = append(received, msg)
			mu.Unlock()
			return nil
		})
	}()

	// The consumer starts at the end of the topic, so keep producing until a
	// record lands after the group has joined.
	require.Eventually(t, func() bool {
		err := producer.Produce(context.Background(), s.cfg.EventTopic, []byte("req-1"), []byte(`{"status":"COMPLETED"}`))
		require.NoError(t, err)
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, 30*time.Second, 500*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s.Equal(s.cfg.EventTopic, received[0].Topic)
	s.Equal("req-1", string(received[0].Key))
	s.Contains(string(received[0].Value), "COMPLETED")
}

func (s *KafkaSuite) TestEnsureTopicsIdempotent() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	producer, err := kafka.NewProducer(s.cfg, logger)
	require.NoError(s.T(), err)
	defer producer.Close()

	require.NoError(s.T(), producer.EnsureTopics(context.Background(), "trustplane.test.idempotent"))
	require.NoError(s.T(), producer.EnsureTopics(context.Background(), "trustplane.test.idempotent"))
}
