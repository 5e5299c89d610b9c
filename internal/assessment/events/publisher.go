// Package events publishes assessment completion events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"trustplane/internal/assessment/models"
	dErrors "trustplane/pkg/domain-errors"
)

// EventTypeCompleted is the event type carried on every completion event.
const EventTypeCompleted = "assessment.completed"

// Producer is the broker surface the publisher needs.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Publisher emits reduced completion events. Publishing is best-effort by
// contract: the orchestrator logs failures and moves on.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New creates a completion-event publisher.
func New(producer Producer, topic string, opts ...Option) (*Publisher, error) {
	if producer == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "producer is required")
	}
	if topic == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "event topic is required")
	}
	p := &Publisher{producer: producer, topic: topic}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PublishCompleted emits one completion event keyed by request id.
func (p *Publisher) PublishCompleted(ctx context.Context, event models.CompletionEvent) error {
	if event.EventType == "" {
		event.EventType = EventTypeCompleted
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode completion event")
	}
	if err := p.producer.Produce(ctx, p.topic, []byte(event.RequestID.String()), value); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "publish completion event")
	}
	return nil
}

// FromResponse builds the reduced event for a terminal response. Raw evidence
// and per-domain results are never included.
func FromResponse(resp *models.AssessmentResponse) models.CompletionEvent {
	return models.CompletionEvent{
		EventType:     EventTypeCompleted,
		RequestID:     resp.RequestID,
		CorrelationID: resp.CorrelationID,
		UserID:        resp.UserID,
		TenantID:      resp.TenantID,
		Timestamp:     time.Now(),
		Status:        resp.Status,
		TrustScore:    resp.TrustScore,
		RiskLevel:     resp.RiskLevel,
		Decision:      resp.Decision,
	}
}
