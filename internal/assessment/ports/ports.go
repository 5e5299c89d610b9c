// Package ports defines the interfaces the assessment orchestrator depends
// on. Concrete implementations live in adapters and stores; the orchestrator
// never imports them directly.
package ports

import (
	"context"
	"log/slog"
	"time"

	"trustplane/internal/assessment/models"
	id "trustplane/pkg/domain"
)

// IdentityEvaluator verifies a subject's identity from the identity slice of
// the evidence bundle.
type IdentityEvaluator interface {
	EvaluateIdentity(ctx context.Context, rc models.RequestContext, data *models.IdentityData) (*models.IdentityResult, error)
}

// CreditProvider answers a credit inquiry. Multiple providers are queried
// concurrently and consolidated; any single provider may fail independently.
type CreditProvider interface {
	Name() string
	CheckCredit(ctx context.Context, rc models.RequestContext, data *models.CreditData) (*models.CreditProviderResult, error)
}

// FraudEngine scores the likelihood of fraud from device, network,
// transaction, and behavioral evidence.
type FraudEngine interface {
	AnalyzeFraud(ctx context.Context, rc models.RequestContext, evidence *models.EvidenceBundle) (*models.FraudResult, error)
}

// ComplianceChecker verifies regulatory standing.
type ComplianceChecker interface {
	CheckCompliance(ctx context.Context, rc models.RequestContext, data *models.IdentityData) (*models.ComplianceResult, error)
}

// RiskEngine produces an overall risk score. It receives the other domains'
// results as context, which is why risk assessment is ordered after them.
type RiskEngine interface {
	AssessRisk(ctx context.Context, rc models.RequestContext, evidence *models.EvidenceBundle, results models.DomainResults) (*models.RiskResult, error)
}

// ResponseCache persists finished responses for deduplication and status
// polling.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*models.AssessmentResponse, bool, error)
	Set(ctx context.Context, key string, resp *models.AssessmentResponse, ttl time.Duration) error
}

// EventPublisher receives the reduced completion event. Implementations are
// best-effort; the orchestrator logs and continues on publish failure.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, event models.CompletionEvent) error
}

// HistoryStore persists terminal responses for audit queries.
type HistoryStore interface {
	Record(ctx context.Context, resp *models.AssessmentResponse) error
	RecentByUser(ctx context.Context, userID id.UserID, limit int) ([]*models.AssessmentResponse, error)
}

// AgentDirectory is the registry view the dispatcher needs.
type AgentDirectory interface {
	AgentsForDomain(domain id.AssessmentType, region id.Region) []models.AgentInfo
	List() []models.AgentInfo
}

// LogAudit logs a structured audit line when a logger is present. Shared by
// services so audit formatting stays uniform.
func LogAudit(ctx context.Context, logger *slog.Logger, action string, attrs ...any) {
	if logger == nil {
		return
	}
	logger.InfoContext(ctx, action, attrs...)
}
