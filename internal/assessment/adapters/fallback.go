package adapters

import (
	"context"

	"trustplane/internal/assessment/models"
	"trustplane/internal/assessment/ports"
	dErrors "trustplane/pkg/domain-errors"
)

// The fallback adapters prefer a registered agent and drop to the local
// implementation only when no agent serves the domain. Agent failures other
// than absence surface to the caller so a broken agent is visible instead of
// silently shadowed.

// IdentityEvaluatorWithFallback routes identity verification to an agent when
// one is registered.
type IdentityEvaluatorWithFallback struct {
	Remote ports.IdentityEvaluator
	Local  ports.IdentityEvaluator
}

func (f *IdentityEvaluatorWithFallback) EvaluateIdentity(ctx context.Context, rc models.RequestContext, data *models.IdentityData) (*models.IdentityResult, error) {
	result, err := f.Remote.EvaluateIdentity(ctx, rc, data)
	if err == nil {
		return result, nil
	}
	if !dErrors.HasCode(err, dErrors.CodeUnavailable) {
		return nil, err
	}
	return f.Local.EvaluateIdentity(ctx, rc, data)
}

// FraudEngineWithFallback routes fraud analysis to an agent when one is
// registered.
type FraudEngineWithFallback struct {
	Remote ports.FraudEngine
	Local  ports.FraudEngine
}

func (f *FraudEngineWithFallback) AnalyzeFraud(ctx context.Context, rc models.RequestContext, evidence *models.EvidenceBundle) (*models.FraudResult, error) {
	result, err := f.Remote.AnalyzeFraud(ctx, rc, evidence)
	if err == nil {
		return result, nil
	}
	if !dErrors.HasCode(err, dErrors.CodeUnavailable) {
		return nil, err
	}
	return f.Local.AnalyzeFraud(ctx, rc, evidence)
}

// RiskEngineWithFallback routes risk assessment to an agent when one is
// registered.
type RiskEngineWithFallback struct {
	Remote ports.RiskEngine
	Local  ports.RiskEngine
}

func (f *RiskEngineWithFallback) AssessRisk(ctx context.Context, rc models.RequestContext, evidence *models.EvidenceBundle, results models.DomainResults) (*models.RiskResult, error) {
	result, err := f.Remote.AssessRisk(ctx, rc, evidence, results)
	if err == nil {
		return result, nil
	}
	if !dErrors.HasCode(err, dErrors.CodeUnavailable) {
		return nil, err
	}
	return f.Local.AssessRisk(ctx, rc, evidence, results)
}
