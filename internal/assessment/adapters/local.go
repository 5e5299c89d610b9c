// Package adapters provides concrete evaluator implementations: local
// deterministic heuristics and remote agent-backed evaluators that speak the
// agent message protocol.
package adapters

import (
	"context"
	"hash/fnv"
	"math"

	"trustplane/internal/assessment/models"
)

// LocalIdentityEvaluator scores identity evidence by completeness. It is the
// fallback when no identity agent is registered.
type LocalIdentityEvaluator struct{}

func (LocalIdentityEvaluator) EvaluateIdentity(_ context.Context, _ models.RequestContext, data *models.IdentityData) (*models.IdentityResult, error) {
	result := &models.IdentityResult{Details: map[string]any{"evaluator": "local"}}
	if data == nil {
		return result, nil
	}

	var sources []string
	if data.DocumentNumber != "" && data.DocumentType != "" {
		result.VerificationScore += 50
		sources = append(sources, "document")
	}
	if data.FullName != "" {
		result.VerificationScore += 25
		sources = append(sources, "name")
	}
	if data.BirthDate != "" {
		result.VerificationScore += 25
		sources = append(sources, "birth-date")
	}
	result.MatchedSources = sources
	result.Verified = result.VerificationScore >= 75
	return result, nil
}

// LocalCreditProvider is a deterministic stand-in for a credit bureau. The
// score is a stable function of the provider name and the subject's tax id, so
// repeated queries agree.
type LocalCreditProvider struct {
	ProviderName string
	BaseScore    float64
}

func (p LocalCreditProvider) Name() string { return p.ProviderName }

func (p LocalCreditProvider) CheckCredit(_ context.Context, rc models.RequestContext, data *models.CreditData) (*models.CreditProviderResult, error) {
	seed := p.ProviderName + ":" + rc.UserID.String()
	if data != nil && data.TaxID != "" {
		seed = p.ProviderName + ":" + data.TaxID
	}
	h := hashOf(seed)

	base := p.BaseScore
	if base == 0 {
		base = 500
	}
	score := math.Min(base+float64(h%500), 1000)

	return &models.CreditProviderResult{
		Provider:        p.ProviderName,
		Score:           score,
		Blacklisted:     h%97 == 0,
		HasLegalIssues:  h%53 == 0,
		HasPendingDebts: h%11 == 0,
	}, nil
}

// Fraud probability contributions per signal.
const (
	fraudSignalVPN           = 25
	fraudSignalUnknownDevice = 20
	fraudSignalLargeAmount   = 30
	fraudSignalNoBehavior    = 10

	fraudLargeAmountCutoff = 10_000
	fraudDetectedCutoff    = 80
)

// LocalFraudEngine accumulates fraud probability from device, network, and
// transaction signals.
type LocalFraudEngine struct{}

func (LocalFraudEngine) AnalyzeFraud(_ context.Context, _ models.RequestContext, evidence *models.EvidenceBundle) (*models.FraudResult, error) {
	result := &models.FraudResult{}
	if evidence == nil {
		return result, nil
	}

	if evidence.Network != nil && evidence.Network.VPNDetected {
		result.FraudProbability += fraudSignalVPN
		result.Indicators = append(result.Indicators, "VPN_DETECTED")
	}
	if evidence.Device != nil && !evidence.Device.KnownDevice {
		result.FraudProbability += fraudSignalUnknownDevice
		result.Indicators = append(result.Indicators, "UNKNOWN_DEVICE")
	}
	if evidence.Transaction != nil && evidence.Transaction.Amount > fraudLargeAmountCutoff {
		result.FraudProbability += fraudSignalLargeAmount
		result.Indicators = append(result.Indicators, "LARGE_TRANSACTION")
		result.RulesTriggered = append(result.RulesTriggered, "AMOUNT_OVER_LIMIT")
	}
	if evidence.Behavioral == nil && evidence.Transaction != nil {
		result.FraudProbability += fraudSignalNoBehavior
		result.Indicators = append(result.Indicators, "NO_BEHAVIORAL_BASELINE")
	}

	result.FraudProbability = math.Min(result.FraudProbability, 100)
	result.FraudDetected = result.FraudProbability >= fraudDetectedCutoff
	return result, nil
}

// LocalComplianceChecker verifies the minimum document set and screens the
// politically-exposed flag carried in identity attributes.
type LocalComplianceChecker struct{}

func (LocalComplianceChecker) CheckCompliance(_ context.Context, _ models.RequestContext, data *models.IdentityData) (*models.ComplianceResult, error) {
	result := &models.ComplianceResult{ComplianceScore: 100, Compliant: true}
	if data == nil {
		result.Compliant = false
		result.ComplianceScore = 0
		result.Issues = append(result.Issues, "MISSING_IDENTITY_EVIDENCE")
		return result, nil
	}

	if data.DocumentNumber == "" {
		result.Compliant = false
		result.ComplianceScore -= 60
		result.Issues = append(result.Issues, "MISSING_DOCUMENT")
	}
	if data.FullName == "" {
		result.ComplianceScore -= 20
		result.Issues = append(result.Issues, "MISSING_FULL_NAME")
	}
	if pep, ok := data.Attributes["politicallyExposed"].(bool); ok && pep {
		result.PoliticallyExposed = true
		result.ComplianceScore -= 20
	}
	result.ComplianceScore = math.Max(result.ComplianceScore, 0)
	return result, nil
}

// Risk engine weights over the sibling domain results.
const (
	riskTermIdentity   = 0.25
	riskTermCredit     = 0.20
	riskTermFraud      = 0.35
	riskTermCompliance = 0.20
)

// LocalRiskEngine folds the four sibling domain results into one risk score.
// Missing domains contribute a neutral 50.
type LocalRiskEngine struct{}

func (LocalRiskEngine) AssessRisk(_ context.Context, _ models.RequestContext, _ *models.EvidenceBundle, results models.DomainResults) (*models.RiskResult, error) {
	factors := map[string]float64{}

	identity := 50.0
	if r := results.Identity; r != nil {
		identity = 100 - r.VerificationScore
		if !r.Verified {
			identity = math.Min(identity+25, 100)
		}
	}
	factors["identity"] = identity

	credit := 50.0
	if r := results.Credit; r != nil {
		credit = 100 - r.Score/10
		if r.Blacklisted || r.HasLegalIssues {
			credit = 100
		}
	}
	factors["credit"] = credit

	fraud := 50.0
	if r := results.Fraud; r != nil {
		fraud = r.FraudProbability
	}
	factors["fraud"] = fraud

	compliance := 50.0
	if r := results.Compliance; r != nil {
		compliance = 100 - r.ComplianceScore
		if !r.Compliant {
			compliance = 100
		}
	}
	factors["compliance"] = compliance

	score := identity*riskTermIdentity +
		credit*riskTermCredit +
		fraud*riskTermFraud +
		compliance*riskTermCompliance

	result := &models.RiskResult{
		RiskScore: math.Round(score*100) / 100,
		Factors:   factors,
	}
	if fraud >= 50 {
		result.Recommendations = append(result.Recommendations, "ENABLE_MFA")
	}
	if identity >= 75 {
		result.Recommendations = append(result.Recommendations, "REQUEST_ADDITIONAL_DOCUMENTS")
	}
	return result, nil
}

func hashOf(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
