// Package consolidator combines heterogeneous per-domain results into one
// overall confidence, risk level, trust score, decision, and action list.
//
// Consolidation is a pure function of the accumulated results: no I/O, no
// clock, same input always yields the same output.
package consolidator

import (
	"math"
	"sort"

	"trustplane/internal/assessment/models"
	id "trustplane/pkg/domain"
)

// Calibrated business constants. Their exact values are a business decision;
// do not re-derive them.
const (
	// Confidence term weights.
	confidenceWeightIdentity   = 1.0
	confidenceWeightCredit     = 0.8
	confidenceWeightFraud      = 0.9
	confidenceWeightCompliance = 0.7
	confidenceWeightRisk       = 1.0

	// Full credit-bureau coverage is reached at this many providers.
	creditFullCoverageProviders = 3

	// Risk sub-score penalties.
	penaltyIdentityUnverified = 50
	penaltyCreditBlacklisted  = 100
	penaltyCreditLegalIssues  = 75
	penaltyCreditPendingDebts = 50
	penaltyFraudDetected      = 50
	penaltyNonCompliant       = 75
	penaltyPoliticallyExposed = 25

	// Domain weights for the combined risk score.
	riskWeightIdentity   = 25
	riskWeightCredit     = 20
	riskWeightFraud      = 30
	riskWeightCompliance = 25
	riskWeightRiskEngine = 35

	// Risk level buckets.
	riskBucketVeryHigh = 80
	riskBucketHigh     = 60
	riskBucketMedium   = 40
	riskBucketLow      = 20

	// Trust score penalties on the risk-engine branch.
	trustPenaltyFraud        = 40
	trustPenaltyNonCompliant = 30
	trustPenaltyUnverified   = 50
	trustPenaltyBlacklisted  = 40

	// Decision thresholds.
	defaultTrustApproveThreshold = 70
	trustRejectThreshold         = 40
)

// Required and suggested follow-up actions.
const (
	ActionVerifyIdentity           = "VERIFY_IDENTITY"
	ActionInvestigateFraud         = "INVESTIGATE_FRAUD"
	ActionResolveComplianceIssues  = "RESOLVE_COMPLIANCE_ISSUES"
	ActionResolveCreditRestriction = "RESOLVE_CREDIT_RESTRICTIONS"
	ActionManualReview             = "MANUAL_REVIEW"
	ActionUpgradeIdentity          = "UPGRADE_IDENTITY_VERIFICATION"
	ActionMonitorForFraud          = "MONITOR_FOR_FRAUD"
)

// trustFromLevel maps a risk level to a base trust score when no dedicated
// risk-engine result exists.
var trustFromLevel = map[id.RiskLevel]float64{
	id.RiskLevelVeryHigh: 10,
	id.RiskLevelHigh:     30,
	id.RiskLevelMedium:   50,
	id.RiskLevelLow:      70,
	id.RiskLevelVeryLow:  90,
	id.RiskLevelUnknown:  50,
}

// Consolidator merges per-domain results into the final decision fields.
type Consolidator struct {
	trustApproveThreshold float64
}

// Option configures the Consolidator.
type Option func(*Consolidator)

// WithTrustScoreThreshold overrides the approval threshold.
func WithTrustScoreThreshold(threshold float64) Option {
	return func(c *Consolidator) {
		c.trustApproveThreshold = threshold
	}
}

// New creates a consolidator with default calibration.
func New(opts ...Option) *Consolidator {
	c := &Consolidator{trustApproveThreshold: defaultTrustApproveThreshold}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consolidate computes confidence, risk level, trust score, decision, and
// actions from whatever domain results are present on the response. The
// caller must have exclusive ownership of the response.
func (c *Consolidator) Consolidate(resp *models.AssessmentResponse) {
	resp.Confidence = consolidateConfidence(resp)
	resp.RiskLevel = consolidateRiskLevel(resp)
	resp.TrustScore = consolidateTrustScore(resp)
	resp.Decision = c.decide(resp)
	resp.RequiredActions, resp.SuggestedActions = deriveActions(resp)
}

// consolidateConfidence is a weighted average of the available per-domain
// confidence contributions, scaled to 0-100. Absent domains contribute no
// term; with zero terms confidence is 0.
func consolidateConfidence(resp *models.AssessmentResponse) float64 {
	var weightedSum, totalWeight float64

	if r := resp.Identity; r != nil {
		weightedSum += clamp01(r.VerificationScore/100) * confidenceWeightIdentity
		totalWeight += confidenceWeightIdentity
	}
	if r := resp.Credit; r != nil {
		coverage := math.Min(float64(len(r.ProvidersConsulted))/creditFullCoverageProviders, 1)
		weightedSum += coverage * confidenceWeightCredit
		totalWeight += confidenceWeightCredit
	}
	if r := resp.Fraud; r != nil {
		// High confidence when fraud is clearly likely or clearly unlikely;
		// low confidence near 50/50.
		certainty := clamp01(math.Abs(r.FraudProbability-50) / 50)
		weightedSum += certainty * confidenceWeightFraud
		totalWeight += confidenceWeightFraud
	}
	if r := resp.Compliance; r != nil {
		weightedSum += clamp01(r.ComplianceScore/100) * confidenceWeightCompliance
		totalWeight += confidenceWeightCompliance
	}
	if r := resp.Risk; r != nil {
		weightedSum += clamp01(1-math.Abs(r.RiskScore-50)/50) * confidenceWeightRisk
		totalWeight += confidenceWeightRisk
	}

	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight * 100
}

// consolidateRiskLevel combines per-domain risk sub-scores via a weighted
// average and buckets the result. Returns UNKNOWN when no domain produced a
// signal.
func consolidateRiskLevel(resp *models.AssessmentResponse) id.RiskLevel {
	var weightedSum, totalWeight float64

	if r := resp.Identity; r != nil {
		sub := 100 - r.VerificationScore
		if !r.Verified {
			sub += penaltyIdentityUnverified
		}
		weightedSum += sub * riskWeightIdentity
		totalWeight += riskWeightIdentity
	}
	if r := resp.Credit; r != nil {
		sub := 100 - r.Score/10
		if r.Blacklisted {
			sub += penaltyCreditBlacklisted
		}
		if r.HasLegalIssues {
			sub += penaltyCreditLegalIssues
		}
		if r.HasPendingDebts {
			sub += penaltyCreditPendingDebts
		}
		weightedSum += sub * riskWeightCredit
		totalWeight += riskWeightCredit
	}
	if r := resp.Fraud; r != nil {
		sub := r.FraudProbability
		if r.FraudDetected {
			sub += penaltyFraudDetected
		}
		weightedSum += sub * riskWeightFraud
		totalWeight += riskWeightFraud
	}
	if r := resp.Compliance; r != nil {
		sub := 100 - r.ComplianceScore
		if !r.Compliant {
			sub += penaltyNonCompliant
		}
		if r.PoliticallyExposed {
			sub += penaltyPoliticallyExposed
		}
		weightedSum += sub * riskWeightCompliance
		totalWeight += riskWeightCompliance
	}
	if r := resp.Risk; r != nil {
		weightedSum += r.RiskScore * riskWeightRiskEngine
		totalWeight += riskWeightRiskEngine
	}

	if totalWeight == 0 {
		return id.RiskLevelUnknown
	}
	return bucketRiskScore(weightedSum / totalWeight)
}

func bucketRiskScore(score float64) id.RiskLevel {
	switch {
	case score >= riskBucketVeryHigh:
		return id.RiskLevelVeryHigh
	case score >= riskBucketHigh:
		return id.RiskLevelHigh
	case score >= riskBucketMedium:
		return id.RiskLevelMedium
	case score >= riskBucketLow:
		return id.RiskLevelLow
	default:
		return id.RiskLevelVeryLow
	}
}

// consolidateTrustScore derives trust from the risk engine score when one
// exists, applying flat penalties for hard negative findings; otherwise it
// derives trust from the bucketed risk level adjusted by confidence.
func consolidateTrustScore(resp *models.AssessmentResponse) float64 {
	if r := resp.Risk; r != nil {
		trust := 100 - r.RiskScore
		if resp.Fraud != nil && resp.Fraud.FraudDetected {
			trust -= trustPenaltyFraud
		}
		if resp.Compliance != nil && !resp.Compliance.Compliant {
			trust -= trustPenaltyNonCompliant
		}
		if resp.Identity != nil && !resp.Identity.Verified {
			trust -= trustPenaltyUnverified
		}
		if resp.Credit != nil && resp.Credit.Blacklisted {
			trust -= trustPenaltyBlacklisted
		}
		return clamp(trust, 0, 100)
	}

	trust := trustFromLevel[resp.RiskLevel] + (resp.Confidence/10 - 5)
	return clamp(trust, 0, 100)
}

// decide maps the consolidated scores to a categorical decision. Fraud,
// compliance failure, and credit blacklisting are hard stops regardless of
// aggregate scores.
func (c *Consolidator) decide(resp *models.AssessmentResponse) id.Decision {
	if resp.Fraud != nil && resp.Fraud.FraudDetected {
		return id.DecisionReject
	}
	if resp.Compliance != nil && !resp.Compliance.Compliant {
		return id.DecisionReject
	}
	if resp.Credit != nil && resp.Credit.Blacklisted {
		return id.DecisionReject
	}

	if resp.TrustScore >= c.trustApproveThreshold && resp.RiskLevel.AtMost(id.RiskLevelLow) {
		return id.DecisionApprove
	}
	if resp.TrustScore < trustRejectThreshold || resp.RiskLevel == id.RiskLevelVeryHigh {
		return id.DecisionReject
	}
	return id.DecisionReview
}

// deriveActions builds the deterministic, de-duplicated, sorted action lists.
func deriveActions(resp *models.AssessmentResponse) (required, suggested []string) {
	requiredSet := map[string]bool{}
	suggestedSet := map[string]bool{}

	if r := resp.Identity; r != nil {
		if !r.Verified {
			requiredSet[ActionVerifyIdentity] = true
		} else if r.VerificationScore < defaultTrustApproveThreshold {
			suggestedSet[ActionUpgradeIdentity] = true
		}
	}
	if r := resp.Fraud; r != nil {
		if r.FraudDetected {
			requiredSet[ActionInvestigateFraud] = true
		} else if r.FraudProbability >= 50 {
			suggestedSet[ActionMonitorForFraud] = true
		}
	}
	if r := resp.Compliance; r != nil && !r.Compliant {
		requiredSet[ActionResolveComplianceIssues] = true
	}
	if r := resp.Credit; r != nil && (r.Blacklisted || r.HasLegalIssues) {
		requiredSet[ActionResolveCreditRestriction] = true
	}
	if resp.Decision == id.DecisionReview {
		requiredSet[ActionManualReview] = true
	}
	if r := resp.Risk; r != nil {
		for _, rec := range r.Recommendations {
			suggestedSet[rec] = true
		}
	}

	return sortedKeys(requiredSet), sortedKeys(suggestedSet)
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}
