package consolidator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustplane/internal/assessment/models"
	id "trustplane/pkg/domain"
)

func newResponse() *models.AssessmentResponse {
	return &models.AssessmentResponse{
		Status:    id.StatusProcessing,
		RiskLevel: id.RiskLevelUnknown,
	}
}

func TestConsolidate_NoSignal(t *testing.T) {
	c := New()
	resp := newResponse()
	c.Consolidate(resp)

	assert.Equal(t, id.RiskLevelUnknown, resp.RiskLevel)
	assert.Equal(t, 0.0, resp.Confidence)
	// No-signal branch: level-derived base 50 adjusted by confidence/10-5.
	assert.Equal(t, 45.0, resp.TrustScore)
	assert.Equal(t, id.DecisionReview, resp.Decision)
	assert.Contains(t, resp.RequiredActions, ActionManualReview)
}

func TestConsolidate_IdentityOnly(t *testing.T) {
	c := New()
	resp := newResponse()
	resp.Identity = &models.IdentityResult{Verified: true, VerificationScore: 90}
	c.Consolidate(resp)

	// The single identity term dominates: confidence ~= the verification score.
	assert.InDelta(t, 90.0, resp.Confidence, 0.001)
	// Risk sub-score 100-90=10 buckets to VERY_LOW.
	assert.Equal(t, id.RiskLevelVeryLow, resp.RiskLevel)
	assert.NotEqual(t, id.DecisionReject, resp.Decision,
		"a clean identity result alone must not reject")
}

func TestConsolidate_FraudHardStop(t *testing.T) {
	c := New()
	resp := newResponse()
	resp.Fraud = &models.FraudResult{FraudDetected: true, FraudProbability: 95}
	// Even stellar sibling results cannot override the hard stop.
	resp.Identity = &models.IdentityResult{Verified: true, VerificationScore: 100}
	resp.Risk = &models.RiskResult{RiskScore: 1}
	c.Consolidate(resp)

	assert.Equal(t, id.DecisionReject, resp.Decision)
	assert.Contains(t, resp.RequiredActions, ActionInvestigateFraud)
}

func TestConsolidate_ComplianceHardStop(t *testing.T) {
	c := New()
	resp := newResponse()
	resp.Compliance = &models.ComplianceResult{Compliant: false, ComplianceScore: 95}
	resp.Risk = &models.RiskResult{RiskScore: 5}
	c.Consolidate(resp)

	assert.Equal(t, id.DecisionReject, resp.Decision)
	assert.Contains(t, resp.RequiredActions, ActionResolveComplianceIssues)
}

func TestConsolidate_BlacklistHardStop(t *testing.T) {
	c := New()
	resp := newResponse()
	resp.Credit = &models.CreditResult{Score: 950, Blacklisted: true}
	c.Consolidate(resp)

	assert.Equal(t, id.DecisionReject, resp.Decision)
	assert.Contains(t, resp.RequiredActions, ActionResolveCreditRestriction)
}

func TestConsolidate_CleanComprehensiveApproves(t *testing.T) {
	c := New()
	resp := newResponse()
	resp.Identity = &models.IdentityResult{Verified: true, VerificationScore: 95}
	resp.Credit = &models.CreditResult{
		Score:              850,
		ProvidersConsulted: []string{"serasa", "boa-vista", "spc"},
	}
	resp.Fraud = &models.FraudResult{FraudDetected: false, FraudProbability: 5}
	resp.Compliance = &models.ComplianceResult{Compliant: true, ComplianceScore: 95}
	resp.Risk = &models.RiskResult{RiskScore: 15}
	c.Consolidate(resp)

	assert.Equal(t, id.DecisionApprove, resp.Decision)
	assert.Contains(t, []id.RiskLevel{id.RiskLevelVeryLow, id.RiskLevelLow}, resp.RiskLevel)
	assert.GreaterOrEqual(t, resp.TrustScore, 70.0)
	assert.Empty(t, resp.RequiredActions)
}

func TestConsolidate_TrustScorePenaltiesOnRiskBranch(t *testing.T) {
	c := New()
	resp := newResponse()
	resp.Risk = &models.RiskResult{RiskScore: 20}
	resp.Identity = &models.IdentityResult{Verified: false, VerificationScore: 40}
	c.Consolidate(resp)

	// 100-20 = 80, minus 50 for unverified identity.
	assert.Equal(t, 30.0, resp.TrustScore)
	assert.Equal(t, id.DecisionReject, resp.Decision, "trust below 40 rejects")
	assert.Contains(t, resp.RequiredActions, ActionVerifyIdentity)
}

func TestConsolidate_TrustScoreClamped(t *testing.T) {
	c := New()

	t.Run("floor at zero", func(t *testing.T) {
		resp := newResponse()
		resp.Risk = &models.RiskResult{RiskScore: 90}
		resp.Fraud = &models.FraudResult{FraudDetected: true, FraudProbability: 99}
		resp.Identity = &models.IdentityResult{Verified: false}
		resp.Credit = &models.CreditResult{Blacklisted: true}
		resp.Compliance = &models.ComplianceResult{Compliant: false}
		c.Consolidate(resp)
		assert.Equal(t, 0.0, resp.TrustScore)
	})

	t.Run("bounds always hold", func(t *testing.T) {
		cases := []*models.AssessmentResponse{
			{Risk: &models.RiskResult{RiskScore: 0}},
			{Risk: &models.RiskResult{RiskScore: 100}},
			{Identity: &models.IdentityResult{Verified: true, VerificationScore: 100}},
			{Fraud: &models.FraudResult{FraudProbability: 50}},
		}
		for _, resp := range cases {
			resp.RiskLevel = id.RiskLevelUnknown
			c.Consolidate(resp)
			assert.GreaterOrEqual(t, resp.TrustScore, 0.0)
			assert.LessOrEqual(t, resp.TrustScore, 100.0)
			assert.GreaterOrEqual(t, resp.Confidence, 0.0)
			assert.LessOrEqual(t, resp.Confidence, 100.0)
		}
	})
}

func TestConsolidate_FraudConfidenceIsDistanceFromMidpoint(t *testing.T) {
	c := New()

	midpoint := newResponse()
	midpoint.Fraud = &models.FraudResult{FraudProbability: 50}
	c.Consolidate(midpoint)
	assert.InDelta(t, 0.0, midpoint.Confidence, 0.001, "50/50 fraud signal carries no confidence")

	certainFraud := newResponse()
	certainFraud.Fraud = &models.FraudResult{FraudProbability: 100, FraudDetected: true}
	c.Consolidate(certainFraud)
	assert.InDelta(t, 100.0, certainFraud.Confidence, 0.001)

	certainClean := newResponse()
	certainClean.Fraud = &models.FraudResult{FraudProbability: 0}
	c.Consolidate(certainClean)
	assert.InDelta(t, 100.0, certainClean.Confidence, 0.001, "clearly unlikely is as confident as clearly likely")
}

func TestConsolidate_RiskBuckets(t *testing.T) {
	cases := []struct {
		score float64
		want  id.RiskLevel
	}{
		{score: 85, want: id.RiskLevelVeryHigh},
		{score: 80, want: id.RiskLevelVeryHigh},
		{score: 79.9, want: id.RiskLevelHigh},
		{score: 60, want: id.RiskLevelHigh},
		{score: 59.9, want: id.RiskLevelMedium},
		{score: 40, want: id.RiskLevelMedium},
		{score: 20, want: id.RiskLevelLow},
		{score: 19.9, want: id.RiskLevelVeryLow},
		{score: 0, want: id.RiskLevelVeryLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, bucketRiskScore(tc.score), "score %v", tc.score)
	}
}

func TestConsolidate_Idempotent(t *testing.T) {
	c := New()
	resp := newResponse()
	resp.Identity = &models.IdentityResult{Verified: true, VerificationScore: 75}
	resp.Fraud = &models.FraudResult{FraudProbability: 35}
	resp.Risk = &models.RiskResult{RiskScore: 42, Recommendations: []string{"ENABLE_MFA"}}

	c.Consolidate(resp)
	firstConfidence := resp.Confidence
	firstRiskLevel := resp.RiskLevel
	firstTrustScore := resp.TrustScore
	firstDecision := resp.Decision
	firstRequiredActions := resp.RequiredActions
	firstSuggestedActions := resp.SuggestedActions

	c.Consolidate(resp)
	assert.Equal(t, firstConfidence, resp.Confidence)
	assert.Equal(t, firstRiskLevel, resp.RiskLevel)
	assert.Equal(t, firstTrustScore, resp.TrustScore)
	assert.Equal(t, firstDecision, resp.Decision)
	assert.Equal(t, firstRequiredActions, resp.RequiredActions)
	assert.Equal(t, firstSuggestedActions, resp.SuggestedActions)
}

func TestConsolidate_ActionsSortedAndDeduplicated(t *testing.T) {
	c := New()
	resp := newResponse()
	resp.Identity = &models.IdentityResult{Verified: false}
	resp.Fraud = &models.FraudResult{FraudDetected: true, FraudProbability: 90}
	resp.Compliance = &models.ComplianceResult{Compliant: false}
	resp.Risk = &models.RiskResult{
		RiskScore:       95,
		Recommendations: []string{"ENABLE_MFA", "ENABLE_MFA", "BLOCK_DEVICE"},
	}
	c.Consolidate(resp)

	require.NotEmpty(t, resp.RequiredActions)
	assert.IsIncreasing(t, resp.RequiredActions)
	assert.Equal(t, []string{"BLOCK_DEVICE", "ENABLE_MFA"}, resp.SuggestedActions)
}

func TestConsolidate_SuggestedActions(t *testing.T) {
	c := New()
	resp := newResponse()
	resp.Identity = &models.IdentityResult{Verified: true, VerificationScore: 55}
	resp.Fraud = &models.FraudResult{FraudDetected: false, FraudProbability: 60}
	c.Consolidate(resp)

	assert.Contains(t, resp.SuggestedActions, ActionUpgradeIdentity)
	assert.Contains(t, resp.SuggestedActions, ActionMonitorForFraud)
	assert.NotContains(t, resp.RequiredActions, ActionInvestigateFraud)
}

func TestConsolidate_ConfigurableThreshold(t *testing.T) {
	strict := New(WithTrustScoreThreshold(95))
	resp := newResponse()
	resp.Identity = &models.IdentityResult{Verified: true, VerificationScore: 95}
	resp.Risk = &models.RiskResult{RiskScore: 15}
	strict.Consolidate(resp)

	assert.Equal(t, 85.0, resp.TrustScore)
	assert.NotEqual(t, id.DecisionApprove, resp.Decision,
		"raised threshold withholds approval")
}
