package domain

import dErrors "trustplane/pkg/domain-errors"

// AssessmentType names one evaluation domain requested from the orchestrator.
// Invariant: the value must be one of the supported assessment types.
//
// Usage: construct via ParseAssessmentType at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type AssessmentType string

// Supported assessment types. Comprehensive is an umbrella that expands to
// identity+credit+fraud+compliance in parallel followed by risk.
const (
	AssessmentTypeIdentity      AssessmentType = "IDENTITY"
	AssessmentTypeCredit        AssessmentType = "CREDIT"
	AssessmentTypeFraud         AssessmentType = "FRAUD"
	AssessmentTypeCompliance    AssessmentType = "COMPLIANCE"
	AssessmentTypeRisk          AssessmentType = "RISK"
	AssessmentTypeComprehensive AssessmentType = "COMPREHENSIVE"
)

var validAssessmentTypes = map[AssessmentType]bool{
	AssessmentTypeIdentity:      true,
	AssessmentTypeCredit:        true,
	AssessmentTypeFraud:         true,
	AssessmentTypeCompliance:    true,
	AssessmentTypeRisk:          true,
	AssessmentTypeComprehensive: true,
}

// ParseAssessmentType constructs an AssessmentType from external input.
func ParseAssessmentType(s string) (AssessmentType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "assessment type cannot be empty")
	}
	t := AssessmentType(s)
	if !t.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported assessment type: %s", s)
	}
	return t, nil
}

func (t AssessmentType) IsValid() bool { return validAssessmentTypes[t] }
func (t AssessmentType) String() string { return string(t) }

// AssessmentStatus is the lifecycle state of an assessment response.
// processing is the only non-terminal state.
type AssessmentStatus string

const (
	StatusProcessing AssessmentStatus = "PROCESSING"
	StatusCompleted  AssessmentStatus = "COMPLETED"
	StatusFailed     AssessmentStatus = "FAILED"
	StatusCancelled  AssessmentStatus = "CANCELLED"
)

func (s AssessmentStatus) String() string { return string(s) }

// IsTerminal reports whether the status admits no further transitions.
func (s AssessmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// RiskLevel is the ordinal consolidated risk bucket.
type RiskLevel string

const (
	RiskLevelVeryLow  RiskLevel = "VERY_LOW"
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelVeryHigh RiskLevel = "VERY_HIGH"
	RiskLevelUnknown  RiskLevel = "UNKNOWN"
)

// riskLevelOrder defines the ordinal ranking used for threshold comparisons.
// Unknown deliberately has no rank.
var riskLevelOrder = map[RiskLevel]int{
	RiskLevelVeryLow:  1,
	RiskLevelLow:      2,
	RiskLevelMedium:   3,
	RiskLevelHigh:     4,
	RiskLevelVeryHigh: 5,
}

func (l RiskLevel) String() string { return string(l) }

// AtMost reports whether l is ranked at or below other. Unknown is never at
// or below any level, so no-signal responses cannot satisfy approval gates.
func (l RiskLevel) AtMost(other RiskLevel) bool {
	lo, ok := riskLevelOrder[l]
	if !ok {
		return false
	}
	oo, ok := riskLevelOrder[other]
	if !ok {
		return false
	}
	return lo <= oo
}

// Decision is the final categorical outcome of an assessment.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReview  Decision = "REVIEW"
	DecisionReject  Decision = "REJECT"
)

func (d Decision) String() string { return string(d) }

// CreditRating is the ordinal rating derived from the averaged provider score.
type CreditRating string

const (
	CreditRatingExcelente  CreditRating = "EXCELENTE"
	CreditRatingMuitoBom   CreditRating = "MUITO_BOM"
	CreditRatingBom        CreditRating = "BOM"
	CreditRatingRegular    CreditRating = "REGULAR"
	CreditRatingBaixo      CreditRating = "BAIXO"
	CreditRatingMuitoBaixo CreditRating = "MUITO_BAIXO"
)

func (r CreditRating) String() string { return string(r) }
