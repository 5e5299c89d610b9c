// Package models holds the data structures exchanged between the assessment
// orchestrator, its evaluators, and its stores.
package models

import (
	"sync"
	"time"

	id "trustplane/pkg/domain"
)

// RequestContext is the user/tenant/region scope passed to every evaluator.
type RequestContext struct {
	UserID   id.UserID   `json:"userId"`
	TenantID id.TenantID `json:"tenantId"`
	Region   id.Region   `json:"region"`
}

// IdentityData is the identity slice of the evidence bundle.
type IdentityData struct {
	DocumentType   string         `json:"documentType,omitempty"`
	DocumentNumber string         `json:"documentNumber,omitempty"`
	FullName       string         `json:"fullName,omitempty"`
	BirthDate      string         `json:"birthDate,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
}

// CreditData is the credit slice of the evidence bundle.
type CreditData struct {
	TaxID           string  `json:"taxId,omitempty"`
	RequestedAmount float64 `json:"requestedAmount,omitempty"`
}

// DeviceData describes the device used for the action under assessment.
type DeviceData struct {
	DeviceID    string `json:"deviceId,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	UserAgent   string `json:"userAgent,omitempty"`
	Platform    string `json:"platform,omitempty"`
	KnownDevice bool   `json:"knownDevice,omitempty"`
}

// NetworkData describes the network path of the action under assessment.
type NetworkData struct {
	IPAddress   string `json:"ipAddress,omitempty"`
	ASN         string `json:"asn,omitempty"`
	Country     string `json:"country,omitempty"`
	VPNDetected bool   `json:"vpnDetected,omitempty"`
}

// TransactionData describes the transaction being evaluated, when there is one.
type TransactionData struct {
	TransactionID string    `json:"transactionId,omitempty"`
	Amount        float64   `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	MerchantID    string    `json:"merchantId,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
}

// BehavioralData captures session behavior signals.
type BehavioralData struct {
	SessionDurationSeconds int            `json:"sessionDurationSeconds,omitempty"`
	TypingCadenceScore     float64        `json:"typingCadenceScore,omitempty"`
	NavigationPattern      string         `json:"navigationPattern,omitempty"`
	Attributes             map[string]any `json:"attributes,omitempty"`
}

// EvidenceBundle carries previously-collected evidence. Every slice is
// optional; evaluators treat a nil slice as missing evidence, not an error.
type EvidenceBundle struct {
	Identity    *IdentityData    `json:"identityData,omitempty"`
	Credit      *CreditData      `json:"creditData,omitempty"`
	Device      *DeviceData      `json:"deviceData,omitempty"`
	Network     *NetworkData     `json:"networkData,omitempty"`
	Transaction *TransactionData `json:"transactionData,omitempty"`
	Behavioral  *BehavioralData  `json:"behavioralData,omitempty"`
}

// ProcessingOptions tune how one request is processed.
type ProcessingOptions struct {
	TimeoutSeconds    int  `json:"timeoutSeconds,omitempty"`
	ForceRefresh      bool `json:"forceRefresh,omitempty"`
	RequireAllResults bool `json:"requireAllResults,omitempty"`
	FailFast          bool `json:"failFast,omitempty"`
}

// AssessmentRequest is one user-and-tenant-scoped evaluation request.
// Immutable during processing.
type AssessmentRequest struct {
	RequestID     id.RequestID        `json:"requestId"`
	CorrelationID string              `json:"correlationId,omitempty"`
	UserID        id.UserID           `json:"userId"`
	TenantID      id.TenantID         `json:"tenantId"`
	Region        id.Region           `json:"region,omitempty"`
	Types         []id.AssessmentType `json:"assessmentTypes"`
	Evidence      EvidenceBundle      `json:"evidence"`
	Options       ProcessingOptions   `json:"options"`
	Attributes    map[string]string   `json:"attributes,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// Context extracts the evaluator-facing scope of the request.
func (r *AssessmentRequest) Context() RequestContext {
	return RequestContext{UserID: r.UserID, TenantID: r.TenantID, Region: r.Region}
}

// IdentityResult is the identity domain outcome.
type IdentityResult struct {
	Verified          bool           `json:"verified"`
	VerificationScore float64        `json:"verificationScore"`
	MatchedSources    []string       `json:"matchedSources,omitempty"`
	Details           map[string]any `json:"details,omitempty"`
}

// CreditProviderResult is one provider's answer inside the credit fan-out.
type CreditProviderResult struct {
	Provider        string  `json:"provider"`
	Score           float64 `json:"score"`
	Blacklisted     bool    `json:"blacklisted"`
	HasLegalIssues  bool    `json:"hasLegalIssues"`
	HasPendingDebts bool    `json:"hasPendingDebts"`
}

// CreditResult is the consolidated credit domain outcome.
type CreditResult struct {
	Score              float64         `json:"score"`
	Rating             id.CreditRating `json:"rating"`
	ProvidersConsulted []string        `json:"providersConsulted"`
	Blacklisted        bool            `json:"blacklisted"`
	HasLegalIssues     bool            `json:"hasLegalIssues"`
	HasPendingDebts    bool            `json:"hasPendingDebts"`
}

// FraudResult is the fraud domain outcome. FraudProbability is 0-100.
type FraudResult struct {
	FraudDetected    bool     `json:"fraudDetected"`
	FraudProbability float64  `json:"fraudProbability"`
	Indicators       []string `json:"indicators,omitempty"`
	RulesTriggered   []string `json:"rulesTriggered,omitempty"`
}

// ComplianceResult is the compliance domain outcome. ComplianceScore is 0-100.
type ComplianceResult struct {
	Compliant          bool     `json:"compliant"`
	ComplianceScore    float64  `json:"complianceScore"`
	PoliticallyExposed bool     `json:"politicallyExposed"`
	Issues             []string `json:"issues,omitempty"`
}

// RiskResult is the dedicated risk engine outcome. RiskScore is 0-100.
type RiskResult struct {
	RiskScore       float64            `json:"riskScore"`
	Factors         map[string]float64 `json:"factors,omitempty"`
	Recommendations []string           `json:"recommendations,omitempty"`
}

// DomainResults is the snapshot of the four independent domains handed to the
// risk engine as context.
type DomainResults struct {
	Identity   *IdentityResult   `json:"identity,omitempty"`
	Credit     *CreditResult     `json:"credit,omitempty"`
	Fraud      *FraudResult      `json:"fraud,omitempty"`
	Compliance *ComplianceResult `json:"compliance,omitempty"`
}

// ErrorDetails describes what failed during processing.
type ErrorDetails struct {
	Code           string   `json:"code"`
	Message        string   `json:"message"`
	FailedServices []string `json:"failedServices,omitempty"`
	PartialResults bool     `json:"partialResults"`
	Retryable      bool     `json:"retryable"`
}

// AssessmentResponse is the mutable accumulator built during processing.
//
// Ownership: exclusively owned by the orchestrator instance processing the
// request. Concurrent per-domain writers serialize through Update; field-level
// locks are deliberately absent because consolidation reads the whole object.
type AssessmentResponse struct {
	mu sync.Mutex

	ID            id.RequestID        `json:"id"`
	RequestID     id.RequestID        `json:"requestId"`
	CorrelationID string              `json:"correlationId,omitempty"`
	UserID        id.UserID           `json:"userId"`
	TenantID      id.TenantID         `json:"tenantId"`
	Status        id.AssessmentStatus `json:"status"`

	Identity   *IdentityResult   `json:"identityResults,omitempty"`
	Credit     *CreditResult     `json:"creditResults,omitempty"`
	Fraud      *FraudResult      `json:"fraudResults,omitempty"`
	Compliance *ComplianceResult `json:"complianceResults,omitempty"`
	Risk       *RiskResult       `json:"riskResults,omitempty"`

	DataSources []string `json:"dataSources,omitempty"`

	Confidence float64      `json:"confidence"`
	RiskLevel  id.RiskLevel `json:"riskLevel"`
	TrustScore float64      `json:"trustScore"`
	Decision   id.Decision  `json:"decision,omitempty"`

	RequiredActions  []string `json:"requiredActions,omitempty"`
	SuggestedActions []string `json:"suggestedActions,omitempty"`

	Error *ErrorDetails `json:"errorDetails,omitempty"`

	ProcessingTimeMillis int64     `json:"processingTimeMillis"`
	CompletedAt          time.Time `json:"completedAt,omitzero"`
}

// NewResponse creates the accumulator for a request in the processing state.
func NewResponse(req *AssessmentRequest) *AssessmentResponse {
	return &AssessmentResponse{
		ID:            id.NewRequestID(),
		RequestID:     req.RequestID,
		CorrelationID: req.CorrelationID,
		UserID:        req.UserID,
		TenantID:      req.TenantID,
		Status:        id.StatusProcessing,
		RiskLevel:     id.RiskLevelUnknown,
	}
}

// Update runs fn while holding the response lock. All concurrent writers must
// go through here.
func (r *AssessmentResponse) Update(fn func(*AssessmentResponse)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// Clone returns a copy safe for concurrent readers while processing is still
// writing. Result pointers are shared; writers replace them rather than
// mutating in place.
func (r *AssessmentResponse) Clone() *AssessmentResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &AssessmentResponse{
		ID:                   r.ID,
		RequestID:            r.RequestID,
		CorrelationID:        r.CorrelationID,
		UserID:               r.UserID,
		TenantID:             r.TenantID,
		Status:               r.Status,
		Identity:             r.Identity,
		Credit:               r.Credit,
		Fraud:                r.Fraud,
		Compliance:           r.Compliance,
		Risk:                 r.Risk,
		DataSources:          r.DataSources,
		Confidence:           r.Confidence,
		RiskLevel:            r.RiskLevel,
		TrustScore:           r.TrustScore,
		Decision:             r.Decision,
		RequiredActions:      r.RequiredActions,
		SuggestedActions:     r.SuggestedActions,
		Error:                r.Error,
		ProcessingTimeMillis: r.ProcessingTimeMillis,
		CompletedAt:          r.CompletedAt,
	}
}

// Results returns the four-domain snapshot used as risk engine context.
// Callers must hold the lock or have exclusive ownership.
func (r *AssessmentResponse) Results() DomainResults {
	return DomainResults{
		Identity:   r.Identity,
		Credit:     r.Credit,
		Fraud:      r.Fraud,
		Compliance: r.Compliance,
	}
}

// AgentInfo identifies an evaluation agent. Immutable once registered;
// replaced wholesale on re-registration with the same id.
type AgentInfo struct {
	ID           id.AgentID          `json:"id"`
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	Regions      []id.Region         `json:"regions,omitempty"`
	Domains      []id.AssessmentType `json:"domains,omitempty"`
	Capabilities []string            `json:"capabilities,omitempty"`
	Priority     int                 `json:"priority"`
	Endpoint     string              `json:"endpoint,omitempty"`
	LastSeenAt   time.Time           `json:"lastSeenAt,omitzero"`
	// Stale is computed by the registry on read, not stored.
	Stale bool `json:"stale,omitempty"`
}

// CompletionEvent is the reduced event published when an assessment reaches a
// terminal state. Raw evidence payloads are deliberately excluded.
type CompletionEvent struct {
	EventType     string              `json:"eventType"`
	RequestID     id.RequestID        `json:"requestId"`
	CorrelationID string              `json:"correlationId,omitempty"`
	UserID        id.UserID           `json:"userId"`
	TenantID      id.TenantID         `json:"tenantId"`
	Timestamp     time.Time           `json:"timestamp"`
	Status        id.AssessmentStatus `json:"status"`
	TrustScore    float64             `json:"trustScore"`
	RiskLevel     id.RiskLevel        `json:"riskLevel"`
	Decision      id.Decision         `json:"decision,omitempty"`
}
