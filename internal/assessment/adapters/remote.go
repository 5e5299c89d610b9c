package adapters

import (
	"context"
	"encoding/json"
	"time"

	"trustplane/internal/agentcomm"
	"trustplane/internal/assessment/models"
	"trustplane/internal/assessment/ports"
	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

// Messenger is the communicator surface remote adapters need.
type Messenger interface {
	SendAndWaitReply(ctx context.Context, msg *agentcomm.AgentMessage, timeout time.Duration) (*agentcomm.AgentMessage, error)
}

const defaultAgentTimeout = 10 * time.Second

// Remote adapters exist only for the domains the wire protocol carries message
// types for: identity (VERIFY_DOCUMENT), fraud (EVALUATE_TRANSACTION) and risk
// (ANALYZE_BEHAVIOR). Credit runs through the bureau provider fan-out and
// compliance through the local checker; agents registering those domains show
// up in the directory but are never dispatched to.

// remoteCall picks the best agent for a domain, sends the payload, and decodes
// the reply into out.
func remoteCall(ctx context.Context, m Messenger, directory ports.AgentDirectory, domain id.AssessmentType, msgType id.MessageType, rc models.RequestContext, payload map[string]any, timeout time.Duration, out any) error {
	agents := directory.AgentsForDomain(domain, rc.Region)
	if len(agents) == 0 {
		return dErrors.Newf(dErrors.CodeUnavailable, "no agent registered for domain %s", domain)
	}
	target := agents[0]

	if timeout <= 0 {
		timeout = defaultAgentTimeout
	}

	msg := agentcomm.NewMessage(msgType, agentcomm.OrchestratorID, payload)
	msg.Recipient = target.ID
	if rc.Region != "" {
		msg.Regions = []id.Region{rc.Region}
	}

	reply, err := m.SendAndWaitReply(ctx, msg, timeout)
	if err != nil {
		return err
	}
	if reply.Status == id.MessageStatusFailed {
		return dErrors.Newf(dErrors.CodeInternal, "agent %s failed: %s", target.ID, reply.Error)
	}
	return decodePayload(reply.Payload, out)
}

// RemoteIdentityEvaluator delegates identity verification to a registered
// identity agent via a verify-document message.
type RemoteIdentityEvaluator struct {
	Messenger Messenger
	Directory ports.AgentDirectory
	Timeout   time.Duration
}

func (r *RemoteIdentityEvaluator) EvaluateIdentity(ctx context.Context, rc models.RequestContext, data *models.IdentityData) (*models.IdentityResult, error) {
	payload, err := encodePayload(map[string]any{"context": rc, "identityData": data})
	if err != nil {
		return nil, err
	}
	var result models.IdentityResult
	if err := remoteCall(ctx, r.Messenger, r.Directory, id.AssessmentTypeIdentity, id.MessageTypeVerifyDocument, rc, payload, r.Timeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RemoteFraudEngine delegates fraud analysis to a registered fraud agent via
// an evaluate-transaction message.
type RemoteFraudEngine struct {
	Messenger Messenger
	Directory ports.AgentDirectory
	Timeout   time.Duration
}

func (r *RemoteFraudEngine) AnalyzeFraud(ctx context.Context, rc models.RequestContext, evidence *models.EvidenceBundle) (*models.FraudResult, error) {
	payload, err := encodePayload(map[string]any{"context": rc, "evidence": evidence})
	if err != nil {
		return nil, err
	}
	var result models.FraudResult
	if err := remoteCall(ctx, r.Messenger, r.Directory, id.AssessmentTypeFraud, id.MessageTypeEvaluateTransaction, rc, payload, r.Timeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RemoteRiskEngine delegates risk assessment to a registered risk agent via an
// analyze-behavior message carrying the sibling domain results as context.
type RemoteRiskEngine struct {
	Messenger Messenger
	Directory ports.AgentDirectory
	Timeout   time.Duration
}

func (r *RemoteRiskEngine) AssessRisk(ctx context.Context, rc models.RequestContext, evidence *models.EvidenceBundle, results models.DomainResults) (*models.RiskResult, error) {
	payload, err := encodePayload(map[string]any{
		"context":       rc,
		"evidence":      evidence,
		"domainResults": results,
	})
	if err != nil {
		return nil, err
	}
	var result models.RiskResult
	if err := remoteCall(ctx, r.Messenger, r.Directory, id.AssessmentTypeRisk, id.MessageTypeAnalyzeBehavior, rc, payload, r.Timeout, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// encodePayload flattens a typed value set into the loosely typed message
// payload via its JSON shape.
func encodePayload(in map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode agent payload")
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode agent payload")
	}
	return out, nil
}

func decodePayload(payload map[string]any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "decode agent reply")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "decode agent reply")
	}
	return nil
}
