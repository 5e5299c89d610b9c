// Package agentcomm implements message exchange between the orchestrator and
// evaluation agents across one or more transport channels.
package agentcomm

import (
	"time"

	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

// OrchestratorID is the sender id the orchestrator uses on the wire.
const OrchestratorID = id.AgentID("orchestrator")

// AgentMessage is the unit of communication with evaluation agents. The same
// JSON shape travels over every channel type; broker metadata (partition,
// offset) is never surfaced to callers.
type AgentMessage struct {
	ID            id.MessageID     `json:"id"`
	Type          id.MessageType   `json:"type"`
	Sender        id.AgentID       `json:"sender"`
	Recipient     id.AgentID       `json:"recipient,omitempty"`
	CorrelationID id.MessageID     `json:"correlationId,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	Priority      int              `json:"priority"`
	TTLSeconds    int              `json:"ttlSeconds"`
	Channel       id.ChannelType   `json:"channel,omitempty"`
	Payload       map[string]any   `json:"payload,omitempty"`
	Regions       []id.Region      `json:"regions,omitempty"`
	RequiresAck   bool             `json:"requiresAck"`
	Status        id.MessageStatus `json:"status,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// NewMessage builds an outbound message with a fresh id and timestamp.
func NewMessage(msgType id.MessageType, sender id.AgentID, payload map[string]any) *AgentMessage {
	return &AgentMessage{
		ID:        id.NewMessageID(),
		Type:      msgType,
		Sender:    sender,
		CreatedAt: time.Now(),
		Payload:   payload,
	}
}

// Validate checks the fields every message must carry before it can be sent.
func (m *AgentMessage) Validate() error {
	if m.ID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "message id is required")
	}
	if m.Type == "" {
		return dErrors.New(dErrors.CodeValidation, "message type is required")
	}
	if !m.Type.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unsupported message type: %s", m.Type)
	}
	if m.Sender.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "message sender is required")
	}
	return nil
}

// EffectiveCorrelationID returns the correlation id, defaulting to the
// message's own id when the message is not itself a reply.
func (m *AgentMessage) EffectiveCorrelationID() id.MessageID {
	if !m.CorrelationID.IsNil() {
		return m.CorrelationID
	}
	return m.ID
}

// IsReply reports whether the message answers an earlier message.
func (m *AgentMessage) IsReply() bool {
	return !m.CorrelationID.IsNil() && m.CorrelationID != m.ID
}

// Expired reports whether the message's TTL has elapsed at the given time.
// Messages without a TTL never expire.
func (m *AgentMessage) Expired(now time.Time) bool {
	if m.TTLSeconds <= 0 {
		return false
	}
	return now.After(m.CreatedAt.Add(time.Duration(m.TTLSeconds) * time.Second))
}

// Reply builds a successful reply addressed back to the message's sender and
// correlated with its id.
func (m *AgentMessage) Reply(sender id.AgentID, payload map[string]any) *AgentMessage {
	return &AgentMessage{
		ID:            id.NewMessageID(),
		Type:          m.Type,
		Sender:        sender,
		Recipient:     m.Sender,
		CorrelationID: m.ID,
		CreatedAt:     time.Now(),
		Channel:       m.Channel,
		Payload:       payload,
		Status:        id.MessageStatusDelivered,
	}
}

// ErrorReply builds a failure reply carrying the error text.
func (m *AgentMessage) ErrorReply(sender id.AgentID, err error) *AgentMessage {
	reply := m.Reply(sender, nil)
	reply.Status = id.MessageStatusFailed
	if err != nil {
		reply.Error = err.Error()
	}
	return reply
}
