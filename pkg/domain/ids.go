package domain

import (
	"github.com/google/uuid"

	dErrors "trustplane/pkg/domain-errors"
)

// Typed UUID identifiers. Distinct types prevent cross-assignment of ids at
// compile time; construct via the Parse* functions at trust boundaries.
type (
	UserID    uuid.UUID
	TenantID  uuid.UUID
	RequestID uuid.UUID
	MessageID uuid.UUID
)

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid id format")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s)
	return UserID(u), err
}

// ParseTenantID validates and returns a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s)
	return TenantID(u), err
}

// ParseRequestID validates and returns a RequestID.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s)
	return RequestID(u), err
}

// ParseMessageID validates and returns a MessageID.
func ParseMessageID(s string) (MessageID, error) {
	u, err := parseUUID(s)
	return MessageID(u), err
}

// NewUserID generates a fresh user id.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewTenantID generates a fresh tenant id.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewRequestID generates a fresh request id.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// NewMessageID generates a fresh message id.
func NewMessageID() MessageID { return MessageID(uuid.New()) }

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id TenantID) String() string  { return uuid.UUID(id).String() }
func (id RequestID) String() string { return uuid.UUID(id).String() }
func (id MessageID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MessageID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// AgentID identifies an evaluation agent. Agent ids are operator-assigned
// (e.g. "fraud-engine-eu-1"), not UUIDs, so the only invariant is non-empty.
type AgentID string

// ParseAgentID validates and returns an AgentID.
func ParseAgentID(s string) (AgentID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "agent id cannot be empty")
	}
	return AgentID(s), nil
}

func (id AgentID) String() string { return string(id) }
func (id AgentID) IsNil() bool    { return id == "" }

// Region is an ISO-style region code (e.g. "BR", "EU"). Validity against the
// deployment's enabled set is a configuration concern, not a parse concern.
type Region string

func (r Region) String() string { return string(r) }
func (r Region) IsNil() bool    { return r == "" }
