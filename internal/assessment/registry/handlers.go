package registry

import (
	"context"
	"encoding/json"

	"trustplane/internal/agentcomm"
	"trustplane/internal/assessment/models"
	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

// DirectEndpoints is the endpoint table updated when agents register with a
// direct callback URL.
type DirectEndpoints interface {
	SetEndpoint(agentID id.AgentID, url string)
	RemoveEndpoint(agentID id.AgentID)
}

// Handlers adapts registry operations to inbound agent messages.
type Handlers struct {
	registry  *Registry
	endpoints DirectEndpoints
}

// NewHandlers creates the message handlers. endpoints may be nil when no
// direct channel is configured.
func NewHandlers(registry *Registry, endpoints DirectEndpoints) *Handlers {
	return &Handlers{registry: registry, endpoints: endpoints}
}

// Attach registers the registration and heartbeat handlers on the communicator.
func (h *Handlers) Attach(comm *agentcomm.Communicator) {
	comm.RegisterMessageHandler(id.MessageTypeRegistration, h.HandleRegistration)
	comm.RegisterMessageHandler(id.MessageTypeHeartbeat, h.HandleHeartbeat)
}

// HandleRegistration registers the sending agent from the message payload and
// acknowledges with the accepted agent id.
func (h *Handlers) HandleRegistration(_ context.Context, msg *agentcomm.AgentMessage) (*agentcomm.AgentMessage, error) {
	info, err := agentInfoFromPayload(msg.Payload)
	if err != nil {
		return nil, err
	}
	if info.ID == "" {
		info.ID = msg.Sender
	}
	if info.ID != msg.Sender {
		return nil, dErrors.Newf(dErrors.CodeForbidden,
			"agent %q may not register as %q", msg.Sender, info.ID)
	}

	if err := h.registry.Register(info); err != nil {
		return nil, err
	}
	if h.endpoints != nil {
		if info.Endpoint != "" {
			h.endpoints.SetEndpoint(info.ID, info.Endpoint)
		} else {
			h.endpoints.RemoveEndpoint(info.ID)
		}
	}
	return msg.Reply("", map[string]any{"agentId": string(info.ID), "accepted": true}), nil
}

// HandleHeartbeat refreshes the sending agent's liveness. Heartbeats from
// unknown agents are answered with NotFound so the agent re-registers.
func (h *Handlers) HandleHeartbeat(_ context.Context, msg *agentcomm.AgentMessage) (*agentcomm.AgentMessage, error) {
	if err := h.registry.Touch(msg.Sender); err != nil {
		return nil, err
	}
	if msg.RequiresAck {
		return msg.Reply("", map[string]any{"agentId": string(msg.Sender)}), nil
	}
	return nil, nil
}

// agentInfoFromPayload decodes the loosely typed message payload into an
// AgentInfo via its JSON shape.
func agentInfoFromPayload(payload map[string]any) (models.AgentInfo, error) {
	var info models.AgentInfo
	raw, err := json.Marshal(payload)
	if err != nil {
		return info, dErrors.Wrap(err, dErrors.CodeInvalidInput, "encode registration payload")
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, dErrors.Wrap(err, dErrors.CodeInvalidInput, "decode registration payload")
	}
	return info, nil
}
