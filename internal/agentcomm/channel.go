package agentcomm

import (
	"context"
	"sync"

	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

// Channel moves typed messages between the orchestrator and agents over one
// transport. Implementations must be safe for concurrent Send calls.
type Channel interface {
	// Type identifies the transport.
	Type() id.ChannelType
	// Start binds the channel and begins delivering inbound messages to the
	// given sink until the context is cancelled.
	Start(ctx context.Context, inbound chan<- *AgentMessage) error
	// Send delivers one message. Errors are returned to the caller; this
	// layer never retries.
	Send(ctx context.Context, msg *AgentMessage) error
	// Close releases transport resources.
	Close() error
}

// AgentEndpoint is an in-process agent implementation. The returned reply, if
// any, is delivered back through the channel.
type AgentEndpoint func(ctx context.Context, msg *AgentMessage) (*AgentMessage, error)

// InprocChannel is a loopback channel for in-process agents and tests.
// Sent messages are routed to registered agent endpoints by recipient id;
// messages for unknown recipients are buffered for inspection.
type InprocChannel struct {
	mu      sync.Mutex
	inbound chan<- *AgentMessage
	agents  map[id.AgentID]AgentEndpoint
	sent    chan *AgentMessage
	closed  bool
}

// NewInprocChannel creates a loopback channel.
func NewInprocChannel() *InprocChannel {
	return &InprocChannel{
		agents: make(map[id.AgentID]AgentEndpoint),
		sent:   make(chan *AgentMessage, 64),
	}
}

func (c *InprocChannel) Type() id.ChannelType { return id.ChannelTypeInproc }

func (c *InprocChannel) Start(ctx context.Context, inbound chan<- *AgentMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = inbound
	return nil
}

// RegisterAgent attaches an in-process agent endpoint under the given id.
func (c *InprocChannel) RegisterAgent(agentID id.AgentID, endpoint AgentEndpoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.agents[agentID] = endpoint
}

func (c *InprocChannel) Send(ctx context.Context, msg *AgentMessage) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return dErrors.New(dErrors.CodeUnavailable, "inproc channel closed")
	}
	endpoint := c.agents[msg.Recipient]
	c.mu.Unlock()

	if endpoint == nil {
		select {
		case c.sent <- msg:
		default:
			return dErrors.New(dErrors.CodeUnavailable, "inproc send buffer full")
		}
		return nil
	}

	go func() {
		reply, err := endpoint(ctx, msg)
		if err != nil {
			reply = msg.ErrorReply(msg.Recipient, err)
		}
		if reply != nil {
			c.Deliver(reply)
		}
	}()
	return nil
}

// Deliver injects a message into the inbound stream, as if it arrived from an
// agent. Used by loopback endpoints and tests.
func (c *InprocChannel) Deliver(msg *AgentMessage) {
	c.mu.Lock()
	inbound := c.inbound
	closed := c.closed
	c.mu.Unlock()
	if closed || inbound == nil {
		return
	}
	inbound <- msg
}

// Sent exposes messages sent to recipients without a registered endpoint.
func (c *InprocChannel) Sent() <-chan *AgentMessage { return c.sent }

func (c *InprocChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
