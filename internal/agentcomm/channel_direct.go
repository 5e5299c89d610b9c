package agentcomm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

// DirectChannel delivers messages to agents over HTTP, one POST per message.
// Inbound traffic arrives through the transport layer's agent endpoint, which
// hands messages to Deliver. Endpoints are learned from agent registration.
type DirectChannel struct {
	mu        sync.RWMutex
	endpoints map[id.AgentID]string
	inbound   chan<- *AgentMessage
	client    *http.Client
	tokens    *TokenAuthority
	closed    bool
}

// NewDirectChannel creates a direct HTTP channel authenticated by the given
// token authority.
func NewDirectChannel(tokens *TokenAuthority, sendTimeout time.Duration) *DirectChannel {
	return &DirectChannel{
		endpoints: make(map[id.AgentID]string),
		client:    &http.Client{Timeout: sendTimeout},
		tokens:    tokens,
	}
}

func (c *DirectChannel) Type() id.ChannelType { return id.ChannelTypeDirect }

func (c *DirectChannel) Start(ctx context.Context, inbound chan<- *AgentMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbound = inbound
	return nil
}

// SetEndpoint records the callback URL an agent announced at registration.
func (c *DirectChannel) SetEndpoint(agentID id.AgentID, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoints[agentID] = url
}

// RemoveEndpoint forgets an agent's callback URL.
func (c *DirectChannel) RemoveEndpoint(agentID id.AgentID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.endpoints, agentID)
}

func (c *DirectChannel) Send(ctx context.Context, msg *AgentMessage) error {
	c.mu.RLock()
	url, ok := c.endpoints[msg.Recipient]
	closed := c.closed
	c.mu.RUnlock()

	if closed {
		return dErrors.New(dErrors.CodeUnavailable, "direct channel closed")
	}
	if !ok {
		return dErrors.Newf(dErrors.CodeUnavailable, "no direct endpoint for agent %s", msg.Recipient)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "marshal agent message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build agent request")
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.tokens.Issue(msg.Sender)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "direct channel send failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dErrors.Wrap(
			fmt.Errorf("agent returned status %d", resp.StatusCode),
			dErrors.CodeUnavailable, "direct channel send rejected",
		)
	}
	return nil
}

// Deliver injects an inbound agent message received by the transport layer.
// Returns an error when the channel has not been started or is closed.
func (c *DirectChannel) Deliver(msg *AgentMessage) error {
	c.mu.RLock()
	inbound := c.inbound
	closed := c.closed
	c.mu.RUnlock()

	if closed || inbound == nil {
		return dErrors.New(dErrors.CodeUnavailable, "direct channel not accepting messages")
	}
	inbound <- msg
	return nil
}

func (c *DirectChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.client.CloseIdleConnections()
	return nil
}
