package agentcomm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"trustplane/internal/agentcomm/metrics"
	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

// MessageHandler processes an inbound message. A non-nil returned reply is
// automatically addressed back to the sender and correlated with the
// original message id.
type MessageHandler func(ctx context.Context, msg *AgentMessage) (*AgentMessage, error)

// channelPreference is the fixed order used to resolve a channel when the
// message does not name one.
var channelPreference = []id.ChannelType{
	id.ChannelTypeDirect,
	id.ChannelTypeBroker,
	id.ChannelTypeInproc,
}

const defaultSweepInterval = 30 * time.Second

// pendingEntry tracks an outbound message awaiting acknowledgement.
type pendingEntry struct {
	msg     *AgentMessage
	addedAt time.Time
}

// Communicator manages channel lifecycle, handler dispatch, request/reply
// correlation, and TTL cleanup on top of the configured channels.
type Communicator struct {
	senderID   id.AgentID
	defaultTTL int

	channels map[id.ChannelType]Channel

	handlersMu sync.RWMutex
	handlers   map[id.MessageType]MessageHandler

	// Pending and waiting entries are independent of each other; sync.Map
	// keeps unrelated correlation ids from serializing.
	pending sync.Map // id.MessageID -> *pendingEntry
	waiters sync.Map // id.MessageID -> chan *AgentMessage (capacity 1)

	inbound chan *AgentMessage

	sweepInterval time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// Option configures the Communicator.
type Option func(*Communicator)

// WithLogger sets a logger for the communicator.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Communicator) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Communicator) {
		c.metrics = m
	}
}

// WithSweepInterval overrides the expiration sweep interval. Used by tests.
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Communicator) {
		c.sweepInterval = interval
	}
}

// WithDefaultTTL sets the TTL applied to messages that carry none.
func WithDefaultTTL(seconds int) Option {
	return func(c *Communicator) {
		c.defaultTTL = seconds
	}
}

// New creates a communicator over the given channels. At least one channel is
// required.
func New(senderID id.AgentID, channels []Channel, opts ...Option) (*Communicator, error) {
	if senderID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "sender id is required")
	}
	if len(channels) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one channel is required")
	}

	byType := make(map[id.ChannelType]Channel, len(channels))
	for _, ch := range channels {
		byType[ch.Type()] = ch
	}

	c := &Communicator{
		senderID:      senderID,
		channels:      byType,
		handlers:      make(map[id.MessageType]MessageHandler),
		inbound:       make(chan *AgentMessage, 256),
		sweepInterval: defaultSweepInterval,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Initialize starts every channel, the inbound processing loop, and the
// expiration sweep. Fails fast if any channel fails to start.
func (c *Communicator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return dErrors.New(dErrors.CodeInvariantViolation, "communicator already initialized")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	for chType, ch := range c.channels {
		if err := ch.Start(runCtx, c.inbound); err != nil {
			cancel()
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "start channel "+chType.String())
		}
	}

	c.wg.Add(2)
	go c.processInbound(runCtx)
	go c.sweepLoop(runCtx)

	c.started = true
	return nil
}

// RegisterMessageHandler associates a handler with an inbound message type.
// Re-registration replaces the previous handler.
func (c *Communicator) RegisterMessageHandler(msgType id.MessageType, handler MessageHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[msgType] = handler
}

// SendMessage validates and delivers one message. If the message requires
// acknowledgement it is recorded as pending until a correlated reply arrives
// or its TTL elapses.
func (c *Communicator) SendMessage(ctx context.Context, msg *AgentMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.TTLSeconds <= 0 {
		msg.TTLSeconds = c.defaultTTL
	}

	ch, err := c.resolveChannel(msg.Channel)
	if err != nil {
		return err
	}
	msg.Channel = ch.Type()

	if msg.RequiresAck {
		c.pending.Store(msg.ID, &pendingEntry{msg: msg, addedAt: time.Now()})
	}

	start := time.Now()
	if err := ch.Send(ctx, msg); err != nil {
		if msg.RequiresAck {
			c.pending.Delete(msg.ID)
		}
		return err
	}
	if c.metrics != nil {
		c.metrics.SendDuration.Observe(time.Since(start).Seconds())
		c.metrics.MessagesSent.WithLabelValues(ch.Type().String(), msg.Type.String()).Inc()
	}
	return nil
}

// SendAndWaitReply sends the message and blocks until a correlated reply
// arrives, the timeout elapses, or the context is cancelled. The waiting-reply
// registration is removed on every exit path.
func (c *Communicator) SendAndWaitReply(ctx context.Context, msg *AgentMessage, timeout time.Duration) (*AgentMessage, error) {
	msg.RequiresAck = true
	if msg.CorrelationID.IsNil() {
		msg.CorrelationID = msg.ID
	}
	correlationID := msg.CorrelationID

	waiter := make(chan *AgentMessage, 1)
	if _, loaded := c.waiters.LoadOrStore(correlationID, waiter); loaded {
		return nil, dErrors.Newf(dErrors.CodeConflict, "a reply is already awaited for correlation id %s", correlationID)
	}
	defer c.waiters.Delete(correlationID)

	if err := c.SendMessage(ctx, msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-waiter:
		return reply, nil
	case <-timer.C:
		return nil, dErrors.Newf(dErrors.CodeTimeout, "no reply for message %s within %s", msg.ID, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops background loops and closes every channel, collecting per
// channel errors without aborting.
func (c *Communicator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	c.started = false
	c.cancel()
	c.wg.Wait()

	var errs []error
	for chType, ch := range c.channels {
		if err := ch.Close(); err != nil {
			errs = append(errs, dErrors.Wrap(err, dErrors.CodeInternal, "close channel "+chType.String()))
		}
	}
	return errors.Join(errs...)
}

// PendingCount reports how many sent messages still await acknowledgement.
func (c *Communicator) PendingCount() int {
	count := 0
	c.pending.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

// WaiterCount reports how many reply registrations are outstanding.
func (c *Communicator) WaiterCount() int {
	count := 0
	c.waiters.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}

func (c *Communicator) resolveChannel(requested id.ChannelType) (Channel, error) {
	if requested != "" {
		if ch, ok := c.channels[requested]; ok {
			return ch, nil
		}
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "channel %s is not configured", requested)
	}
	for _, chType := range channelPreference {
		if ch, ok := c.channels[chType]; ok {
			return ch, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeUnavailable, "no channel available")
}

func (c *Communicator) processInbound(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.inbound:
			c.handleInbound(ctx, msg)
		}
	}
}

func (c *Communicator) handleInbound(ctx context.Context, msg *AgentMessage) {
	if c.metrics != nil {
		c.metrics.MessagesReceived.WithLabelValues(msg.Type.String()).Inc()
	}

	if msg.IsReply() {
		c.deliverReply(ctx, msg)
		return
	}

	c.handlersMu.RLock()
	handler, ok := c.handlers[msg.Type]
	c.handlersMu.RUnlock()

	if !ok {
		// Mixed-version agent fleets may emit types this build does not
		// handle; dropping is deliberate and not an error.
		c.logger.DebugContext(ctx, "no handler for message type, dropping",
			"type", msg.Type,
			"sender", msg.Sender,
			"message_id", msg.ID,
		)
		return
	}

	reply, err := handler(ctx, msg)
	if err != nil {
		c.logger.WarnContext(ctx, "message handler failed",
			"type", msg.Type,
			"sender", msg.Sender,
			"message_id", msg.ID,
			"error", err,
		)
		if msg.RequiresAck {
			c.sendReply(ctx, msg.ErrorReply(c.senderID, err))
		}
		return
	}
	if reply != nil {
		reply.Sender = c.senderID
		reply.Recipient = msg.Sender
		reply.CorrelationID = msg.ID
		if reply.ID.IsNil() {
			reply.ID = id.NewMessageID()
		}
		c.sendReply(ctx, reply)
	}
}

// deliverReply routes a correlated reply to its waiter. Delivery is
// non-blocking: the reader loop must never stall on a slow or absent waiter.
func (c *Communicator) deliverReply(ctx context.Context, msg *AgentMessage) {
	correlationID := msg.CorrelationID
	c.pending.Delete(correlationID)

	value, ok := c.waiters.Load(correlationID)
	if !ok {
		if c.metrics != nil {
			c.metrics.RepliesDropped.Inc()
		}
		c.logger.WarnContext(ctx, "reply has no registered waiter, dropping",
			"correlation_id", correlationID,
			"sender", msg.Sender,
		)
		return
	}
	waiter := value.(chan *AgentMessage)
	select {
	case waiter <- msg:
	default:
		if c.metrics != nil {
			c.metrics.RepliesDropped.Inc()
		}
		c.logger.WarnContext(ctx, "waiter slot full, dropping reply",
			"correlation_id", correlationID,
			"sender", msg.Sender,
		)
	}
}

func (c *Communicator) sendReply(ctx context.Context, reply *AgentMessage) {
	if err := c.SendMessage(ctx, reply); err != nil {
		c.logger.WarnContext(ctx, "failed to send reply",
			"correlation_id", reply.CorrelationID,
			"recipient", reply.Recipient,
			"error", err,
		)
	}
}

func (c *Communicator) sweepLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.sweepExpired(ctx, now)
		}
	}
}

// sweepExpired removes pending messages whose TTL has elapsed. The original
// sender is not notified; callers that need delivery confirmation must use
// SendAndWaitReply with their own timeout.
func (c *Communicator) sweepExpired(ctx context.Context, now time.Time) {
	c.pending.Range(func(key, value any) bool {
		entry := value.(*pendingEntry)
		if entry.msg.Expired(now) {
			c.pending.Delete(key)
			if c.metrics != nil {
				c.metrics.PendingExpired.Inc()
			}
			c.logger.DebugContext(ctx, "expired pending message removed",
				"message_id", entry.msg.ID,
				"type", entry.msg.Type,
				"ttl_seconds", entry.msg.TTLSeconds,
			)
		}
		return true
	})
}
