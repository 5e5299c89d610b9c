package agentcomm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "trustplane/pkg/domain"
	dErrors "trustplane/pkg/domain-errors"
)

func newTestCommunicator(t *testing.T, opts ...Option) (*Communicator, *InprocChannel) {
	t.Helper()
	channel := NewInprocChannel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithLogger(logger), WithDefaultTTL(300)}, opts...)
	comm, err := New(OrchestratorID, []Channel{channel}, opts...)
	require.NoError(t, err)
	require.NoError(t, comm.Initialize(context.Background()))
	t.Cleanup(func() { _ = comm.Close() })
	return comm, channel
}

func TestNew_Invariants(t *testing.T) {
	_, err := New("", []Channel{NewInprocChannel()})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = New(OrchestratorID, nil)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestSendMessage_Validation(t *testing.T) {
	comm, _ := newTestCommunicator(t)

	msg := NewMessage(id.MessageTypeAlert, "", nil)
	err := comm.SendMessage(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestSendMessage_DefaultsAndPending(t *testing.T) {
	comm, channel := newTestCommunicator(t)

	msg := NewMessage(id.MessageTypeAlert, OrchestratorID, nil)
	msg.CreatedAt = time.Time{}
	msg.RequiresAck = true
	require.NoError(t, comm.SendMessage(context.Background(), msg))

	assert.False(t, msg.CreatedAt.IsZero(), "timestamp assigned on send")
	assert.Equal(t, 300, msg.TTLSeconds, "default TTL applied")
	assert.Equal(t, id.ChannelTypeInproc, msg.Channel, "channel resolved")
	assert.Equal(t, 1, comm.PendingCount())

	select {
	case sent := <-channel.Sent():
		assert.Equal(t, msg.ID, sent.ID)
	case <-time.After(time.Second):
		t.Fatal("message never reached the channel")
	}
}

func TestSendMessage_UnknownChannel(t *testing.T) {
	comm, _ := newTestCommunicator(t)

	msg := NewMessage(id.MessageTypeAlert, OrchestratorID, nil)
	msg.Channel = id.ChannelTypeBroker
	err := comm.SendMessage(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Equal(t, 0, comm.PendingCount(), "failed send leaves no pending entry")
}

func TestSendAndWaitReply_Success(t *testing.T) {
	comm, channel := newTestCommunicator(t)

	channel.RegisterAgent("fraud-agent", func(_ context.Context, msg *AgentMessage) (*AgentMessage, error) {
		return msg.Reply("fraud-agent", map[string]any{"fraudProbability": 12.0}), nil
	})

	msg := NewMessage(id.MessageTypeEvaluateTransaction, OrchestratorID, map[string]any{"userId": "u1"})
	msg.Recipient = "fraud-agent"

	reply, err := comm.SendAndWaitReply(context.Background(), msg, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, reply.CorrelationID)
	assert.Equal(t, id.MessageStatusDelivered, reply.Status)
	assert.Equal(t, 12.0, reply.Payload["fraudProbability"])

	assert.Equal(t, 0, comm.WaiterCount(), "waiter removed after success")
	assert.Eventually(t, func() bool { return comm.PendingCount() == 0 },
		time.Second, 10*time.Millisecond, "pending entry removed once reply lands")
}

func TestSendAndWaitReply_Timeout(t *testing.T) {
	comm, _ := newTestCommunicator(t)

	msg := NewMessage(id.MessageTypeEvaluateTransaction, OrchestratorID, nil)
	msg.Recipient = "silent-agent"

	_, err := comm.SendAndWaitReply(context.Background(), msg, 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.Equal(t, 0, comm.WaiterCount(), "waiter removed after timeout")
}

func TestSendAndWaitReply_ContextCancelled(t *testing.T) {
	comm, _ := newTestCommunicator(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	msg := NewMessage(id.MessageTypeEvaluateTransaction, OrchestratorID, nil)
	msg.Recipient = "silent-agent"

	_, err := comm.SendAndWaitReply(ctx, msg, 5*time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "cancellation is distinct from timeout")
	assert.Equal(t, 0, comm.WaiterCount(), "waiter removed after cancellation")
}

func TestSendAndWaitReply_NoLeakedWaiters(t *testing.T) {
	comm, _ := newTestCommunicator(t)

	for range 25 {
		msg := NewMessage(id.MessageTypeEvaluateTransaction, OrchestratorID, nil)
		msg.Recipient = "silent-agent"
		_, err := comm.SendAndWaitReply(context.Background(), msg, 5*time.Millisecond)
		require.Error(t, err)
	}
	assert.Equal(t, 0, comm.WaiterCount(), "no leaked registrations after repeated timeouts")
}

func TestHandlerDispatch(t *testing.T) {
	comm, channel := newTestCommunicator(t)

	var handled atomic.Int32
	comm.RegisterMessageHandler(id.MessageTypeFeedback, func(_ context.Context, msg *AgentMessage) (*AgentMessage, error) {
		handled.Add(1)
		return nil, nil
	})

	channel.Deliver(NewMessage(id.MessageTypeFeedback, "agent-1", nil))
	assert.Eventually(t, func() bool { return handled.Load() == 1 },
		time.Second, 10*time.Millisecond)

	// Unregistered types are dropped without error.
	channel.Deliver(NewMessage(id.MessageTypeModelUpdate, "agent-1", nil))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), handled.Load())
}

func TestHandlerReplacement(t *testing.T) {
	comm, channel := newTestCommunicator(t)

	var first, second atomic.Int32
	comm.RegisterMessageHandler(id.MessageTypeFeedback, func(_ context.Context, _ *AgentMessage) (*AgentMessage, error) {
		first.Add(1)
		return nil, nil
	})
	comm.RegisterMessageHandler(id.MessageTypeFeedback, func(_ context.Context, _ *AgentMessage) (*AgentMessage, error) {
		second.Add(1)
		return nil, nil
	})

	channel.Deliver(NewMessage(id.MessageTypeFeedback, "agent-1", nil))
	assert.Eventually(t, func() bool { return second.Load() == 1 },
		time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), first.Load(), "re-registration replaces the previous handler")
}

func TestHandlerReplyIsCorrelated(t *testing.T) {
	comm, channel := newTestCommunicator(t)

	comm.RegisterMessageHandler(id.MessageTypeVerifyDocument, func(_ context.Context, msg *AgentMessage) (*AgentMessage, error) {
		return &AgentMessage{
			Type:    id.MessageTypeVerifyDocument,
			Payload: map[string]any{"verified": true},
			Status:  id.MessageStatusDelivered,
		}, nil
	})

	inboundMsg := NewMessage(id.MessageTypeVerifyDocument, "identity-agent", nil)
	channel.Deliver(inboundMsg)

	select {
	case reply := <-channel.Sent():
		assert.Equal(t, inboundMsg.ID, reply.CorrelationID)
		assert.Equal(t, id.AgentID("identity-agent"), reply.Recipient)
		assert.Equal(t, OrchestratorID, reply.Sender)
		assert.False(t, reply.ID.IsNil())
	case <-time.After(time.Second):
		t.Fatal("handler reply never sent")
	}
}

func TestHandlerErrorTriggersErrorReply(t *testing.T) {
	comm, channel := newTestCommunicator(t)

	comm.RegisterMessageHandler(id.MessageTypeVerifyDocument, func(_ context.Context, _ *AgentMessage) (*AgentMessage, error) {
		return nil, errors.New("document store offline")
	})

	inboundMsg := NewMessage(id.MessageTypeVerifyDocument, "identity-agent", nil)
	inboundMsg.RequiresAck = true
	channel.Deliver(inboundMsg)

	select {
	case reply := <-channel.Sent():
		assert.Equal(t, id.MessageStatusFailed, reply.Status)
		assert.Contains(t, reply.Error, "document store offline")
		assert.Equal(t, inboundMsg.ID, reply.CorrelationID)
	case <-time.After(time.Second):
		t.Fatal("error reply never sent")
	}
}

func TestSweepRemovesExpiredPending(t *testing.T) {
	comm, _ := newTestCommunicator(t, WithSweepInterval(50*time.Millisecond))

	msg := NewMessage(id.MessageTypeAlert, OrchestratorID, nil)
	msg.RequiresAck = true
	msg.TTLSeconds = 1
	require.NoError(t, comm.SendMessage(context.Background(), msg))
	require.Equal(t, 1, comm.PendingCount())

	// Not removed before the TTL elapses.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, comm.PendingCount(), "sweep must not remove unexpired messages")

	assert.Eventually(t, func() bool { return comm.PendingCount() == 0 },
		3*time.Second, 50*time.Millisecond, "sweep removes the message after TTL")
}

func TestClose_Idempotent(t *testing.T) {
	channel := NewInprocChannel()
	comm, err := New(OrchestratorID, []Channel{channel},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	require.NoError(t, comm.Initialize(context.Background()))

	require.NoError(t, comm.Close())
	require.NoError(t, comm.Close(), "second close is a no-op")
}
