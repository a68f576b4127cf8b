package chat

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iksnae/chat-session/internal"
)

const waitFor = 2 * time.Second
const tick = 2 * time.Millisecond

type harness struct {
	ctrl   *Controller
	dialer *fakeDialer
	clock  *fakeClock
	events *eventLog
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		dialer: &fakeDialer{},
		clock:  &fakeClock{},
		events: &eventLog{},
	}
	all := append([]Option{WithClock(h.clock), WithObserver(h.events.observe)}, opts...)
	ctrl, err := New("alice", h.dialer, all...)
	require.NoError(t, err)
	h.ctrl = ctrl
	t.Cleanup(ctrl.Shutdown)
	return h
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ctrl.State() == want }, waitFor, tick,
		"state never became %s (now %s)", want, h.ctrl.State())
}

func (h *harness) waitTimers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.clock.Delays()) == n }, waitFor, tick,
		"expected %d scheduled reconnects, got %d", n, len(h.clock.Delays()))
}

func (h *harness) openConn(t *testing.T, sessionID string) *fakeConn {
	t.Helper()
	require.NoError(t, h.ctrl.Open(sessionID))
	h.waitState(t, StateOpen)
	return h.dialer.Conn(h.dialer.Conns() - 1)
}

func TestNewRequiresIdentity(t *testing.T) {
	_, err := New("  ", &fakeDialer{})
	assert.ErrorIs(t, err, internal.ErrNoIdentity)
}

func TestOpenReachesOpen(t *testing.T) {
	h := newHarness(t)
	h.openConn(t, "sess-1")

	assert.Equal(t, []string{"sess-1"}, h.dialer.IDs())
	assert.Equal(t, "sess-1", h.ctrl.SessionID())
	assert.Equal(t, []State{StateConnecting, StateOpen}, h.events.States())
}

func TestOpenRejectsBlankSession(t *testing.T) {
	h := newHarness(t)
	assert.Error(t, h.ctrl.Open(" "))
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestHelloScenario(t *testing.T) {
	h := newHarness(t)
	conn := h.openConn(t, "sess-1")

	require.NoError(t, h.ctrl.Send("hello"))

	msgs := h.ctrl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, internal.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)

	conn.push(`{"type":"message","message":"hi there","sources":[],"follow_up_questions":["How can I help?"]}`)

	require.Eventually(t, func() bool { return len(h.ctrl.Messages()) == 2 }, waitFor, tick)
	msgs = h.ctrl.Messages()
	assert.Equal(t, internal.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "hi there", msgs[1].Content)
	assert.Empty(t, msgs[1].Sources)
	assert.Equal(t, []string{"How can I help?"}, msgs[1].FollowUpQuestions)

	require.Eventually(t, func() bool { return len(conn.Written()) == 1 }, waitFor, tick)
	assert.Equal(t, internal.OutboundEnvelope{UserID: "alice", UserInput: "hello", SessionID: "sess-1"}, conn.Written()[0])
}

func TestSendUpdatesDeliveryStatus(t *testing.T) {
	rec := &fakeRecorder{}
	h := newHarness(t, WithRecorder(rec))
	h.openConn(t, "sess-1")

	require.NoError(t, h.ctrl.Send("hello"))
	require.Eventually(t, func() bool {
		return h.ctrl.Messages()[0].Status == internal.DeliverySent
	}, waitFor, tick)

	updates := h.events.Kind(EventDeliveryUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, 0, updates[0].Index)
	assert.Equal(t, internal.DeliverySent, updates[0].Message.Status)
	assert.Equal(t, internal.DeliverySent, rec.Status(1))
}

func TestSendWriteFailureMarksFailed(t *testing.T) {
	rec := &fakeRecorder{}
	h := newHarness(t, WithRecorder(rec))
	conn := h.openConn(t, "sess-1")
	conn.SetWriteErr(errors.New("broken pipe"))

	require.NoError(t, h.ctrl.Send("hello"))
	require.Eventually(t, func() bool {
		return h.ctrl.Messages()[0].Status == internal.DeliveryFailed
	}, waitFor, tick)

	msgs := h.ctrl.Messages()
	require.Len(t, msgs, 1, "failed message stays in the log")
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, internal.DeliveryFailed, rec.Status(1))
}

func TestSendRequiresOpen(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.ctrl.Send("hello"), ErrNotOpen)

	h.dialer.SetFailAll(true)
	require.NoError(t, h.ctrl.Open("sess-1"))
	h.waitState(t, StateClosedRetrying)
	assert.ErrorIs(t, h.ctrl.Send("hello"), ErrNotOpen)
	assert.Empty(t, h.ctrl.Messages())
}

func TestSendRejectsBlank(t *testing.T) {
	h := newHarness(t)
	h.openConn(t, "sess-1")
	assert.ErrorIs(t, h.ctrl.Send("   "), ErrEmptyMessage)
	assert.Empty(t, h.ctrl.Messages())
}

func TestAssistantMessagesKeepReceiptOrder(t *testing.T) {
	h := newHarness(t)
	conn := h.openConn(t, "sess-1")

	const n = 25
	for i := 0; i < n; i++ {
		conn.push(fmt.Sprintf(`{"type":"message","message":"reply %d"}`, i))
	}

	require.Eventually(t, func() bool { return len(h.ctrl.Messages()) == n }, waitFor, tick)
	for i, msg := range h.ctrl.Messages() {
		assert.Equal(t, internal.RoleAssistant, msg.Role)
		assert.Equal(t, fmt.Sprintf("reply %d", i), msg.Content)
	}
}

func TestConnectionStatusIsNotLogged(t *testing.T) {
	h := newHarness(t)
	conn := h.openConn(t, "sess-1")

	conn.push(`{"type":"connection_status","content":"connected"}`)
	conn.push(`{"type":"typing"}`)
	conn.push(`{"type":"message","message":"done"}`)

	require.Eventually(t, func() bool { return len(h.ctrl.Messages()) == 1 }, waitFor, tick)
	assert.Equal(t, "done", h.ctrl.Messages()[0].Content)

	statuses := h.events.Kind(EventConnectionStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, "connected", statuses[0].Status)
}

func TestMalformedFrameRaisesProtocolError(t *testing.T) {
	h := newHarness(t)
	conn := h.openConn(t, "sess-1")

	conn.push(`not json`)
	conn.push(`{"message":"no type"}`)

	require.Eventually(t, func() bool { return len(h.events.Kind(EventProtocolError)) == 2 }, waitFor, tick)
	var perr *internal.ProtocolError
	assert.ErrorAs(t, h.events.Kind(EventProtocolError)[0].Err, &perr)
	assert.Empty(t, h.ctrl.Messages())
	assert.Equal(t, StateOpen, h.ctrl.State())
}

func TestRetryBudgetExhausted(t *testing.T) {
	h := newHarness(t)
	h.dialer.SetFailAll(true)

	require.NoError(t, h.ctrl.Open("sess-1"))
	h.waitTimers(t, 1)
	h.waitState(t, StateClosedRetrying)

	for i := 2; i <= 3; i++ {
		require.True(t, h.clock.FireNext())
		h.waitTimers(t, i)
	}
	require.True(t, h.clock.FireNext())
	h.waitState(t, StateClosedFailed)

	assert.Equal(t, 4, h.dialer.Dials(), "initial dial plus three reconnects")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, h.clock.Delays())
	assert.Zero(t, h.clock.Active())
	assert.False(t, h.clock.FireNext(), "no attempts after closed-failed")
	assert.Equal(t, 4, h.dialer.Dials())

	var cerr *internal.ConnectionError
	failed := h.events.Kind(EventStateChanged)
	require.ErrorAs(t, failed[len(failed)-1].Err, &cerr)
	assert.Equal(t, 4, cerr.Attempts)
	assert.ErrorIs(t, h.ctrl.LastError(), errRefused)
}

func TestManualRetryAfterFailure(t *testing.T) {
	h := newHarness(t, WithReconnectPolicy(ReconnectPolicy{BaseDelay: time.Second, MaxDelay: 10 * time.Second, MaxAttempts: 0}))
	h.dialer.SetFailAll(true)

	require.NoError(t, h.ctrl.Open("sess-1"))
	h.waitState(t, StateClosedFailed)
	assert.Equal(t, 1, h.dialer.Dials())

	h.dialer.SetFailAll(false)
	require.NoError(t, h.ctrl.Retry())
	h.waitState(t, StateOpen)
	assert.Equal(t, 2, h.dialer.Dials())
}

func TestRetryOnlyFromFailed(t *testing.T) {
	h := newHarness(t)
	h.openConn(t, "sess-1")
	assert.ErrorIs(t, h.ctrl.Retry(), ErrNotFailed)
}

func TestUnrequestedCloseReconnects(t *testing.T) {
	h := newHarness(t)
	conn := h.openConn(t, "sess-1")

	conn.serverClose(errors.New("going away"))
	h.waitTimers(t, 1)
	h.waitState(t, StateClosedRetrying)

	require.True(t, h.clock.FireNext())
	h.waitState(t, StateOpen)
	assert.Equal(t, 2, h.dialer.Dials())

	// attempts reset after reaching open, so the next drop starts from the base delay again
	h.dialer.Conn(1).serverClose(errors.New("going away"))
	h.waitTimers(t, 2)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, h.clock.Delays())
}

func TestCloseFromAnyState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, h *harness)
	}{
		{
			name:  "idle",
			setup: func(t *testing.T, h *harness) {},
		},
		{
			name: "open",
			setup: func(t *testing.T, h *harness) {
				h.openConn(t, "sess-1")
			},
		},
		{
			name: "closed-retrying",
			setup: func(t *testing.T, h *harness) {
				h.dialer.SetFailAll(true)
				require.NoError(t, h.ctrl.Open("sess-1"))
				h.waitState(t, StateClosedRetrying)
			},
		},
		{
			name: "closed-failed",
			setup: func(t *testing.T, h *harness) {
				h.dialer.SetFailAll(true)
				h.ctrl.policy.MaxAttempts = 0
				require.NoError(t, h.ctrl.Open("sess-1"))
				h.waitState(t, StateClosedFailed)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.setup(t, h)
			require.NoError(t, h.ctrl.Close("unmount"))
			assert.Equal(t, StateClosedClean, h.ctrl.State())
			assert.Zero(t, h.clock.Active())
		})
	}
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	h := newHarness(t)
	h.dialer.SetFailAll(true)

	require.NoError(t, h.ctrl.Open("sess-1"))
	h.waitTimers(t, 1)
	h.waitState(t, StateClosedRetrying)

	require.NoError(t, h.ctrl.Close("unmount"))
	assert.Equal(t, StateClosedClean, h.ctrl.State())
	assert.True(t, h.clock.Timer(0).stopped)

	// a callback that raced the cancellation is ignored
	h.clock.Timer(0).f()
	assert.Equal(t, StateClosedClean, h.ctrl.State())
	assert.Equal(t, 1, h.dialer.Dials())
}

func TestCloseSendsReason(t *testing.T) {
	h := newHarness(t)
	conn := h.openConn(t, "sess-1")

	require.NoError(t, h.ctrl.Close("unmount"))
	assert.Equal(t, "unmount", conn.Reason())

	// the reader sees the close but the controller asked for it, so no retry follows
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateClosedClean, h.ctrl.State())
	assert.Zero(t, h.clock.Active())
}

func TestOpenReplacesConnection(t *testing.T) {
	h := newHarness(t)
	first := h.openConn(t, "sess-1")
	first.push(`{"type":"message","message":"from one"}`)
	require.Eventually(t, func() bool { return len(h.ctrl.Messages()) == 1 }, waitFor, tick)

	second := h.openConn(t, "sess-2")
	assert.Equal(t, "reconnecting", first.Reason())
	assert.Empty(t, h.ctrl.Messages(), "different session starts a fresh log")

	second.push(`{"type":"message","message":"from two"}`)
	require.Eventually(t, func() bool { return len(h.ctrl.Messages()) == 1 }, waitFor, tick)
	assert.Equal(t, "from two", h.ctrl.Messages()[0].Content)
	assert.Zero(t, h.clock.Active())
}

func TestOpenWithHistory(t *testing.T) {
	h := newHarness(t)
	history := []internal.ChatMessage{
		{Role: internal.RoleUser, Content: "earlier question"},
		{Role: internal.RoleAssistant, Content: "earlier answer"},
	}

	require.NoError(t, h.ctrl.Open("sess-1", WithHistory(history)))
	h.waitState(t, StateOpen)

	msgs := h.ctrl.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "earlier answer", msgs[1].Content)
}

func TestStartSendsInitialMessageOnce(t *testing.T) {
	h := newHarness(t, WithIDGenerator(func() string { return "new-session" }))
	h.dialer.failures = 1

	id, err := h.ctrl.Start("  What is Go?  ")
	require.NoError(t, err)
	assert.Equal(t, "new-session", id)

	h.waitState(t, StateClosedRetrying)
	assert.Empty(t, h.ctrl.Messages(), "nothing is sent before the first open")

	require.True(t, h.clock.FireNext())
	h.waitState(t, StateOpen)

	conn := h.dialer.Conn(0)
	require.Eventually(t, func() bool { return len(conn.Written()) == 1 }, waitFor, tick)
	assert.Equal(t, internal.OutboundEnvelope{UserID: "alice", UserInput: "What is Go?", SessionID: "new-session"}, conn.Written()[0])

	msgs := h.ctrl.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "What is Go?", msgs[0].Content)
	assert.Equal(t, 1, h.dialer.Conns(), "one connection for the whole flow")
}

func TestStartRejectsBlankQuestion(t *testing.T) {
	h := newHarness(t)
	_, err := h.ctrl.Start(" ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Zero(t, h.dialer.Dials())
}

func TestStartGeneratesUUID(t *testing.T) {
	h := newHarness(t)
	id, err := h.ctrl.Start("hello")
	require.NoError(t, err)
	assert.Len(t, id, 36)
}

func TestShutdown(t *testing.T) {
	h := newHarness(t)
	conn := h.openConn(t, "sess-1")

	h.ctrl.Shutdown()
	assert.Equal(t, "shutdown", conn.Reason())
	assert.ErrorIs(t, h.ctrl.Send("hello"), ErrShutdown)
	assert.ErrorIs(t, h.ctrl.Open("sess-2"), ErrShutdown)
	h.ctrl.Shutdown()
}
