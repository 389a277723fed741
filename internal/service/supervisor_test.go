package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"crmbridge/internal/models"
	"crmbridge/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type supervisorHarness struct {
	s         *Supervisor
	client    *fakeClient
	timers    *fakeTimers
	sink      *recordingSink
	presenter *recordingPresenter
	recorder  *recordingRecorder
}

func newSupervisorHarness(t *testing.T, client *fakeClient) *supervisorHarness {
	t.Helper()
	h := &supervisorHarness{
		client:    client,
		timers:    &fakeTimers{},
		sink:      &recordingSink{},
		presenter: &recordingPresenter{},
		recorder:  &recordingRecorder{},
	}
	h.s = NewSupervisor(client, h.sink, SupervisorConfig{
		SessionName:          "default",
		MaxReconnectAttempts: 10,
		BaseDelay:            5 * time.Second,
		MaxDelay:             30 * time.Second,
	}, quietLogger(),
		WithAfterFunc(h.timers.AfterFunc),
		WithPresenter(h.presenter),
		WithRecorder(h.recorder),
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = h.s.Stop(ctx)
	})
	return h
}

// start runs Start and waits for the first client start to settle
func (h *supervisorHarness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.s.Start(context.Background()))
	h.waitIdle(t)
}

func (h *supervisorHarness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.s.mu.Lock()
		defer h.s.mu.Unlock()
		return h.client.startCount() > 0 && !h.s.inFlight
	}, waitFor, tick)
}

func (h *supervisorHarness) emit(ev types.Event) {
	h.client.events <- ev
}

func (h *supervisorHarness) waitState(t *testing.T, state models.SessionState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.s.Snapshot().State == state
	}, waitFor, tick, "expected state %s, got %s", state, h.s.Snapshot().State)
}

func TestSupervisor_InitialState(t *testing.T) {
	h := newSupervisorHarness(t, newFakeClient())

	snap := h.s.Snapshot()
	assert.Equal(t, models.SessionInitializing, snap.State)
	assert.Equal(t, "default", snap.ID)
	assert.Zero(t, snap.ReconnectAttempts)
	assert.False(t, h.s.IsConnected())
}

func TestSupervisor_ConnectResetsCounter(t *testing.T) {
	h := newSupervisorHarness(t, newFakeClient())
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	h.s.now = func() time.Time { return now }
	h.start(t)

	h.emit(types.StateChanged(types.StateDisconnected, ""))
	h.waitState(t, models.SessionDisconnected)
	assert.Equal(t, 1, h.s.Snapshot().ReconnectAttempts)

	h.emit(types.StateChanged(types.StateConnected, ""))
	h.waitState(t, models.SessionConnected)

	snap := h.s.Snapshot()
	assert.Zero(t, snap.ReconnectAttempts)
	assert.Equal(t, now, snap.LastConnectedAt)
	assert.True(t, h.s.IsConnected())
	assert.Empty(t, h.timers.pending(), "connecting cancels the pending retry")
}

func TestSupervisor_SingleRetryScheduled(t *testing.T) {
	h := newSupervisorHarness(t, newFakeClient())
	h.start(t)
	h.emit(types.StateChanged(types.StateConnected, ""))
	h.waitState(t, models.SessionConnected)

	h.emit(types.StateChanged(types.StateConflict, "CONFLICT"))
	h.waitState(t, models.SessionDisconnected)
	h.emit(types.StateChanged(types.StateUnpaired, "UNPAIRED"))
	h.s.ReportDisconnected(LivenessCause)

	// Let the loop drain both events
	require.Eventually(t, func() bool { return len(h.client.events) == 0 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, h.timers.count())
	assert.Len(t, h.timers.pending(), 1)
	assert.Equal(t, 5*time.Second, h.timers.delays()[0])
	assert.Equal(t, 1, h.s.Snapshot().ReconnectAttempts)
	assert.Equal(t, 1, h.client.startCount())
}

func TestSupervisor_RetryFiresStart(t *testing.T) {
	h := newSupervisorHarness(t, newFakeClient())
	h.start(t)

	h.emit(types.StateChanged(types.StateDisconnected, "STREAM_CLOSED"))
	h.waitState(t, models.SessionDisconnected)
	assert.Equal(t, "STREAM_CLOSED", h.s.Snapshot().LastCause)

	require.True(t, h.timers.fireNext())
	assert.Equal(t, models.SessionReconnecting, h.s.Snapshot().State)
	assert.Equal(t, 2, h.client.startCount())
	assert.Empty(t, h.timers.pending())
}

func TestSupervisor_BackoffAndTermination(t *testing.T) {
	client := newFakeClient()
	client.defaultStartErr = errors.New("engine offline")
	h := newSupervisorHarness(t, client)
	h.start(t)

	for i := 0; i < 10; i++ {
		require.Len(t, h.timers.pending(), 1, "attempt %d", i+1)
		assert.LessOrEqual(t, h.s.Snapshot().ReconnectAttempts, 10)
		require.True(t, h.timers.fireNext())
	}

	snap := h.s.Snapshot()
	assert.Equal(t, models.SessionTerminated, snap.State)
	assert.Equal(t, 10, snap.ReconnectAttempts)
	assert.Contains(t, snap.LastCause, "engine offline")
	assert.Empty(t, h.timers.pending())
	assert.Equal(t, 11, client.startCount())
	assert.Equal(t, 1, client.closeCount())

	want := []time.Duration{5, 10, 15, 20, 25, 30, 30, 30, 30, 30}
	for i := range want {
		want[i] *= time.Second
	}
	assert.Equal(t, want, h.timers.delays())

	// Later events are ignored once terminated
	h.emit(types.StateChanged(types.StateConnected, ""))
	h.emit(types.StateChanged(types.StateDisconnected, ""))
	h.emit(types.MessageReceived(&types.InboundMessage{ID: "late", From: "5511999999999@c.us"}))
	require.Eventually(t, func() bool { return len(h.client.events) == 0 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, models.SessionTerminated, h.s.Snapshot().State)
	assert.Equal(t, 10, h.timers.count())
	assert.Empty(t, h.sink.ids())
}

func TestSupervisor_AuthChallengeResetsMidBackoff(t *testing.T) {
	client := newFakeClient()
	client.startErrs = []error{errors.New("fail 1")}
	h := newSupervisorHarness(t, client)
	h.start(t)

	require.Len(t, h.timers.pending(), 1)
	require.True(t, h.timers.fireNext())
	h.emit(types.StateChanged(types.StateDisconnected, ""))
	h.waitState(t, models.SessionDisconnected)
	require.Equal(t, 2, h.s.Snapshot().ReconnectAttempts)

	h.emit(types.AuthChallenge("2@code"))
	h.waitState(t, models.SessionAwaitingAuth)

	assert.Zero(t, h.s.Snapshot().ReconnectAttempts)
	assert.Equal(t, []string{"2@code"}, h.presenter.presented())
	assert.Empty(t, h.timers.pending())
}

func TestSupervisor_DisconnectDuringStartIsReevaluated(t *testing.T) {
	client := newFakeClient()
	gate := make(chan struct{})
	client.setGate(gate)
	h := newSupervisorHarness(t, client)
	require.NoError(t, h.s.Start(context.Background()))
	require.Eventually(t, func() bool { return client.startCount() == 1 }, waitFor, tick)

	h.emit(types.StateChanged(types.StateDisconnected, "CONFLICT"))
	h.waitState(t, models.SessionDisconnected)
	assert.Zero(t, h.timers.count(), "no retry while a start is in flight")

	close(gate)
	h.waitIdle(t)

	assert.Len(t, h.timers.pending(), 1)
	assert.Equal(t, 1, h.s.Snapshot().ReconnectAttempts)
}

func TestSupervisor_ConnectedDuringStartSkipsRetry(t *testing.T) {
	client := newFakeClient()
	gate := make(chan struct{})
	client.setGate(gate)
	h := newSupervisorHarness(t, client)
	require.NoError(t, h.s.Start(context.Background()))
	require.Eventually(t, func() bool { return client.startCount() == 1 }, waitFor, tick)

	h.emit(types.StateChanged(types.StateDisconnected, ""))
	h.emit(types.StateChanged(types.StateConnected, ""))
	h.waitState(t, models.SessionConnected)

	close(gate)
	h.waitIdle(t)

	assert.Zero(t, h.timers.count())
	assert.True(t, h.s.IsConnected())
}

func TestSupervisor_MessagesForwardedInOrder(t *testing.T) {
	h := newSupervisorHarness(t, newFakeClient())
	h.start(t)

	for _, id := range []string{"a", "b", "c"} {
		h.emit(types.MessageReceived(&types.InboundMessage{ID: id}))
	}

	require.Eventually(t, func() bool { return len(h.sink.ids()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"a", "b", "c"}, h.sink.ids())
}

func TestSupervisor_IgnoresEventsBeforeStart(t *testing.T) {
	h := newSupervisorHarness(t, newFakeClient())

	h.s.ReportDisconnected("early")

	assert.Equal(t, models.SessionInitializing, h.s.Snapshot().State)
	assert.Zero(t, h.timers.count())
}

func TestSupervisor_StartTwice(t *testing.T) {
	h := newSupervisorHarness(t, newFakeClient())
	h.start(t)
	assert.Error(t, h.s.Start(context.Background()))
}

func TestSupervisor_StopCancelsRetry(t *testing.T) {
	client := newFakeClient()
	h := newSupervisorHarness(t, client)
	h.start(t)

	h.emit(types.StateChanged(types.StateDisconnected, ""))
	h.waitState(t, models.SessionDisconnected)
	require.Len(t, h.timers.pending(), 1)
	timer := h.timers.pending()[0]

	require.NoError(t, h.s.Stop(context.Background()))
	assert.True(t, timer.stopped)
	assert.Equal(t, 1, client.closeCount())

	// A callback that raced with Stop must not start the client again
	timer.fn()
	assert.Equal(t, 1, client.startCount())

	require.NoError(t, h.s.Stop(context.Background()))
	assert.Equal(t, 1, client.closeCount())
}

func TestSupervisor_JournalsTransitions(t *testing.T) {
	h := newSupervisorHarness(t, newFakeClient())
	h.start(t)

	h.emit(types.AuthChallenge("code"))
	h.emit(types.StateChanged(types.StateConnected, ""))
	h.emit(types.StateChanged(types.StateConflict, ""))
	h.waitState(t, models.SessionDisconnected)
	require.True(t, h.timers.fireNext())

	require.NoError(t, h.s.Stop(context.Background()))
	assert.Equal(t, []models.SessionState{
		models.SessionAwaitingAuth,
		models.SessionConnected,
		models.SessionDisconnected,
		models.SessionReconnecting,
	}, h.recorder.states())
}

func TestSupervisor_SeedsLastConnected(t *testing.T) {
	seen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewSupervisor(newFakeClient(), &recordingSink{}, SupervisorConfig{SessionName: "x", LastConnectedAt: seen}, quietLogger())

	assert.Equal(t, seen, s.Snapshot().LastConnectedAt)
	assert.Equal(t, 10, s.MaxReconnectAttempts())
}
