package service

import (
	"context"
	"io"
	"sync"
	"time"

	"crmbridge/internal/models"
	"crmbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeClient is a scriptable messaging client
type fakeClient struct {
	mu              sync.Mutex
	events          chan types.Event
	starts          int
	startErrs       []error
	defaultStartErr error
	gate            chan struct{}
	closes          int
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan types.Event, 32)}
}

func (f *fakeClient) Start(ctx context.Context) error {
	f.mu.Lock()
	f.starts++
	err := f.defaultStartErr
	if len(f.startErrs) > 0 {
		err = f.startErrs[0]
		f.startErrs = f.startErrs[1:]
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeClient) SendText(ctx context.Context, chatID, message string) (*types.SendMessageResponse, error) {
	return &types.SendMessageResponse{MessageID: "id"}, nil
}

func (f *fakeClient) Probe(ctx context.Context) error { return nil }

func (f *fakeClient) Events() <-chan types.Event { return f.events }

func (f *fakeClient) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeClient) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeClient) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeClient) setGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

// fakeTimers captures scheduled retries so tests fire them by hand
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
	owner   *fakeTimers
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f, owner: ft}
	ft.timers = append(ft.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

// pending returns timers that were neither stopped nor fired
func (ft *fakeTimers) pending() []*fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var out []*fakeTimer
	for _, t := range ft.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

func (ft *fakeTimers) count() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.timers)
}

func (ft *fakeTimers) delays() []time.Duration {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	out := make([]time.Duration, 0, len(ft.timers))
	for _, t := range ft.timers {
		out = append(out, t.delay)
	}
	return out
}

// fireNext runs the single pending timer synchronously
func (ft *fakeTimers) fireNext() bool {
	pending := ft.pending()
	if len(pending) != 1 {
		return false
	}
	t := pending[0]
	ft.mu.Lock()
	t.fired = true
	ft.mu.Unlock()
	t.fn()
	return true
}

type recordingSink struct {
	mu       sync.Mutex
	messages []*types.InboundMessage
}

func (s *recordingSink) Enqueue(msg *types.InboundMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.ID)
	}
	return out
}

type recordingPresenter struct {
	mu    sync.Mutex
	codes []string
}

func (p *recordingPresenter) Present(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes = append(p.codes, code)
}

func (p *recordingPresenter) presented() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.codes...)
}

type recordingRecorder struct {
	mu          sync.Mutex
	transitions []models.SessionTransition
}

func (r *recordingRecorder) Record(ctx context.Context, t models.SessionTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
	return nil
}

func (r *recordingRecorder) states() []models.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.SessionState, 0, len(r.transitions))
	for _, t := range r.transitions {
		out = append(out, t.ToState)
	}
	return out
}

type mockTextSender struct {
	mock.Mock
}

func (m *mockTextSender) SendText(ctx context.Context, chatID, message string) (*types.SendMessageResponse, error) {
	args := m.Called(ctx, chatID, message)
	resp, _ := args.Get(0).(*types.SendMessageResponse)
	return resp, args.Error(1)
}

type staticSession struct {
	session models.Session
}

func (s staticSession) Snapshot() models.Session {
	return s.session
}

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type fakeReporter struct {
	mu        sync.Mutex
	connected bool
	causes    []string
}

func (r *fakeReporter) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *fakeReporter) ReportDisconnected(cause string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.causes = append(r.causes, cause)
}

func (r *fakeReporter) reported() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.causes...)
}
