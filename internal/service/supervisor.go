package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crmbridge/internal/constants"
	apperrors "crmbridge/internal/errors"
	"crmbridge/internal/metrics"
	"crmbridge/internal/models"
	"crmbridge/internal/retry"
	"crmbridge/internal/tracing"
	"crmbridge/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Timer is a scheduled callback that can be cancelled
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run once after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// MessageSink receives inbound messages in arrival order
type MessageSink interface {
	Enqueue(msg *types.InboundMessage)
}

// ChallengePresenter shows an authentication code to the operator
type ChallengePresenter interface {
	Present(code string)
}

// TransitionRecorder persists session state changes
type TransitionRecorder interface {
	Record(ctx context.Context, t models.SessionTransition) error
}

// SupervisorConfig controls the reconnect policy
type SupervisorConfig struct {
	SessionName          string
	MaxReconnectAttempts int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	StartTimeout         time.Duration
	CloseTimeout         time.Duration
	// LastConnectedAt seeds the session with the last connection seen by a previous run
	LastConnectedAt time.Time
}

// SupervisorOption customizes a Supervisor
type SupervisorOption func(*Supervisor)

// WithAfterFunc replaces time.AfterFunc for retry scheduling
func WithAfterFunc(f AfterFunc) SupervisorOption {
	return func(s *Supervisor) { s.afterFunc = f }
}

// WithRecorder journals every state transition
func WithRecorder(r TransitionRecorder) SupervisorOption {
	return func(s *Supervisor) { s.recorder = r }
}

// WithPresenter sets where auth challenges are shown
func WithPresenter(p ChallengePresenter) SupervisorOption {
	return func(s *Supervisor) { s.presenter = p }
}

// WithClock overrides the wall clock
func WithClock(now func() time.Time) SupervisorOption {
	return func(s *Supervisor) { s.now = now }
}

// Supervisor owns the single messaging session: it starts the client, follows its
// events and schedules reconnects with a linear backoff until the attempt budget
// is spent. At most one start is in flight or scheduled at any time.
type Supervisor struct {
	client    types.WAClient
	sink      MessageSink
	presenter ChallengePresenter
	recorder  TransitionRecorder
	afterFunc AfterFunc
	now       func() time.Time
	backoff   *retry.Backoff
	config    SupervisorConfig
	logger    *logrus.Logger

	mu          sync.Mutex
	session     models.Session
	started     bool
	stopped     bool
	inFlight    bool
	retryTimer  Timer
	retryID     uint64
	clientShut  bool
	transitions chan models.SessionTransition

	runCtx      context.Context
	cancelRun   context.CancelFunc
	loopDone    chan struct{}
	journalDone chan struct{}
}

// NewSupervisor creates a supervisor for client. Messages are handed to sink.
func NewSupervisor(client types.WAClient, sink MessageSink, config SupervisorConfig, logger *logrus.Logger, opts ...SupervisorOption) *Supervisor {
	if config.MaxReconnectAttempts <= 0 {
		config.MaxReconnectAttempts = constants.DefaultMaxReconnectAttempts
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Duration(constants.DefaultReconnectBaseDelaySec) * time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = time.Duration(constants.DefaultReconnectMaxDelaySec) * time.Second
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = time.Duration(constants.DefaultSessionStartTimeoutSec) * time.Second
	}
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = time.Duration(constants.DefaultSessionCloseTimeoutSec) * time.Second
	}

	s := &Supervisor{
		client:    client,
		sink:      sink,
		afterFunc: realAfterFunc,
		now:       time.Now,
		backoff:   retry.NewBackoff(retry.ReconnectBackoffConfig(config.BaseDelay, config.MaxDelay, config.MaxReconnectAttempts)),
		config:    config,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.presenter == nil {
		s.presenter = NewQRPresenter(logger, nil)
	}

	s.session = models.Session{
		ID:              config.SessionName,
		State:           models.SessionInitializing,
		LastConnectedAt: config.LastConnectedAt,
		UpdatedAt:       s.now(),
	}
	return s
}

// Start runs the event loop and issues the first start. It does not wait for the
// session to connect.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already started")
	}
	s.started = true
	s.runCtx, s.cancelRun = context.WithCancel(ctx)
	s.loopDone = make(chan struct{})
	if s.recorder != nil {
		s.transitions = make(chan models.SessionTransition, constants.DefaultEventBufferSize)
		s.journalDone = make(chan struct{})
		go s.journalLoop()
	}
	s.inFlight = true
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		LogFieldSession:     s.config.SessionName,
		LogFieldMaxAttempts: s.config.MaxReconnectAttempts,
	}).Info("Starting session supervisor")

	go s.eventLoop()
	go s.runStart()
	return nil
}

// Stop cancels any pending retry, stops the event loop and closes the client
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.cancelRetryLocked()
	closeClient := !s.clientShut
	s.clientShut = true
	if s.transitions != nil {
		close(s.transitions)
	}
	s.mu.Unlock()

	s.cancelRun()
	select {
	case <-s.loopDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.journalDone != nil {
		select {
		case <-s.journalDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if closeClient {
		if err := s.client.Close(ctx); err != nil {
			return fmt.Errorf("failed to close messaging client: %w", err)
		}
	}
	s.logger.WithField(LogFieldSession, s.config.SessionName).Info("Session supervisor stopped")
	return nil
}

// Snapshot returns a copy of the session
func (s *Supervisor) Snapshot() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// IsConnected reports whether the session is CONNECTED
func (s *Supervisor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.State == models.SessionConnected
}

// MaxReconnectAttempts returns the configured retry budget
func (s *Supervisor) MaxReconnectAttempts() int {
	return s.config.MaxReconnectAttempts
}

// ReportDisconnected feeds an externally detected loss of connection into the
// same path as a disconnect reported by the client. It only acts while the session
// is CONNECTED, so a probe that outlived a state change cannot demote it.
func (s *Supervisor) ReportDisconnected(cause string) {
	s.disconnect(cause, true)
}

func (s *Supervisor) eventLoop() {
	defer close(s.loopDone)
	events := s.client.Events()
	for {
		select {
		case <-s.runCtx.Done():
			return
		case ev := <-events:
			s.handleEvent(ev)
		}
	}
}

func (s *Supervisor) handleEvent(ev types.Event) {
	defer recoverAndLog(s.logger, "supervisor")

	switch ev.Kind {
	case types.EventKindAuthChallenge:
		s.handleAuthChallenge(ev.Code)
	case types.EventKindStateChanged:
		if ev.State == types.StateConnected {
			s.handleConnected()
			return
		}
		cause := string(ev.State)
		if ev.State == types.StateDisconnected && ev.Cause != "" {
			cause = ev.Cause
		}
		s.handleDisconnect(cause)
	case types.EventKindMessage:
		if ev.Message == nil || s.terminated() {
			return
		}
		s.sink.Enqueue(ev.Message)
	}
}

func (s *Supervisor) terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inactiveLocked()
}

// inactiveLocked reports whether events must be ignored: before Start, after Stop
// or once the session is terminated
func (s *Supervisor) inactiveLocked() bool {
	return !s.started || s.stopped || s.session.State == models.SessionTerminated
}

func (s *Supervisor) handleAuthChallenge(code string) {
	s.mu.Lock()
	if s.inactiveLocked() {
		s.mu.Unlock()
		return
	}
	// The client is alive and waiting for pairing, a pending restart would only interrupt it
	s.cancelRetryLocked()
	s.session.ReconnectAttempts = 0
	s.setStateLocked(models.SessionAwaitingAuth, "")
	s.mu.Unlock()

	s.presenter.Present(code)
}

func (s *Supervisor) handleConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inactiveLocked() {
		return
	}

	s.cancelRetryLocked()
	s.session.ReconnectAttempts = 0
	s.session.LastConnectedAt = s.now()
	s.setStateLocked(models.SessionConnected, "")
	metrics.SetGauge(metrics.SessionStateGauge, 1, nil, "1 while the session is connected")
}

func (s *Supervisor) handleDisconnect(cause string) {
	s.disconnect(cause, false)
}

func (s *Supervisor) disconnect(cause string, onlyIfConnected bool) {
	s.mu.Lock()
	if s.inactiveLocked() {
		s.mu.Unlock()
		return
	}
	if onlyIfConnected && s.session.State != models.SessionConnected {
		state := s.session.State
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{
			LogFieldState: state,
			LogFieldCause: cause,
		}).Debug("Ignoring disconnect report, session is no longer connected")
		return
	}

	s.session.LastCause = cause
	s.setStateLocked(models.SessionDisconnected, cause)
	metrics.SetGauge(metrics.SessionStateGauge, 0, nil, "1 while the session is connected")

	// An in-flight start re-evaluates the state when it returns
	if s.inFlight || s.retryTimer != nil {
		s.mu.Unlock()
		return
	}

	shutdown := s.scheduleRetryLocked()
	s.mu.Unlock()

	if shutdown {
		s.closeClient()
	}
}

// scheduleRetryLocked arms the single retry timer, or terminates the session once
// the attempt budget is exhausted. It reports whether the client must be closed.
func (s *Supervisor) scheduleRetryLocked() bool {
	attempts := s.session.ReconnectAttempts
	if attempts >= s.config.MaxReconnectAttempts {
		s.setStateLocked(models.SessionTerminated, s.session.LastCause)
		apperrors.WithError(s.logger, apperrors.NewSessionFatal(attempts)).WithFields(logrus.Fields{
			LogFieldSession: s.config.SessionName,
			LogFieldCause:   s.session.LastCause,
		}).Error("Session terminated, re-authentication or restart required")
		s.clientShut = true
		return true
	}

	attempt := attempts + 1
	s.session.ReconnectAttempts = attempt
	delay := s.backoff.GetNextDelay(attempt)

	s.retryID++
	id := s.retryID
	s.retryTimer = s.afterFunc(delay, func() { s.fireRetry(id) })

	metrics.IncrementCounter(metrics.SessionReconnectsTotal, nil, "Reconnect attempts scheduled")
	s.logger.WithFields(logrus.Fields{
		LogFieldSession:     s.config.SessionName,
		LogFieldAttempt:     attempt,
		LogFieldMaxAttempts: s.config.MaxReconnectAttempts,
		LogFieldDelay:       delay.Milliseconds(),
		LogFieldCause:       s.session.LastCause,
	}).Warn("Retrying session start")
	return false
}

func (s *Supervisor) cancelRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.retryID++
}

func (s *Supervisor) fireRetry(id uint64) {
	s.mu.Lock()
	if s.stopped || id != s.retryID || s.retryTimer == nil || s.session.State == models.SessionTerminated {
		s.mu.Unlock()
		return
	}
	s.retryTimer = nil
	s.inFlight = true
	s.setStateLocked(models.SessionReconnecting, s.session.LastCause)
	s.mu.Unlock()

	s.runStart()
}

// runStart calls the client outside the lock, then settles the state it left behind
func (s *Supervisor) runStart() {
	ctx, cancel := context.WithTimeout(s.runCtx, s.config.StartTimeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "session.start",
		attribute.String("session.name", s.config.SessionName),
	)
	err := s.client.Start(ctx)
	tracing.RecordError(ctx, err)
	span.End()

	s.mu.Lock()
	s.inFlight = false
	if s.stopped || s.session.State == models.SessionTerminated {
		s.mu.Unlock()
		return
	}

	if err != nil {
		s.logger.WithError(err).WithField(LogFieldSession, s.config.SessionName).Warn("Failed to start session")
		s.session.LastCause = err.Error()
		s.setStateLocked(models.SessionDisconnected, s.session.LastCause)
	}

	shutdown := false
	if s.session.State == models.SessionDisconnected && s.retryTimer == nil {
		shutdown = s.scheduleRetryLocked()
	}
	s.mu.Unlock()

	if shutdown {
		s.closeClient()
	}
}

func (s *Supervisor) closeClient() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.CloseTimeout)
	defer cancel()
	if err := s.client.Close(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to close messaging client")
	}
}

// setStateLocked records a transition; callers hold s.mu
func (s *Supervisor) setStateLocked(to models.SessionState, cause string) {
	from := s.session.State
	if from == to {
		return
	}
	now := s.now()
	s.session.State = to
	s.session.UpdatedAt = now

	metrics.IncrementCounter(metrics.SessionTransitionsTotal, map[string]string{"to": string(to)}, "Session state transitions")
	s.logger.WithFields(logrus.Fields{
		LogFieldSession:   s.config.SessionName,
		LogFieldFromState: from,
		LogFieldState:     to,
		LogFieldCause:     cause,
		LogFieldAttempt:   s.session.ReconnectAttempts,
	}).Info("Session state changed")

	if s.transitions == nil || s.stopped {
		return
	}
	t := models.SessionTransition{
		SessionID: s.config.SessionName,
		FromState: from,
		ToState:   to,
		Cause:     cause,
		Attempt:   s.session.ReconnectAttempts,
		CreatedAt: now,
	}
	select {
	case s.transitions <- t:
	default:
		s.logger.WithField(LogFieldState, to).Warn("Session journal queue full, dropping transition")
	}
}

func (s *Supervisor) journalLoop() {
	defer close(s.journalDone)
	for t := range s.transitions {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.recorder.Record(ctx, t); err != nil {
			s.logger.WithError(err).Warn("Failed to journal session transition")
		}
		cancel()
	}
}
