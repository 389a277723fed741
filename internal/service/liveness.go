package service

import (
	"context"
	"sync"
	"time"

	"crmbridge/internal/constants"
	"crmbridge/internal/metrics"

	"github.com/sirupsen/logrus"
)

// LivenessCause is the disconnect cause reported after a failed probe
const LivenessCause = "LIVENESS_PROBE_FAILED"

// Prober checks that the messaging session still works
type Prober interface {
	Probe(ctx context.Context) error
}

// DisconnectReporter is the supervisor surface the monitor drives
type DisconnectReporter interface {
	IsConnected() bool
	ReportDisconnected(cause string)
}

// LivenessMonitor probes the client while the session is CONNECTED and reports
// failures to the supervisor. It never restarts anything itself.
type LivenessMonitor struct {
	prober   Prober
	session  DisconnectReporter
	logger   *logrus.Logger
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewLivenessMonitor creates a monitor; zero durations take defaults
func NewLivenessMonitor(prober Prober, session DisconnectReporter, interval, timeout time.Duration, logger *logrus.Logger) *LivenessMonitor {
	if interval <= 0 {
		interval = time.Duration(constants.DefaultLivenessIntervalSec) * time.Second
	}
	if timeout <= 0 {
		timeout = time.Duration(constants.DefaultLivenessTimeoutSec) * time.Second
	}
	return &LivenessMonitor{
		prober:   prober,
		session:  session,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// Start begins probing on a ticker
func (lm *LivenessMonitor) Start(ctx context.Context) {
	lm.mu.Lock()
	if lm.running {
		lm.mu.Unlock()
		lm.logger.Warn("Liveness monitor is already running")
		return
	}
	lm.running = true
	lm.stopCh = make(chan struct{})
	lm.done = make(chan struct{})
	stopCh, done := lm.stopCh, lm.done
	lm.mu.Unlock()

	go lm.loop(ctx, stopCh, done)
	lm.logger.WithField("interval_sec", lm.interval.Seconds()).Info("Liveness monitor started")
}

// Stop halts probing and waits for an in-progress probe to finish
func (lm *LivenessMonitor) Stop() {
	lm.mu.Lock()
	if !lm.running {
		lm.mu.Unlock()
		return
	}
	lm.running = false
	close(lm.stopCh)
	done := lm.done
	lm.mu.Unlock()

	<-done
	lm.logger.Info("Liveness monitor stopped")
}

func (lm *LivenessMonitor) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(lm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			lm.check(ctx)
		}
	}
}

// check runs one probe if the session is connected
func (lm *LivenessMonitor) check(ctx context.Context) {
	defer recoverAndLog(lm.logger, "liveness")

	if !lm.session.IsConnected() {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, lm.timeout)
	defer cancel()

	if err := lm.prober.Probe(probeCtx); err != nil {
		// Shutdown cancels the probe; that is not a lost connection
		if ctx.Err() != nil {
			return
		}
		metrics.IncrementCounter(metrics.LivenessProbesTotal, map[string]string{"result": "failed"}, "Liveness probes by outcome")
		lm.logger.WithError(err).Warn("Liveness probe failed, reporting disconnect")
		lm.session.ReportDisconnected(LivenessCause)
		return
	}

	metrics.IncrementCounter(metrics.LivenessProbesTotal, map[string]string{"result": "ok"}, "Liveness probes by outcome")
	lm.logger.Debug("Liveness probe succeeded")
}
