package service

import (
	"context"
	"sync"
	"time"

	"crmbridge/internal/constants"

	"github.com/sirupsen/logrus"
)

// JournalCleaner removes journal records older than a retention window
type JournalCleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// Scheduler prunes the session journal on a fixed interval
type Scheduler struct {
	cleaner       JournalCleaner
	retentionDays int
	interval      time.Duration
	logger        *logrus.Logger
	stopCh        chan struct{}
	stopOnce      sync.Once
}

func NewScheduler(cleaner JournalCleaner, retentionDays, intervalHours int, logger *logrus.Logger) *Scheduler {
	if intervalHours <= 0 {
		intervalHours = constants.DefaultJournalCleanupIntervalHrs
	}
	if retentionDays <= 0 {
		retentionDays = constants.DefaultJournalRetentionDays
	}
	return &Scheduler{
		cleaner:       cleaner,
		retentionDays: retentionDays,
		interval:      time.Duration(intervalHours) * time.Hour,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start runs a cleanup immediately and then on every tick until stopped. It blocks.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Starting journal cleanup scheduler")

	s.runCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-ticker.C:
			s.runCleanup(ctx)
		}
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	deleted, err := s.cleaner.Cleanup(ctx, s.retentionDays)
	if err != nil {
		s.logger.WithError(err).Error("Failed to cleanup session journal")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"retention_days": s.retentionDays,
		LogFieldCount:    deleted,
	}).Info("Journal cleanup completed")
}
