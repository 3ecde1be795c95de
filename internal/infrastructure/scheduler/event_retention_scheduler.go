package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/metering/backend/internal/domain/billing"
	"go.uber.org/zap"
)

// EventRetentionScheduler prunes raw usage events past their retention
// window. Counters and invoices are unaffected; only the event rows go.
type EventRetentionScheduler struct {
	eventRepo billing.UsageEventRepository
	logger    *zap.Logger
	config    EventRetentionSchedulerConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// EventRetentionSchedulerConfig holds configuration for event retention
type EventRetentionSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// Retention is how long events are kept after they occurred.
	// It must comfortably exceed the idempotency key TTL so that the
	// durable duplicate check outlives the fast-path cache.
	Retention time.Duration

	// CheckInterval is how often the cleanup runs
	CheckInterval time.Duration

	// CleanupTimeout is the maximum time for one cleanup run
	CleanupTimeout time.Duration
}

// DefaultEventRetentionSchedulerConfig returns default configuration
func DefaultEventRetentionSchedulerConfig() EventRetentionSchedulerConfig {
	return EventRetentionSchedulerConfig{
		Enabled:        true,
		Retention:      90 * 24 * time.Hour,
		CheckInterval:  24 * time.Hour,
		CleanupTimeout: 15 * time.Minute,
	}
}

// NewEventRetentionScheduler creates a new event retention scheduler
func NewEventRetentionScheduler(
	eventRepo billing.UsageEventRepository,
	logger *zap.Logger,
	config EventRetentionSchedulerConfig,
) *EventRetentionScheduler {
	return &EventRetentionScheduler{
		eventRepo: eventRepo,
		logger:    logger,
		config:    config,
	}
}

// Start starts the event retention scheduler
func (s *EventRetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Event retention scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Event retention scheduler started",
		zap.Duration("retention", s.config.Retention),
		zap.Duration("check_interval", s.config.CheckInterval),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *EventRetentionScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Event retention scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Event retention scheduler stop timed out")
		return ctx.Err()
	}
}

// run performs cleanup on the configured interval
func (s *EventRetentionScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Event retention loop stopping")
			return
		case <-ticker.C:
			s.executeCleanup(ctx)
		}
	}
}

// executeCleanup deletes events older than the retention window
func (s *EventRetentionScheduler) executeCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, s.config.CleanupTimeout)
	defer cancel()

	cutoff := time.Now().Add(-s.config.Retention)
	deleted, err := s.eventRepo.DeleteOlderThan(cleanupCtx, cutoff)
	if err != nil {
		s.logger.Error("Usage event cleanup failed",
			zap.Time("cutoff", cutoff),
			zap.Error(err),
		)
		return
	}

	if deleted > 0 {
		s.logger.Info("Usage event cleanup completed",
			zap.Time("cutoff", cutoff),
			zap.Int64("deleted", deleted),
		)
	}
}
