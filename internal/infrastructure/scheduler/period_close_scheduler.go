package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/metering/backend/internal/application/billing"
	"go.uber.org/zap"
)

// PeriodCloseScheduler periodically sweeps for billing periods whose end
// has passed and drives them through closing to invoiced. Every step of
// the close is idempotent, so overlapping sweeps and restarts are safe.
type PeriodCloseScheduler struct {
	service   *billing.PeriodCloseService
	logger    *zap.Logger
	config    PeriodCloseSchedulerConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// PeriodCloseSchedulerConfig holds configuration for the period close scheduler
type PeriodCloseSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// CheckInterval is how often to sweep for due periods
	CheckInterval time.Duration

	// SweepTimeout is the maximum time for one sweep across all tenants
	SweepTimeout time.Duration
}

// DefaultPeriodCloseSchedulerConfig returns default configuration
func DefaultPeriodCloseSchedulerConfig() PeriodCloseSchedulerConfig {
	return PeriodCloseSchedulerConfig{
		Enabled:       true,
		CheckInterval: 15 * time.Minute,
		SweepTimeout:  30 * time.Minute,
	}
}

// NewPeriodCloseScheduler creates a new period close scheduler
func NewPeriodCloseScheduler(
	service *billing.PeriodCloseService,
	logger *zap.Logger,
	config PeriodCloseSchedulerConfig,
) *PeriodCloseScheduler {
	return &PeriodCloseScheduler{
		service: service,
		logger:  logger,
		config:  config,
	}
}

// Start starts the period close scheduler
func (s *PeriodCloseScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Period close scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Period close scheduler started",
		zap.Duration("check_interval", s.config.CheckInterval),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *PeriodCloseScheduler) Stop(ctx context.Context) error {
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
		s.logger.Info("Period close scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Period close scheduler stop timed out")
		return ctx.Err()
	}
}

// run sweeps on the configured interval until the context is cancelled
func (s *PeriodCloseScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	// Sweep immediately on startup to pick up periods that came due
	// while the process was down.
	s.executeSweep(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Period close loop stopping")
			return
		case <-ticker.C:
			s.executeSweep(ctx)
		}
	}
}

// executeSweep closes all due periods across tenants
func (s *PeriodCloseScheduler) executeSweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	startTime := time.Now()
	summary, err := s.service.CloseDuePeriods(sweepCtx)
	duration := time.Since(startTime)

	if err != nil {
		s.logger.Error("Period close sweep failed",
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	if summary.Closed > 0 || summary.Failed > 0 {
		s.logger.Info("Period close sweep completed",
			zap.Duration("duration", duration),
			zap.Int("closed", summary.Closed),
			zap.Int("failed", summary.Failed),
		)
	}
}
