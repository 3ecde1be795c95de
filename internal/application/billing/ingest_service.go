package billing

import (
	"context"
	"errors"
	"time"

	"github.com/metering/backend/internal/domain/billing"
	"github.com/metering/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestStatus is the outcome of an ingestion attempt
type IngestStatus string

const (
	// IngestApplied means the event was counted exactly once
	IngestApplied IngestStatus = "applied"

	// IngestDuplicate means the idempotency key was seen before. This is
	// the normal, expected outcome of at-least-once delivery, not an error.
	IngestDuplicate IngestStatus = "duplicate"

	// IngestRejected means the event was refused; Reason says why
	IngestRejected IngestStatus = "rejected"
)

// Rejection reasons surfaced to callers
const (
	ReasonInvalidEvent = "invalid_event"
	ReasonPeriodClosed = "period_closed"
)

// IngestResult describes what happened to one usage event
type IngestResult struct {
	Status   IngestStatus `json:"status"`
	Reason   string       `json:"reason,omitempty"`
	PeriodID uuid.UUID    `json:"period_id,omitempty"`
}

// IngestMetrics records ingestion outcomes for observability
type IngestMetrics interface {
	RecordIngest(ctx context.Context, meter billing.Meter, outcome string)
}

// IngestServiceConfig contains configuration for the ingest service
type IngestServiceConfig struct {
	// ClockSkewTolerance bounds how far in the future occurred_at may lie
	ClockSkewTolerance time.Duration

	// KeyTTL is how long idempotency keys stay in the fast-path store
	KeyTTL time.Duration

	// MaxRetries bounds optimistic-concurrency retries per event
	MaxRetries int
}

// DefaultIngestServiceConfig returns default configuration
func DefaultIngestServiceConfig() IngestServiceConfig {
	return IngestServiceConfig{
		ClockSkewTolerance: billing.DefaultClockSkewTolerance,
		KeyTTL:             shared.DefaultIdempotencyConfig().TTL,
		MaxRetries:         3,
	}
}

// IngestService applies usage events to billing period counters exactly
// once. The idempotency store is the fast-path filter; the unique index
// on the event's idempotency key, committed in the same transaction as
// the counter increment, is the durable guarantee.
type IngestService struct {
	idempotency shared.IdempotencyStore
	scope       TransactionScope
	metrics     IngestMetrics
	logger      *zap.Logger
	config      IngestServiceConfig
}

// NewIngestService creates a new IngestService. metrics may be nil.
func NewIngestService(
	idempotency shared.IdempotencyStore,
	scope TransactionScope,
	metrics IngestMetrics,
	logger *zap.Logger,
	config IngestServiceConfig,
) *IngestService {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultIngestServiceConfig().MaxRetries
	}
	if config.ClockSkewTolerance <= 0 {
		config.ClockSkewTolerance = DefaultIngestServiceConfig().ClockSkewTolerance
	}
	if config.KeyTTL <= 0 {
		config.KeyTTL = DefaultIngestServiceConfig().KeyTTL
	}
	return &IngestService{
		idempotency: idempotency,
		scope:       scope,
		metrics:     metrics,
		logger:      logger,
		config:      config,
	}
}

// Sentinel errors used to communicate outcomes out of the transaction
var (
	errDuplicateKey = errors.New("duplicate idempotency key")
	errPeriodClosed = errors.New("period closed")
)

// Ingest validates and applies one usage event. The returned error is
// non-nil only for infrastructure failures; validation failures,
// duplicates and closed-period rejections are encoded in the result.
// Timed-out calls are safe to retry: the idempotency check handles the
// redelivery.
func (s *IngestService) Ingest(ctx context.Context, event *billing.UsageEvent) (IngestResult, error) {
	if err := event.Validate(time.Now(), s.config.ClockSkewTolerance); err != nil {
		s.logger.Warn("rejected invalid usage event",
			zap.String("idempotency_key", event.IdempotencyKey),
			zap.Error(err))
		s.record(ctx, event.Meter, string(IngestRejected))
		return IngestResult{Status: IngestRejected, Reason: ReasonInvalidEvent}, nil
	}

	// Fast path: a key the cache has seen cannot be applied again.
	seen, err := s.idempotency.Seen(ctx, event.IdempotencyKey)
	if err != nil {
		// Cache trouble is not fatal; the unique index still protects us.
		s.logger.Warn("idempotency store lookup failed, falling through to durable check",
			zap.Error(err))
	} else if seen {
		s.record(ctx, event.Meter, string(IngestDuplicate))
		return IngestResult{Status: IngestDuplicate}, nil
	}

	result, err := s.applyWithRetry(ctx, event)
	if err != nil {
		return IngestResult{}, err
	}

	if result.Status == IngestApplied || result.Status == IngestDuplicate {
		// Populate the fast path after the durable write committed. Best
		// effort: a miss here only costs a round trip to the unique index.
		if _, err := s.idempotency.Record(ctx, event.IdempotencyKey, s.config.KeyTTL); err != nil {
			s.logger.Warn("failed to cache idempotency key", zap.Error(err))
		}
	}

	s.record(ctx, event.Meter, string(result.Status))
	return result, nil
}

// applyWithRetry runs the atomic apply, retrying on optimistic-lock
// conflicts. A conflict from a concurrent increment retries; a period
// that moved to closing mid-flight rejects on the retry.
func (s *IngestService) applyWithRetry(ctx context.Context, event *billing.UsageEvent) (IngestResult, error) {
	var lastErr error
	for attempt := 0; attempt < s.config.MaxRetries; attempt++ {
		result, err := s.applyOnce(ctx, event)
		switch {
		case err == nil:
			return result, nil
		case errors.Is(err, shared.ErrConcurrencyConflict) || errors.Is(err, shared.ErrAlreadyExists):
			// Version conflict on the period, or a concurrent worker
			// created the same period first. Re-read and try again.
			lastErr = err
			continue
		default:
			return IngestResult{}, err
		}
	}
	return IngestResult{}, lastErr
}

// applyOnce executes one transactional attempt: record the event row
// (idempotency key) and increment the period counter atomically.
func (s *IngestService) applyOnce(ctx context.Context, event *billing.UsageEvent) (IngestResult, error) {
	var periodID uuid.UUID

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.EventRepo().Save(ctx, event); err != nil {
			if errors.Is(err, shared.ErrAlreadyExists) {
				return errDuplicateKey
			}
			return err
		}

		period, err := repos.PeriodRepo().FindCovering(ctx, event.TenantID, event.OccurredAt)
		if errors.Is(err, shared.ErrNotFound) {
			period, err = billing.NewMonthlyPeriod(event.TenantID, event.OccurredAt)
			if err != nil {
				return err
			}
			if err := repos.PeriodRepo().Save(ctx, period); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if err := period.ApplyUsage(event.ProjectID, event.Meter, event.Quantity); err != nil {
			if errors.Is(err, shared.ErrPeriodClosed) {
				return errPeriodClosed
			}
			return err
		}

		if err := repos.PeriodRepo().Update(ctx, period); err != nil {
			return err
		}
		periodID = period.ID
		return nil
	})

	switch {
	case err == nil:
		return IngestResult{Status: IngestApplied, PeriodID: periodID}, nil
	case errors.Is(err, errDuplicateKey):
		return IngestResult{Status: IngestDuplicate}, nil
	case errors.Is(err, errPeriodClosed):
		// The caller decides whether the event rolls into the next period
		// or is dropped; this system does not guess intent.
		s.logger.Info("rejected usage event for closed period",
			zap.String("idempotency_key", event.IdempotencyKey),
			zap.String("tenant_id", event.TenantID.String()))
		return IngestResult{Status: IngestRejected, Reason: ReasonPeriodClosed}, nil
	default:
		return IngestResult{}, err
	}
}

func (s *IngestService) record(ctx context.Context, meter billing.Meter, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordIngest(ctx, meter, outcome)
	}
}
