package billing

import (
	"context"

	"github.com/metering/backend/internal/domain/billing"
)

// TransactionScope provides transactional access to the billing stores.
// Ingestion needs the event insert (idempotency key record) and the
// period counter increment to commit or roll back as one unit; a partial
// application is a correctness bug.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the billing repositories
// within a transaction. All repositories share the same underlying
// database transaction.
type TransactionalRepositories interface {
	// EventRepo returns the usage event repository scoped to the current transaction
	EventRepo() billing.UsageEventRepository
	// PeriodRepo returns the billing period repository scoped to the current transaction
	PeriodRepo() billing.BillingPeriodRepository
}

// NoOpTransactionScope runs the function without a real transaction.
// Useful for tests that provide in-memory repositories.
type NoOpTransactionScope struct {
	eventRepo  billing.UsageEventRepository
	periodRepo billing.BillingPeriodRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	eventRepo billing.UsageEventRepository,
	periodRepo billing.BillingPeriodRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		eventRepo:  eventRepo,
		periodRepo: periodRepo,
	}
}

// Execute runs the function without transaction semantics.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// EventRepo returns the usage event repository.
func (s *NoOpTransactionScope) EventRepo() billing.UsageEventRepository {
	return s.eventRepo
}

// PeriodRepo returns the billing period repository.
func (s *NoOpTransactionScope) PeriodRepo() billing.BillingPeriodRepository {
	return s.periodRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
