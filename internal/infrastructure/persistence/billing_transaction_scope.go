package persistence

import (
	"context"

	appbilling "github.com/metering/backend/internal/application/billing"
	"github.com/metering/backend/internal/domain/billing"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// The event insert and the period counter update commit or roll back as
// one unit, which is what makes ingestion exactly-once.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appbilling.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormTransactionalRepositories{tx: tx}
		return fn(repos)
	})
}

// gormTransactionalRepositories provides repositories scoped to one transaction
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// EventRepo returns the usage event repository scoped to the current transaction
func (r *gormTransactionalRepositories) EventRepo() billing.UsageEventRepository {
	return NewGormUsageEventRepository(r.tx)
}

// PeriodRepo returns the billing period repository scoped to the current transaction
func (r *gormTransactionalRepositories) PeriodRepo() billing.BillingPeriodRepository {
	return NewGormBillingPeriodRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appbilling.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appbilling.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
