package persistence

import (
	"testing"

	"github.com/metering/backend/internal/domain/tenancy"
	"github.com/metering/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory SQLite database with the full schema.
// MaxOpenConns is pinned to 1 so the pool never hands out a second
// connection with its own empty :memory: database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&tenancy.Tenant{},
		&tenancy.Project{},
		&models.UsageEventModel{},
		&models.BillingPeriodModel{},
		&models.RateCardModel{},
		&models.InvoiceModel{},
	))
	return db
}
