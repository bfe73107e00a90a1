package persistence

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"

	"github.com/erp/fulfillment/internal/infrastructure/config"
)

// newTestDatabase opens an in-memory SQLite database with the journal tables
func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := open(sqlite.Open(":memory:"), nil, DatabaseOptions{Logger: zap.NewNop(), LogLevel: logger.Silent})
	require.NoError(t, err)
	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDatabase_OpenWithPool(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{MaxOpenConns: 7, MaxIdleConns: 3, ConnMaxLifetime: 30, ConnMaxIdleTime: 5}
	db, err := open(postgres.New(postgres.Config{Conn: mockDB}), cfg, DatabaseOptions{})
	require.NoError(t, err)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 7, stats.MaxOpenConnections)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectClose()
	require.NoError(t, db.Close())
}

func TestDatabase_PingFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()
	mock.ExpectPing().WillReturnError(assert.AnError)

	_, err = open(postgres.New(postgres.Config{Conn: mockDB}), nil, DatabaseOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDatabase_SQLite(t *testing.T) {
	db := newTestDatabase(t)
	require.NoError(t, db.Ping())
	assert.True(t, db.DB.Migrator().HasTable("inventory_events"))
	assert.True(t, db.DB.Migrator().HasTable("stock_alerts"))
}
