package database

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"

	"qrlink/internal/scans"
)

func newTestManager(t *testing.T) *DBManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "qrlink-test.db")
	dm := NewDBManagerWithConfig(Config{
		Path:         path,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		BusyTimeout:  5000,
		EnableWAL:    true,
		TxImmediate:  true,
		LogLevel:     gormlogger.Silent,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = dm.Close() })
	return dm
}

func TestDSN(t *testing.T) {
	cfg := Config{Path: "storage/app.db", BusyTimeout: 5000, EnableWAL: true, TxImmediate: true}
	assert.Equal(t,
		"storage/app.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL&_txlock=immediate",
		cfg.DSN())

	memory := Config{Path: "file:test?mode=memory&cache=shared"}
	assert.Equal(t, "file:test?mode=memory&cache=shared&_foreign_keys=on", memory.DSN())
}

func TestMigrateCreatesTables(t *testing.T) {
	dm := newTestManager(t)
	require.NoError(t, dm.Init())
	require.NoError(t, dm.MigrateDatabase())

	db := dm.GetConnection()
	require.NotNil(t, db)
	assert.True(t, db.Migrator().HasTable("qr_codes"))
	assert.True(t, db.Migrator().HasTable("scan_records"))
	assert.True(t, db.Migrator().HasIndex(&scans.ScanRecord{}, "idx_scan_records_qr_created"))

	var fk int
	require.NoError(t, db.Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	assert.Equal(t, 1, fk)

	require.NoError(t, dm.Ping())
}

func TestInitIsIdempotent(t *testing.T) {
	dm := newTestManager(t)
	require.NoError(t, dm.Init())
	first := dm.GetConnection()
	require.NoError(t, dm.Init())
	assert.Same(t, first, dm.GetConnection())
}

func TestCheckpointWAL(t *testing.T) {
	dm := newTestManager(t)
	assert.Error(t, dm.CheckpointWAL("FULL"), "requires an open connection")

	require.NoError(t, dm.Init())
	assert.NoError(t, dm.CheckpointWAL("passive"))
	assert.Error(t, dm.CheckpointWAL("EVERYTHING"))
}

func TestCloseReleasesConnection(t *testing.T) {
	dm := newTestManager(t)
	require.NoError(t, dm.Init())

	require.NoError(t, dm.Close())
	assert.Nil(t, dm.GetConnection())
	assert.Error(t, dm.MigrateDatabase())
	assert.NoError(t, dm.Close())
}
