package database

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"qrlink/internal/config"
	"qrlink/internal/qrcodes"
	"qrlink/internal/scans"
)

// Models lists every table owned by the application, in migration order.
func Models() []any {
	return []any{
		&qrcodes.QRCode{},
		&scans.ScanRecord{},
	}
}

// Config describes how to open the SQLite database.
type Config struct {
	Path         string
	MaxOpenConns int
	MaxIdleConns int
	BusyTimeout  int
	EnableWAL    bool
	TxImmediate  bool
	LogLevel     gormlogger.LogLevel
}

// DBManager owns the process-wide gorm connection pool.
type DBManager struct {
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex
	db *gorm.DB
}

// NewDBManager creates a manager for the configured SQLite file.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	level := gormlogger.Warn
	if cfg.IsTest() {
		level = gormlogger.Silent
	}
	return NewDBManagerWithConfig(Config{
		Path:         cfg.GetDatabasePath(),
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		BusyTimeout:  5000,
		EnableWAL:    true,
		TxImmediate:  true,
		LogLevel:     level,
	}, logger)
}

func NewDBManagerWithConfig(cfg Config, logger *slog.Logger) *DBManager {
	return &DBManager{cfg: cfg, logger: logger}
}

// DSN builds the go-sqlite3 connection string. Pragmas are passed as DSN
// parameters so every pooled connection gets them.
func (c Config) DSN() string {
	params := []string{"_foreign_keys=on"}
	if c.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_busy_timeout=%d", c.BusyTimeout))
	}
	if c.EnableWAL {
		params = append(params, "_journal_mode=WAL", "_synchronous=NORMAL")
	}
	if c.TxImmediate {
		params = append(params, "_txlock=immediate")
	}

	sep := "?"
	if strings.Contains(c.Path, "?") {
		sep = "&"
	}
	return c.Path + sep + strings.Join(params, "&")
}

// Init opens the database. Calling it again is a no-op.
func (dm *DBManager) Init() error {
	_, err := dm.Connect()
	return err
}

// Connect opens the pool if needed and returns it.
func (dm *DBManager) Connect() (*gorm.DB, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.db != nil {
		return dm.db, nil
	}

	if dir := filepath.Dir(dm.cfg.Path); dir != "." && !strings.HasPrefix(dm.cfg.Path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dm.cfg.DSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(dm.cfg.LogLevel),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB: %w", err)
	}
	if dm.cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dm.cfg.MaxOpenConns)
	}
	if dm.cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dm.cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	dm.db = db
	dm.logger.Info("Database connection established",
		slog.String("path", dm.cfg.Path),
		slog.Int("max_open_conns", dm.cfg.MaxOpenConns))
	return db, nil
}

// GetConnection returns the pool, or nil before Init.
func (dm *DBManager) GetConnection() *gorm.DB {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.db
}

// MigrateDatabase creates or updates the application tables.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(Models()...)
	})
	if err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}

// CheckpointWAL runs a WAL checkpoint in the given mode (PASSIVE, FULL,
// RESTART or TRUNCATE).
func (dm *DBManager) CheckpointWAL(mode string) error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	switch strings.ToUpper(mode) {
	case "PASSIVE", "FULL", "RESTART", "TRUNCATE":
	default:
		return fmt.Errorf("invalid checkpoint mode %q", mode)
	}
	return db.Exec("PRAGMA wal_checkpoint(" + strings.ToUpper(mode) + ")").Error
}

// Ping verifies that the database answers queries.
func (dm *DBManager) Ping() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close checkpoints the WAL and closes the pool.
func (dm *DBManager) Close() error {
	dm.mu.Lock()
	db := dm.db
	dm.db = nil
	dm.mu.Unlock()

	if db == nil {
		return nil
	}

	var errs []error
	if err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)").Error; err != nil {
		errs = append(errs, fmt.Errorf("checkpointing wal: %w", err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		errs = append(errs, err)
	} else if err := sqlDB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}
