package testsupport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"qrlink/internal"
	"qrlink/internal/config"
	"qrlink/internal/database"
	"qrlink/internal/qrcodes"
	"qrlink/internal/scans"
)

// TestJWTSecret signs tokens accepted by apps built with CreateTestApp.
const TestJWTSecret = "test-secret-test-secret-test-secret"

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager serves a test database through the application's
// DBManager interface. Close is a no-op; the database is closed by the
// test cleanup registered in SetupTestDB.
type TestDBManager struct {
	db *gorm.DB
}

func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{db: db}
}

var _ internal.DBManager = (*TestDBManager)(nil)

func (m *TestDBManager) GetConnection() *gorm.DB { return m.db }

func (m *TestDBManager) MigrateDatabase() error {
	return m.db.AutoMigrate(database.Models()...)
}

func (m *TestDBManager) CheckpointWAL(string) error { return nil }

func (m *TestDBManager) Ping() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func (m *TestDBManager) Close() error { return nil }

// TestConfig returns a configuration suitable for tests. Nothing is read
// from the environment.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppName:                 "qrlink",
		AppPort:                 "0",
		Environment:             config.Test,
		LogLevel:                config.LogLevelError,
		PublicBaseURL:           "https://qr.example.test",
		JWTSecret:               TestJWTSecret,
		GeoDBPath:               filepath.Join(t.TempDir(), "missing.mmdb"),
		ScanWorkers:             2,
		ScanQueueSize:           64,
		ScanWriteTimeoutSeconds: 5,
		TrustForwardedFor:       true,
		RedirectCacheMaxEntries: 1000,
		RedirectCacheTTLSeconds: 60,
		JobIntervalSeconds:      3600,
	}
}

// SetupTestDB creates a test database with all models migrated.
// Uses a named in-memory database with cache=shared so every pooled
// connection sees the same data. Caches the database by root test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared&_foreign_keys=on", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// A single connection keeps shared-cache table locks from surfacing
	// as SQLITE_LOCKED when background workers write during a test.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("testsupport: failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB.Close()
	})

	return db
}

// SetupTestDBManager creates a test DB manager around SetupTestDB.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()
	return NewTestDBManager(SetupTestDB(t)), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)
	if len(tableNames) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestQRCode inserts a QR code owned by ownerID.
func CreateTestQRCode(t *testing.T, db *gorm.DB, ownerID, shortCode string) *qrcodes.QRCode {
	t.Helper()

	now := time.Now().UTC()
	qr := &qrcodes.QRCode{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		DisplayName:       "QR " + shortCode,
		RedirectURL:       "https://example.com/" + shortCode,
		ShortCode:         shortCode,
		DotStyle:          qrcodes.DefaultDotStyle,
		CornerDotStyle:    qrcodes.DefaultCornerDotStyle,
		CornerSquareStyle: qrcodes.DefaultCornerSquareStyle,
		Color:             qrcodes.DefaultColor,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, db.Create(qr).Error)
	return qr
}

// CreateTestScan inserts a scan record. Blank attributes default to a
// desktop Chrome scan from the United States.
func CreateTestScan(t *testing.T, db *gorm.DB, rec scans.ScanRecord) *scans.ScanRecord {
	t.Helper()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.BrowserInfo == "" {
		rec.BrowserInfo = "Chrome"
	}
	if rec.OperatingSystem == "" {
		rec.OperatingSystem = "Windows"
	}
	if rec.Country == "" {
		rec.Country = "United States"
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	require.NoError(t, db.Omit("QRCode").Create(&rec).Error)
	return &rec
}

// CountScans returns the number of stored scans of a QR code.
func CountScans(t *testing.T, db *gorm.DB, qrCodeID string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&scans.ScanRecord{}).Where("qr_code_id = ?", qrCodeID).Count(&count).Error)
	return count
}

// IssueTestToken signs an HS256 token whose subject is callerID.
func IssueTestToken(t *testing.T, secret, callerID string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   callerID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// CreateTestApp wires the full application around db with its scan
// recorder running. Background jobs are not started.
func CreateTestApp(t *testing.T, db *gorm.DB) *internal.Application {
	t.Helper()

	app, err := internal.NewAppWithDB(TestConfig(t), GetLogger(), NewTestDBManager(db))
	require.NoError(t, err)

	app.Recorder.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Recorder.Stop(ctx)
		app.Redirects.Close()
		_ = app.Geo.Close()
	})
	return app
}
