// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

const defaultJWTSecret = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName       string   `mapstructure:"appname"`
	AppPort       string   `mapstructure:"appport"`
	Environment   string   `mapstructure:"environment"`
	LogLevel      LogLevel `mapstructure:"loglevel"`
	PublicBaseURL string   `mapstructure:"publicbaseurl"`
	JWTSecret     string   `mapstructure:"jwtsecret"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Scan recording
	ScanWorkers             int  `mapstructure:"scanworkers"`
	ScanQueueSize           int  `mapstructure:"scanqueuesize"`
	ScanWriteTimeoutSeconds int  `mapstructure:"scanwritetimeoutseconds"`
	TrustForwardedFor       bool `mapstructure:"trustforwardedfor"`

	// Redirect cache
	RedirectCacheMaxEntries int `mapstructure:"redirectcachemaxentries"`
	RedirectCacheTTLSeconds int `mapstructure:"redirectcachettlseconds"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "qrlink")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("publicbaseurl", "http://localhost:3000")
		v.SetDefault("jwtsecret", defaultJWTSecret)
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "GeoLite2-Country.mmdb")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("scanworkers", 4)
		v.SetDefault("scanqueuesize", 1024)
		v.SetDefault("scanwritetimeoutseconds", 10)
		v.SetDefault("trustforwardedfor", true)
		v.SetDefault("redirectcachemaxentries", 10000)
		v.SetDefault("redirectcachettlseconds", 60)
		v.SetDefault("jobintervalseconds", 300)

		v.BindEnv("appname", "QRLINK_APP_NAME")
		v.BindEnv("appport", "QRLINK_APP_PORT")
		v.BindEnv("environment", "QRLINK_ENV")
		v.BindEnv("loglevel", "QRLINK_LOG_LEVEL")
		v.BindEnv("publicbaseurl", "QRLINK_PUBLIC_BASE_URL")
		v.BindEnv("jwtsecret", "QRLINK_JWT_SECRET")
		v.BindEnv("storagepath", "QRLINK_STORAGE_PATH")
		v.BindEnv("geodbpath", "QRLINK_GEO_DB_PATH")
		v.BindEnv("logsdir", "QRLINK_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "QRLINK_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "QRLINK_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "QRLINK_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "QRLINK_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "QRLINK_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "QRLINK_DB_MAX_IDLE_CONNS")
		v.BindEnv("scanworkers", "QRLINK_SCAN_WORKERS")
		v.BindEnv("scanqueuesize", "QRLINK_SCAN_QUEUE_SIZE")
		v.BindEnv("scanwritetimeoutseconds", "QRLINK_SCAN_WRITE_TIMEOUT_SECONDS")
		v.BindEnv("trustforwardedfor", "QRLINK_TRUST_FORWARDED_FOR")
		v.BindEnv("redirectcachemaxentries", "QRLINK_REDIRECT_CACHE_MAX_ENTRIES")
		v.BindEnv("redirectcachettlseconds", "QRLINK_REDIRECT_CACHE_TTL_SECONDS")
		v.BindEnv("jobintervalseconds", "QRLINK_JOB_INTERVAL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.IsProduction() && cfg.JWTSecret == defaultJWTSecret {
			log.Fatal("Production requires a unique QRLINK_JWT_SECRET (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret is required")
	}
	if c.ScanWorkers < 1 {
		return fmt.Errorf("scan workers must be at least 1, got %d", c.ScanWorkers)
	}
	if c.ScanQueueSize < 1 {
		return fmt.Errorf("scan queue size must be at least 1, got %d", c.ScanQueueSize)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (concurrent analytics reads next to scan writes)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// ScanWriteTimeout bounds a single background scan persistence.
func (c *Config) ScanWriteTimeout() time.Duration {
	if c.ScanWriteTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.ScanWriteTimeoutSeconds) * time.Second
}

// RedirectCacheTTL returns how long a resolved short code stays cached.
// Zero disables caching.
func (c *Config) RedirectCacheTTL() time.Duration {
	if c.RedirectCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RedirectCacheTTLSeconds) * time.Second
}

// JobInterval returns the interval for periodic maintenance jobs.
func (c *Config) JobInterval() time.Duration {
	if c.JobIntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.JobIntervalSeconds) * time.Second
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
