// Package internal wires the application together.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"qrlink/internal/analytics"
	"qrlink/internal/config"
	"qrlink/internal/database"
	"qrlink/internal/http"
	"qrlink/internal/jobs"
	"qrlink/internal/logging"
	"qrlink/internal/pkg/geoip"
	"qrlink/internal/qrcodes"
	"qrlink/internal/redirects"
	"qrlink/internal/scans"
)

// DBManager is the database surface the application depends on.
type DBManager interface {
	GetConnection() *gorm.DB
	MigrateDatabase() error
	CheckpointWAL(mode string) error
	Ping() error
	Close() error
}

// Application holds the wired components and the HTTP server.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager DBManager

	Geo       *geoip.Resolver
	Recorder  *scans.Recorder
	Redirects *redirects.Resolver
	QRCodes   *qrcodes.Service
	Scans     *scans.Store
	Analytics *analytics.Service
	Jobs      *jobs.Scheduler

	Fiber *fiber.App
}

// Option customizes NewAppWithDB.
type Option func(*options)

type options struct {
	geoOptions []geoip.Option
}

// WithGeoOptions forwards options to the country resolver.
func WithGeoOptions(opts ...geoip.Option) Option {
	return func(o *options) {
		o.geoOptions = append(o.geoOptions, opts...)
	}
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config, opts ...Option) (*Application, error) {
	logger := logging.New(cfg)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return NewAppWithDB(cfg, logger, dbManager, opts...)
}

// NewAppWithDB wires the application around an initialized database.
func NewAppWithDB(cfg *config.Config, logger *slog.Logger, dbManager DBManager, opts ...Option) (*Application, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	resolver, err := redirects.NewResolver(dbManager, logger, redirects.CacheOptions{
		MaxEntries: cfg.RedirectCacheMaxEntries,
		TTL:        cfg.RedirectCacheTTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redirect resolver: %w", err)
	}

	geo := geoip.NewResolver(cfg.GeoDBPath, logger, o.geoOptions...)
	store := scans.NewStore(dbManager, logger)
	recorder := scans.NewRecorder(store, geo, logger, scans.RecorderConfig{
		Workers:           cfg.ScanWorkers,
		QueueSize:         cfg.ScanQueueSize,
		WriteTimeout:      cfg.ScanWriteTimeout(),
		TrustForwardedFor: cfg.TrustForwardedFor,
	})

	app := &Application{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		Geo:       geo,
		Recorder:  recorder,
		Redirects: resolver,
		QRCodes:   qrcodes.NewService(dbManager, logger, resolver.Invalidate),
		Scans:     store,
		Analytics: analytics.NewService(dbManager, logger),
		Jobs:      jobs.NewScheduler(dbManager, logger, cfg),
	}

	app.Fiber = fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
	})
	MountAppRoutes(app.Fiber, &http.Deps{
		Config:    cfg,
		Logger:    logger,
		DB:        dbManager,
		QRCodes:   app.QRCodes,
		Scans:     store,
		Recorder:  recorder,
		Redirects: resolver,
		Analytics: app.Analytics,
	})

	return app, nil
}

// startWorkers launches the scan recorder and background jobs.
func (a *Application) startWorkers() error {
	a.Recorder.Start()
	if err := a.Jobs.Start(); err != nil {
		return fmt.Errorf("failed to start background jobs: %w", err)
	}
	return nil
}

// Start runs the application and blocks until the server stops.
func (a *Application) Start() error {
	if err := a.startWorkers(); err != nil {
		return err
	}
	a.Logger.Info("Starting server", slog.String("port", a.Config.AppPort))
	return a.Fiber.Listen(":" + a.Config.AppPort)
}

// StartAsync runs the server in the background.
func (a *Application) StartAsync() error {
	if err := a.startWorkers(); err != nil {
		return err
	}
	go func() {
		a.Logger.Info("Starting server", slog.String("port", a.Config.AppPort))
		if err := a.Fiber.Listen(":" + a.Config.AppPort); err != nil {
			a.Logger.Error("Server stopped", slog.Any("error", err))
		}
	}()
	return nil
}

// Shutdown stops accepting requests, drains queued scans and releases
// every resource. It keeps going after individual failures.
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.Fiber.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := a.Recorder.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scan recorder: %w", err))
	}
	a.Jobs.Stop()
	a.Redirects.Close()
	if err := a.Geo.Close(); err != nil {
		errs = append(errs, fmt.Errorf("geo database: %w", err))
	}
	if err := a.DBManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}

	return errors.Join(errs...)
}
