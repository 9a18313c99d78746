package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrlink/internal"
	"qrlink/internal/pkg/geoip"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app, err := internal.NewApp()
	if err != nil {
		slog.Error("Failed to create app", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(app); err != nil {
		app.Logger.Error("qrlink stopped with errors", slog.Any("error", err))
		os.Exit(1)
	}
}

// run migrates, serves until a termination signal arrives, then drains the
// scan queue before releasing the database.
func run(app *internal.Application) error {
	cfg := app.Config

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	geoPath := cfg.GeoDBPath
	if geoPath == "" {
		geoPath = geoip.DefaultDatabaseFileName
	}
	if _, err := os.Stat(geoPath); err != nil {
		app.Logger.Warn("GeoLite2 database not readable, scans will be recorded without country",
			slog.String("path", geoPath),
			slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := app.StartAsync(); err != nil {
		return fmt.Errorf("starting application: %w", err)
	}
	app.Logger.Info("qrlink ready",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.AppPort),
		slog.String("public_base_url", cfg.PublicBaseURL),
		slog.Bool("trust_forwarded_for", cfg.TrustForwardedFor))

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	app.Logger.Info("Shutting down", slog.Int("pending_scans", app.Recorder.Pending()))
	if err := app.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	app.Logger.Info("Shutdown complete")
	return nil
}
