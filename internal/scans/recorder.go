package scans

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"qrlink/internal/metrics"
	"qrlink/internal/pkg/async"
	"qrlink/internal/pkg/user_agent"
)

// Client is the classified scanning client.
type Client struct {
	Browser  string
	OSFamily string
	Device   DeviceType
}

// Classify derives browser, OS family and device type from the request
// headers. Automated clients are classified like any other.
func Classify(meta RequestMetadata) Client {
	ua := user_agent.Parse(meta.UserAgent(), user_agent.Options{
		SkipBotDetection: true,
		Hints:            user_agent.ClientHintsFromHeaders(meta.Headers),
	})
	return Client{
		Browser:  labelOrUnknown(ua.Browser),
		OSFamily: labelOrUnknown(ua.OSFamily),
		Device:   DeviceTypeFor(ua),
	}
}

// GeoLocator resolves an IP address to a country name. An empty dbPath
// selects the locator's default database.
type GeoLocator interface {
	CountryName(ip string, dbPath string) (string, bool, error)
}

// Writer persists a finished scan record.
type Writer interface {
	Append(ctx context.Context, rec *ScanRecord) error
}

type RecorderConfig struct {
	Workers           int
	QueueSize         int
	WriteTimeout      time.Duration
	TrustForwardedFor bool
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithClassifier replaces the user agent classifier.
func WithClassifier(fn func(RequestMetadata) Client) RecorderOption {
	return func(r *Recorder) {
		r.classify = fn
	}
}

// WithClock replaces the clock that stamps scan records.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// Recorder builds and stores scan records on a background worker pool so
// the redirect response never waits for classification, geolocation or the
// database. Failures are logged and the scan is dropped; nothing is retried.
type Recorder struct {
	pool     *async.WorkerPool
	writer   Writer
	geo      GeoLocator
	classify func(RequestMetadata) Client
	cfg      RecorderConfig
	logger   *slog.Logger
	now      func() time.Time

	geoFailureLogged atomic.Bool
}

func NewRecorder(writer Writer, geo GeoLocator, logger *slog.Logger, cfg RecorderConfig, opts ...RecorderOption) *Recorder {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	r := &Recorder{
		writer:   writer,
		geo:      geo,
		classify: Classify,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.pool = async.NewWorkerPool("scan-recorder", cfg.Workers, cfg.QueueSize, logger,
		async.WithPanicHandler(func(any) {
			metrics.ScansFailed.WithLabelValues(metrics.FailureStagePanic).Inc()
		}))
	return r
}

// Start launches the background workers.
func (r *Recorder) Start() {
	r.pool.Start()
}

// Stop stops accepting scans and waits for queued ones until ctx ends.
func (r *Recorder) Stop(ctx context.Context) error {
	return r.pool.Stop(ctx)
}

// Pending reports scans waiting for a worker.
func (r *Recorder) Pending() int {
	return r.pool.Pending()
}

// RecordScan queues a scan of qrCodeID and returns immediately. meta must
// not reference request-scoped buffers.
func (r *Recorder) RecordScan(meta RequestMetadata, qrCodeID string) {
	scannedAt := r.now()
	accepted := r.pool.TrySubmit(func() {
		if err := r.record(meta, qrCodeID, scannedAt); err != nil {
			r.logger.Error("Failed to record scan",
				slog.String("qr_code_id", qrCodeID),
				slog.Any("error", err))
		}
	})
	if accepted {
		return
	}

	reason := metrics.DropReasonQueueFull
	if r.pool.Stopped() {
		reason = metrics.DropReasonStopped
	}
	metrics.ScansDropped.WithLabelValues(reason).Inc()
	r.logger.Warn("Scan dropped",
		slog.String("qr_code_id", qrCodeID),
		slog.String("reason", reason))
}

func (r *Recorder) record(meta RequestMetadata, qrCodeID string, scannedAt time.Time) error {
	start := time.Now()
	defer func() {
		metrics.ScanRecordDuration.Observe(time.Since(start).Seconds())
	}()

	client := r.classify(meta)
	rec := &ScanRecord{
		ID:              uuid.NewString(),
		QRCodeID:        qrCodeID,
		BrowserInfo:     labelOrUnknown(client.Browser),
		OperatingSystem: labelOrUnknown(client.OSFamily),
		DeviceType:      client.Device,
		Country:         r.country(ClientIP(meta, r.cfg.TrustForwardedFor)),
		CreatedAt:       scannedAt.UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
	defer cancel()

	if err := r.writer.Append(ctx, rec); err != nil {
		metrics.ScansFailed.WithLabelValues(metrics.FailureStagePersist).Inc()
		return fmt.Errorf("persisting scan: %w", err)
	}

	metrics.ScansRecorded.Inc()
	r.logger.Debug("Scan recorded",
		slog.String("scan_id", rec.ID),
		slog.String("qr_code_id", qrCodeID),
		slog.String("device_type", rec.DeviceType.String()),
		slog.String("country", rec.Country))
	return nil
}

// country never fails; lookup errors degrade to UnknownLabel. A broken
// database is logged at error level once and at debug level afterwards.
func (r *Recorder) country(ip string) string {
	if r.geo == nil || ip == "" {
		return UnknownLabel
	}

	name, ok, err := r.geo.CountryName(ip, "")
	if err != nil {
		metrics.ScansFailed.WithLabelValues(metrics.FailureStageGeo).Inc()
		if r.geoFailureLogged.CompareAndSwap(false, true) {
			r.logger.Error("Country lookup unavailable, recording scans without country", slog.Any("error", err))
		} else {
			r.logger.Debug("Country lookup failed", slog.String("ip", ip), slog.Any("error", err))
		}
		return UnknownLabel
	}
	if !ok {
		return UnknownLabel
	}
	return labelOrUnknown(name)
}
