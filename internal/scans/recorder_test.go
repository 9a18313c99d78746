package scans_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrlink/internal/metrics"
	"qrlink/internal/scans"
	"qrlink/internal/testsupport"
)

const chromeOnWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

type recordingWriter struct {
	records chan *scans.ScanRecord
	err     error
	block   chan struct{}
	started chan struct{}
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{records: make(chan *scans.ScanRecord, 16)}
}

func (w *recordingWriter) Append(ctx context.Context, rec *scans.ScanRecord) error {
	if w.started != nil {
		w.started <- struct{}{}
	}
	if w.block != nil {
		<-w.block
	}
	if w.err != nil {
		return w.err
	}
	w.records <- rec
	return nil
}

type fakeGeo struct {
	mu        sync.Mutex
	countries map[string]string
	err       error
	lookups   []string
}

func (g *fakeGeo) CountryName(ip string, dbPath string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups = append(g.lookups, ip)
	if g.err != nil {
		return "", false, g.err
	}
	name, ok := g.countries[ip]
	return name, ok, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scanMeta(ua, xff, remote string) scans.RequestMetadata {
	headers := map[string]string{"user-agent": ua}
	if xff != "" {
		headers["x-forwarded-for"] = xff
	}
	return scans.RequestMetadata{Headers: headers, RemoteAddr: remote}
}

func waitForRecord(t *testing.T, w *recordingWriter) *scans.ScanRecord {
	t.Helper()
	select {
	case rec := <-w.records:
		return rec
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for scan record")
		return nil
	}
}

func stopRecorder(t *testing.T, r *scans.Recorder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
}

func TestRecorderPersistsClassifiedScan(t *testing.T) {
	writer := newRecordingWriter()
	geo := &fakeGeo{countries: map[string]string{"203.0.113.5": "Germany"}}
	scannedAt := time.Date(2024, 3, 10, 14, 30, 0, 0, time.UTC)

	r := scans.NewRecorder(writer, geo, quietLogger(), scans.RecorderConfig{
		Workers:           1,
		QueueSize:         4,
		TrustForwardedFor: true,
	}, scans.WithClock(func() time.Time { return scannedAt }))
	r.Start()
	defer stopRecorder(t, r)

	r.RecordScan(scanMeta(chromeOnWindows, "203.0.113.5, 10.0.0.1", "10.0.0.2:4000"), "qr-1")

	rec := waitForRecord(t, writer)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "qr-1", rec.QRCodeID)
	assert.Equal(t, "Chrome", rec.BrowserInfo)
	assert.Equal(t, "Windows", rec.OperatingSystem)
	assert.Equal(t, scans.DeviceDesktop, rec.DeviceType)
	assert.Equal(t, "Germany", rec.Country)
	assert.True(t, scannedAt.Equal(rec.CreatedAt))
}

func TestRecorderUsesPeerAddressWhenForwardingUntrusted(t *testing.T) {
	writer := newRecordingWriter()
	geo := &fakeGeo{countries: map[string]string{"198.51.100.9": "Japan"}}

	r := scans.NewRecorder(writer, geo, quietLogger(), scans.RecorderConfig{Workers: 1, QueueSize: 4})
	r.Start()
	defer stopRecorder(t, r)

	r.RecordScan(scanMeta(chromeOnWindows, "203.0.113.5", "198.51.100.9:443"), "qr-1")

	rec := waitForRecord(t, writer)
	assert.Equal(t, "Japan", rec.Country)
	assert.Equal(t, []string{"198.51.100.9"}, geo.lookups)
}

func TestRecorderUnknownCountry(t *testing.T) {
	tests := []struct {
		name   string
		geo    *fakeGeo
		remote string
	}{
		{"lookup error", &fakeGeo{err: errors.New("database not found")}, "203.0.113.5:1"},
		{"address not in database", &fakeGeo{countries: map[string]string{}}, "203.0.113.5:1"},
		{"no client address", &fakeGeo{countries: map[string]string{}}, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			writer := newRecordingWriter()
			r := scans.NewRecorder(writer, tc.geo, quietLogger(), scans.RecorderConfig{Workers: 1, QueueSize: 4})
			r.Start()
			defer stopRecorder(t, r)

			r.RecordScan(scanMeta(chromeOnWindows, "", tc.remote), "qr-1")

			rec := waitForRecord(t, writer)
			assert.Equal(t, scans.UnknownLabel, rec.Country)
			assert.Equal(t, "Chrome", rec.BrowserInfo)
		})
	}
}

func TestRecorderPersistFailureIsCounted(t *testing.T) {
	failed := metrics.ScansFailed.WithLabelValues(metrics.FailureStagePersist)
	before := testutil.ToFloat64(failed)

	writer := newRecordingWriter()
	writer.err = errors.New("disk full")
	r := scans.NewRecorder(writer, &fakeGeo{}, quietLogger(), scans.RecorderConfig{Workers: 1, QueueSize: 4})
	r.Start()

	r.RecordScan(scanMeta(chromeOnWindows, "", "203.0.113.5:1"), "qr-1")
	stopRecorder(t, r)

	assert.Equal(t, before+1, testutil.ToFloat64(failed))
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	dropped := metrics.ScansDropped.WithLabelValues(metrics.DropReasonQueueFull)
	before := testutil.ToFloat64(dropped)

	writer := newRecordingWriter()
	writer.block = make(chan struct{})
	writer.started = make(chan struct{}, 4)
	r := scans.NewRecorder(writer, &fakeGeo{}, quietLogger(), scans.RecorderConfig{Workers: 1, QueueSize: 1})
	r.Start()

	meta := scanMeta(chromeOnWindows, "", "203.0.113.5:1")
	r.RecordScan(meta, "qr-1")
	<-writer.started // the only worker is now busy

	r.RecordScan(meta, "qr-1") // queued
	r.RecordScan(meta, "qr-1") // dropped

	assert.Equal(t, 1, r.Pending())
	assert.Equal(t, before+1, testutil.ToFloat64(dropped))

	close(writer.block)
	stopRecorder(t, r)
	assert.Len(t, writer.records, 2)
}

func TestRecorderDropsAfterStop(t *testing.T) {
	dropped := metrics.ScansDropped.WithLabelValues(metrics.DropReasonStopped)
	before := testutil.ToFloat64(dropped)

	writer := newRecordingWriter()
	r := scans.NewRecorder(writer, &fakeGeo{}, quietLogger(), scans.RecorderConfig{Workers: 1, QueueSize: 4})
	r.Start()
	stopRecorder(t, r)

	r.RecordScan(scanMeta(chromeOnWindows, "", "203.0.113.5:1"), "qr-1")

	assert.Equal(t, before+1, testutil.ToFloat64(dropped))
	assert.Empty(t, writer.records)
}

func TestRecorderWritesThroughStore(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	qr := testsupport.CreateTestQRCode(t, db, "owner-1", "recorded")

	r := scans.NewRecorder(scans.NewStore(dbManager, logger), &fakeGeo{countries: map[string]string{}}, logger,
		scans.RecorderConfig{Workers: 2, QueueSize: 16})
	r.Start()

	for i := 0; i < 5; i++ {
		r.RecordScan(scanMeta(chromeOnWindows, "", "203.0.113.5:1"), qr.ID)
	}
	stopRecorder(t, r)

	assert.Equal(t, int64(5), testsupport.CountScans(t, db, qr.ID))
}
