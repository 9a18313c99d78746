package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrlink/internal/analytics"
	"qrlink/internal/apperr"
	"qrlink/internal/scans"
	"qrlink/internal/testsupport"
	"qrlink/internal/timeframe"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now(loc *time.Location) time.Time {
	return c.now.In(loc)
}

func day(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestGetAnalyticsCountsInsideRange(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	qr := testsupport.CreateTestQRCode(t, db, "owner-1", "range")

	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: qr.ID, CreatedAt: at("2024-01-01T10:00:00Z")})
	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: qr.ID, CreatedAt: at("2024-01-02T23:59:59Z")})
	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: qr.ID, CreatedAt: at("2023-12-15T12:00:00Z")})

	service := analytics.NewService(dbManager, logger)
	result, err := service.GetAnalytics(context.Background(), qr.ID, "owner-1", day("2024-01-01"), day("2024-01-02"))
	require.NoError(t, err)

	assert.Equal(t, int64(2), result.TotalScansInPeriod)
	assert.Equal(t, int64(3), result.LifetimeScans)
	assert.Equal(t, "2024-01-01", result.StartDate)
	assert.Equal(t, "2024-01-02", result.EndDate)
	assert.Equal(t, []timeframe.DateStat{
		{Date: "2024-01-01", Count: 1},
		{Date: "2024-01-02", Count: 1},
	}, result.DailyScans)
}

func TestGetAnalyticsZeroFillsDays(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	qr := testsupport.CreateTestQRCode(t, db, "owner-1", "gaps")

	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: qr.ID, CreatedAt: at("2024-01-01T00:00:00Z")})
	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: qr.ID, CreatedAt: at("2024-01-03T09:00:00Z")})
	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: qr.ID, CreatedAt: at("2024-01-03T18:00:00Z")})

	service := analytics.NewService(dbManager, logger)
	result, err := service.GetAnalytics(context.Background(), qr.ID, "owner-1", day("2024-01-01"), day("2024-01-03"))
	require.NoError(t, err)

	assert.Equal(t, []timeframe.DateStat{
		{Date: "2024-01-01", Count: 1},
		{Date: "2024-01-02", Count: 0},
		{Date: "2024-01-03", Count: 2},
	}, result.DailyScans)

	var sum int64
	for _, point := range result.DailyScans {
		sum += int64(point.Count)
	}
	assert.Equal(t, result.TotalScansInPeriod, sum)
}

func TestGetAnalyticsBreakdowns(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	qr := testsupport.CreateTestQRCode(t, db, "owner-1", "breakdowns")

	when := at("2024-02-10T12:00:00Z")
	for _, rec := range []scans.ScanRecord{
		{Country: "Germany", BrowserInfo: "Chrome", OperatingSystem: "Android", DeviceType: scans.DeviceMobile},
		{Country: "Germany", BrowserInfo: "Chrome", OperatingSystem: "Windows", DeviceType: scans.DeviceDesktop},
		{Country: "France", BrowserInfo: "Safari", OperatingSystem: "iOS", DeviceType: scans.DeviceTablet},
		{Country: scans.UnknownLabel, BrowserInfo: "Firefox", OperatingSystem: "Linux", DeviceType: scans.DeviceOther},
	} {
		rec.QRCodeID = qr.ID
		rec.CreatedAt = when
		testsupport.CreateTestScan(t, db, rec)
	}
	// A blank country written by an older client lands in the Unknown bucket.
	require.NoError(t, db.Exec("UPDATE scan_records SET country = '' WHERE browser_info = 'Firefox'").Error)
	testsupport.CreateTestScan(t, db, scans.ScanRecord{
		QRCodeID: qr.ID, Country: scans.UnknownLabel, BrowserInfo: "Edge", OperatingSystem: "Windows", CreatedAt: when,
	})

	service := analytics.NewService(dbManager, logger)
	result, err := service.GetAnalytics(context.Background(), qr.ID, "owner-1", day("2024-02-10"), day("2024-02-10"))
	require.NoError(t, err)

	assert.Equal(t, []analytics.MetricCountResult{
		{Name: "Germany", Count: 2},
		{Name: scans.UnknownLabel, Count: 2},
		{Name: "France", Count: 1},
	}, result.Countries)
	assert.Equal(t, []analytics.MetricCountResult{
		{Name: "Chrome", Count: 2},
		{Name: "Edge", Count: 1},
		{Name: "Firefox", Count: 1},
		{Name: "Safari", Count: 1},
	}, result.Browsers)
	assert.Equal(t, []analytics.MetricCountResult{
		{Name: "Windows", Count: 2},
		{Name: "Android", Count: 1},
		{Name: "Linux", Count: 1},
		{Name: "iOS", Count: 1},
	}, result.OperatingSystems)
	assert.Equal(t, []analytics.MetricCountResult{
		{Name: "Desktop", Count: 2},
		{Name: "Mobile", Count: 1},
		{Name: "Other", Count: 1},
		{Name: "Tablet", Count: 1},
	}, result.DeviceTypes)
}

func TestGetAnalyticsCollapsesBlankLabels(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	qr := testsupport.CreateTestQRCode(t, db, "owner-1", "blanks")

	when := at("2024-04-02T09:00:00Z")
	for _, marker := range []string{"empty-1", "empty-2", "spaces", "spain"} {
		testsupport.CreateTestScan(t, db, scans.ScanRecord{
			QRCodeID: qr.ID, BrowserInfo: marker, Country: "Spain", OperatingSystem: "Android", CreatedAt: when,
		})
	}
	require.NoError(t, db.Exec("UPDATE scan_records SET country = '', operating_system = '' WHERE browser_info IN ('empty-1', 'empty-2')").Error)
	require.NoError(t, db.Exec("UPDATE scan_records SET country = '   ', operating_system = ' ' WHERE browser_info = 'spaces'").Error)

	service := analytics.NewService(dbManager, logger)
	result, err := service.GetAnalytics(context.Background(), qr.ID, "owner-1", day("2024-04-02"), day("2024-04-02"))
	require.NoError(t, err)

	assert.Equal(t, []analytics.MetricCountResult{
		{Name: scans.UnknownLabel, Count: 3},
		{Name: "Spain", Count: 1},
	}, result.Countries)
	assert.Equal(t, []analytics.MetricCountResult{
		{Name: scans.UnknownLabel, Count: 3},
		{Name: "Android", Count: 1},
	}, result.OperatingSystems)
}

func TestGetAnalyticsDefaultsToLastThirtyDays(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	qr := testsupport.CreateTestQRCode(t, db, "owner-1", "defaults")

	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: qr.ID, CreatedAt: at("2024-03-15T08:00:00Z")})
	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: qr.ID, CreatedAt: at("2024-02-15T08:00:00Z")})
	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: qr.ID, CreatedAt: at("2024-02-14T23:00:00Z")})

	clock := &fixedClock{now: at("2024-03-15T16:00:00Z")}
	service := analytics.NewService(dbManager, logger, clock)

	result, err := service.GetAnalytics(context.Background(), qr.ID, "owner-1", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "2024-02-15", result.StartDate)
	assert.Equal(t, "2024-03-15", result.EndDate)
	assert.Len(t, result.DailyScans, 30)
	assert.Equal(t, int64(2), result.TotalScansInPeriod)
	assert.Equal(t, int64(3), result.LifetimeScans)
}

func TestGetAnalyticsEmptyRange(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	qr := testsupport.CreateTestQRCode(t, dbManager.GetConnection(), "owner-1", "empty")

	service := analytics.NewService(dbManager, logger)
	result, err := service.GetAnalytics(context.Background(), qr.ID, "owner-1", day("2024-05-01"), day("2024-05-01"))
	require.NoError(t, err)

	assert.Equal(t, []timeframe.DateStat{{Date: "2024-05-01", Count: 0}}, result.DailyScans)
	assert.Empty(t, result.Countries)
	assert.Empty(t, result.DeviceTypes)
	assert.Zero(t, result.TotalScansInPeriod)
}

func TestGetAnalyticsErrors(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	qr := testsupport.CreateTestQRCode(t, dbManager.GetConnection(), "owner-1", "errors")
	service := analytics.NewService(dbManager, logger)

	tests := []struct {
		name     string
		qrCodeID string
		callerID string
		start    *time.Time
		end      *time.Time
		is       func(error) bool
	}{
		{"missing id", "", "owner-1", nil, nil, apperr.IsValidation},
		{"unknown qr code", "missing", "owner-1", nil, nil, apperr.IsNotFound},
		{"existence checked before ownership", "missing", "owner-2", nil, nil, apperr.IsNotFound},
		{"not the owner", qr.ID, "owner-2", nil, nil, apperr.IsForbidden},
		{"ownership checked before dates", qr.ID, "owner-2", day("2024-01-02"), day("2024-01-01"), apperr.IsForbidden},
		{"end before start", qr.ID, "owner-1", day("2024-01-02"), day("2024-01-01"), apperr.IsValidation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := service.GetAnalytics(context.Background(), tc.qrCodeID, tc.callerID, tc.start, tc.end)
			assert.Nil(t, result)
			require.Error(t, err)
			assert.True(t, tc.is(err), "unexpected error: %v", err)
		})
	}
}
