package scans_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrlink/internal/apperr"
	"qrlink/internal/scans"
	"qrlink/internal/testsupport"
)

func day(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestStoreAppend(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	qr := testsupport.CreateTestQRCode(t, db, "owner-1", "append")
	store := scans.NewStore(dbManager, logger)

	rec := &scans.ScanRecord{
		ID:              "scan-1",
		QRCodeID:        qr.ID,
		BrowserInfo:     "Firefox",
		OperatingSystem: "Linux",
		DeviceType:      scans.DeviceDesktop,
		Country:         "Germany",
		CreatedAt:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Append(context.Background(), rec))

	var stored scans.ScanRecord
	require.NoError(t, db.First(&stored, "id = ?", "scan-1").Error)
	assert.Equal(t, qr.ID, stored.QRCodeID)
	assert.Equal(t, "Firefox", stored.BrowserInfo)
	assert.Equal(t, scans.DeviceDesktop, stored.DeviceType)
	assert.True(t, rec.CreatedAt.Equal(stored.CreatedAt))
}

func TestStoreAppendRejectsUnknownQRCode(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	store := scans.NewStore(dbManager, logger)

	err := store.Append(context.Background(), &scans.ScanRecord{
		ID:              "scan-orphan",
		QRCodeID:        "does-not-exist",
		BrowserInfo:     "Chrome",
		OperatingSystem: "Windows",
		Country:         "France",
		CreatedAt:       time.Now().UTC(),
	})

	assert.Error(t, err)
}

func TestStoreList(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	store := scans.NewStore(dbManager, logger)

	qr := testsupport.CreateTestQRCode(t, db, "owner-1", "list")
	other := testsupport.CreateTestQRCode(t, db, "owner-1", "list-other")

	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: qr.ID, Country: "Spain", CreatedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)})
	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: qr.ID, Country: "Italy", CreatedAt: time.Date(2024, 1, 2, 23, 59, 0, 0, time.UTC)})
	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: qr.ID, Country: "Peru", CreatedAt: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)})
	testsupport.CreateTestScan(t, db, scans.ScanRecord{QRCodeID: other.ID, CreatedAt: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)})

	t.Run("newest first by default", func(t *testing.T) {
		page, err := store.List(context.Background(), "owner-1", scans.ListParams{QRCodeID: qr.ID})
		require.NoError(t, err)

		require.Len(t, page.Items, 3)
		assert.Equal(t, int64(3), page.Total)
		assert.Equal(t, "Peru", page.Items[0].Country)
		assert.Equal(t, "Spain", page.Items[2].Country)
		assert.Equal(t, qr.DisplayName, page.Items[0].QRCodeDisplayName)
	})

	t.Run("inclusive calendar day range", func(t *testing.T) {
		page, err := store.List(context.Background(), "owner-1", scans.ListParams{
			QRCodeID:  qr.ID,
			StartDate: day("2024-01-01"),
			EndDate:   day("2024-01-02"),
		})
		require.NoError(t, err)

		assert.Equal(t, int64(2), page.Total)
		for _, row := range page.Items {
			assert.NotEqual(t, "Peru", row.Country)
		}
	})

	t.Run("sorted and paged", func(t *testing.T) {
		page, err := store.List(context.Background(), "owner-1", scans.ListParams{
			QRCodeID: qr.ID,
			SortBy:   "country",
			Page:     1,
			PageSize: 2,
		})
		require.NoError(t, err)

		require.Len(t, page.Items, 2)
		assert.Equal(t, int64(3), page.Total)
		assert.Equal(t, "Italy", page.Items[0].Country)
		assert.Equal(t, "Peru", page.Items[1].Country)
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := store.List(context.Background(), "owner-1", scans.ListParams{
			QRCodeID:  qr.ID,
			StartDate: day("2024-01-02"),
			EndDate:   day("2024-01-01"),
		})
		assert.True(t, apperr.IsValidation(err))
	})

	t.Run("not the owner", func(t *testing.T) {
		_, err := store.List(context.Background(), "owner-2", scans.ListParams{QRCodeID: qr.ID})
		assert.True(t, apperr.IsForbidden(err))
	})

	t.Run("unknown qr code", func(t *testing.T) {
		_, err := store.List(context.Background(), "owner-1", scans.ListParams{QRCodeID: "missing"})
		assert.True(t, apperr.IsNotFound(err))
	})
}
