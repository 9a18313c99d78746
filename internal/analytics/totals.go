package analytics

import (
	"fmt"

	"gorm.io/gorm"

	"qrlink/internal/timeframe"
)

// GetLifetimeScans counts every scan of the QR code regardless of date.
func GetLifetimeScans(db *gorm.DB, qrCodeID string) (int64, error) {
	var count int64
	err := db.Table("scan_records").Where("qr_code_id = ?", qrCodeID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("error counting lifetime scans: %w", err)
	}
	return count, nil
}

// GetTotalScansInPeriod counts scans inside the range.
func GetTotalScansInPeriod(db *gorm.DB, params QRCodeScopedQueryParams) (int64, error) {
	var count int64
	if err := params.periodScope(db).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting scans in period: %w", err)
	}
	return count, nil
}

// GetDailyScans returns one point per day of the range, zero-filled.
func GetDailyScans(db *gorm.DB, params QRCodeScopedQueryParams) ([]timeframe.DateStat, error) {
	bucket := timeframe.DailyGroupExpression("created_at")

	var rawResults []struct {
		Date  string
		Count int
	}
	err := params.periodScope(db).
		Select(bucket + " AS date, COUNT(*) AS count").
		Group(bucket).
		Scan(&rawResults).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching daily scans: %w", err)
	}

	grouped := make([]timeframe.DateStat, len(rawResults))
	for i, r := range rawResults {
		grouped[i] = timeframe.DateStat{Date: r.Date, Count: r.Count}
	}
	return params.Range.BuildTimeSeriesPoints(grouped), nil
}
