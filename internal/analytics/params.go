package analytics

import (
	"time"

	"gorm.io/gorm"

	"qrlink/internal/timeframe"
)

// MetricCountResult is one bucket of a category breakdown.
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// QRCodeScopedQueryParams restricts scan queries to one QR code and a day
// range.
type QRCodeScopedQueryParams struct {
	QRCodeID string
	Range    timeframe.DayRange
}

func NewQRCodeScopedQueryParams(qrCodeID string, r timeframe.DayRange) QRCodeScopedQueryParams {
	return QRCodeScopedQueryParams{QRCodeID: qrCodeID, Range: r}
}

// From is the inclusive lower timestamp bound.
func (p QRCodeScopedQueryParams) From() time.Time {
	return p.Range.From()
}

// Until is the exclusive upper timestamp bound.
func (p QRCodeScopedQueryParams) Until() time.Time {
	return p.Range.Until()
}

// periodScope selects the QR code's scans inside the range.
func (p QRCodeScopedQueryParams) periodScope(db *gorm.DB) *gorm.DB {
	return db.Table("scan_records").
		Where("qr_code_id = ?", p.QRCodeID).
		Where("created_at >= ? AND created_at < ?", p.From(), p.Until())
}
