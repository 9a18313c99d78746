package scans

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"qrlink/internal/apperr"
	"qrlink/internal/models"
	"qrlink/internal/qrcodes"
	"qrlink/internal/timeframe"
)

// Store persists and lists scan records.
type Store struct {
	conn   models.Connector
	logger *slog.Logger
}

func NewStore(conn models.Connector, logger *slog.Logger) *Store {
	return &Store{conn: conn, logger: logger}
}

// Append writes one scan record in its own transaction.
func (s *Store) Append(ctx context.Context, rec *ScanRecord) error {
	return models.PerformWrite(ctx, s.logger, s.conn.GetConnection(), func(tx *gorm.DB) error {
		return tx.Omit("QRCode").Create(rec).Error
	})
}

// ListParams selects a page of one QR code's scans. StartDate and EndDate
// are calendar days; EndDate is inclusive.
type ListParams struct {
	QRCodeID   string
	StartDate  *time.Time
	EndDate    *time.Time
	SortBy     string
	Descending bool
	Page       int
	PageSize   int
}

// Row is a scan record as shown in listings.
type Row struct {
	ScanRecord
	QRCodeDisplayName string `json:"qrCodeDisplayName"`
}

var sortColumns = map[string]string{
	"createdAt":       "created_at",
	"browserInfo":     "browser_info",
	"operatingSystem": "operating_system",
	"deviceType":      "device_type",
	"country":         "country",
}

// List returns a page of scans for a QR code owned by ownerID.
func (s *Store) List(ctx context.Context, ownerID string, params ListParams) (*models.Page[Row], error) {
	db := s.conn.GetConnection()

	qr, err := qrcodes.Find(ctx, db, params.QRCodeID)
	if err != nil {
		return nil, err
	}
	if !qrcodes.IsOwner(qr, ownerID) {
		return nil, apperr.Forbidden()
	}

	var from, until time.Time
	if params.StartDate != nil {
		from = timeframe.StartOfDay(*params.StartDate)
	}
	if params.EndDate != nil {
		until = timeframe.StartOfDay(*params.EndDate).AddDate(0, 0, 1)
	}
	if !from.IsZero() && !until.IsZero() && !until.After(from) {
		return nil, apperr.Validation("endDate", "must not be before startDate")
	}

	filtered := func() *gorm.DB {
		query := db.WithContext(ctx).Model(&ScanRecord{}).Where("qr_code_id = ?", qr.ID)
		if !from.IsZero() {
			query = query.Where("created_at >= ?", from)
		}
		if !until.IsZero() {
			query = query.Where("created_at < ?", until)
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting scan records: %w", err)
	}

	page, size := models.NormalizePaging(params.Page, params.PageSize)
	descending := params.Descending || params.SortBy == ""

	var records []ScanRecord
	err = filtered().
		Order(models.OrderClause(sortColumns, params.SortBy, descending, "created_at")).
		Scopes(models.Paginate(page, size)).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("listing scan records: %w", err)
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Row{ScanRecord: rec, QRCodeDisplayName: qr.DisplayName})
	}
	return &models.Page[Row]{Items: rows, Total: total, Page: page, PageSize: size}, nil
}
