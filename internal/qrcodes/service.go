package qrcodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"qrlink/internal/apperr"
	"qrlink/internal/models"
)

// Input carries the editable fields of a QR code.
type Input struct {
	DisplayName       string `json:"displayName" validate:"required,max=200"`
	RedirectURL       string `json:"redirectUrl" validate:"required,max=2048"`
	ShortCode         string `json:"shortCode" validate:"required,max=64,excludesall=/?#"`
	DotStyle          string `json:"dotStyle" validate:"required"`
	CornerDotStyle    string `json:"cornerDotStyle" validate:"required"`
	CornerSquareStyle string `json:"cornerSquareStyle" validate:"required"`
	Color             string `json:"color" validate:"required"`
}

func (in *Input) trim() {
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.RedirectURL = strings.TrimSpace(in.RedirectURL)
	in.ShortCode = strings.TrimSpace(in.ShortCode)
	in.DotStyle = strings.TrimSpace(in.DotStyle)
	in.CornerDotStyle = strings.TrimSpace(in.CornerDotStyle)
	in.CornerSquareStyle = strings.TrimSpace(in.CornerSquareStyle)
	in.Color = strings.TrimSpace(in.Color)
}

// ListParams filters and pages the owner's QR codes.
type ListParams struct {
	Search     string
	SortBy     string
	Descending bool
	Page       int
	PageSize   int
}

var sortColumns = map[string]string{
	"displayName": "display_name",
	"shortCode":   "short_code",
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
}

// ChangeFunc is notified with every short code whose target may have changed.
type ChangeFunc func(shortCode string)

// Service manages QR code rows on behalf of their owners.
type Service struct {
	conn     models.Connector
	logger   *slog.Logger
	validate *validator.Validate
	onChange ChangeFunc
	now      func() time.Time
}

// NewService creates a QR code service. onChange may be nil.
func NewService(conn models.Connector, logger *slog.Logger, onChange ChangeFunc) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Service{
		conn:     conn,
		logger:   logger,
		validate: v,
		onChange: onChange,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new QR code owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, in Input) (*QRCode, error) {
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}

	db := s.conn.GetConnection()
	if err := s.ensureShortCodeFree(ctx, db, in.ShortCode, ""); err != nil {
		return nil, err
	}

	now := s.now()
	qr := &QRCode{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	apply(qr, in)

	err := models.PerformWrite(ctx, s.logger, db, func(tx *gorm.DB) error {
		return tx.Create(qr).Error
	})
	if err != nil {
		return nil, writeError("creating", err)
	}

	s.logger.Info("QR code created",
		slog.String("qr_code_id", qr.ID),
		slog.String("short_code", qr.ShortCode))
	s.notify(qr.ShortCode)
	return qr, nil
}

// Update replaces the editable fields of a QR code owned by ownerID.
func (s *Service) Update(ctx context.Context, id, ownerID string, in Input) (*QRCode, error) {
	qr, err := s.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.validateInput(&in); err != nil {
		return nil, err
	}

	db := s.conn.GetConnection()
	if err := s.ensureShortCodeFree(ctx, db, in.ShortCode, qr.ID); err != nil {
		return nil, err
	}

	previousShortCode := qr.ShortCode
	apply(qr, in)
	qr.UpdatedAt = s.now()

	err = models.PerformWrite(ctx, s.logger, db, func(tx *gorm.DB) error {
		return tx.Save(qr).Error
	})
	if err != nil {
		return nil, writeError("updating", err)
	}

	s.notify(previousShortCode)
	if previousShortCode != qr.ShortCode {
		s.notify(qr.ShortCode)
	}
	return qr, nil
}

// Delete removes a QR code and all of its scan records.
func (s *Service) Delete(ctx context.Context, id, ownerID string) error {
	qr, err := s.GetByID(ctx, id, ownerID)
	if err != nil {
		return err
	}

	err = models.PerformWrite(ctx, s.logger, s.conn.GetConnection(), func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM scan_records WHERE qr_code_id = ?", qr.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&QRCode{}, "id = ?", qr.ID).Error
	})
	if err != nil {
		return fmt.Errorf("deleting qr code: %w", err)
	}

	s.logger.Info("QR code deleted", slog.String("qr_code_id", qr.ID))
	s.notify(qr.ShortCode)
	return nil
}

// GetByID loads a QR code, checking existence before ownership.
func (s *Service) GetByID(ctx context.Context, id, ownerID string) (*QRCode, error) {
	qr, err := Find(ctx, s.conn.GetConnection(), id)
	if err != nil {
		return nil, err
	}
	if !IsOwner(qr, ownerID) {
		return nil, apperr.Forbidden()
	}
	return qr, nil
}

// List returns one page of the owner's QR codes.
func (s *Service) List(ctx context.Context, ownerID string, params ListParams) (*models.Page[QRCode], error) {
	page, size := models.NormalizePaging(params.Page, params.PageSize)

	search := strings.ToLower(strings.TrimSpace(params.Search))
	filtered := func() *gorm.DB {
		query := s.conn.GetConnection().WithContext(ctx).Model(&QRCode{}).Where("owner_id = ?", ownerID)
		if search != "" {
			query = query.Where("LOWER(display_name) LIKE ?", "%"+search+"%")
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting qr codes: %w", err)
	}

	descending := params.Descending || params.SortBy == ""
	items := []QRCode{}
	err := filtered().
		Order(models.OrderClause(sortColumns, params.SortBy, descending, "updated_at")).
		Scopes(models.Paginate(page, size)).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("listing qr codes: %w", err)
	}

	return &models.Page[QRCode]{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// Find loads a QR code by id without any ownership check.
func Find(ctx context.Context, db *gorm.DB, id string) (*QRCode, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("qrCodeId", "is required")
	}

	var qr QRCode
	if err := db.WithContext(ctx).Where("id = ?", id).First(&qr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("qr code", id)
		}
		return nil, fmt.Errorf("loading qr code: %w", err)
	}
	return &qr, nil
}

// FindByShortCode loads a QR code by its public short code.
func FindByShortCode(ctx context.Context, db *gorm.DB, shortCode string) (*QRCode, error) {
	var qr QRCode
	if err := db.WithContext(ctx).Where("short_code = ?", shortCode).First(&qr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("short code", shortCode)
		}
		return nil, fmt.Errorf("loading qr code by short code: %w", err)
	}
	return &qr, nil
}

func (s *Service) validateInput(in *Input) error {
	in.trim()

	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating qr code: %w", err)
	}

	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], validationMessage(fe))
	}
	return apperr.ValidationFields(fields)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "excludesall":
		return "must not contain '/', '?' or '#'"
	default:
		return "is invalid"
	}
}

func (s *Service) ensureShortCodeFree(ctx context.Context, db *gorm.DB, shortCode, exceptID string) error {
	query := db.WithContext(ctx).Model(&QRCode{}).Where("short_code = ?", shortCode)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("checking short code: %w", err)
	}
	if count > 0 {
		return errShortCodeTaken()
	}
	return nil
}

func errShortCodeTaken() error {
	return apperr.Validation("shortCode", "is already in use")
}

// writeError reports a unique index violation from a concurrent writer the
// same way as the pre-check.
func writeError(op string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errShortCodeTaken()
	}
	return fmt.Errorf("%s qr code: %w", op, err)
}

func (s *Service) notify(shortCode string) {
	if s.onChange != nil && shortCode != "" {
		s.onChange(shortCode)
	}
}

func apply(qr *QRCode, in Input) {
	qr.DisplayName = in.DisplayName
	qr.RedirectURL = EnsureHTTPSScheme(in.RedirectURL)
	qr.ShortCode = in.ShortCode
	qr.DotStyle = in.DotStyle
	qr.CornerDotStyle = in.CornerDotStyle
	qr.CornerSquareStyle = in.CornerSquareStyle
	qr.Color = in.Color
}
