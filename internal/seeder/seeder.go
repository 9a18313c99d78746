// Package seeder fills a database with sample QR codes and scans.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/pariz/gountries"
	"gorm.io/gorm"

	"qrlink/internal/apperr"
	"qrlink/internal/models"
	"qrlink/internal/qrcodes"
	"qrlink/internal/scans"
	"qrlink/internal/timeframe"
)

const insertBatchSize = 500

// Seeder handles the data seeding process
type Seeder struct {
	DBManager models.Connector
	Logger    *slog.Logger
	ScanCount int
	Days      int

	rand *rand.Rand
	now  func() time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager models.Connector, logger *slog.Logger, scanCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager: dbManager,
		Logger:    logger,
		ScanCount: scanCount,
		Days:      timeframe.DefaultWindowDays,
		rand:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 42)),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type sampleQRCode struct {
	name      string
	url       string
	shortCode string
}

var sampleQRCodes = []sampleQRCode{
	{"Restaurant menu", "https://example.com/menu", "menu"},
	{"Spring campaign poster", "https://example.com/spring?utm_source=poster", "spring"},
	{"Business card", "https://example.com/about", "card"},
}

// Run creates the sample QR codes for ownerID, when missing, and spreads
// ScanCount scans across them over the last Days days.
func (s *Seeder) Run(ctx context.Context, ownerID string) error {
	start := time.Now()
	s.Logger.Info("Seeding database...", slog.String("owner_id", ownerID), slog.Int("scanCount", s.ScanCount))

	codes, err := s.seedQRCodes(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("failed to seed qr codes: %w", err)
	}

	if err := s.seedScans(ctx, codes); err != nil {
		return fmt.Errorf("failed to seed scans: %w", err)
	}

	s.Logger.Info("Seeding completed successfully", slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Seeder) seedQRCodes(ctx context.Context, ownerID string) ([]*qrcodes.QRCode, error) {
	service := qrcodes.NewService(s.DBManager, s.Logger, nil)
	db := s.DBManager.GetConnection()

	codes := make([]*qrcodes.QRCode, 0, len(sampleQRCodes))
	for _, sample := range sampleQRCodes {
		existing, err := qrcodes.FindByShortCode(ctx, db, sample.shortCode)
		if err == nil {
			if existing.OwnerID != ownerID {
				return nil, fmt.Errorf("short code %q belongs to another owner", sample.shortCode)
			}
			codes = append(codes, existing)
			continue
		}
		if !apperr.IsNotFound(err) {
			return nil, err
		}

		qr, err := service.Create(ctx, ownerID, qrcodes.Input{
			DisplayName:       sample.name,
			RedirectURL:       sample.url,
			ShortCode:         sample.shortCode,
			DotStyle:          qrcodes.DefaultDotStyle,
			CornerDotStyle:    qrcodes.DefaultCornerDotStyle,
			CornerSquareStyle: qrcodes.DefaultCornerSquareStyle,
			Color:             qrcodes.DefaultColor,
		})
		if err != nil {
			return nil, err
		}
		codes = append(codes, qr)
	}
	if len(codes) == 0 {
		return nil, errors.New("no qr codes to seed")
	}
	return codes, nil
}

func (s *Seeder) seedScans(ctx context.Context, codes []*qrcodes.QRCode) error {
	if s.ScanCount <= 0 {
		return nil
	}

	clients := sampleClients()
	countries := sampleCountries()
	days := max(s.Days, 1)
	today := timeframe.StartOfDay(s.now())

	records := make([]scans.ScanRecord, 0, s.ScanCount)
	for i := 0; i < s.ScanCount; i++ {
		client := clients[s.rand.IntN(len(clients))]
		offset := time.Duration(s.rand.Int64N(int64(days) * int64(24*time.Hour)))

		records = append(records, scans.ScanRecord{
			ID:              uuid.NewString(),
			QRCodeID:        codes[s.rand.IntN(len(codes))].ID,
			BrowserInfo:     client.Browser,
			OperatingSystem: client.OSFamily,
			DeviceType:      client.Device,
			Country:         countries[s.rand.IntN(len(countries))],
			CreatedAt:       today.AddDate(0, 0, -(days - 1)).Add(offset),
		})
	}

	err := models.PerformWrite(ctx, s.Logger, s.DBManager.GetConnection(), func(tx *gorm.DB) error {
		return tx.Omit("QRCode").CreateInBatches(records, insertBatchSize).Error
	})
	if err != nil {
		return err
	}

	s.Logger.Info("Seeded scans", slog.Int("count", len(records)), slog.Int("qr_codes", len(codes)))
	return nil
}

// sampleClients classifies a fixed set of user agents the same way live
// scans are classified.
func sampleClients() []scans.Client {
	userAgents := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Mobile/15E148 Safari/605.1",
		"Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Mobile Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36",
		"Mozilla/5.0 (iPad; CPU OS 16_1_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Mobile/15E148 Safari/605.1",
		"curl/7.81.0",
	}

	clients := make([]scans.Client, 0, len(userAgents))
	for _, ua := range userAgents {
		clients = append(clients, scans.Classify(scans.RequestMetadata{
			Headers: map[string]string{"user-agent": ua},
		}))
	}
	return clients
}

// sampleCountries resolves display names the way the geo resolver does for
// records without an English name, plus the unknown bucket.
func sampleCountries() []string {
	query := gountries.New()
	names := []string{scans.UnknownLabel}
	for _, iso := range []string{"US", "DE", "ES", "FR", "GB", "JP", "BR", "IN"} {
		if country, err := query.FindCountryByAlpha(iso); err == nil && country.Name.Common != "" {
			names = append(names, country.Name.Common)
		}
	}
	return names
}
