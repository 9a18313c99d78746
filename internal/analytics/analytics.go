// Package analytics aggregates scan records into per-QR-code reports.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"qrlink/internal/apperr"
	"qrlink/internal/models"
	"qrlink/internal/pkg/async"
	"qrlink/internal/qrcodes"
	"qrlink/internal/timeframe"
)

// Result is the analytics report of one QR code.
type Result struct {
	DailyScans         []timeframe.DateStat `json:"dailyScans"`
	Countries          []MetricCountResult  `json:"countries"`
	OperatingSystems   []MetricCountResult  `json:"operatingSystems"`
	Browsers           []MetricCountResult  `json:"browsers"`
	DeviceTypes        []MetricCountResult  `json:"deviceTypes"`
	TotalScansInPeriod int64                `json:"totalScansInPeriod"`
	LifetimeScans      int64                `json:"lifetimeScans"`
	StartDate          string               `json:"startDate"`
	EndDate            string               `json:"endDate"`
}

// Service answers analytics queries. It only reads.
type Service struct {
	conn   models.Connector
	logger *slog.Logger
	parser *timeframe.RangeParser
}

func NewService(conn models.Connector, logger *slog.Logger, timeProvider ...timeframe.TimeProvider) *Service {
	return &Service{
		conn:   conn,
		logger: logger,
		parser: timeframe.NewRangeParser(timeProvider...),
	}
}

// GetAnalytics reports on qrCodeID for callerID. Missing dates default to
// the last 30 days ending today (UTC); both ends are inclusive calendar
// days. The QR code must exist before ownership is checked.
func (s *Service) GetAnalytics(ctx context.Context, qrCodeID, callerID string, startDate, endDate *time.Time) (*Result, error) {
	db := s.conn.GetConnection().WithContext(ctx)

	qr, err := qrcodes.Find(ctx, db, qrCodeID)
	if err != nil {
		return nil, err
	}
	if !qrcodes.IsOwner(qr, callerID) {
		return nil, apperr.Forbidden()
	}

	dayRange, err := s.parser.Resolve(startDate, endDate)
	if err != nil {
		if errors.Is(err, timeframe.ErrEndBeforeStart) {
			return nil, apperr.Validation("endDate", "must be on or after startDate")
		}
		return nil, err
	}

	params := NewQRCodeScopedQueryParams(qr.ID, dayRange)

	tasks := []async.Task{
		{
			Name: "lifetimeScans",
			Execute: func() (interface{}, error) {
				return GetLifetimeScans(db, qr.ID)
			},
		},
		{
			Name: "totalScansInPeriod",
			Execute: func() (interface{}, error) {
				return GetTotalScansInPeriod(db, params)
			},
		},
		{
			Name: "dailyScans",
			Execute: func() (interface{}, error) {
				return GetDailyScans(db, params)
			},
		},
	}
	for name, dim := range map[string]Dimension{
		"countries":        DimensionCountry,
		"operatingSystems": DimensionOperatingSystem,
		"browsers":         DimensionBrowser,
		"deviceTypes":      DimensionDeviceType,
	} {
		tasks = append(tasks, async.Task{
			Name: name,
			Execute: func() (interface{}, error) {
				return GetBreakdown(db, params, dim)
			},
		})
	}

	results := async.NewGroup(4).Run(ctx, tasks)
	for name, result := range results {
		if result.Err != nil {
			s.logger.Error("Error computing scan analytics",
				slog.String("qr_code_id", qr.ID),
				slog.String("metric", name),
				slog.Any("error", result.Err))
			return nil, fmt.Errorf("error fetching %s: %w", name, result.Err)
		}
	}

	return &Result{
		DailyScans:         results["dailyScans"].Data.([]timeframe.DateStat),
		Countries:          results["countries"].Data.([]MetricCountResult),
		OperatingSystems:   results["operatingSystems"].Data.([]MetricCountResult),
		Browsers:           results["browsers"].Data.([]MetricCountResult),
		DeviceTypes:        results["deviceTypes"].Data.([]MetricCountResult),
		TotalScansInPeriod: results["totalScansInPeriod"].Data.(int64),
		LifetimeScans:      results["lifetimeScans"].Data.(int64),
		StartDate:          dayRange.Start.Format(timeframe.DateLayout),
		EndDate:            dayRange.End.Format(timeframe.DateLayout),
	}, nil
}
