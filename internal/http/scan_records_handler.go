package http

import (
	"strings"
	"time"

	"qrlink/internal/apperr"
	"qrlink/internal/models"
	"qrlink/internal/scans"
	"qrlink/internal/timeframe"
)

// ScanRecordsIndexAction lists scans of one of the caller's QR codes.
func ScanRecordsIndexAction(ctx *Context) error {
	start, end, err := ctx.dateRangeQuery()
	if err != nil {
		return respondError(ctx, err)
	}

	page, err := ctx.Scans.List(ctx.UserContext(), ctx.CallerID(), scans.ListParams{
		QRCodeID:   ctx.Query("qrCodeId"),
		StartDate:  start,
		EndDate:    end,
		SortBy:     ctx.Query("sortBy"),
		Descending: ctx.QueryBool("descending", false),
		Page:       ctx.QueryInt("page", 1),
		PageSize:   ctx.QueryInt("pageSize", models.DefaultPageSize),
	})
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(page)
}

// ScanAnalyticsAction reports scan analytics of one of the caller's QR
// codes.
func ScanAnalyticsAction(ctx *Context) error {
	start, end, err := ctx.dateRangeQuery()
	if err != nil {
		return respondError(ctx, err)
	}

	result, err := ctx.Analytics.GetAnalytics(ctx.UserContext(), ctx.Query("qrCodeId"), ctx.CallerID(), start, end)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(result)
}

// dateRangeQuery reads the optional startDate and endDate parameters.
func (ctx *Context) dateRangeQuery() (*time.Time, *time.Time, error) {
	fields := map[string][]string{}

	parse := func(name string) *time.Time {
		raw := strings.TrimSpace(ctx.Query(name))
		if raw == "" {
			return nil
		}
		date, err := timeframe.ParseDate(raw)
		if err != nil {
			fields[name] = append(fields[name], "must be a date (YYYY-MM-DD) or RFC3339 timestamp")
			return nil
		}
		return &date
	}

	start, end := parse("startDate"), parse("endDate")
	if len(fields) > 0 {
		return nil, nil, apperr.ValidationFields(fields)
	}
	return start, end, nil
}
