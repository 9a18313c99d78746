package analytics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"qrlink/internal/scans"
)

// Dimension is a scan attribute analytics can be broken down by.
type Dimension string

const (
	DimensionCountry         Dimension = "country"
	DimensionOperatingSystem Dimension = "operating_system"
	DimensionBrowser         Dimension = "browser_info"
	DimensionDeviceType      Dimension = "device_type"
)

// GetBreakdown counts scans in the range per value of the dimension. Blank
// values are merged into a single "Unknown" bucket. Results are sorted by
// count descending, then by name.
func GetBreakdown(db *gorm.DB, params QRCodeScopedQueryParams, dim Dimension) ([]MetricCountResult, error) {
	column := string(dim)
	switch dim {
	case DimensionCountry, DimensionOperatingSystem, DimensionBrowser, DimensionDeviceType:
	default:
		return nil, fmt.Errorf("unknown breakdown dimension %q", dim)
	}

	var rawResults []struct {
		Label string
		Count int64
	}
	err := params.periodScope(db).
		Select("COALESCE(CAST(" + column + " AS TEXT), '') AS label, COUNT(*) AS count").
		Group(column).
		Scan(&rawResults).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching %s breakdown: %w", dim, err)
	}

	counts := make(map[string]int64, len(rawResults))
	for _, r := range rawResults {
		counts[label(dim, r.Label)] += r.Count
	}
	return sortedResults(counts), nil
}

func label(dim Dimension, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return scans.UnknownLabel
	}
	if dim == DimensionDeviceType {
		code, err := strconv.Atoi(raw)
		if err != nil {
			return scans.UnknownLabel
		}
		return scans.DeviceType(code).String()
	}
	return raw
}

func sortedResults(counts map[string]int64) []MetricCountResult {
	results := make([]MetricCountResult, 0, len(counts))
	for name, count := range counts {
		results = append(results, MetricCountResult{Name: name, Count: count})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].Name < results[j].Name
	})
	return results
}
