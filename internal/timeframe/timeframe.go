package timeframe

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the user-facing format of a daily bucket.
const DateLayout = "2006-01-02"

// DailyBucketFormat groups SQLite timestamps by UTC calendar day.
const DailyBucketFormat = "%Y-%m-%d"

// DefaultWindowDays is the length of the range used when no start is given.
const DefaultWindowDays = 30

// ErrEndBeforeStart is returned for ranges whose last day precedes the first.
var ErrEndBeforeStart = errors.New("end date is before start date")

type DateStat struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// StartOfDay returns UTC midnight of the calendar date t carries in its own
// location. The time of day is ignored.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DayRange is an inclusive range of UTC calendar days.
type DayRange struct {
	Start time.Time
	End   time.Time
}

// NewDayRange truncates both ends to calendar days.
func NewDayRange(start, end time.Time) (DayRange, error) {
	r := DayRange{Start: StartOfDay(start), End: StartOfDay(end)}
	if r.End.Before(r.Start) {
		return DayRange{}, fmt.Errorf("%w: %s < %s", ErrEndBeforeStart,
			r.End.Format(DateLayout), r.Start.Format(DateLayout))
	}
	return r, nil
}

// From is the inclusive lower bound for timestamp queries.
func (r DayRange) From() time.Time {
	return r.Start
}

// Until is the exclusive upper bound: midnight after the last day.
func (r DayRange) Until() time.Time {
	return r.End.AddDate(0, 0, 1)
}

// Days is the number of calendar days in the range.
func (r DayRange) Days() int {
	return int(r.Until().Sub(r.Start) / (24 * time.Hour))
}

// DailyGroupExpression buckets column by UTC day in SQLite.
func DailyGroupExpression(column string) string {
	return fmt.Sprintf("strftime('%s', %s)", DailyBucketFormat, column)
}

// GenerateDatePoints lists every day of the range in ascending order.
func (r DayRange) GenerateDatePoints() []string {
	points := make([]string, 0, r.Days())
	for day := r.Start; day.Before(r.Until()); day = day.AddDate(0, 0, 1) {
		points = append(points, day.Format(DateLayout))
	}
	return points
}

// BuildTimeSeriesPoints returns one point per day of the range, taking counts
// from groupedResults and filling missing days with zero.
func (r DayRange) BuildTimeSeriesPoints(groupedResults []DateStat) []DateStat {
	resultsMap := make(map[string]int, len(groupedResults))
	for _, result := range groupedResults {
		resultsMap[normalizeDBDate(result.Date)] += result.Count
	}

	points := r.GenerateDatePoints()
	results := make([]DateStat, len(points))
	for i, date := range points {
		results[i] = DateStat{Date: date, Count: resultsMap[date]}
	}
	return results
}

// normalizeDBDate keeps only YYYY-MM-DD.
func normalizeDBDate(dateStr string) string {
	if len(dateStr) >= 10 {
		return dateStr[:10]
	}
	return dateStr
}
