package timeframe

import (
	"fmt"
	"strings"
	"time"
)

// ParseDate reads a calendar date given as YYYY-MM-DD or RFC3339. Only the
// date part is kept.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if date, err := time.Parse(DateLayout, value); err == nil {
		return date, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC3339", value)
	}
	return StartOfDay(t), nil
}

type RangeParser struct {
	timeProvider TimeProvider
}

func NewRangeParser(timeProvider ...TimeProvider) *RangeParser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}
	return &RangeParser{timeProvider: provider}
}

// Today is the current UTC calendar day.
func (p *RangeParser) Today() time.Time {
	return StartOfDay(p.timeProvider.Now(time.UTC))
}

// Resolve fills in missing ends: the end defaults to today and the start to
// DefaultWindowDays-1 days before today, both in UTC.
func (p *RangeParser) Resolve(start, end *time.Time) (DayRange, error) {
	today := p.Today()

	from := today.AddDate(0, 0, -(DefaultWindowDays - 1))
	if start != nil {
		from = *start
	}
	to := today
	if end != nil {
		to = *end
	}
	return NewDayRange(from, to)
}
