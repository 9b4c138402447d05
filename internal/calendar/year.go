package calendar

import (
	"fmt"
	"time"
)

// YearPolicy decides which year a year-less month/day label belongs to.
type YearPolicy string

const (
	// YearCurrent always uses the clock's year.
	YearCurrent YearPolicy = "current"
	// YearNearest rolls a month more than six months behind the clock into
	// the next year, so "1月5日" read in December resolves forward.
	YearNearest YearPolicy = "nearest"
)

// ParseYearPolicy validates a configured policy name. Empty selects
// YearCurrent.
func ParseYearPolicy(s string) (YearPolicy, error) {
	switch YearPolicy(s) {
	case "", YearCurrent:
		return YearCurrent, nil
	case YearNearest:
		return YearNearest, nil
	default:
		return "", fmt.Errorf("unknown year policy %q", s)
	}
}

// Resolve attaches a year to month/day relative to now. The result is
// midnight in now's zone.
func (p YearPolicy) Resolve(now time.Time, month time.Month, day int) time.Time {
	year := now.Year()
	if p == YearNearest && int(now.Month())-int(month) > 6 {
		year++
	}
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
}
