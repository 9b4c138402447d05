package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYearPolicyResolve(t *testing.T) {
	t.Parallel()

	lateDecember := time.Date(2025, time.December, 28, 12, 0, 0, 0, time.UTC)
	midYear := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		policy YearPolicy
		now    time.Time
		month  time.Month
		day    int
		want   string
	}{
		{name: "current keeps year across boundary", policy: YearCurrent, now: lateDecember, month: time.January, day: 5, want: "2025-01-05"},
		{name: "nearest rolls january forward", policy: YearNearest, now: lateDecember, month: time.January, day: 5, want: "2026-01-05"},
		{name: "nearest keeps same month", policy: YearNearest, now: lateDecember, month: time.December, day: 30, want: "2025-12-30"},
		{name: "nearest keeps close months", policy: YearNearest, now: midYear, month: time.January, day: 2, want: "2025-01-02"},
		{name: "current mid year", policy: YearCurrent, now: midYear, month: time.July, day: 1, want: "2025-07-01"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := tc.policy.Resolve(tc.now, tc.month, tc.day)
			assert.Equal(t, tc.want, got.Format(time.DateOnly))
		})
	}
}

func TestParseYearPolicy(t *testing.T) {
	t.Parallel()

	p, err := ParseYearPolicy("")
	require.NoError(t, err)
	assert.Equal(t, YearCurrent, p)

	p, err = ParseYearPolicy("nearest")
	require.NoError(t, err)
	assert.Equal(t, YearNearest, p)

	_, err = ParseYearPolicy("closest")
	require.Error(t, err)
}
