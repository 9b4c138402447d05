package crawler

import (
	"context"
	"time"
)

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// HolidayPolicy decides whether a date uses the weekend/holiday slot table.
type HolidayPolicy interface {
	IsHoliday(date time.Time) bool
}

// Surface is the rendered frame a session drives. Selectors are CSS.
type Surface interface {
	// WaitVisible blocks until selector matches a rendered element.
	WaitVisible(ctx context.Context, selector string) error
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// ClickExpectDialog clicks and reports whether a native dialog opened
	// (and was accepted) within timeout.
	ClickExpectDialog(ctx context.Context, selector string, timeout time.Duration) (bool, error)
	// Check ticks a checkbox.
	Check(ctx context.Context, selector string) error
	// SelectOption picks value in a dropdown and fires its change handler.
	SelectOption(ctx context.Context, selector, value string) error
	// InnerHTML reads the first match's inner HTML.
	InnerHTML(ctx context.Context, selector string) (string, error)
	// DocumentHTML reads the whole frame document.
	DocumentHTML(ctx context.Context) (string, error)
}

// Session is one browser session. Close must be called on every exit path.
type Session interface {
	Open(ctx context.Context, url string) (Surface, error)
	Close() error
}

// Browser starts sessions.
type Browser interface {
	NewSession(ctx context.Context, label string) (Session, error)
}

// GridReader turns the current grid into availability.
type GridReader interface {
	Extract(ctx context.Context, surface Surface, now time.Time) (*AvailabilityMap, error)
}

// Waiter blocks until a fragment's content differs from previous.
type Waiter interface {
	WaitForChange(ctx context.Context, surface Surface, selector, previous, label string) (string, error)
}

// Observer receives crawl events for metrics.
type Observer interface {
	LocationFinished(label, name, result string)
	WaitTimedOut(label string)
	SessionFinished(label string, elapsed time.Duration, err error)
}

// Location results reported to Observer.
const (
	ResultFound     = "found"
	ResultEmpty     = "empty"
	ResultTimeout   = "timeout"
	ResultMalformed = "malformed"
)

// NopObserver discards events.
type NopObserver struct{}

// LocationFinished implements Observer.
func (NopObserver) LocationFinished(string, string, string) {}

// WaitTimedOut implements Observer.
func (NopObserver) WaitTimedOut(string) {}

// SessionFinished implements Observer.
func (NopObserver) SessionFinished(string, time.Duration, error) {}
