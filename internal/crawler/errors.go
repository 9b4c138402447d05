package crawler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout marks a ChangeWaiter wait that exceeded its bound.
	ErrTimeout = errors.New("wait for change timed out")
	// ErrDateParse marks a grid header whose date text is malformed.
	ErrDateParse = errors.New("malformed date label")
	// ErrSession marks a missing frame or control during navigation.
	ErrSession = errors.New("session failure")
	// ErrSurface marks a failed read of the rendering surface.
	ErrSurface = errors.New("rendering surface unavailable")
)

// TimeoutError identifies which label's wait ran out.
type TimeoutError struct {
	Label    string
	Selector string
	Timeout  time.Duration
	// Last is the most recent read error, if polling also failed to read.
	Last error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("%s: %s unchanged after %s", e.Label, e.Selector, e.Timeout)
	if e.Last != nil {
		msg += fmt.Sprintf(" (last read error: %v)", e.Last)
	}
	return msg
}

// Unwrap lets errors.Is match ErrTimeout.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// DateParseError carries the offending header text.
type DateParseError struct {
	Text string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("malformed date label %q", e.Text)
}

// Unwrap lets errors.Is match ErrDateParse.
func (e *DateParseError) Unwrap() error {
	return ErrDateParse
}
