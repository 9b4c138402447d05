// Package schedule matches run start times against cron-expressed windows,
// such as the forced daily send just after midnight.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultForcedWindow covers the first ten minutes after midnight.
	DefaultForcedWindow = "0-9 0 * * *"
	// DefaultPruneWindow covers the first ten minutes of every hour.
	DefaultPruneWindow = "0-9 * * * *"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Window is a set of wall-clock minutes described by a five-field cron spec.
type Window struct {
	spec     string
	schedule cron.Schedule
}

// Parse compiles a cron spec into a Window.
func Parse(spec string) (Window, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return Window{}, fmt.Errorf("parse window %q: %w", spec, err)
	}
	return Window{spec: spec, schedule: sched}, nil
}

// MustParse is Parse for compile-time constants.
func MustParse(spec string) Window {
	w, err := Parse(spec)
	if err != nil {
		panic(err)
	}
	return w
}

// Contains reports whether t's minute is one the spec fires on. The match is
// evaluated in t's own zone.
func (w Window) Contains(t time.Time) bool {
	if w.schedule == nil {
		return false
	}
	minute := t.Truncate(time.Minute)
	return w.schedule.Next(minute.Add(-time.Second)).Equal(minute)
}

// String returns the source spec.
func (w Window) String() string {
	return w.spec
}
