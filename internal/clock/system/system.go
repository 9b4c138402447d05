// Package system provides a real clock implementation.
package system

import (
	"fmt"
	"time"
)

// DefaultZone is the zone every run-wide time read is evaluated in.
const DefaultZone = "Asia/Tokyo"

// Clock implements crawler.Clock using time.Now in a fixed zone.
type Clock struct {
	loc *time.Location
}

// New creates a Clock pinned to loc. A nil loc falls back to UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// NewInZone loads the named zone and returns a Clock pinned to it.
func NewInZone(name string) (*Clock, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load zone %q: %w", name, err)
	}
	return New(loc), nil
}

// Now returns the current time in the clock's zone.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location reports the zone the clock reads in.
func (c *Clock) Location() *time.Location {
	return c.loc
}
