package calendar

import "time"

// Cutoff returns the last calendar day of the month after now's month, at
// midnight in now's zone.
func Cutoff(now time.Time) time.Time {
	y, m, _ := now.Date()
	// Day 0 of month m+2 normalizes to the last day of month m+1.
	return time.Date(y, m+2, 0, 0, 0, 0, 0, now.Location())
}

// InWindow reports whether date is on or before cutoff, comparing calendar
// days only.
func InWindow(date, cutoff time.Time) bool {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, cutoff.Location())
	cy, cm, cd := cutoff.Date()
	return !day.After(time.Date(cy, cm, cd, 0, 0, 0, 0, cutoff.Location()))
}
