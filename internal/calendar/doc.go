// Package calendar holds the date rules the extractor depends on: which days
// count as weekend or public holiday, how far ahead a run looks, and how a
// year is attached to a year-less "<month>月<day>日" label.
package calendar
