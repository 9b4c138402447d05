package crawler

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/meizi0715/bdt-v1.5/internal/calendar"
)

var dateLabelPattern = regexp.MustCompile(`(\d{1,2})月(\d{1,2})日`)

// ExtractorConfig describes how the grid marks an open cell.
type ExtractorConfig struct {
	// DayHeaderPrefix is the id prefix of day header cells, e.g. "Day_".
	DayHeaderPrefix string
	// MarkerAlt is the alt text of an "available" icon.
	MarkerAlt string
	// MarkerSources lists the icon src values that count as available.
	MarkerSources []string
	// MarkerCall is the JS function named in the icon's enclosing link,
	// called as name(day,row,col).
	MarkerCall string
}

// DefaultExtractorConfig matches the reservation site's markup.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		DayHeaderPrefix: "Day_",
		MarkerAlt:       "予約可能",
		MarkerSources:   []string{"../image/s_empty.gif", "../image/s_empty4.gif"},
		MarkerCall:      "komaClicked",
	}
}

// GridExtractor parses the displayed week into an AvailabilityMap.
type GridExtractor struct {
	headerSelector string
	markerSelector string
	prefix         string
	call           *regexp.Regexp
	slots          TimeSlotTable
	holidays       HolidayPolicy
	years          calendar.YearPolicy
}

// NewGridExtractor validates cfg and builds an extractor.
func NewGridExtractor(cfg ExtractorConfig, slots TimeSlotTable, holidays HolidayPolicy, years calendar.YearPolicy) (*GridExtractor, error) {
	if cfg.DayHeaderPrefix == "" {
		return nil, fmt.Errorf("day header prefix is required")
	}
	if cfg.MarkerAlt == "" || len(cfg.MarkerSources) == 0 {
		return nil, fmt.Errorf("marker alt and sources are required")
	}
	if cfg.MarkerCall == "" {
		return nil, fmt.Errorf("marker call name is required")
	}
	if holidays == nil {
		return nil, fmt.Errorf("holiday policy is required")
	}
	markers := make([]string, 0, len(cfg.MarkerSources))
	for _, src := range cfg.MarkerSources {
		markers = append(markers, fmt.Sprintf("img[alt=%q][src=%q]", cfg.MarkerAlt, src))
	}
	return &GridExtractor{
		headerSelector: fmt.Sprintf("th[id^=%q]", cfg.DayHeaderPrefix),
		markerSelector: strings.Join(markers, ", "),
		prefix:         cfg.DayHeaderPrefix,
		call:           regexp.MustCompile(regexp.QuoteMeta(cfg.MarkerCall) + `\((\d+),(\d+),(\d+)\)`),
		slots:          slots,
		holidays:       holidays,
		years:          years,
	}, nil
}

// Extract reads the surface's frame document and parses it.
func (e *GridExtractor) Extract(ctx context.Context, surface Surface, now time.Time) (*AvailabilityMap, error) {
	html, err := surface.DocumentHTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read grid: %w", ErrSurface, err)
	}
	return e.Parse(html, now)
}

// Parse extracts availability from a grid document. Markers are assumed to be
// in date order: the first marker past the cutoff ends the scan.
func (e *GridExtractor) Parse(html string, now time.Time) (*AvailabilityMap, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse grid html: %w", ErrSurface, err)
	}

	days := make(map[string]string)
	doc.Find(e.headerSelector).Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("id")
		text := strings.TrimSpace(s.Text())
		if !ok || id == "" || text == "" {
			return
		}
		days[strings.TrimPrefix(id, e.prefix)] = text
	})

	cutoff := calendar.Cutoff(now)
	result := NewAvailabilityMap()
	var parseErr error
	doc.Find(e.markerSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Parent().Attr("href")
		if !ok {
			return true
		}
		m := e.call.FindStringSubmatch(href)
		if m == nil {
			return true
		}
		label, ok := days[m[1]]
		if !ok {
			return true
		}
		date, err := e.resolveDate(label, now)
		if err != nil {
			parseErr = err
			return false
		}
		if !calendar.InWindow(date, cutoff) {
			return false
		}
		row, err := strconv.Atoi(m[2])
		if err != nil {
			return true
		}
		if slot, ok := e.slots.Slot(row, e.holidays.IsHoliday(date)); ok {
			result.Add(label, date, slot)
		}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return result, nil
}

func (e *GridExtractor) resolveDate(label string, now time.Time) (time.Time, error) {
	m := dateLabelPattern.FindStringSubmatch(label)
	if m == nil {
		return time.Time{}, &DateParseError{Text: label}
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 || day < 1 {
		return time.Time{}, &DateParseError{Text: label}
	}
	date := e.years.Resolve(now, time.Month(month), day)
	if date.Month() != time.Month(month) || date.Day() != day {
		return time.Time{}, &DateParseError{Text: label}
	}
	return date, nil
}
