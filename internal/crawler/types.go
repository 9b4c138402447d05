package crawler

import (
	"strings"
	"time"
)

// Sentinel codes used by the site's configuration tuples.
const (
	// NoCategory marks a LocationSpec that joins its label's session but never
	// opens one itself.
	NoCategory = "000000"
	// NoFacility means no facility dropdown selection is needed.
	NoFacility = "000"
	// FirstPage is the location list page reachable without paging.
	FirstPage = "0"
)

// LocationSpec identifies one crawl target.
type LocationSpec struct {
	// Category is the purpose checkbox code.
	Category string `mapstructure:"category" yaml:"category"`
	// ReserveA and ReserveB are the arguments of the reservation button's
	// click handler. ReserveA doubles as the room dropdown value.
	ReserveA string `mapstructure:"reserve_a" yaml:"reserve_a"`
	ReserveB string `mapstructure:"reserve_b" yaml:"reserve_b"`
	Facility string `mapstructure:"facility" yaml:"facility"`
	Page     string `mapstructure:"page" yaml:"page"`
	Label    string `mapstructure:"label" yaml:"label"`
	Name     string `mapstructure:"name" yaml:"name"`
}

// StartsSession reports whether the spec carries navigation codes.
func (s LocationSpec) StartsSession() bool {
	return s.Category != NoCategory
}

// HasFacility reports whether a facility dropdown selection applies.
func (s LocationSpec) HasFacility() bool {
	return s.Facility != "" && s.Facility != NoFacility
}

// OnFirstPage reports whether the location button is on the first list page.
func (s LocationSpec) OnFirstPage() bool {
	return s.Page == "" || s.Page == FirstPage
}

// LabelGroup is every LocationSpec sharing one browser session.
type LabelGroup struct {
	Label string
	// Entry supplies the navigation codes used to open the calendar.
	Entry LocationSpec
	Specs []LocationSpec
}

// GroupByLabel groups specs by label in order of first appearance. Labels
// without any session-starting spec are dropped.
func GroupByLabel(specs []LocationSpec) []LabelGroup {
	index := make(map[string]int)
	groups := make([]LabelGroup, 0)
	hasEntry := make([]bool, 0)
	for _, spec := range specs {
		i, ok := index[spec.Label]
		if !ok {
			i = len(groups)
			index[spec.Label] = i
			groups = append(groups, LabelGroup{Label: spec.Label})
			hasEntry = append(hasEntry, false)
		}
		groups[i].Specs = append(groups[i].Specs, spec)
		if !hasEntry[i] && spec.StartsSession() {
			groups[i].Entry = spec
			hasEntry[i] = true
		}
	}
	out := groups[:0]
	for i, g := range groups {
		if hasEntry[i] {
			out = append(out, g)
		}
	}
	return out
}

// DayAvailability is one date's open slots.
type DayAvailability struct {
	// Label is the date text as displayed by the grid header.
	Label string
	Date  time.Time
	Slots []string
}

// AvailabilityMap maps date labels to slots, keeping insertion order.
type AvailabilityMap struct {
	order []string
	days  map[string]*DayAvailability
}

// NewAvailabilityMap returns an empty map.
func NewAvailabilityMap() *AvailabilityMap {
	return &AvailabilityMap{days: make(map[string]*DayAvailability)}
}

// Add appends slot to the label's list, creating the entry if needed.
func (m *AvailabilityMap) Add(label string, date time.Time, slot string) {
	day, ok := m.days[label]
	if !ok {
		day = &DayAvailability{Label: label, Date: date}
		m.days[label] = day
		m.order = append(m.order, label)
	}
	day.Slots = append(day.Slots, slot)
}

// Merge appends other's slots after m's. Labels already present keep their
// position and gain other's slots at the end.
func (m *AvailabilityMap) Merge(other *AvailabilityMap) {
	if other == nil {
		return
	}
	for _, label := range other.order {
		day := other.days[label]
		for _, slot := range day.Slots {
			m.Add(label, day.Date, slot)
		}
	}
}

// Len returns the number of dates.
func (m *AvailabilityMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Days returns a copy of the entries in insertion order.
func (m *AvailabilityMap) Days() []DayAvailability {
	if m == nil {
		return nil
	}
	out := make([]DayAvailability, 0, len(m.order))
	for _, label := range m.order {
		day := m.days[label]
		out = append(out, DayAvailability{
			Label: day.Label,
			Date:  day.Date,
			Slots: append([]string(nil), day.Slots...),
		})
	}
	return out
}

// LocationReport is the merged two-week result for one spec in one pass.
type LocationReport struct {
	Spec LocationSpec
	// Pass is 0 for the current four-week block and 1 for the following one.
	Pass         int
	Availability *AvailabilityMap
}

// Lines renders the header and one line per date. Empty availability yields
// no lines at all.
func (r LocationReport) Lines() []string {
	if r.Availability.Len() == 0 {
		return nil
	}
	days := r.Availability.Days()
	lines := make([]string, 0, len(days)+1)
	lines = append(lines, HeaderLine(r.Spec.Name))
	for _, d := range days {
		lines = append(lines, DayLine(d))
	}
	return lines
}

// HeaderLine formats a location header.
func HeaderLine(name string) string {
	return "【" + name + "】"
}

// IsHeaderLine reports whether line is a location header.
func IsHeaderLine(line string) bool {
	return strings.HasPrefix(line, "【")
}

// DayLine formats one date and its slots.
func DayLine(d DayAvailability) string {
	return "・" + d.Label + " - " + strings.Join(d.Slots, "、")
}

// Outcome is one label's crawl result. Err distinguishes a failed crawl from
// an empty but successful one.
type Outcome struct {
	Label    string
	Reports  []LocationReport
	Err      error
	Duration time.Duration
}

// Failed reports whether the label's crawl failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Report is the concatenation of all successful labels in configuration
// order.
type Report struct {
	Locations []LocationReport
	Failed    []string
}

// BuildReport concatenates outcomes, which must already be in configuration
// order.
func BuildReport(outcomes []Outcome) Report {
	var r Report
	for _, o := range outcomes {
		if o.Failed() {
			r.Failed = append(r.Failed, o.Label)
			continue
		}
		r.Locations = append(r.Locations, o.Reports...)
	}
	return r
}

// HadErrors reports whether any label failed.
func (r Report) HadErrors() bool {
	return len(r.Failed) > 0
}

// Lines renders every location in order.
func (r Report) Lines() []string {
	var lines []string
	for _, loc := range r.Locations {
		lines = append(lines, loc.Lines()...)
	}
	return lines
}

// Empty reports whether the report has no lines.
func (r Report) Empty() bool {
	for _, loc := range r.Locations {
		if loc.Availability.Len() > 0 {
			return false
		}
	}
	return true
}
