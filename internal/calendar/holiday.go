package calendar

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/teambition/rrule-go"
)

// Holiday is one named non-working day.
type Holiday struct {
	Date time.Time
	Name string
}

type civil struct {
	y int
	m time.Month
	d int
}

func civilOf(t time.Time) civil {
	y, m, d := t.Date()
	return civil{y: y, m: m, d: d}
}

func (c civil) time(loc *time.Location) time.Time {
	return time.Date(c.y, c.m, c.d, 0, 0, 0, 0, loc)
}

type holidayRule struct {
	name  string
	rrule string
}

// National holidays as they have stood since 2020.
var nationalRules = []holidayRule{
	{name: "元日", rrule: "FREQ=YEARLY;BYMONTH=1;BYMONTHDAY=1"},
	{name: "成人の日", rrule: "FREQ=YEARLY;BYMONTH=1;BYDAY=2MO"},
	{name: "建国記念の日", rrule: "FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=11"},
	{name: "天皇誕生日", rrule: "FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=23"},
	{name: "昭和の日", rrule: "FREQ=YEARLY;BYMONTH=4;BYMONTHDAY=29"},
	{name: "憲法記念日", rrule: "FREQ=YEARLY;BYMONTH=5;BYMONTHDAY=3"},
	{name: "みどりの日", rrule: "FREQ=YEARLY;BYMONTH=5;BYMONTHDAY=4"},
	{name: "こどもの日", rrule: "FREQ=YEARLY;BYMONTH=5;BYMONTHDAY=5"},
	{name: "海の日", rrule: "FREQ=YEARLY;BYMONTH=7;BYDAY=3MO"},
	{name: "山の日", rrule: "FREQ=YEARLY;BYMONTH=8;BYMONTHDAY=11"},
	{name: "敬老の日", rrule: "FREQ=YEARLY;BYMONTH=9;BYDAY=3MO"},
	{name: "スポーツの日", rrule: "FREQ=YEARLY;BYMONTH=10;BYDAY=2MO"},
	{name: "文化の日", rrule: "FREQ=YEARLY;BYMONTH=11;BYMONTHDAY=3"},
	{name: "勤労感謝の日", rrule: "FREQ=YEARLY;BYMONTH=11;BYMONTHDAY=23"},
}

const (
	substituteName = "振替休日"
	citizensName   = "国民の休日"
	extraName      = "臨時休日"
)

// HolidayCalendar answers HolidayPolicy queries: weekend, Japanese national
// holiday, or one of the configured extra dates. Years are computed lazily and
// cached; the type is safe for concurrent use.
type HolidayCalendar struct {
	loc    *time.Location
	extras map[civil]struct{}

	mu    sync.Mutex
	years map[int]map[civil]string
}

// NewHolidayCalendar builds a calendar evaluated in loc with additional
// non-working dates.
func NewHolidayCalendar(loc *time.Location, extras []time.Time) *HolidayCalendar {
	if loc == nil {
		loc = time.UTC
	}
	ex := make(map[civil]struct{}, len(extras))
	for _, d := range extras {
		ex[civilOf(d)] = struct{}{}
	}
	return &HolidayCalendar{
		loc:    loc,
		extras: ex,
		years:  make(map[int]map[civil]string),
	}
}

// ParseExtraHolidays parses YYYY-MM-DD strings.
func ParseExtraHolidays(values []string, loc *time.Location) ([]time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]time.Time, 0, len(values))
	for _, v := range values {
		d, err := time.ParseInLocation(time.DateOnly, v, loc)
		if err != nil {
			return nil, fmt.Errorf("parse extra holiday %q: %w", v, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// IsHoliday reports whether d falls on Saturday, Sunday or a holiday.
func (c *HolidayCalendar) IsHoliday(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	key := civilOf(d)
	if _, ok := c.extras[key]; ok {
		return true
	}
	_, ok := c.year(key.y)[key]
	return ok
}

// Holidays lists the year's national, substitute, citizens' and extra
// holidays in date order. Weekends are not listed.
func (c *HolidayCalendar) Holidays(year int) []Holiday {
	days := c.year(year)
	out := make([]Holiday, 0, len(days)+len(c.extras))
	for k, name := range days {
		out = append(out, Holiday{Date: k.time(c.loc), Name: name})
	}
	for k := range c.extras {
		if k.y != year {
			continue
		}
		if _, dup := days[k]; dup {
			continue
		}
		out = append(out, Holiday{Date: k.time(c.loc), Name: extraName})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (c *HolidayCalendar) year(y int) map[civil]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if days, ok := c.years[y]; ok {
		return days
	}
	days := computeYear(y, c.loc)
	c.years[y] = days
	return days
}

func computeYear(y int, loc *time.Location) map[civil]string {
	start := time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	end := time.Date(y, time.December, 31, 23, 59, 59, 0, loc)

	days := make(map[civil]string, 20)
	for _, hr := range nationalRules {
		r, err := rrule.StrToRRule(hr.rrule)
		if err != nil {
			// Rules are constants; a parse failure is a programming error.
			panic(fmt.Sprintf("calendar: rule %s: %v", hr.name, err))
		}
		r.DTStart(start)
		var set rrule.Set
		set.RRule(r)
		for _, occ := range set.Between(start, end, true) {
			days[civilOf(occ)] = hr.name
		}
	}
	days[civil{y: y, m: time.March, d: vernalEquinoxDay(y)}] = "春分の日"
	days[civil{y: y, m: time.September, d: autumnalEquinoxDay(y)}] = "秋分の日"

	national := make([]civil, 0, len(days))
	for k := range days {
		national = append(national, k)
	}
	sort.Slice(national, func(i, j int) bool {
		return national[i].time(loc).Before(national[j].time(loc))
	})

	// A weekday squeezed between two national holidays is itself a holiday.
	for i := 0; i+1 < len(national); i++ {
		a := national[i].time(loc)
		b := national[i+1].time(loc)
		if b.Sub(a) != 48*time.Hour {
			continue
		}
		mid := civilOf(a.AddDate(0, 0, 1))
		if _, taken := days[mid]; !taken {
			days[mid] = citizensName
		}
	}

	// A national holiday on Sunday moves to the next day that is not one.
	for _, k := range national {
		t := k.time(loc)
		if t.Weekday() != time.Sunday {
			continue
		}
		next := t.AddDate(0, 0, 1)
		for {
			if _, taken := days[civilOf(next)]; !taken {
				break
			}
			next = next.AddDate(0, 0, 1)
		}
		days[civilOf(next)] = substituteName
	}
	return days
}

// Equinox approximations hold for 1980-2099.
func vernalEquinoxDay(y int) int {
	return int(20.8431 + 0.242194*float64(y-1980) - float64((y-1980)/4))
}

func autumnalEquinoxDay(y int) int {
	return int(23.2488 + 0.242194*float64(y-1980) - float64((y-1980)/4))
}
