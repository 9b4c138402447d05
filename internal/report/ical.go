package report

import (
	"fmt"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/meizi0715/bdt-v1.5/internal/crawler"
)

const productID = "-//slotwatch//availability//JA"

// slotSeparator splits "09:00～11:00".
const slotSeparator = "～"

// Calendar converts every open slot in r into a VEVENT. Slots whose label is
// not a time range are skipped. The result is nil when there is nothing to
// attach.
func Calendar(r crawler.Report, now time.Time) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)

	events := 0
	for _, loc := range r.Locations {
		for _, day := range loc.Availability.Days() {
			for _, slot := range day.Slots {
				start, end, err := SlotRange(day.Date, slot)
				if err != nil {
					continue
				}
				uid := fmt.Sprintf("%s-%s-%s@slotwatch",
					loc.Spec.ReserveA+loc.Spec.ReserveB+loc.Spec.Facility,
					start.Format("200601021504"), end.Format("1504"))
				ev := cal.AddEvent(uid)
				ev.SetDtStampTime(now)
				ev.SetStartAt(start)
				ev.SetEndAt(end)
				ev.SetSummary(loc.Spec.Name + " " + slot)
				ev.SetLocation(loc.Spec.Name)
				events++
			}
		}
	}
	if events == 0 {
		return nil, nil
	}
	return []byte(cal.Serialize()), nil
}

// SlotRange resolves a slot label on date into absolute start and end times
// in date's location.
func SlotRange(date time.Time, slot string) (time.Time, time.Time, error) {
	from, to, ok := strings.Cut(slot, slotSeparator)
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("slot %q: missing separator", slot)
	}
	start, err := clockOn(date, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("slot %q: %w", slot, err)
	}
	end, err := clockOn(date, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("slot %q: %w", slot, err)
	}
	return start, end, nil
}

func clockOn(date time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time of day: %w", err)
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}
