package crawler

// TimeSlotTable maps grid row indexes to slot labels.
type TimeSlotTable struct {
	// Daytime rows are reported on weekends and holidays only.
	Daytime map[int]string
	// EveningRow is reported on every date.
	EveningRow  int
	EveningSlot string
}

// DefaultSlots is the reservation site's two-hour block layout.
func DefaultSlots() TimeSlotTable {
	return TimeSlotTable{
		Daytime: map[int]string{
			0: "09:00～11:00",
			1: "11:00～13:00",
			2: "13:00～15:00",
			3: "15:00～17:00",
			4: "17:00～19:00",
		},
		EveningRow:  5,
		EveningSlot: "19:00～21:00",
	}
}

// Slot resolves a row. Weekday daytime rows resolve to nothing.
func (t TimeSlotTable) Slot(row int, holiday bool) (string, bool) {
	if holiday {
		if slot, ok := t.Daytime[row]; ok {
			return slot, true
		}
	}
	if row == t.EveningRow && t.EveningSlot != "" {
		return t.EveningSlot, true
	}
	return "", false
}
