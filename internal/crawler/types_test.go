package crawler

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupByLabelKeepsFirstAppearanceOrder(t *testing.T) {
	t.Parallel()

	specs := []LocationSpec{
		{Category: "100", ReserveA: "a1", Label: "north", Name: "North Hall A"},
		{Category: "200", ReserveA: "b1", Label: "south", Name: "South Hall"},
		{Category: NoCategory, ReserveA: "a2", Label: "north", Name: "North Hall B"},
		{Category: NoCategory, ReserveA: "x", Label: "orphan", Name: "No Entry"},
	}

	groups := GroupByLabel(specs)
	require.Len(t, groups, 2)
	assert.Equal(t, "north", groups[0].Label)
	assert.Equal(t, "a1", groups[0].Entry.ReserveA)
	assert.Len(t, groups[0].Specs, 2)
	assert.Equal(t, "North Hall B", groups[0].Specs[1].Name)
	assert.Equal(t, "south", groups[1].Label)
}

func TestGroupByLabelEntryMayFollowSentinel(t *testing.T) {
	t.Parallel()

	groups := GroupByLabel([]LocationSpec{
		{Category: NoCategory, ReserveA: "a0", Label: "east", Name: "East 0"},
		{Category: "300", ReserveA: "a1", Label: "east", Name: "East 1"},
	})
	require.Len(t, groups, 1)
	assert.Equal(t, "a1", groups[0].Entry.ReserveA)
	assert.Equal(t, "East 0", groups[0].Specs[0].Name)
}

func TestLocationSpecPredicates(t *testing.T) {
	t.Parallel()

	spec := LocationSpec{Category: "1", Facility: NoFacility, Page: "0"}
	assert.True(t, spec.StartsSession())
	assert.False(t, spec.HasFacility())
	assert.True(t, spec.OnFirstPage())

	spec = LocationSpec{Category: NoCategory, Facility: "012", Page: "1"}
	assert.False(t, spec.StartsSession())
	assert.True(t, spec.HasFacility())
	assert.False(t, spec.OnFirstPage())
}

func TestAvailabilityMapMergeAppendsOnCollision(t *testing.T) {
	t.Parallel()

	d1 := time.Date(2025, 1, 18, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 1, 19, 0, 0, 0, 0, time.UTC)

	weekA := NewAvailabilityMap()
	weekA.Add("1月18日", d1, "09:00～11:00")
	weekA.Add("1月19日", d2, "19:00～21:00")

	weekB := NewAvailabilityMap()
	weekB.Add("1月19日", d2, "09:00～11:00")
	weekB.Add("1月25日", d2.AddDate(0, 0, 6), "11:00～13:00")

	weekA.Merge(weekB)
	weekA.Merge(nil)

	got := weekA.Days()
	want := []DayAvailability{
		{Label: "1月18日", Date: d1, Slots: []string{"09:00～11:00"}},
		{Label: "1月19日", Date: d2, Slots: []string{"19:00～21:00", "09:00～11:00"}},
		{Label: "1月25日", Date: d2.AddDate(0, 0, 6), Slots: []string{"11:00～13:00"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("merged days mismatch (-want +got):\n%s", diff)
	}

	got[0].Slots[0] = "mutated"
	assert.Equal(t, "09:00～11:00", weekA.Days()[0].Slots[0], "Days must return copies")
}

func TestLocationReportLines(t *testing.T) {
	t.Parallel()

	m := NewAvailabilityMap()
	m.Add("1月18日(土)", time.Time{}, "09:00～11:00")
	m.Add("1月18日(土)", time.Time{}, "19:00～21:00")
	m.Add("1月21日(火)", time.Time{}, "19:00～21:00")

	lines := LocationReport{Spec: LocationSpec{Name: "A.Gym North"}, Availability: m}.Lines()
	assert.Equal(t, []string{
		"【A.Gym North】",
		"・1月18日(土) - 09:00～11:00、19:00～21:00",
		"・1月21日(火) - 19:00～21:00",
	}, lines)
	assert.True(t, IsHeaderLine(lines[0]))
	assert.False(t, IsHeaderLine(lines[1]))

	assert.Nil(t, LocationReport{Spec: LocationSpec{Name: "empty"}, Availability: NewAvailabilityMap()}.Lines())
	assert.Nil(t, LocationReport{Spec: LocationSpec{Name: "nil"}}.Lines())
}

func TestBuildReportSkipsFailedLabels(t *testing.T) {
	t.Parallel()

	found := NewAvailabilityMap()
	found.Add("2月1日", time.Time{}, "19:00～21:00")

	report := BuildReport([]Outcome{
		{Label: "a", Reports: []LocationReport{{Spec: LocationSpec{Name: "A"}, Availability: found}}},
		{Label: "b", Err: ErrSession},
		{Label: "c", Reports: []LocationReport{{Spec: LocationSpec{Name: "C"}, Availability: NewAvailabilityMap()}}},
	})

	assert.True(t, report.HadErrors())
	assert.Equal(t, []string{"b"}, report.Failed)
	assert.False(t, report.Empty())
	assert.Equal(t, []string{"【A】", "・2月1日 - 19:00～21:00"}, report.Lines())

	empty := BuildReport([]Outcome{{Label: "c", Reports: []LocationReport{{Availability: NewAvailabilityMap()}}}})
	assert.True(t, empty.Empty())
	assert.False(t, empty.HadErrors())
}

func TestTimeSlotTable(t *testing.T) {
	t.Parallel()

	slots := DefaultSlots()
	tests := []struct {
		row     int
		holiday bool
		want    string
		ok      bool
	}{
		{row: 0, holiday: true, want: "09:00～11:00", ok: true},
		{row: 4, holiday: true, want: "17:00～19:00", ok: true},
		{row: 0, holiday: false},
		{row: 3, holiday: false},
		{row: 5, holiday: false, want: "19:00～21:00", ok: true},
		{row: 5, holiday: true, want: "19:00～21:00", ok: true},
		{row: 6, holiday: true},
	}
	for _, tc := range tests {
		got, ok := slots.Slot(tc.row, tc.holiday)
		assert.Equal(t, tc.ok, ok, "row=%d holiday=%v", tc.row, tc.holiday)
		assert.Equal(t, tc.want, got, "row=%d holiday=%v", tc.row, tc.holiday)
	}
}
