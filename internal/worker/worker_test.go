package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meizi0715/bdt-v1.5/internal/crawler"
)

func TestWorkerCrawlVisitsBothBlocks(t *testing.T) {
	t.Parallel()

	site := newFakeSite("rA", "rA", "rB")
	w := newTestWorker(site, nil)

	reports, err := w.Crawl(context.Background(), group(
		crawler.LocationSpec{Category: "100", ReserveA: "rA", ReserveB: "x", Facility: crawler.NoFacility, Page: "0", Label: "north", Name: "A"},
		crawler.LocationSpec{Category: crawler.NoCategory, ReserveA: "rB", Facility: crawler.NoFacility, Page: "0", Label: "north", Name: "B"},
	))
	require.NoError(t, err)
	require.Len(t, reports, 4)

	got := make([]string, 0, len(reports))
	for _, r := range reports {
		got = append(got, fmt.Sprintf("%s/%d:%s", r.Spec.Name, r.Pass, dayLabels(r)))
	}
	assert.Equal(t, []string{
		"A/0:rA-w0,rA-w1",
		"B/0:rB-w0,rB-w1",
		"A/1:rA-w2,rA-w3",
		"B/1:rB-w2,rB-w3",
	}, got)
	assert.Equal(t, 1, site.closedCount())
	assert.Contains(t, site.actionLog(), "check:input[name='chk_bunrui1_100']")
	assert.Contains(t, site.actionLog(), `click:input[onclick*="cmdYoyaku_click('rA','x')"]`)
	assert.NotContains(t, strings.Join(site.actionLog(), "\n"), "次頁")
}

func TestWorkerCrawlSkipsTimedOutLocation(t *testing.T) {
	t.Parallel()

	site := newFakeSite("rA", "rA", "rB", "rC")
	site.frozen["rB"] = true
	obs := &recordingObserver{}
	w := newTestWorker(site, obs)

	reports, err := w.Crawl(context.Background(), group(
		crawler.LocationSpec{Category: "100", ReserveA: "rA", Facility: crawler.NoFacility, Label: "north", Name: "A"},
		crawler.LocationSpec{Category: crawler.NoCategory, ReserveA: "rB", Facility: crawler.NoFacility, Label: "north", Name: "B"},
		crawler.LocationSpec{Category: crawler.NoCategory, ReserveA: "rC", Facility: crawler.NoFacility, Label: "north", Name: "C"},
	))
	require.NoError(t, err)

	var lines []string
	for _, r := range reports {
		lines = append(lines, r.Lines()...)
	}
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "【A】")
	assert.Contains(t, joined, "【C】")
	assert.NotContains(t, joined, "【B】")
	assert.Equal(t, 2, obs.timeouts())
	assert.Equal(t, 1, site.closedCount())
}

func TestWorkerCrawlSelectsFacilityAndPage(t *testing.T) {
	t.Parallel()

	site := newFakeSite("rA", "rA", "rB")
	w := newTestWorker(site, nil)

	reports, err := w.Crawl(context.Background(), group(
		crawler.LocationSpec{Category: "100", ReserveA: "rA", Facility: "012", Page: "1", Label: "west", Name: "A"},
		crawler.LocationSpec{Category: crawler.NoCategory, ReserveA: "rB", Facility: crawler.NoFacility, Label: "west", Name: "B"},
	))
	require.NoError(t, err)
	require.Len(t, reports, 4)

	log := site.actionLog()
	assert.Contains(t, log, "select:select[name='lst_shisetu']=012")
	assert.Contains(t, log, `click:input[alt="次頁"]`)
	assert.Equal(t, 1, countPrefix(log, "select:select[name='lst_shisetu']"), "facility is only chosen on the first visit")
}

func TestWorkerCrawlSkipsRoomChangeForKeywordNames(t *testing.T) {
	t.Parallel()

	site := newFakeSite("rA", "rA")
	w := newTestWorker(site, nil)

	reports, err := w.Crawl(context.Background(), group(
		crawler.LocationSpec{Category: "100", ReserveA: "rA", Facility: crawler.NoFacility, Label: "hub", Name: "中央体育館"},
	))
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "rA-w2,rA-w3", dayLabels(reports[1]))
	assert.Zero(t, countPrefix(site.actionLog(), "select:"))
}

func TestWorkerCrawlNavigationFailureClosesSession(t *testing.T) {
	t.Parallel()

	site := newFakeSite("rA", "rA")
	site.missing["input[alt='目的']"] = true
	obs := &recordingObserver{}
	w := newTestWorker(site, obs)

	_, err := w.Crawl(context.Background(), group(
		crawler.LocationSpec{Category: "100", ReserveA: "rA", Label: "north", Name: "A"},
	))
	require.Error(t, err)
	assert.True(t, errors.Is(err, crawler.ErrSession))
	assert.Equal(t, 1, site.closedCount())
	assert.Equal(t, 1, obs.sessions())
}

func TestWorkerCrawlSessionStartFailure(t *testing.T) {
	t.Parallel()

	site := newFakeSite("rA")
	site.startErr = errors.New("chrome missing")
	w := newTestWorker(site, nil)

	_, err := w.Crawl(context.Background(), group(
		crawler.LocationSpec{Category: "100", ReserveA: "rA", Label: "north", Name: "A"},
	))
	require.ErrorIs(t, err, crawler.ErrSession)
	assert.Zero(t, site.closedCount())
}

func TestWorkerCrawlMissingDialogIsTolerated(t *testing.T) {
	t.Parallel()

	site := newFakeSite("rA", "rA")
	site.noDialog = true
	w := newTestWorker(site, nil)

	reports, err := w.Crawl(context.Background(), group(
		crawler.LocationSpec{Category: "100", ReserveA: "rA", Facility: crawler.NoFacility, Label: "north", Name: "Aセンター"},
	))
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

func TestSleepHonoursContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, sleep(context.Background(), 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
}

func newTestWorker(site *fakeSite, obs crawler.Observer) *Worker {
	sel := DefaultSelectors()
	sel.NoLocationAlt = "所在地なし"
	sel.NextPageAlt = "次頁"
	sel.NextWeekAlt = "次週"
	sel.PrevWeekAlt = "前週"
	return New(
		site,
		fakeGrid{},
		crawler.NewChangeWaiter(crawler.WaitConfig{Timeout: 30 * time.Millisecond, Interval: time.Millisecond}),
		fixedClock{now: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)},
		obs,
		Config{
			SiteURL:          "https://reserve.example/",
			Selectors:        sel,
			DialogTimeout:    time.Millisecond,
			SkipRoomKeywords: []string{"センター", "中央"},
		},
		zap.NewNop(),
	)
}

func group(specs ...crawler.LocationSpec) crawler.LabelGroup {
	groups := crawler.GroupByLabel(specs)
	return groups[0]
}

func dayLabels(r crawler.LocationReport) string {
	days := r.Availability.Days()
	labels := make([]string, 0, len(days))
	for _, d := range days {
		labels = append(labels, d.Label)
	}
	return strings.Join(labels, ",")
}

func countPrefix(log []string, prefix string) int {
	n := 0
	for _, entry := range log {
		if strings.HasPrefix(entry, prefix) {
			n++
		}
	}
	return n
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// fakeSite is a Browser, Session and Surface at once. The grid content is a
// function of display mode, room, facility and week offset.
type fakeSite struct {
	mu        sync.Mutex
	available map[string]bool
	frozen    map[string]bool
	missing   map[string]bool
	startErr  error
	noDialog  bool

	gridMode bool
	room     string
	facility string
	week     int
	actions  []string
	closed   int
}

func newFakeSite(initialRoom string, rooms ...string) *fakeSite {
	available := make(map[string]bool, len(rooms))
	for _, r := range rooms {
		available[r] = true
	}
	return &fakeSite{
		available: available,
		frozen:    make(map[string]bool),
		missing:   make(map[string]bool),
		room:      initialRoom,
	}
}

func (s *fakeSite) NewSession(context.Context, string) (crawler.Session, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	return s, nil
}

func (s *fakeSite) Open(context.Context, string) (crawler.Surface, error) { return s, nil }

func (s *fakeSite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSite) record(entry string) {
	s.actions = append(s.actions, entry)
}

func (s *fakeSite) WaitVisible(_ context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing[selector] {
		return fmt.Errorf("%s not found", selector)
	}
	return nil
}

func (s *fakeSite) Click(_ context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("click:" + selector)
	switch {
	case strings.Contains(selector, "次週"):
		s.week++
	case strings.Contains(selector, "前週"):
		s.week--
	case strings.Contains(selector, "disp_mode"):
		s.gridMode = true
	}
	return nil
}

func (s *fakeSite) ClickExpectDialog(ctx context.Context, selector string, _ time.Duration) (bool, error) {
	if err := s.Click(ctx, selector); err != nil {
		return false, err
	}
	return !s.noDialog, nil
}

func (s *fakeSite) Check(_ context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("check:" + selector)
	return nil
}

func (s *fakeSite) SelectOption(_ context.Context, selector, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("select:" + selector + "=" + value)
	switch {
	case strings.Contains(selector, "lst_kaikan"):
		if !s.frozen[value] {
			s.room = value
		}
	case strings.Contains(selector, "lst_shisetu"):
		s.facility = value
	}
	return nil
}

func (s *fakeSite) InnerHTML(context.Context, string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.gridMode {
		return "list", nil
	}
	return fmt.Sprintf("%s/%s/%d", s.room, s.facility, s.week), nil
}

func (s *fakeSite) DocumentHTML(ctx context.Context) (string, error) {
	return s.InnerHTML(ctx, "html")
}

func (s *fakeSite) closedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSite) actionLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.actions...)
}

// fakeGrid reports one evening slot per visible week for available rooms.
type fakeGrid struct{}

func (fakeGrid) Extract(_ context.Context, surface crawler.Surface, _ time.Time) (*crawler.AvailabilityMap, error) {
	s := surface.(*fakeSite)
	s.mu.Lock()
	defer s.mu.Unlock()
	m := crawler.NewAvailabilityMap()
	if s.available[s.room] {
		m.Add(fmt.Sprintf("%s-w%d", s.room, s.week), time.Time{}, "19:00～21:00")
	}
	return m, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	waits    int
	finished int
	results  []string
}

func (o *recordingObserver) LocationFinished(_, name, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, name+"="+result)
}

func (o *recordingObserver) WaitTimedOut(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.waits++
}

func (o *recordingObserver) SessionFinished(string, time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
}

func (o *recordingObserver) timeouts() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.waits
}

func (o *recordingObserver) sessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finished
}
