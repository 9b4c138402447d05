// Package worker drives one browser session through the reservation site for
// every LocationSpec sharing a label.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meizi0715/bdt-v1.5/internal/crawler"
)

// Selectors names the controls the navigation sequence touches. Alt texts
// are the site's button labels.
type Selectors struct {
	PurposeAlt       string
	CategoryPrefix   string
	NoLocationAlt    string
	NextPageAlt      string
	NextWeekAlt      string
	PrevWeekAlt      string
	ReserveCall      string
	DisplayMode      string
	DisplayModeValue string
	Grid             string
	RoomSelect       string
	FacilitySelect   string
}

// DefaultSelectors fills everything except the site-specific alt texts.
func DefaultSelectors() Selectors {
	return Selectors{
		PurposeAlt:       "目的",
		CategoryPrefix:   "chk_bunrui1_",
		ReserveCall:      "cmdYoyaku_click",
		DisplayMode:      "disp_mode",
		DisplayModeValue: "0",
		Grid:             "table.clsKoma",
		RoomSelect:       "lst_kaikan",
		FacilitySelect:   "lst_shisetu",
	}
}

// Config controls Worker behavior.
type Config struct {
	SiteURL   string
	Selectors Selectors
	// SettleDelay pauses between a grid refresh and the room dropdown change.
	SettleDelay time.Duration
	// DialogTimeout bounds the wait for the display mode confirmation.
	DialogTimeout time.Duration
	// SkipRoomKeywords exempts names containing any keyword from the room
	// dropdown change; those locations have a single room.
	SkipRoomKeywords []string
}

// Worker is the LocationCrawler: one session per label, items visited
// sequentially.
type Worker struct {
	browser  crawler.Browser
	grid     crawler.GridReader
	waiter   crawler.Waiter
	clock    crawler.Clock
	observer crawler.Observer
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker.
func New(
	browser crawler.Browser,
	grid crawler.GridReader,
	waiter crawler.Waiter,
	clock crawler.Clock,
	observer crawler.Observer,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if observer == nil {
		observer = crawler.NopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DialogTimeout <= 0 {
		cfg.DialogTimeout = 5 * time.Second
	}
	return &Worker{
		browser:  browser,
		grid:     grid,
		waiter:   waiter,
		clock:    clock,
		observer: observer,
		cfg:      cfg,
		logger:   logger,
	}
}

// Crawl visits every spec of group twice: once for the current four-week
// block and once for the following one. Location-scoped failures are logged
// and skipped; navigation failures abort the label.
func (w *Worker) Crawl(ctx context.Context, group crawler.LabelGroup) (reports []crawler.LocationReport, err error) {
	logger := w.logger.With(zap.String("label", group.Label))
	start := time.Now()
	defer func() {
		w.observer.SessionFinished(group.Label, time.Since(start), err)
	}()

	session, err := w.browser.NewSession(ctx, group.Label)
	if err != nil {
		return nil, fmt.Errorf("%w: start session for %s: %w", crawler.ErrSession, group.Label, err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("close session failed", zap.Error(cerr))
		}
	}()

	surface, err := session.Open(ctx, w.cfg.SiteURL)
	if err != nil {
		return nil, fmt.Errorf("%w: open site for %s: %w", crawler.ErrSession, group.Label, err)
	}
	if err := w.openCalendar(ctx, surface, group.Entry); err != nil {
		return nil, fmt.Errorf("%w: open calendar for %s: %w", crawler.ErrSession, group.Label, err)
	}

	sel := w.cfg.Selectors
	prev, err := surface.InnerHTML(ctx, sel.Grid)
	if err != nil {
		return nil, fmt.Errorf("%w: read grid for %s: %w", crawler.ErrSession, group.Label, err)
	}
	modeSel := fmt.Sprintf("input[name='%s'][value='%s']", sel.DisplayMode, sel.DisplayModeValue)
	seen, err := surface.ClickExpectDialog(ctx, modeSel, w.cfg.DialogTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: switch display mode for %s: %w", crawler.ErrSession, group.Label, err)
	}
	if !seen {
		logger.Warn("display mode confirmation did not appear", zap.Duration("timeout", w.cfg.DialogTimeout))
	}

	now := w.clock.Now()
	first, prev, err := w.runPass(ctx, surface, group, 0, prev, now, logger)
	reports = append(reports, first...)
	if err != nil {
		return reports, err
	}
	if err := surface.Click(ctx, w.nextWeekSelector()); err != nil {
		return reports, fmt.Errorf("%w: advance block for %s: %w", crawler.ErrSession, group.Label, err)
	}
	second, _, err := w.runPass(ctx, surface, group, 1, prev, now, logger)
	reports = append(reports, second...)
	if err != nil {
		return reports, err
	}
	logger.Info("label crawled", zap.Int("locations", len(reports)), zap.Duration("elapsed", time.Since(start)))
	return reports, nil
}

func (w *Worker) openCalendar(ctx context.Context, surface crawler.Surface, entry crawler.LocationSpec) error {
	sel := w.cfg.Selectors
	purpose := fmt.Sprintf("input[alt='%s']", sel.PurposeAlt)
	category := fmt.Sprintf("input[name='%s%s']", sel.CategoryPrefix, entry.Category)
	noLocation := fmt.Sprintf("input[alt=%q]", sel.NoLocationAlt)
	reserve := fmt.Sprintf(`input[onclick*="%s('%s','%s')"]`, sel.ReserveCall, entry.ReserveA, entry.ReserveB)
	mode := fmt.Sprintf("input[name=%q]", sel.DisplayMode)

	steps := []struct {
		name string
		run  func() error
	}{
		{"purpose", func() error { return w.waitAndClick(ctx, surface, purpose) }},
		{"category", func() error {
			if err := surface.WaitVisible(ctx, category); err != nil {
				return err
			}
			return surface.Check(ctx, category)
		}},
		{"location", func() error { return surface.Click(ctx, noLocation) }},
		{"page", func() error {
			if entry.OnFirstPage() {
				return nil
			}
			return w.waitAndClick(ctx, surface, fmt.Sprintf("input[alt=%q]", sel.NextPageAlt))
		}},
		{"reserve", func() error { return w.waitAndClick(ctx, surface, reserve) }},
		{"display mode", func() error { return surface.WaitVisible(ctx, mode) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("%s step: %w", step.name, err)
		}
	}
	return nil
}

func (w *Worker) waitAndClick(ctx context.Context, surface crawler.Surface, selector string) error {
	if err := surface.WaitVisible(ctx, selector); err != nil {
		return err
	}
	return surface.Click(ctx, selector)
}

// runPass visits group.Specs in order. offset shifts the room index so the
// second pass re-selects the first room after the block change.
func (w *Worker) runPass(
	ctx context.Context,
	surface crawler.Surface,
	group crawler.LabelGroup,
	offset int,
	prev string,
	now time.Time,
	logger *zap.Logger,
) ([]crawler.LocationReport, string, error) {
	reports := make([]crawler.LocationReport, 0, len(group.Specs))
	for i, spec := range group.Specs {
		report, next, err := w.crawlSpec(ctx, surface, spec, i, i+offset, prev, now)
		prev = next
		if err == nil {
			report.Pass = offset
			reports = append(reports, report)
			result := crawler.ResultEmpty
			if report.Availability.Len() > 0 {
				result = crawler.ResultFound
			}
			w.observer.LocationFinished(group.Label, spec.Name, result)
			continue
		}
		switch {
		case errors.Is(err, crawler.ErrTimeout):
			logger.Warn("location timed out", zap.String("location", spec.Name), zap.Int("pass", offset), zap.Error(err))
			w.observer.WaitTimedOut(group.Label)
			w.observer.LocationFinished(group.Label, spec.Name, crawler.ResultTimeout)
		case errors.Is(err, crawler.ErrDateParse):
			logger.Warn("location grid malformed", zap.String("location", spec.Name), zap.Int("pass", offset), zap.Error(err))
			w.observer.LocationFinished(group.Label, spec.Name, crawler.ResultMalformed)
		default:
			return reports, prev, fmt.Errorf("%w: %s: %w", crawler.ErrSession, spec.Name, err)
		}
	}
	return reports, prev, nil
}

// crawlSpec extracts two consecutive weeks for one spec. The returned string
// is the last grid content observed, valid even when err is non-nil.
func (w *Worker) crawlSpec(
	ctx context.Context,
	surface crawler.Surface,
	spec crawler.LocationSpec,
	item, room int,
	prev string,
	now time.Time,
) (crawler.LocationReport, string, error) {
	sel := w.cfg.Selectors
	label := spec.Name

	if item > 0 {
		if err := surface.Click(ctx, fmt.Sprintf("img[alt=%q]", sel.PrevWeekAlt)); err != nil {
			return crawler.LocationReport{}, prev, fmt.Errorf("previous week: %w", err)
		}
	}
	if room > 0 && !w.skipsRoom(spec.Name) {
		next, err := w.waiter.WaitForChange(ctx, surface, sel.Grid, prev, label)
		if err != nil {
			return crawler.LocationReport{}, prev, err
		}
		prev = next
		if err := sleep(ctx, w.cfg.SettleDelay); err != nil {
			return crawler.LocationReport{}, prev, err
		}
		if err := surface.SelectOption(ctx, fmt.Sprintf("select[name='%s']", sel.RoomSelect), spec.ReserveA); err != nil {
			return crawler.LocationReport{}, prev, fmt.Errorf("select room: %w", err)
		}
	}
	if room == 0 && spec.HasFacility() {
		next, err := w.waiter.WaitForChange(ctx, surface, sel.Grid, prev, label)
		if err != nil {
			return crawler.LocationReport{}, prev, err
		}
		prev = next
		if err := surface.SelectOption(ctx, fmt.Sprintf("select[name='%s']", sel.FacilitySelect), spec.Facility); err != nil {
			return crawler.LocationReport{}, prev, fmt.Errorf("select facility: %w", err)
		}
	}

	next, err := w.waiter.WaitForChange(ctx, surface, sel.Grid, prev, label)
	if err != nil {
		return crawler.LocationReport{}, prev, err
	}
	prev = next
	weekA, err := w.grid.Extract(ctx, surface, now)
	if err != nil {
		return crawler.LocationReport{}, prev, err
	}

	if err := surface.Click(ctx, w.nextWeekSelector()); err != nil {
		return crawler.LocationReport{}, prev, fmt.Errorf("next week: %w", err)
	}
	next, err = w.waiter.WaitForChange(ctx, surface, sel.Grid, prev, label)
	if err != nil {
		return crawler.LocationReport{}, prev, err
	}
	prev = next
	weekB, err := w.grid.Extract(ctx, surface, now)
	if err != nil {
		return crawler.LocationReport{}, prev, err
	}
	weekA.Merge(weekB)

	return crawler.LocationReport{Spec: spec, Availability: weekA}, prev, nil
}

func (w *Worker) nextWeekSelector() string {
	return fmt.Sprintf("img[alt=%q]", w.cfg.Selectors.NextWeekAlt)
}

func (w *Worker) skipsRoom(name string) bool {
	for _, kw := range w.cfg.SkipRoomKeywords {
		if kw != "" && strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("settle delay: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
