// Package dispatcher contains tests for label fan-out.
package dispatcher

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meizi0715/bdt-v1.5/internal/crawler"
)

type stubCrawler struct {
	delays   map[string]time.Duration
	failures map[string]error
	panics   map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *stubCrawler) Crawl(ctx context.Context, g crawler.LabelGroup) ([]crawler.LocationReport, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-time.After(s.delays[g.Label]):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.panics[g.Label] {
		panic("selector engine exploded")
	}
	if err := s.failures[g.Label]; err != nil {
		return nil, err
	}
	m := crawler.NewAvailabilityMap()
	m.Add("1月18日", time.Time{}, "19:00～21:00")
	reports := make([]crawler.LocationReport, 0, len(g.Specs))
	for _, spec := range g.Specs {
		reports = append(reports, crawler.LocationReport{Spec: spec, Availability: m})
	}
	return reports, nil
}

func specs() []crawler.LocationSpec {
	return []crawler.LocationSpec{
		{Category: "1", Label: "slow", Name: "Slow Hall"},
		{Category: "2", Label: "fast", Name: "Fast Hall"},
		{Category: crawler.NoCategory, Label: "slow", Name: "Slow Annex"},
		{Category: "3", Label: "broken", Name: "Broken Hall"},
		{Category: "4", Label: "panicky", Name: "Panicky Hall"},
	}
}

// TestDispatcherRunKeepsConfigurationOrder ensures completion order does not leak into the report.
func TestDispatcherRunKeepsConfigurationOrder(t *testing.T) {
	t.Parallel()

	stub := &stubCrawler{
		delays: map[string]time.Duration{"slow": 40 * time.Millisecond, "fast": 10 * time.Millisecond, "broken": 5 * time.Millisecond},
	}
	outcomes := New(stub, zap.NewNop()).Run(context.Background(), specs()[:3])

	require.Len(t, outcomes, 2)
	assert.Equal(t, "slow", outcomes[0].Label)
	assert.Equal(t, "fast", outcomes[1].Label)
	require.Len(t, outcomes[0].Reports, 2)
	assert.Equal(t, "Slow Annex", outcomes[0].Reports[1].Spec.Name)
	assert.EqualValues(t, 2, stub.peak.Load(), "labels must run concurrently")
}

// TestDispatcherRunIsolatesFailures verifies errors and panics stay scoped to their label.
func TestDispatcherRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	stub := &stubCrawler{
		delays:   map[string]time.Duration{"slow": 20 * time.Millisecond},
		failures: map[string]error{"broken": crawler.ErrSession},
		panics:   map[string]bool{"panicky": true},
	}
	outcomes := New(stub, nil).Run(context.Background(), specs())

	require.Len(t, outcomes, 4)
	byLabel := make(map[string]crawler.Outcome, len(outcomes))
	for _, o := range outcomes {
		byLabel[o.Label] = o
	}
	assert.False(t, byLabel["slow"].Failed())
	assert.False(t, byLabel["fast"].Failed())
	assert.True(t, errors.Is(byLabel["broken"].Err, crawler.ErrSession))
	require.True(t, byLabel["panicky"].Failed())
	assert.Contains(t, byLabel["panicky"].Err.Error(), "panicked")

	report := crawler.BuildReport(outcomes)
	assert.Equal(t, []string{"broken", "panicky"}, report.Failed)
	assert.Equal(t, []string{
		"【Slow Hall】", "・1月18日 - 19:00～21:00",
		"【Slow Annex】", "・1月18日 - 19:00～21:00",
		"【Fast Hall】", "・1月18日 - 19:00～21:00",
	}, report.Lines())
}

func TestDispatcherRunEmptyConfiguration(t *testing.T) {
	t.Parallel()

	outcomes := New(&stubCrawler{}, nil).Run(context.Background(), nil)
	assert.Empty(t, outcomes)
}
