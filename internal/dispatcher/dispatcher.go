// Package dispatcher fans label crawls out concurrently and collects their
// outcomes in configuration order.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meizi0715/bdt-v1.5/internal/crawler"
)

// LabelCrawler crawls every spec of one label within one session.
type LabelCrawler interface {
	Crawl(ctx context.Context, group crawler.LabelGroup) ([]crawler.LocationReport, error)
}

// Dispatcher runs one LabelCrawler call per label.
type Dispatcher struct {
	crawler LabelCrawler
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(c LabelCrawler, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{crawler: c, logger: logger}
}

// Run crawls all labels concurrently and waits for every one to settle. A
// failing or panicking label never cancels its siblings. Outcomes follow the
// first appearance of each label in specs.
func (d *Dispatcher) Run(ctx context.Context, specs []crawler.LocationSpec) []crawler.Outcome {
	groups := crawler.GroupByLabel(specs)
	outcomes := make([]crawler.Outcome, len(groups))

	var wg sync.WaitGroup
	for i, g := range groups {
		wg.Add(1)
		go func(i int, g crawler.LabelGroup) {
			defer wg.Done()
			outcomes[i] = d.crawl(ctx, g)
		}(i, g)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.Failed() {
			d.logger.Error("label crawl failed",
				zap.String("label", o.Label),
				zap.Duration("elapsed", o.Duration),
				zap.Error(o.Err),
			)
		}
	}
	return outcomes
}

func (d *Dispatcher) crawl(ctx context.Context, g crawler.LabelGroup) (out crawler.Outcome) {
	start := time.Now()
	out.Label = g.Label
	defer func() {
		if r := recover(); r != nil {
			out.Reports = nil
			out.Err = fmt.Errorf("label %s panicked: %v", g.Label, r)
		}
		out.Duration = time.Since(start)
	}()
	out.Reports, out.Err = d.crawler.Crawl(ctx, g)
	return out
}
