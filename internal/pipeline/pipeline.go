// Package pipeline runs one discovery pass: crawl every label, persist the
// report, decide whether to notify, publish, prune and flush metrics.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meizi0715/bdt-v1.5/internal/crawler"
	"github.com/meizi0715/bdt-v1.5/internal/logging"
	"github.com/meizi0715/bdt-v1.5/internal/metrics"
	"github.com/meizi0715/bdt-v1.5/internal/policy/notification"
	"github.com/meizi0715/bdt-v1.5/internal/publisher"
	"github.com/meizi0715/bdt-v1.5/internal/report"
	"github.com/meizi0715/bdt-v1.5/internal/schedule"
	"github.com/meizi0715/bdt-v1.5/internal/snapshot"
)

// Orchestrator crawls all labels and returns outcomes in configuration
// order.
type Orchestrator interface {
	Run(ctx context.Context, specs []crawler.LocationSpec) []crawler.Outcome
}

// SnapshotStore is the persistence the run depends on.
type SnapshotStore interface {
	Save(ctx context.Context, now time.Time, lines []string) (string, error)
	List(ctx context.Context) ([]string, error)
	Diff(ctx context.Context, a, b string) (bool, error)
	Prune(ctx context.Context, keep int) (int, error)
}

// Recorder receives run-level metrics.
type Recorder interface {
	SnapshotSaved()
	SnapshotsPruned(n int)
	Decided(reason string)
	Notified(channel string, err error)
	RunFinished(at time.Time, lines int)
	Flush(ctx context.Context, cfg metrics.FlushConfig) error
}

// IDGenerator mints run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Config holds everything fixed for the lifetime of the process.
type Config struct {
	Specs        []crawler.LocationSpec
	Keep         int
	ForcedWindow schedule.Window
	PruneWindow  schedule.Window
	Mail         report.MailTemplate
	AttachICS    bool
	// DryRun runs everything except publishing.
	DryRun  bool
	Metrics metrics.FlushConfig
}

// Result summarizes one run.
type Result struct {
	RunID    string
	Report   crawler.Report
	Snapshot string
	Decision notification.Decision
	// Published lists the channels that accepted the message.
	Published []string
	Pruned    int
}

// Runner executes runs.
type Runner struct {
	cfg        Config
	clock      crawler.Clock
	ids        IDGenerator
	crawl      Orchestrator
	store      SnapshotStore
	publishers []publisher.Publisher
	recorder   Recorder
	logger     *zap.Logger
}

// Deps bundles the Runner's collaborators.
type Deps struct {
	Clock      crawler.Clock
	IDs        IDGenerator
	Crawl      Orchestrator
	Store      SnapshotStore
	Publishers []publisher.Publisher
	Recorder   Recorder
	Logger     *zap.Logger
}

// New validates deps.
func New(cfg Config, deps Deps) (*Runner, error) {
	switch {
	case deps.Clock == nil:
		return nil, fmt.Errorf("pipeline clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("pipeline id generator is required")
	case deps.Crawl == nil:
		return nil, fmt.Errorf("pipeline orchestrator is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("pipeline snapshot store is required")
	}
	if cfg.Keep <= 0 {
		cfg.Keep = snapshot.DefaultKeep
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		clock:      deps.Clock,
		ids:        deps.IDs,
		crawl:      deps.Crawl,
		store:      deps.Store,
		publishers: deps.Publishers,
		recorder:   deps.Recorder,
		logger:     deps.Logger,
	}, nil
}

// Run performs one pass. The only error it returns is a persistence failure
// that prevented the notification decision.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	start := r.clock.Now()
	runID, err := r.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("start run: %w", err)
	}
	logger := logging.WithRun(r.logger, runID)
	logger.Info("run started",
		zap.Time("start", start),
		zap.Int("locations", len(r.cfg.Specs)),
		zap.Bool("dry_run", r.cfg.DryRun),
	)

	res := Result{RunID: runID}
	res.Report = crawler.BuildReport(r.crawl.Run(ctx, r.cfg.Specs))
	lines := res.Report.Lines()

	runErr := r.decide(ctx, logger, start, lines, &res)

	res.Pruned = r.prune(ctx, logger, start)
	r.recorder.RunFinished(r.clock.Now(), len(lines))
	if err := r.recorder.Flush(ctx, r.cfg.Metrics); err != nil {
		logger.Warn("metrics flush failed", zap.Error(err))
	}

	logger.Info("run finished",
		zap.Int("lines", len(lines)),
		zap.Strings("failed_labels", res.Report.Failed),
		zap.String("snapshot", res.Snapshot),
		zap.String("reason", string(res.Decision.Reason)),
		zap.Strings("published", res.Published),
		zap.Int("pruned", res.Pruned),
		zap.Duration("elapsed", r.clock.Now().Sub(start)),
	)
	return res, runErr
}

func (r *Runner) decide(ctx context.Context, logger *zap.Logger, start time.Time, lines []string, res *Result) error {
	rep := res.Report
	if notification.Suppressed(rep.HadErrors(), !rep.Empty()) {
		res.Decision = notification.Decide(notification.Inputs{HadErrors: true})
		r.recorder.Decided(string(res.Decision.Reason))
		logger.Warn("run suppressed: every failure left an empty report", zap.Strings("failed_labels", rep.Failed))
		return nil
	}

	name, err := r.store.Save(ctx, start, lines)
	if err != nil {
		logger.Error("snapshot save failed", zap.Error(err))
		return err
	}
	res.Snapshot = name
	r.recorder.SnapshotSaved()

	names, err := r.store.List(ctx)
	if err != nil {
		logger.Error("snapshot list failed", zap.Error(err))
		return err
	}
	first := len(names) < 2
	changed := false
	if !first {
		prev, last := names[len(names)-2], names[len(names)-1]
		changed, err = r.store.Diff(ctx, prev, last)
		if err != nil {
			logger.Error("snapshot diff failed", zap.String("previous", prev), zap.String("latest", last), zap.Error(err))
			return err
		}
		logger.Info("snapshot compared", zap.String("previous", prev), zap.String("latest", last), zap.Bool("changed", changed))
	}

	res.Decision = notification.Decide(notification.Inputs{
		HadErrors:      rep.HadErrors(),
		ReportNonEmpty: !rep.Empty(),
		FirstSnapshot:  first,
		ContentChanged: changed,
		ForcedWindow:   r.cfg.ForcedWindow.Contains(start),
	})
	r.recorder.Decided(string(res.Decision.Reason))
	logger.Info("notification decided",
		zap.String("reason", string(res.Decision.Reason)),
		zap.Bool("send", res.Decision.Send),
	)
	if res.Decision.Send {
		res.Published = r.publish(ctx, logger, start, rep, lines)
	}
	return nil
}

func (r *Runner) publish(ctx context.Context, logger *zap.Logger, start time.Time, rep crawler.Report, lines []string) []string {
	msg := publisher.Message{
		Subject: r.cfg.Mail.SubjectFor(start),
		Body:    r.cfg.Mail.Body(lines),
	}
	if r.cfg.AttachICS {
		data, err := report.Calendar(rep, start)
		switch {
		case err != nil:
			logger.Warn("calendar attachment skipped", zap.Error(err))
		case data != nil:
			msg.Attachments = append(msg.Attachments, publisher.Attachment{
				Name:        "slots-" + start.Format("20060102") + ".ics",
				ContentType: "text/calendar; charset=utf-8",
				Data:        data,
			})
		}
	}

	if r.cfg.DryRun {
		logger.Info("dry run: notification not published", zap.String("subject", msg.Subject))
		return nil
	}

	var published []string
	for _, p := range r.publishers {
		err := p.Publish(ctx, msg)
		r.recorder.Notified(p.Name(), err)
		if err != nil {
			logger.Error("publish failed", zap.String("channel", p.Name()), zap.Error(err))
			continue
		}
		published = append(published, p.Name())
		logger.Info("notification published", zap.String("channel", p.Name()), zap.String("subject", msg.Subject))
	}
	return published
}

func (r *Runner) prune(ctx context.Context, logger *zap.Logger, start time.Time) int {
	if !r.cfg.PruneWindow.Contains(start) {
		return 0
	}
	n, err := r.store.Prune(ctx, r.cfg.Keep)
	if err != nil {
		logger.Error("snapshot prune failed", zap.Error(err))
	}
	r.recorder.SnapshotsPruned(n)
	return n
}
