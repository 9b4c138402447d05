// Package app wires configuration into the long-lived services a slotwatch
// run needs, acting as a small dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/meizi0715/bdt-v1.5/internal/browser"
	"github.com/meizi0715/bdt-v1.5/internal/calendar"
	"github.com/meizi0715/bdt-v1.5/internal/clock/system"
	"github.com/meizi0715/bdt-v1.5/internal/config"
	"github.com/meizi0715/bdt-v1.5/internal/crawler"
	"github.com/meizi0715/bdt-v1.5/internal/dispatcher"
	"github.com/meizi0715/bdt-v1.5/internal/hash/sha256"
	"github.com/meizi0715/bdt-v1.5/internal/id/uuid"
	"github.com/meizi0715/bdt-v1.5/internal/metrics"
	"github.com/meizi0715/bdt-v1.5/internal/pipeline"
	"github.com/meizi0715/bdt-v1.5/internal/policy/ratelimit"
	"github.com/meizi0715/bdt-v1.5/internal/publisher"
	"github.com/meizi0715/bdt-v1.5/internal/publisher/mail"
	"github.com/meizi0715/bdt-v1.5/internal/publisher/telegram"
	"github.com/meizi0715/bdt-v1.5/internal/report"
	"github.com/meizi0715/bdt-v1.5/internal/schedule"
	"github.com/meizi0715/bdt-v1.5/internal/snapshot"
	"github.com/meizi0715/bdt-v1.5/internal/storage/gcs"
	"github.com/meizi0715/bdt-v1.5/internal/storage/local"
	"github.com/meizi0715/bdt-v1.5/internal/storage/memory"
	"github.com/meizi0715/bdt-v1.5/internal/storage/redis"
	"github.com/meizi0715/bdt-v1.5/internal/worker"
)

// Options adjust how New assembles the run.
type Options struct {
	// DryRun builds no publishers and tells the runner to skip sending.
	DryRun bool
}

// App holds the shared services for one process.
type App struct {
	logger    *zap.Logger
	clock     *system.Clock
	holidays  *calendar.HolidayCalendar
	snapshots *snapshot.Store
	recorder  *metrics.Recorder
	runner    *pipeline.Runner
	closers   []func() error
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Clock returns the zone-pinned clock.
func (a *App) Clock() *system.Clock { return a.clock }

// Holidays returns the configured holiday calendar.
func (a *App) Holidays() *calendar.HolidayCalendar { return a.holidays }

// Snapshots returns the snapshot store.
func (a *App) Snapshots() *snapshot.Store { return a.snapshots }

// Recorder returns the metrics recorder.
func (a *App) Recorder() *metrics.Recorder { return a.recorder }

// Runner returns the run pipeline.
func (a *App) Runner() *pipeline.Runner { return a.runner }

// New builds every collaborator from cfg and fails fast on the first one
// that cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("initializing services")

	a := &App{logger: logger, recorder: metrics.New()}

	var err error
	a.clock, err = system.NewInZone(cfg.Site.Timezone)
	if err != nil {
		return nil, fmt.Errorf("init clock: %w", err)
	}
	a.holidays, err = NewHolidays(cfg, a.clock)
	if err != nil {
		return nil, err
	}

	years, err := calendar.ParseYearPolicy(cfg.Crawl.YearInference)
	if err != nil {
		return nil, fmt.Errorf("init year policy: %w", err)
	}
	grid, err := crawler.NewGridExtractor(crawler.DefaultExtractorConfig(), crawler.DefaultSlots(), a.holidays, years)
	if err != nil {
		return nil, fmt.Errorf("init grid extractor: %w", err)
	}
	waiter := crawler.NewChangeWaiter(crawler.WaitConfig{
		Timeout:  cfg.Crawl.WaitTimeout,
		Interval: cfg.Crawl.PollInterval,
	})

	limiter := ratelimit.New(ratelimit.Config{RPS: cfg.Browser.LaunchQPS, Burst: cfg.Browser.LaunchBurst})
	chrome, err := browser.New(browser.Config{
		SiteURL:           cfg.Site.URL,
		FrameName:         cfg.Site.FrameName,
		Headless:          cfg.Browser.Headless,
		ExecPath:          cfg.Browser.ExecPath,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
		ElementTimeout:    cfg.Crawl.ElementTimeout,
		PollInterval:      cfg.Crawl.PollInterval,
	}, logger.Named("browser"), browser.WithPacer(limiter, a.recorder.LaunchDelayed))
	if err != nil {
		return nil, fmt.Errorf("init browser: %w", err)
	}

	w := worker.New(chrome, grid, waiter, a.clock, a.recorder, worker.Config{
		SiteURL:          cfg.Site.URL,
		Selectors:        selectorsFrom(cfg.Selectors),
		SettleDelay:      cfg.Crawl.SettleDelay,
		DialogTimeout:    cfg.Crawl.DialogTimeout,
		SkipRoomKeywords: cfg.Selectors.SkipRoomKeywords,
	}, logger.Named("worker"))

	store, closeStore, err := OpenSnapshots(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.snapshots = store
	a.closers = append(a.closers, closeStore)

	var pubs []publisher.Publisher
	if !opts.DryRun {
		pubs, err = buildPublishers(cfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	forced, err := schedule.Parse(cfg.Notify.ForcedWindow)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("parse forced window: %w", err)
	}
	prune, err := schedule.Parse(cfg.Notify.PruneWindow)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("parse prune window: %w", err)
	}

	a.runner, err = pipeline.New(pipeline.Config{
		Specs:        cfg.Locations,
		Keep:         cfg.Snapshot.Keep,
		ForcedWindow: forced,
		PruneWindow:  prune,
		Mail: report.MailTemplate{
			Subject:        cfg.Email.Subject,
			Header:         cfg.Email.Header,
			Footer:         cfg.Email.Footer,
			NoAvailability: cfg.Email.NoAvailability,
		},
		AttachICS: cfg.Email.AttachICS,
		DryRun:    opts.DryRun,
		Metrics: metrics.FlushConfig{
			Textfile:    cfg.Metrics.Textfile,
			Pushgateway: cfg.Metrics.Pushgateway,
			Job:         cfg.Metrics.Job,
		},
	}, pipeline.Deps{
		Clock:      a.clock,
		IDs:        uuid.New(),
		Crawl:      dispatcher.New(w, logger.Named("dispatcher")),
		Store:      store,
		Publishers: pubs,
		Recorder:   a.recorder,
		Logger:     logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	logger.Info("services initialized",
		zap.Int("locations", len(cfg.Locations)),
		zap.String("snapshot_backend", cfg.Snapshot.Backend),
		zap.Int("publishers", len(pubs)),
	)
	return a, nil
}

// NewHolidays builds the holiday calendar in clock's zone.
func NewHolidays(cfg config.Config, clock *system.Clock) (*calendar.HolidayCalendar, error) {
	extras, err := calendar.ParseExtraHolidays(cfg.Calendar.ExtraHolidays, clock.Location())
	if err != nil {
		return nil, fmt.Errorf("init holidays: %w", err)
	}
	return calendar.NewHolidayCalendar(clock.Location(), extras), nil
}

// OpenSnapshots opens the configured snapshot backend. The returned func
// releases the backend's client and is never nil.
func OpenSnapshots(ctx context.Context, cfg config.Config, logger *zap.Logger) (*snapshot.Store, func() error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	noop := func() error { return nil }

	var (
		backend snapshot.Backend
		closer  = noop
	)
	switch cfg.Snapshot.Backend {
	case config.BackendLocal, "":
		logger.Info("using local snapshot backend", zap.String("dir", cfg.Snapshot.Dir))
		b, err := local.New(local.Config{BaseDir: cfg.Snapshot.Dir})
		if err != nil {
			return nil, noop, fmt.Errorf("init local snapshot backend: %w", err)
		}
		backend = b
	case config.BackendMemory:
		logger.Info("using memory snapshot backend; snapshots will not survive the process")
		backend = memory.NewBlobStore()
	case config.BackendGCS:
		logger.Info("using gcs snapshot backend", zap.String("bucket", cfg.Snapshot.GCS.Bucket))
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("create gcs client: %w", err)
		}
		b, err := gcs.New(client, gcs.Config{Bucket: cfg.Snapshot.GCS.Bucket, Prefix: cfg.Snapshot.GCS.Prefix})
		if err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("init gcs snapshot backend: %w", err)
		}
		backend, closer = b, client.Close
	case config.BackendRedis:
		logger.Info("using redis snapshot backend", zap.String("addr", cfg.Snapshot.Redis.Addr))
		b, err := redis.New(redis.Config{
			Addr:     cfg.Snapshot.Redis.Addr,
			Password: cfg.Snapshot.Redis.Password,
			DB:       cfg.Snapshot.Redis.DB,
			Prefix:   cfg.Snapshot.Redis.Prefix,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("init redis snapshot backend: %w", err)
		}
		if err := b.Ping(ctx); err != nil {
			_ = b.Close()
			return nil, noop, err
		}
		backend, closer = b, b.Close
	default:
		return nil, noop, fmt.Errorf("unknown snapshot backend: %s", cfg.Snapshot.Backend)
	}

	store, err := snapshot.New(backend, sha256.New(), logger.Named("snapshot"))
	if err != nil {
		_ = closer()
		return nil, noop, fmt.Errorf("init snapshot store: %w", err)
	}
	return store, closer, nil
}

func buildPublishers(cfg config.Config, logger *zap.Logger) ([]publisher.Publisher, error) {
	var pubs []publisher.Publisher
	if cfg.Email.Enabled {
		username := cfg.Email.Username
		if username == "" {
			username = cfg.Email.From
		}
		p, err := mail.New(mail.Config{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		})
		if err != nil {
			return nil, fmt.Errorf("init mail publisher: %w", err)
		}
		logger.Info("using mail publisher", zap.String("host", cfg.Email.Host), zap.Int("recipients", len(cfg.Email.To)))
		pubs = append(pubs, p)
	}
	if cfg.Telegram.Enabled {
		p, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, fmt.Errorf("init telegram publisher: %w", err)
		}
		logger.Info("using telegram publisher", zap.Int64("chat_id", cfg.Telegram.ChatID))
		pubs = append(pubs, p)
	}
	if len(pubs) == 0 {
		logger.Warn("no publishers enabled; changes will only be recorded")
	}
	return pubs, nil
}

func selectorsFrom(cfg config.SelectorsConfig) worker.Selectors {
	sel := worker.DefaultSelectors()
	if cfg.Purpose != "" {
		sel.PurposeAlt = cfg.Purpose
	}
	sel.NoLocationAlt = cfg.NoLocation
	sel.NextPageAlt = cfg.NextPage
	sel.NextWeekAlt = cfg.NextWeek
	sel.PrevWeekAlt = cfg.PrevWeek
	return sel
}

// Close releases backend clients and flushes the logger.
func (a *App) Close() error {
	a.logger.Info("shutting down services")
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	// Sync fails on stdout/stderr for some platforms; that is not worth
	// surfacing.
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
