// Package browser implements crawler.Browser on headless Chrome via chromedp.
// Every session owns its own Chrome process so labels never share cookies
// or page state.
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/meizi0715/bdt-v1.5/internal/crawler"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultElementTimeout    = 30 * time.Second
	defaultPollInterval      = 250 * time.Millisecond
)

// Config controls how sessions are launched and how long element lookups
// may take.
type Config struct {
	// SiteURL keys the launch limiter.
	SiteURL string
	// FrameName is the frame all DOM operations target. Empty targets the
	// top document.
	FrameName         string
	Headless          bool
	ExecPath          string
	UserAgent         string
	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	PollInterval      time.Duration
}

// Pacer delays session launches.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) (time.Duration, error)
}

// Chrome launches one Chrome process per session.
type Chrome struct {
	cfg     Config
	pacer   Pacer
	onDelay func(time.Duration)
	logger  *zap.Logger
}

// Option customizes Chrome.
type Option func(*Chrome)

// WithPacer paces launches and reports each wait to onDelay when non-nil.
func WithPacer(p Pacer, onDelay func(time.Duration)) Option {
	return func(c *Chrome) {
		c.pacer = p
		c.onDelay = onDelay
	}
}

// New validates cfg and fills defaults.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Chrome, error) {
	if cfg.NavigationTimeout < 0 || cfg.ElementTimeout < 0 || cfg.PollInterval < 0 {
		return nil, fmt.Errorf("browser timeouts must be non-negative")
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ElementTimeout == 0 {
		cfg.ElementTimeout = defaultElementTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Chrome{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if c.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ExecPath))
	}
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}
	return opts
}

// NewSession starts a browser for label. The returned session must be
// closed.
func (c *Chrome) NewSession(ctx context.Context, label string) (crawler.Session, error) {
	if c.pacer != nil {
		delay, err := c.pacer.Wait(ctx, c.cfg.SiteURL)
		if err != nil {
			return nil, fmt.Errorf("launch %s: %w", label, err)
		}
		if c.onDelay != nil {
			c.onDelay(delay)
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), c.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &session{
		cfg:     c.cfg,
		logger:  c.logger.With(zap.String("label", label)),
		tab:     tabCtx,
		dialogs: make(chan string, 1),
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	// The first Run allocates the browser and binds it to the context it is
	// given, so it must be the tab context itself rather than a timeout.
	if err := chromedp.Run(tabCtx); err != nil {
		s.cancel()
		return nil, fmt.Errorf("start chrome for %s: %w", label, err)
	}
	return s, nil
}

type session struct {
	cfg     Config
	logger  *zap.Logger
	tab     context.Context
	dialogs chan string

	closeOnce sync.Once
	cancel    func()
}

// scoped derives an operation context from the tab that also ends when the
// caller's ctx does.
func (s *session) scoped(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(s.tab, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (s *session) onEvent(ev any) {
	opening, ok := ev.(*page.EventJavascriptDialogOpening)
	if !ok {
		return
	}
	s.logger.Debug("accepting dialog", zap.String("type", string(opening.Type)), zap.String("message", opening.Message))
	// The event loop must not block on a command round trip.
	go func() {
		if err := chromedp.Run(s.tab, page.HandleJavaScriptDialog(true)); err != nil {
			s.logger.Warn("accept dialog failed", zap.Error(err))
		}
	}()
	select {
	case s.dialogs <- opening.Message:
	default:
	}
}

// Open navigates to url and returns a surface bound to the configured frame.
func (s *session) Open(ctx context.Context, url string) (crawler.Surface, error) {
	navCtx, stop := s.scoped(ctx, s.cfg.NavigationTimeout)
	defer stop()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: navigate %s: %v", crawler.ErrSurface, url, err)
	}
	return &frameSurface{session: s}, nil
}

// Close terminates the Chrome process. It is safe to call more than once.
func (s *session) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
