package crawler

import (
	"context"
	"fmt"
	"time"
)

// Wait defaults.
const (
	DefaultWaitTimeout  = 25 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

// WaitConfig bounds a ChangeWaiter.
type WaitConfig struct {
	Timeout  time.Duration
	Interval time.Duration
}

// ChangeWaiter polls a fragment until its content differs from a previously
// observed value.
type ChangeWaiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewChangeWaiter applies defaults to unset fields.
func NewChangeWaiter(cfg WaitConfig) *ChangeWaiter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWaitTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	return &ChangeWaiter{timeout: cfg.Timeout, interval: cfg.Interval}
}

// WaitForChange reads selector, then re-reads every interval, at most
// timeout/interval times. It returns the first content that differs from
// previous, or a *TimeoutError naming label. Read errors count as "no change
// yet". Cancelling ctx ends the wait early.
func (w *ChangeWaiter) WaitForChange(ctx context.Context, surface Surface, selector, previous, label string) (string, error) {
	attempts := int(w.timeout / w.interval)
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		content, err := surface.InnerHTML(ctx, selector)
		switch {
		case err != nil:
			lastErr = err
		case content != previous:
			return content, nil
		}
		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", fmt.Errorf("wait for %s on %s: %w", selector, label, ctx.Err())
		case <-timer.C:
		}
	}
	return "", &TimeoutError{Label: label, Selector: selector, Timeout: w.timeout, Last: lastErr}
}
