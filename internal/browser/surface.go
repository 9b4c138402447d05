package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/meizi0715/bdt-v1.5/internal/crawler"
)

// Operation names understood by the in-page script.
const (
	opExists   = "exists"
	opClick    = "click"
	opCheck    = "check"
	opSelect   = "select"
	opInner    = "inner"
	opDocument = "document"
)

// errNoElement marks a lookup that found nothing; WaitVisible retries on it.
var errNoElement = errors.New("no element")

// domScript resolves the target document (the named frame, or the top
// document when the name is empty), finds the selector and applies op.
// Frames are re-resolved on every call because the site reloads them.
const domScript = `(function(frameName, selector, op, arg) {
  var doc = document;
  if (frameName) {
    var f = document.querySelector('frame[name="' + frameName + '"],iframe[name="' + frameName + '"]');
    if (!f || !f.contentDocument) { return {ok: false, reason: "frame"}; }
    doc = f.contentDocument;
  }
  if (op === "document") {
    return {ok: true, value: doc.documentElement ? doc.documentElement.outerHTML : ""};
  }
  var el = doc.querySelector(selector);
  if (!el) { return {ok: false, reason: "missing"}; }
  switch (op) {
  case "exists":
    var visible = !!(el.offsetWidth || el.offsetHeight || el.getClientRects().length);
    return {ok: visible, reason: visible ? "" : "hidden"};
  case "click":
    el.click();
    return {ok: true};
  case "check":
    if (!el.checked) { el.click(); }
    return {ok: true};
  case "select":
    el.value = arg;
    if (el.value !== arg) { return {ok: false, reason: "option"}; }
    el.dispatchEvent(new Event("change", {bubbles: true}));
    return {ok: true};
  case "inner":
    return {ok: true, value: el.innerHTML};
  }
  return {ok: false, reason: "op"};
})(%s, %s, %s, %s)`

type scriptResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
	Value  string `json:"value"`
}

// buildScript renders domScript with JSON-encoded arguments.
func buildScript(frameName, selector, op, arg string) (string, error) {
	args := make([]any, 0, 4)
	for _, v := range []string{frameName, selector, op, arg} {
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode script argument: %w", err)
		}
		args = append(args, string(encoded))
	}
	return fmt.Sprintf(domScript, args...), nil
}

func (r scriptResult) err(selector string) error {
	switch r.Reason {
	case "frame":
		return fmt.Errorf("%w: frame not available", errNoElement)
	case "missing":
		return fmt.Errorf("%w: %q", errNoElement, selector)
	case "hidden":
		return fmt.Errorf("%w: %q is not visible", errNoElement, selector)
	case "option":
		return fmt.Errorf("%w: option not available in %q", crawler.ErrSurface, selector)
	default:
		return fmt.Errorf("%w: %s failed on %q", crawler.ErrSurface, r.Reason, selector)
	}
}

// frameSurface implements crawler.Surface on one session's frame.
type frameSurface struct {
	session *session
}

func (f *frameSurface) eval(ctx context.Context, selector, op, arg string) (scriptResult, error) {
	script, err := buildScript(f.session.cfg.FrameName, selector, op, arg)
	if err != nil {
		return scriptResult{}, err
	}
	opCtx, stop := f.session.scoped(ctx, f.session.cfg.ElementTimeout)
	defer stop()
	var res scriptResult
	if err := chromedp.Run(opCtx, chromedp.Evaluate(script, &res)); err != nil {
		return scriptResult{}, fmt.Errorf("%w: evaluate %s on %q: %v", crawler.ErrSurface, op, selector, err)
	}
	return res, nil
}

func (f *frameSurface) do(ctx context.Context, selector, op, arg string) (string, error) {
	res, err := f.eval(ctx, selector, op, arg)
	if err != nil {
		return "", err
	}
	if !res.OK {
		err := res.err(selector)
		if errors.Is(err, errNoElement) {
			return "", fmt.Errorf("%w: %v", crawler.ErrSurface, err)
		}
		return "", err
	}
	return res.Value, nil
}

// WaitVisible polls until selector resolves to a visible element or the
// element timeout passes.
func (f *frameSurface) WaitVisible(ctx context.Context, selector string) error {
	deadline := time.Now().Add(f.session.cfg.ElementTimeout)
	ticker := time.NewTicker(f.session.cfg.PollInterval)
	defer ticker.Stop()
	for {
		res, err := f.eval(ctx, selector, opExists, "")
		if err != nil {
			return err
		}
		if res.OK {
			return nil
		}
		last := res.err(selector)
		if !errors.Is(last, errNoElement) {
			return last
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: wait visible after %s: %v", crawler.ErrSurface, f.session.cfg.ElementTimeout, last)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait visible %q: %w", selector, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Click implements crawler.Surface.
func (f *frameSurface) Click(ctx context.Context, selector string) error {
	_, err := f.do(ctx, selector, opClick, "")
	return err
}

// ClickExpectDialog clicks and waits up to timeout for a dialog, which the
// session accepts automatically.
func (f *frameSurface) ClickExpectDialog(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	// Discard a stale notification from an earlier, unexpected dialog.
	select {
	case <-f.session.dialogs:
	default:
	}
	if _, err := f.do(ctx, selector, opClick, ""); err != nil {
		return false, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.session.dialogs:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, fmt.Errorf("wait for dialog: %w", ctx.Err())
	}
}

// Check implements crawler.Surface.
func (f *frameSurface) Check(ctx context.Context, selector string) error {
	_, err := f.do(ctx, selector, opCheck, "")
	return err
}

// SelectOption implements crawler.Surface.
func (f *frameSurface) SelectOption(ctx context.Context, selector, value string) error {
	_, err := f.do(ctx, selector, opSelect, value)
	return err
}

// InnerHTML implements crawler.Surface.
func (f *frameSurface) InnerHTML(ctx context.Context, selector string) (string, error) {
	return f.do(ctx, selector, opInner, "")
}

// DocumentHTML implements crawler.Surface.
func (f *frameSurface) DocumentHTML(ctx context.Context) (string, error) {
	return f.do(ctx, "", opDocument, "")
}
