package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meizi0715/bdt-v1.5/internal/crawler"
)

var _ crawler.Browser = (*Chrome)(nil)

type countingPacer struct {
	calls int
	host  string
	err   error
}

func (p *countingPacer) Wait(_ context.Context, rawURL string) (time.Duration, error) {
	p.calls++
	p.host = rawURL
	return 5 * time.Millisecond, p.err
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	c, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultNavigationTimeout, c.cfg.NavigationTimeout)
	assert.Equal(t, defaultElementTimeout, c.cfg.ElementTimeout)
	assert.Equal(t, defaultPollInterval, c.cfg.PollInterval)

	_, err = New(Config{ElementTimeout: -time.Second}, nil)
	assert.Error(t, err)
}

func TestAllocatorOptions(t *testing.T) {
	t.Parallel()

	base, err := New(Config{Headless: true}, nil)
	require.NoError(t, err)
	custom, err := New(Config{Headless: true, ExecPath: "/usr/bin/chromium", UserAgent: "slotwatch"}, nil)
	require.NoError(t, err)
	assert.Len(t, custom.allocatorOptions(), len(base.allocatorOptions())+2)
}

func TestNewSessionStopsOnPacerError(t *testing.T) {
	t.Parallel()

	pacer := &countingPacer{err: errors.New("rate limit wait: context canceled")}
	var delays []time.Duration
	c, err := New(Config{SiteURL: "https://yoyaku.example.jp/"}, zap.NewNop(), WithPacer(pacer, func(d time.Duration) {
		delays = append(delays, d)
	}))
	require.NoError(t, err)

	_, err = c.NewSession(context.Background(), "gym")
	require.Error(t, err)
	assert.Equal(t, 1, pacer.calls)
	assert.Equal(t, "https://yoyaku.example.jp/", pacer.host)
	assert.Empty(t, delays)
}

func TestBuildScriptEncodesArguments(t *testing.T) {
	t.Parallel()

	script, err := buildScript("MainFrame", `input[onclick*="cmdYoyaku_click('1','2')"]`, opClick, "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(script,
		`})("MainFrame", "input[onclick*=\"cmdYoyaku_click('1','2')\"]", "click", "")`), script)
}

func TestScriptResultErrors(t *testing.T) {
	t.Parallel()

	for _, reason := range []string{"frame", "missing", "hidden"} {
		assert.ErrorIs(t, scriptResult{Reason: reason}.err("#x"), errNoElement, reason)
	}
	assert.ErrorIs(t, scriptResult{Reason: "option"}.err("#x"), crawler.ErrSurface)
	assert.ErrorIs(t, scriptResult{Reason: "op"}.err("#x"), crawler.ErrSurface)
}

const framesetPage = `<html><frameset rows="100%%"><frame name="MainFrame" src="%s/frame"></frameset></html>`

const framePage = `<html><body>
<input type="button" alt="go" onclick="document.getElementById('out').innerHTML='clicked'">
<input type="checkbox" name="chk_bunrui1_100100">
<select name="lst_kaikan" onchange="document.getElementById('out').innerHTML='room-'+this.value">
  <option value="1">one</option><option value="2">two</option>
</select>
<input type="button" name="disp_mode" value="0" onclick="if (confirm('switch?')) { document.getElementById('out').innerHTML='confirmed'; }">
<div id="out">idle</div>
</body></html>`

func findChrome() string {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

func TestChromeFrameOperations(t *testing.T) {
	if testing.Short() {
		t.Skip("browser integration test")
	}
	execPath := findChrome()
	if execPath == "" {
		t.Skip("chrome not installed")
	}

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Path == "/frame" {
			fmt.Fprint(w, framePage)
			return
		}
		fmt.Fprintf(w, framesetPage, srv.URL)
	}))
	defer srv.Close()

	c, err := New(Config{
		SiteURL:        srv.URL,
		FrameName:      "MainFrame",
		Headless:       true,
		ExecPath:       execPath,
		ElementTimeout: 10 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sess, err := c.NewSession(ctx, "test")
	if err != nil {
		t.Skipf("chrome did not start: %v", err)
	}
	defer sess.Close() //nolint:errcheck

	surface, err := sess.Open(ctx, srv.URL)
	require.NoError(t, err)

	require.NoError(t, surface.WaitVisible(ctx, `input[alt='go']`))
	require.NoError(t, surface.Click(ctx, `input[alt='go']`))
	out, err := surface.InnerHTML(ctx, "#out")
	require.NoError(t, err)
	assert.Equal(t, "clicked", out)

	require.NoError(t, surface.Check(ctx, `input[name='chk_bunrui1_100100']`))
	require.NoError(t, surface.SelectOption(ctx, `select[name='lst_kaikan']`, "2"))
	out, err = surface.InnerHTML(ctx, "#out")
	require.NoError(t, err)
	assert.Equal(t, "room-2", out)
	assert.ErrorIs(t, surface.SelectOption(ctx, `select[name='lst_kaikan']`, "9"), crawler.ErrSurface)

	opened, err := surface.ClickExpectDialog(ctx, `input[name='disp_mode'][value='0']`, 5*time.Second)
	require.NoError(t, err)
	assert.True(t, opened)
	out, err = surface.InnerHTML(ctx, "#out")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", out)

	doc, err := surface.DocumentHTML(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc, `name="lst_kaikan"`)

	assert.ErrorIs(t, surface.Click(ctx, "#absent"), crawler.ErrSurface)
	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
}
