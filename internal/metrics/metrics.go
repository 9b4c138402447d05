// Package metrics records run metrics on a private Prometheus registry and
// flushes them at the end of a run, since the process does not live long
// enough to be scraped.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "slotwatch"

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// FlushConfig says where Flush writes. Empty fields are skipped.
type FlushConfig struct {
	// Textfile is a node_exporter textfile collector path ending in .prom.
	Textfile string
	// Pushgateway is the base URL of a Prometheus Pushgateway.
	Pushgateway string
	Job         string
}

// Recorder implements crawler.Observer and the pipeline's run hooks.
type Recorder struct {
	registry *prometheus.Registry

	locations       *prometheus.CounterVec
	waitTimeouts    *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	launchDelay     prometheus.Histogram
	snapshotsSaved  prometheus.Counter
	snapshotsPruned prometheus.Counter
	decisions       *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	reportLines     prometheus.Gauge
	lastRun         prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		locations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locations_total",
			Help:      "Locations crawled, labeled by session label and result.",
		}, []string{"label", "result"}),
		waitTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_timeouts_total",
			Help:      "Grid change waits that exceeded their bound.",
		}, []string{"label"}),
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Browser sessions finished, labeled by status.",
		}, []string{"label", "status"}),
		sessionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time of one label's browser session.",
			Buckets:   []float64{5, 15, 30, 60, 120, 240, 480},
		}, []string{"label"}),
		launchDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_launch_delay_seconds",
			Help:      "Time spent waiting on the launch rate limiter.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		snapshotsSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_saved_total",
			Help:      "Snapshots written.",
		}),
		snapshotsPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_pruned_total",
			Help:      "Snapshots deleted by retention.",
		}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Notification decisions, labeled by reason.",
		}, []string{"reason"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries, labeled by channel and status.",
		}, []string{"channel", "status"}),
		reportLines: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_lines",
			Help:      "Lines in the most recent report.",
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the most recent run finished.",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// LocationFinished implements crawler.Observer.
func (r *Recorder) LocationFinished(label, _, result string) {
	r.locations.WithLabelValues(label, result).Inc()
}

// WaitTimedOut implements crawler.Observer.
func (r *Recorder) WaitTimedOut(label string) {
	r.waitTimeouts.WithLabelValues(label).Inc()
}

// SessionFinished implements crawler.Observer.
func (r *Recorder) SessionFinished(label string, elapsed time.Duration, err error) {
	r.sessions.WithLabelValues(label, statusOf(err)).Inc()
	r.sessionDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// LaunchDelayed records a rate limiter wait.
func (r *Recorder) LaunchDelayed(d time.Duration) {
	r.launchDelay.Observe(d.Seconds())
}

// SnapshotSaved counts one write.
func (r *Recorder) SnapshotSaved() { r.snapshotsSaved.Inc() }

// SnapshotsPruned counts n deletions.
func (r *Recorder) SnapshotsPruned(n int) {
	if n > 0 {
		r.snapshotsPruned.Add(float64(n))
	}
}

// Decided counts a notification decision.
func (r *Recorder) Decided(reason string) {
	r.decisions.WithLabelValues(reason).Inc()
}

// Notified counts one delivery attempt.
func (r *Recorder) Notified(channel string, err error) {
	r.notifications.WithLabelValues(channel, statusOf(err)).Inc()
}

// RunFinished stamps the end of a run.
func (r *Recorder) RunFinished(at time.Time, lines int) {
	r.reportLines.Set(float64(lines))
	r.lastRun.Set(float64(at.Unix()))
}

// Flush writes the registry to every configured sink. Both sinks are
// attempted; their errors are joined.
func (r *Recorder) Flush(ctx context.Context, cfg FlushConfig) error {
	var errs []error
	if cfg.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Textfile, r.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics textfile: %w", err))
		}
	}
	if cfg.Pushgateway != "" {
		job := cfg.Job
		if job == "" {
			job = namespace
		}
		if err := push.New(cfg.Pushgateway, job).Gatherer(r.registry).PushContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("push metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}
