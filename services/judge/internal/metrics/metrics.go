// Package metrics exposes the judge's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Event outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeRetry     = "retry"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeIgnored   = "ignored"
	OutcomeDLQ       = "dlq"
)

// Announcement operations.
const (
	OpCreated = "created"
	OpUpdated = "updated"
	OpDeleted = "deleted"
	OpStale   = "stale"
)

// Recorder is what the engine reports to. Nop discards everything.
type Recorder interface {
	RecordEvent(eventType, outcome string)
	RecordSweep(d time.Duration)
	RecordResolved()
	RecordAnnouncement(op string)
}

type Nop struct{}

func (Nop) RecordEvent(string, string) {}
func (Nop) RecordSweep(time.Duration) {}
func (Nop) RecordResolved() {}
func (Nop) RecordAnnouncement(string) {}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	events        *prometheus.CounterVec
	sweepRuns     prometheus.Counter
	sweepDuration prometheus.Histogram
	resolved      prometheus.Counter
	announcements *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_events_total",
			Help: "Lifecycle notifications handled, by type and outcome.",
		}, []string{"type", "outcome"}),
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "judge_sweep_runs_total",
			Help: "Completed sweep passes.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "judge_sweep_duration_seconds",
			Help:    "Wall time of a sweep pass.",
			Buckets: prometheus.DefBuckets,
		}),
		resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "judge_posts_resolved_total",
			Help: "Posts that received a committed winner.",
		}),
		announcements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_announcements_total",
			Help: "Announcement comment operations.",
		}, []string{"op"}),
	}
	reg.MustRegister(c.events, c.sweepRuns, c.sweepDuration, c.resolved, c.announcements)
	return c
}

func (c *Collector) RecordEvent(eventType, outcome string) {
	c.events.WithLabelValues(eventType, outcome).Inc()
}

func (c *Collector) RecordSweep(d time.Duration) {
	c.sweepRuns.Inc()
	c.sweepDuration.Observe(d.Seconds())
}

func (c *Collector) RecordResolved() { c.resolved.Inc() }

func (c *Collector) RecordAnnouncement(op string) {
	c.announcements.WithLabelValues(op).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
