package tracker

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the tracker's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	tokensAdded     *prometheus.CounterVec
	refreshRuns     *prometheus.CounterVec
	refreshEntries  *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	lastRefresh     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tokensAdded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memewatch_tokens_added_total",
				Help: "Add requests by result",
			},
			[]string{"result"},
		),
		refreshRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memewatch_refresh_runs_total",
				Help: "Refresh sweeps by result",
			},
			[]string{"result"},
		),
		refreshEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memewatch_refresh_entries_total",
				Help: "Due entries processed by refresh, by outcome",
			},
			[]string{"outcome"},
		),
		refreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "memewatch_refresh_duration_seconds",
				Help:    "Refresh sweep duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		lastRefresh: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memewatch_last_refresh_timestamp_seconds",
				Help: "Unix time of the last completed refresh sweep",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.tokensAdded,
			m.refreshRuns,
			m.refreshEntries,
			m.refreshDuration,
			m.lastRefresh,
		)
	}
	return m
}

func (m *Metrics) observeAdd(err error) {
	if m == nil {
		return
	}
	var (
		validation *ValidationError
		result     string
	)
	switch {
	case err == nil:
		result = "ok"
	case errors.As(err, &validation):
		result = "invalid"
	case errors.Is(err, ErrAlreadyTracked):
		result = "duplicate"
	default:
		result = "error"
	}
	m.tokensAdded.WithLabelValues(result).Inc()
}

func (m *Metrics) observeRefresh(res RefreshResult, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	switch {
	case errors.Is(err, ErrRefreshInProgress):
		m.refreshRuns.WithLabelValues("busy").Inc()
		return
	case err != nil:
		m.refreshRuns.WithLabelValues("error").Inc()
		return
	}
	m.refreshRuns.WithLabelValues("ok").Inc()
	m.refreshEntries.WithLabelValues("updated").Add(float64(res.Updated))
	m.refreshEntries.WithLabelValues("skipped").Add(float64(res.Skipped))
	m.refreshEntries.WithLabelValues("failed").Add(float64(len(res.Failures)))
	m.refreshDuration.Observe(elapsed.Seconds())
	m.lastRefresh.Set(float64(res.Now.Unix()))
}
