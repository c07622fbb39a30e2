package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for harvest runs.
type Metrics struct {
	registry *prometheus.Registry

	Runs           *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	LastRunAt      prometheus.Gauge
	AuthorOutcomes *prometheus.CounterVec
	PostsCollected *prometheus.CounterVec
	EntriesAdded   *prometheus.CounterVec
}

// New registers the collectors on a registry of their own.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timeline_comb_runs_total",
			Help: "Harvest runs by terminal state",
		}, []string{"state"}),

		// runs include randomised cooldowns between authors
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "timeline_comb_run_duration_seconds",
			Help:    "Harvest run duration in seconds",
			Buckets: []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		}),

		LastRunAt: factory.NewGauge(prometheus.GaugeOpts{
			Name: "timeline_comb_last_run_timestamp_seconds",
			Help: "Unix time the last harvest run finished",
		}),

		AuthorOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timeline_comb_author_harvests_total",
			Help: "Author harvests by author and terminal state",
		}, []string{"author", "state"}),

		PostsCollected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timeline_comb_posts_collected_total",
			Help: "Post references collected from timelines",
		}, []string{"author"}),

		EntriesAdded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "timeline_comb_feed_entries_added_total",
			Help: "Entries appended to feed documents",
		}, []string{"author"}),
	}
}

func (m *Metrics) RecordAuthor(handle, state string, collected, appended int) {
	m.AuthorOutcomes.WithLabelValues(handle, state).Inc()
	m.PostsCollected.WithLabelValues(handle).Add(float64(collected))
	m.EntriesAdded.WithLabelValues(handle).Add(float64(appended))
}

func (m *Metrics) RecordRun(state string, duration time.Duration) {
	m.Runs.WithLabelValues(state).Inc()
	m.RunDuration.Observe(duration.Seconds())
	m.LastRunAt.SetToCurrentTime()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
