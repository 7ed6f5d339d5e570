package briefing

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the briefing subsystem.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	StageDuration    *prometheus.HistogramVec
	EntriesFetched   prometheus.Histogram
	StoriesDeduped   prometheus.Histogram
	EntriesPublished prometheus.Histogram
	FeedErrorsTotal  prometheus.Counter
	FilteredTotal    prometheus.Counter
	DegradedTotal    prometheus.Counter
	StartsTotal      *prometheus.CounterVec
}

// NewMetrics registers and returns briefing metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_runs_total",
			Help: "Total briefing runs by final status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hermes_run_duration_seconds",
			Help:    "Duration of briefing runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}, []string{"status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hermes_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s .. ~51s
		}, []string{"stage"}),
		EntriesFetched: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hermes_entries_fetched",
			Help:    "Raw feed entries ingested per run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 .. ~2048
		}),
		StoriesDeduped: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hermes_stories_deduped",
			Help:    "Canonical stories per run after deduplication.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		EntriesPublished: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hermes_entries_published",
			Help:    "Briefing entries published per run.",
			Buckets: prometheus.LinearBuckets(0, 1, 16), // 0 .. 15
		}),
		FeedErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_feed_errors_total",
			Help: "Total failed feed fetches.",
		}),
		FilteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_stories_filtered_total",
			Help: "Total stories excluded for scoring below the threshold.",
		}),
		DegradedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_entries_degraded_total",
			Help: "Total briefing entries produced with degraded quality.",
		}),
		StartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_run_starts_total",
			Help: "Total run start requests by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.StageDuration,
		m.EntriesFetched,
		m.StoriesDeduped,
		m.EntriesPublished,
		m.FeedErrorsTotal,
		m.FilteredTotal,
		m.DegradedTotal,
		m.StartsTotal,
	)

	return m
}

// Hooks returns an EngineHooks that feeds stage timings into the metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnStage: func(stage Status, seconds float64) {
			m.StageDuration.WithLabelValues(string(stage)).Observe(seconds)
		},
	}
}

// ObserveRun records the terminal outcome of a run.
func (m *Metrics) ObserveRun(run *Run) {
	m.RunsTotal.WithLabelValues(string(run.Status)).Inc()
	m.RunDuration.WithLabelValues(string(run.Status)).Observe(run.Duration)
	m.EntriesFetched.Observe(float64(run.Counts.EntriesFetched))
	m.StoriesDeduped.Observe(float64(run.Counts.Stories))
	m.EntriesPublished.Observe(float64(run.Counts.Published))
	m.FeedErrorsTotal.Add(float64(run.Counts.FeedErrors))
	m.FilteredTotal.Add(float64(run.Counts.Filtered))
	m.DegradedTotal.Add(float64(run.Counts.Degraded))
}
