package knowledge

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for indexing and search.
type Metrics struct {
	IndexRunsTotal *prometheus.CounterVec
	IndexDuration  prometheus.Histogram
	IndexedChunks  prometheus.Counter
	EmbedDuration  prometheus.Histogram
	SearchesTotal  *prometheus.CounterVec
	SearchDuration prometheus.Histogram
	SearchResultsN prometheus.Histogram
	SkippedFiles   prometheus.Counter
}

// NewMetrics registers and returns knowledge metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		IndexRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_index_runs_total",
			Help: "Total indexing runs by result.",
		}, []string{"result"}),
		IndexDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_index_duration_seconds",
			Help:    "Duration of indexing runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}),
		IndexedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_indexed_chunks_total",
			Help: "Total chunks embedded and upserted.",
		}),
		EmbedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_embed_duration_seconds",
			Help:    "Duration of embedding calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}),
		SearchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_searches_total",
			Help: "Total knowledge searches by result.",
		}, []string{"result"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_search_duration_seconds",
			Help:    "Duration of knowledge searches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms .. ~5s
		}),
		SearchResultsN: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_search_results",
			Help:    "Results returned per search.",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 .. 10
		}),
		SkippedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_index_skipped_files_total",
			Help: "Total runbook files skipped because they could not be read.",
		}),
	}

	reg.MustRegister(
		m.IndexRunsTotal,
		m.IndexDuration,
		m.IndexedChunks,
		m.EmbedDuration,
		m.SearchesTotal,
		m.SearchDuration,
		m.SearchResultsN,
		m.SkippedFiles,
	)

	return m
}

// Hooks returns a Hooks that records the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnEmbed: func(_ int, duration float64) {
			m.EmbedDuration.Observe(duration)
		},
		OnIndexed: func(r *IndexReport, duration float64, err error) {
			result := "success"
			if err != nil {
				result = "error"
			}
			m.IndexRunsTotal.WithLabelValues(result).Inc()
			m.IndexDuration.Observe(duration)
			if r != nil {
				m.IndexedChunks.Add(float64(r.Chunks))
				m.SkippedFiles.Add(float64(len(r.Skipped)))
			}
		},
		OnSearch: func(results int, duration float64, err error) {
			result := "success"
			if err != nil {
				result = "error"
			}
			m.SearchesTotal.WithLabelValues(result).Inc()
			m.SearchDuration.Observe(duration)
			if err == nil {
				m.SearchResultsN.Observe(float64(results))
			}
		},
	}
}
