package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	TriagesTotal     *prometheus.CounterVec
	TriageDuration   *prometheus.HistogramVec
	StageDuration    *prometheus.HistogramVec
	StageErrors      *prometheus.CounterVec
	RetrievedResults prometheus.Histogram
	Confidence       *prometheus.CounterVec
	LLMCallsTotal    *prometheus.CounterVec
	LLMTokensIn      prometheus.Counter
	LLMTokensOut     prometheus.Counter
	LLMDuration      *prometheus.HistogramVec
	HandOffsTotal    *prometheus.CounterVec
	NotifiesTotal    *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_triages_total",
			Help: "Total pipeline runs by final state.",
		}, []string{"state"}),
		TriageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_triage_duration_seconds",
			Help:    "Duration of pipeline runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}, []string{"state"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_triage_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		}, []string{"stage"}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_triage_stage_errors_total",
			Help: "Pipeline stage failures by stage.",
		}, []string{"stage"}),
		RetrievedResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_triage_retrieved_results",
			Help:    "Runbook sections used per suggestion.",
			Buckets: prometheus.LinearBuckets(0, 1, 11), // 0 .. 10
		}),
		Confidence: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_triage_confidence_total",
			Help: "Generated suggestions by confidence label.",
		}, []string{"confidence"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_llm_calls_total",
			Help: "Total LLM provider calls by stage and status.",
		}, []string{"stage", "status"}),
		LLMTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}),
		LLMTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 0.25s .. ~64s
		}, []string{"stage"}),
		HandOffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_handoffs_total",
			Help: "Total record hand-offs to the store by result.",
		}, []string{"result"}),
		NotifiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_notifications_total",
			Help: "Total chat notifications by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.TriagesTotal,
		m.TriageDuration,
		m.StageDuration,
		m.StageErrors,
		m.RetrievedResults,
		m.Confidence,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
		m.HandOffsTotal,
		m.NotifiesTotal,
	)

	return m
}

// Hooks returns an EngineHooks that records the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnLLMCall: func(stage Stage, inputTokens, outputTokens int, duration float64, err error) {
			m.LLMCallsTotal.WithLabelValues(string(stage), status(err)).Inc()
			m.LLMTokensIn.Add(float64(inputTokens))
			m.LLMTokensOut.Add(float64(outputTokens))
			m.LLMDuration.WithLabelValues(string(stage)).Observe(duration)
		},
		OnStage: func(stage Stage, duration float64, err error) {
			m.StageDuration.WithLabelValues(string(stage)).Observe(duration)
			if err != nil {
				m.StageErrors.WithLabelValues(string(stage)).Inc()
			}
		},
		OnComplete: func(o *Outcome) {
			m.TriagesTotal.WithLabelValues(string(o.State)).Inc()
			m.TriageDuration.WithLabelValues(string(o.State)).Observe(o.Duration)
			if o.Suggestion != nil {
				m.RetrievedResults.Observe(float64(len(o.Results)))
				m.Confidence.WithLabelValues(string(o.Suggestion.Confidence)).Inc()
			}
		},
	}
}

// ServiceHooks returns a ServiceHooks that records hand-off and
// notification results.
func (m *Metrics) ServiceHooks() ServiceHooks {
	return ServiceHooks{
		OnHandOff: func(err error) { m.HandOffsTotal.WithLabelValues(status(err)).Inc() },
		OnNotify:  func(err error) { m.NotifiesTotal.WithLabelValues(status(err)).Inc() },
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
