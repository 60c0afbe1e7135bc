package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors groups the pipeline's Prometheus instruments. A nil *Collectors is
// valid and records nothing, so stages can run without metrics wired.
type Collectors struct {
	registry *prometheus.Registry

	ArticlesFetched   *prometheus.CounterVec
	ArticlesAnalyzed  *prometheus.CounterVec
	AnalysisFailures  *prometheus.CounterVec
	DaysSummarized    *prometheus.CounterVec
	WindowFailures    *prometheus.CounterVec
	CompletionCalls   *prometheus.CounterVec
	PipelineDuration  *prometheus.HistogramVec
	CompletionLatency *prometheus.HistogramVec
}

// New builds collectors on a dedicated registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),

		ArticlesFetched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentiment_articles_fetched_total",
				Help: "Newly stored articles per ticker",
			},
			[]string{"ticker"},
		),
		ArticlesAnalyzed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentiment_articles_analyzed_total",
				Help: "Mentions produced by scoring",
			},
			[]string{"ticker"},
		),
		AnalysisFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentiment_analysis_failures_total",
				Help: "Scoring attempts that produced no mention",
			},
			[]string{"ticker", "kind"}, // kind: completion|parse|schema|store
		),
		DaysSummarized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentiment_days_summarized_total",
				Help: "Daily aggregates written",
			},
			[]string{"ticker"},
		),
		WindowFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentiment_window_failures_total",
				Help: "News search sub-windows skipped after a failure",
			},
			[]string{"ticker"},
		),
		CompletionCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentiment_completion_calls_total",
				Help: "Calls to the text-understanding service",
			},
			[]string{"purpose", "status"}, // status: success|error
		),
		PipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentiment_pipeline_duration_seconds",
				Help:    "Pipeline run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"ticker"},
		),
		CompletionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentiment_completion_latency_seconds",
				Help:    "Text-understanding call latency in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"purpose"},
		),
	}

	c.registry.MustRegister(
		c.ArticlesFetched,
		c.ArticlesAnalyzed,
		c.AnalysisFailures,
		c.DaysSummarized,
		c.WindowFailures,
		c.CompletionCalls,
		c.PipelineDuration,
		c.CompletionLatency,
	)
	return c
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collectors) Fetched(ticker string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.ArticlesFetched.WithLabelValues(ticker).Add(float64(n))
}

func (c *Collectors) Analyzed(ticker string) {
	if c == nil {
		return
	}
	c.ArticlesAnalyzed.WithLabelValues(ticker).Inc()
}

func (c *Collectors) AnalysisFailed(ticker, kind string) {
	if c == nil {
		return
	}
	c.AnalysisFailures.WithLabelValues(ticker, kind).Inc()
}

func (c *Collectors) Summarized(ticker string) {
	if c == nil {
		return
	}
	c.DaysSummarized.WithLabelValues(ticker).Inc()
}

func (c *Collectors) WindowFailed(ticker string) {
	if c == nil {
		return
	}
	c.WindowFailures.WithLabelValues(ticker).Inc()
}

// Completion records one service call and its latency.
func (c *Collectors) Completion(purpose string, took time.Duration, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.CompletionCalls.WithLabelValues(purpose, status).Inc()
	c.CompletionLatency.WithLabelValues(purpose).Observe(took.Seconds())
}

func (c *Collectors) PipelineRun(ticker string, took time.Duration) {
	if c == nil {
		return
	}
	c.PipelineDuration.WithLabelValues(ticker).Observe(took.Seconds())
}
