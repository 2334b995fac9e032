package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// scoring pipeline and the forecasting surface.
type Metrics struct {
	RecordsConsumed prometheus.Counter
	ScoresProduced  prometheus.Counter
	RecordsExcluded *prometheus.CounterVec // labels: reason={missing_data,out_of_range,parse_error}
	PipelineRunning prometheus.Gauge

	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Forecasting metrics.
	ForecastsTotal        *prometheus.CounterVec // labels: outcome={success,error}
	ExtrapolationWarnings prometheus.Counter
	FeaturesBackfilled    *prometheus.CounterVec // labels: feature
	ModelSwaps            prometheus.Counter
	ActiveModelLoaded     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsConsumed,
		m.ScoresProduced,
		m.RecordsExcluded,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.ForecastsTotal,
		m.ExtrapolationWarnings,
		m.FeaturesBackfilled,
		m.ModelSwaps,
		m.ActiveModelLoaded,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agriguard",
			Name:      "records_consumed_total",
			Help:      "Total observation records read from the source topic.",
		}),
		ScoresProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agriguard",
			Name:      "scores_produced_total",
			Help:      "Total stress score results written to the sink topic.",
		}),
		RecordsExcluded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agriguard",
			Name:      "records_excluded_total",
			Help:      "Records excluded from scoring by failure reason.",
		}, []string{"reason"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agriguard",
			Name:      "pipeline_running",
			Help:      "1 when the scoring pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agriguard",
			Name:      "batch_size",
			Help:      "Number of records per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agriguard",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-score-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		ForecastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agriguard",
			Name:      "forecasts_total",
			Help:      "Yield forecast requests by outcome.",
		}, []string{"outcome"}),
		ExtrapolationWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agriguard",
			Name:      "extrapolation_warnings_total",
			Help:      "Forecasts produced with inputs outside the training distribution.",
		}),
		FeaturesBackfilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agriguard",
			Name:      "features_backfilled_total",
			Help:      "Features substituted from climatology, by feature name.",
		}, []string{"feature"}),
		ModelSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agriguard",
			Name:      "model_swaps_total",
			Help:      "Successful model artifact activations.",
		}),
		ActiveModelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agriguard",
			Name:      "active_model_loaded",
			Help:      "1 when a model artifact is loaded and servable, 0 otherwise.",
		}),
	}
}
