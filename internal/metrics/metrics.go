package metrics

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names
const (
	PredictionsTotalName      = "gemm_perf_predictions_total"
	PredictionErrorsTotalName = "gemm_perf_prediction_errors_total"
	PredictionRatioName       = "gemm_perf_prediction_ratio"
	PredictedWavesName        = "gemm_perf_predicted_waves"
)

// MetricsEmitter handles emission of prediction metrics
type MetricsEmitter struct {
	predictionsTotal *prometheus.CounterVec
	predictionErrors *prometheus.CounterVec
	predictionRatio  *prometheus.HistogramVec
	predictedWaves   *prometheus.HistogramVec
}

// InitMetrics registers all prediction metrics with the provided registry
func InitMetrics(registry prometheus.Registerer) *MetricsEmitter {
	m := &MetricsEmitter{
		predictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: PredictionsTotalName,
				Help: "Total number of runtime predictions",
			},
			[]string{"model", "bound"},
		),
		predictionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: PredictionErrorsTotalName,
				Help: "Total number of configurations the model rejected",
			},
			[]string{"model"},
		),
		predictionRatio: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    PredictionRatioName,
				Help:    "Predicted over measured runtime",
				Buckets: prometheus.ExponentialBucketsRange(0.125, 8, 13),
			},
			[]string{"model"},
		),
		predictedWaves: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    PredictedWavesName,
				Help:    "Mainloop waves of persistent kernel predictions",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"model"},
		),
	}

	registry.MustRegister(m.predictionsTotal)
	registry.MustRegister(m.predictionErrors)
	registry.MustRegister(m.predictionRatio)
	registry.MustRegister(m.predictedWaves)
	return m
}

// EmitPredictionMetrics records one successful prediction.
// bound is empty for models that do not classify; ratio is NaN when no measurement exists.
func (m *MetricsEmitter) EmitPredictionMetrics(model, bound string, waves int, ratio float64) {
	if m == nil {
		return
	}
	m.predictionsTotal.With(prometheus.Labels{"model": model, "bound": bound}).Inc()
	if waves > 0 {
		m.predictedWaves.WithLabelValues(model).Observe(float64(waves))
	}
	if !math.IsNaN(ratio) && !math.IsInf(ratio, 0) {
		m.predictionRatio.WithLabelValues(model).Observe(ratio)
	}
}

// EmitErrorMetrics records a rejected configuration
func (m *MetricsEmitter) EmitErrorMetrics(model string) {
	if m == nil {
		return
	}
	m.predictionErrors.WithLabelValues(model).Inc()
}
