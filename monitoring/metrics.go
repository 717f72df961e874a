package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prediction outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeValidationError = "validation_error"
	OutcomeInferenceError  = "inference_error"
	OutcomeStorageError    = "storage_error"
)

var (
	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watercheck",
			Name:      "predictions_total",
			Help:      "Predict requests handled, partitioned by outcome and verdict.",
		},
		[]string{"outcome", "result"},
	)

	predictDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "watercheck",
			Name:      "predict_seconds",
			Help:      "Predict request latency in seconds, including the log write.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	logReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watercheck",
			Name:      "log_reads_total",
			Help:      "Prediction log reads, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	exportRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "watercheck",
			Name:      "export_runs_total",
			Help:      "Prediction log exports, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	streamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "watercheck",
			Name:      "stream_clients",
			Help:      "Connected live log stream clients.",
		},
	)
)

// Register attaches watercheck collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		predictionsTotal,
		predictDurationSeconds,
		logReadsTotal,
		exportRunsTotal,
		streamClients,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObservePrediction records one predict request. result is empty unless the
// request succeeded.
func ObservePrediction(duration time.Duration, outcome, result string) {
	predictionsTotal.WithLabelValues(outcome, result).Inc()
	if duration < 0 {
		duration = 0
	}
	predictDurationSeconds.Observe(duration.Seconds())
}

func ObserveLogRead(outcome string) {
	logReadsTotal.WithLabelValues(outcome).Inc()
}

func ObserveExport(outcome string) {
	exportRunsTotal.WithLabelValues(outcome).Inc()
}
