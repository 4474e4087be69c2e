package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports per-operation durations and outcome
// counters through a Prometheus registry.
type PrometheusMetricsRecorder struct {
	durations *prometheus.HistogramVec
	results   *prometheus.CounterVec
}

var _ MetricsRecorder = (*PrometheusMetricsRecorder)(nil)

// NewPrometheusMetricsRecorder registers the engine collectors with reg.
// Passing nil uses the default registerer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bloodcore",
		Subsystem: "engine",
		Name:      "operation_duration_seconds",
		Help:      "Duration of engine operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
	results := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodcore",
		Subsystem: "engine",
		Name:      "operation_results_total",
		Help:      "Engine operation outcomes by status.",
	}, []string{"operation", "status"})
	for _, c := range []prometheus.Collector{durations, results} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &PrometheusMetricsRecorder{durations: durations, results: results}, nil
}

// Observe records a service operation outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}
