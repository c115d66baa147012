package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	propagationRuns   *prometheus.CounterVec
	propagationRounds prometheus.Histogram
	scenarios         *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	portfolioRisk     prometheus.Gauge
	latency           *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		propagationRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskgraph_propagation_runs_total",
				Help: "Total number of risk propagation runs by convergence",
			},
			[]string{"converged"},
		),
		propagationRounds: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "riskgraph_propagation_iterations",
				Help:    "Rounds needed by a propagation run",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 25, 50, 100},
			},
		),
		scenarios: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskgraph_scenarios_total",
				Help: "Total number of scenario runs by kind and effect",
			},
			[]string{"kind", "applied"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskgraph_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		portfolioRisk: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "riskgraph_portfolio_dollarized_risk",
				Help: "Sum of company dollarized risk after the last recompute",
			},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskgraph_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordPropagation records one propagation run.
func (r *Recorder) RecordPropagation(iterations int, converged bool, seconds float64) {
	r.propagationRuns.WithLabelValues(strconv.FormatBool(converged)).Inc()
	r.propagationRounds.Observe(float64(iterations))
	r.latency.WithLabelValues("propagate").Observe(seconds)
}

// RecordScenario records a scenario run and whether it changed the graph.
func (r *Recorder) RecordScenario(kind string, applied bool) {
	r.scenarios.WithLabelValues(kind, strconv.FormatBool(applied)).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordPortfolioRisk sets the current portfolio dollarized total.
func (r *Recorder) RecordPortfolioRisk(total float64) {
	r.portfolioRisk.Set(total)
}
