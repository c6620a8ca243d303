// Package metrics exposes prometheus collectors for fitting jobs and
// solver health.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/copyleftdev/pvfit/internal/pv"
)

const namespace = "pvfit"

// Metrics groups the collectors registered on its own registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	FitsTotal     *prometheus.CounterVec
	FitDuration   *prometheus.HistogramVec
	Evaluations   *prometheus.CounterVec
	BestRMSE      *prometheus.GaugeVec
	ActiveFits    prometheus.Gauge
	SolverMisses  *prometheus.CounterVec
	RequestsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		FitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fits_total",
			Help:      "Parameter extraction runs by algorithm, model and outcome.",
		}, []string{"algorithm", "model", "status"}),
		FitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fit_duration_seconds",
			Help:      "Wall time of parameter extraction runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"algorithm", "model"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fitness_evaluations_total",
			Help:      "Candidate vectors scored by the fitness evaluator.",
		}, []string{"algorithm"}),
		BestRMSE: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_rmse",
			Help:      "RMSE of the most recent completed fit.",
		}, []string{"algorithm", "model"}),
		ActiveFits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_fits",
			Help:      "Fits currently running.",
		}),
		SolverMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_nonconvergence_total",
			Help:      "Diode-equation solves that returned an unconverged iterate.",
		}, []string{"model"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC calls by method and outcome.",
		}, []string{"method", "status"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FitsTotal, m.FitDuration, m.Evaluations, m.BestRMSE,
		m.ActiveFits, m.SolverMisses, m.RequestsTotal,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// SolverHook returns a callback for pv.WithNonConvergenceHook.
func (m *Metrics) SolverHook() func(pv.Kind) {
	if m == nil {
		return nil
	}
	return func(k pv.Kind) {
		m.SolverMisses.WithLabelValues(string(k)).Inc()
	}
}

// FitStarted marks a fit as running.
func (m *Metrics) FitStarted() {
	if m == nil {
		return
	}
	m.ActiveFits.Inc()
}

// FitFinished records the outcome of a fit started with FitStarted.
func (m *Metrics) FitFinished(algorithm, model, status string, elapsed time.Duration, evaluations int, rmse float64) {
	if m == nil {
		return
	}
	m.ActiveFits.Dec()
	m.FitsTotal.WithLabelValues(algorithm, model, status).Inc()
	m.FitDuration.WithLabelValues(algorithm, model).Observe(elapsed.Seconds())
	m.Evaluations.WithLabelValues(algorithm).Add(float64(evaluations))
	if status == "completed" {
		m.BestRMSE.WithLabelValues(algorithm, model).Set(rmse)
	}
}

// RPC counts a JSON-RPC call.
func (m *Metrics) RPC(method, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, status).Inc()
}
