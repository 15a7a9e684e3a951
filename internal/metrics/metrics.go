// Package metrics holds the Prometheus collectors for the roast pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name
const Namespace = "roast"

// Outcome label values
const (
	OutcomePresent = "present"
	OutcomeAbsent  = "absent"
)

// Metrics holds pipeline collectors
type Metrics struct {
	branchCalls    *prometheus.CounterVec
	branchDuration *prometheus.HistogramVec
	branchInFlight prometheus.Gauge
	stageDuration  *prometheus.HistogramVec
	pipelineRuns   *prometheus.CounterVec
	downstreamUp   *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		branchCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "branch_calls_total",
			Help:      "Analysis branch calls by outcome",
		}, []string{"branch", "outcome"}),
		branchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "branch_duration_seconds",
			Help:      "Time spent in one analysis branch call",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"branch"}),
		branchInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "branches_in_flight",
			Help:      "Analysis branch calls currently admitted",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "pipeline_runs_total",
			Help:      "Completed pipeline runs by status",
		}, []string{"status"}),
		downstreamUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "downstream_up",
			Help:      "Last health probe result per downstream service (1 = up)",
		}, []string{"service"}),
	}

	reg.MustRegister(
		m.branchCalls,
		m.branchDuration,
		m.branchInFlight,
		m.stageDuration,
		m.pipelineRuns,
		m.downstreamUp,
	)
	return m
}

// NewRegistry returns a registry with Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus text format
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// BranchStarted marks one branch as admitted
func (m *Metrics) BranchStarted() {
	if m == nil {
		return
	}
	m.branchInFlight.Inc()
}

// BranchFinished records a resolved branch
func (m *Metrics) BranchFinished(branch string, present bool, d time.Duration) {
	if m == nil {
		return
	}
	m.branchInFlight.Dec()
	outcome := OutcomeAbsent
	if present {
		outcome = OutcomePresent
	}
	m.branchCalls.WithLabelValues(branch, outcome).Inc()
	m.branchDuration.WithLabelValues(branch).Observe(d.Seconds())
}

// ObserveStage records the duration of a pipeline stage
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RunFinished counts a finished pipeline run
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(status).Inc()
}

// SetDownstreamUp records the last probe result for a service
func (m *Metrics) SetDownstreamUp(service string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.downstreamUp.WithLabelValues(service).Set(v)
}
