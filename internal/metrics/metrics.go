// Package metrics exposes Prometheus instrumentation for the apply engine.
//
// A Recorder owns its registry so several engines (and tests) never collide
// on the global default registerer. Every method is safe on a nil *Recorder,
// which lets callers leave metrics unwired.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "splice"

// Recorder holds the engine metrics.
type Recorder struct {
	registry *prometheus.Registry

	// ApplyTotal counts apply attempts.
	// Labels: outcome (success, preflight, declined, application, validation, unexpected, canceled), fix_type
	ApplyTotal *prometheus.CounterVec

	// ApplyDuration measures wall time of apply attempts by outcome.
	ApplyDuration *prometheus.HistogramVec

	// RiskScore tracks the distribution of assessed risk scores.
	RiskScore prometheus.Histogram

	// RollbacksTotal counts rollbacks.
	// Labels: result (complete, partial)
	RollbacksTotal *prometheus.CounterVec

	// ActiveBackups is the number of fixes currently holding backups.
	ActiveBackups prometheus.Gauge

	// SweptTotal counts artifacts removed by the age sweep.
	SweptTotal prometheus.Counter
}

// New creates a Recorder with a private registry that also carries the Go
// runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ApplyTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_total",
			Help:      "Total fix apply attempts by outcome",
		}, []string{"outcome", "fix_type"}),
		ApplyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_duration_seconds",
			Help:      "Fix apply duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"outcome"}),
		RiskScore: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Distribution of assessed fix risk scores",
			Buckets:   []float64{15, 30, 45, 60, 75, 90, 120},
		}),
		RollbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rollbacks_total",
			Help:      "Total rollbacks by result",
		}, []string{"result"}),
		ActiveBackups: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_backups",
			Help:      "Fixes currently holding backups",
		}),
		SweptTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_swept_total",
			Help:      "Backup artifacts removed by the age sweep",
		}),
	}
}

// Registry returns the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveApply records one finished apply attempt.
func (r *Recorder) ObserveApply(outcome, fixType string, elapsed time.Duration) {
	if r == nil {
		return
	}
	if fixType == "" {
		fixType = "unknown"
	}
	r.ApplyTotal.WithLabelValues(outcome, fixType).Inc()
	r.ApplyDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveRisk records an assessed risk score.
func (r *Recorder) ObserveRisk(score float64) {
	if r == nil {
		return
	}
	r.RiskScore.Observe(score)
}

// ObserveRollback records one rollback. partial is true when some file
// could not be restored or its artifact removed.
func (r *Recorder) ObserveRollback(partial bool) {
	if r == nil {
		return
	}
	result := "complete"
	if partial {
		result = "partial"
	}
	r.RollbacksTotal.WithLabelValues(result).Inc()
}

// SetActiveBackups sets the in-flight fix gauge.
func (r *Recorder) SetActiveBackups(n int) {
	if r == nil {
		return
	}
	r.ActiveBackups.Set(float64(n))
}

// ObserveSweep adds removed artifacts to the sweep counter.
func (r *Recorder) ObserveSweep(removed int) {
	if r == nil {
		return
	}
	r.SweptTotal.Add(float64(removed))
}
