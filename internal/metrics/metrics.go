// Package metrics exposes Prometheus collectors for simulation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the run collectors. A nil *Recorder is a no-op, so callers
// never need to check whether metrics are enabled.
type Recorder struct {
	simulations *prometheus.CounterVec
	iterations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	leaps       prometheus.Counter
	rejections  prometheus.Counter
}

// NewRecorder registers the collectors on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		// simulations counts finished Simulate calls by simulator and outcome
		simulations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chemsim_simulations_total",
			Help: "Total simulate calls by simulator alias and status",
		}, []string{"alias", "status"}),

		iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chemsim_iterations_total",
			Help: "Total simulation loop iterations by simulator alias",
		}, []string{"alias"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chemsim_simulation_duration_seconds",
			Help:    "Wall-clock duration of simulate calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		}, []string{"alias"}),

		leaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "chemsim_tauleap_leaps_total",
			Help: "Total successful tau leaps",
		}),

		rejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "chemsim_adaptive_step_rejections_total",
			Help: "Total rejected adaptive Runge-Kutta steps",
		}),
	}
}

func (r *Recorder) ObserveRun(alias, status string, iterations int64, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.simulations.WithLabelValues(alias, status).Inc()
	r.iterations.WithLabelValues(alias).Add(float64(iterations))
	r.duration.WithLabelValues(alias).Observe(elapsed.Seconds())
}

func (r *Recorder) AddLeaps(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.leaps.Add(float64(n))
}

func (r *Recorder) AddRejections(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.rejections.Add(float64(n))
}
