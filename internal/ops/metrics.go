package ops

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects growth counters. A nil *Metrics is valid and records nothing, so
// components can take one unconditionally.
type Metrics struct {
	registry      *prometheus.Registry
	optimisations *prometheus.CounterVec
	growthSteps   prometheus.Counter
	pathways      *prometheus.CounterVec
	stops         prometheus.Counter
	seedsRetained prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		optimisations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accrete",
				Subsystem: "optimiser",
				Name:      "runs_total",
				Help:      "Optimiser invocations by convergence threshold and outcome.",
			},
			[]string{"convergence", "status"},
		),
		growthSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "accrete",
			Subsystem: "growth",
			Name:      "steps_total",
			Help:      "Completed monomer addition steps.",
		}),
		pathways: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accrete",
				Subsystem: "growth",
				Name:      "pathways_total",
				Help:      "Processed pathways by outcome.",
			},
			[]string{"outcome"},
		),
		stops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "accrete",
			Subsystem: "growth",
			Name:      "stop_signals_total",
			Help:      "Cooperative stop signals observed.",
		}),
		seedsRetained: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "accrete",
			Subsystem: "growth",
			Name:      "seeds_retained",
			Help:      "Structures retained at the end of a growth step.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
	}
	m.registry.MustRegister(m.optimisations, m.growthSteps, m.pathways, m.stops, m.seedsRetained)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordOptimisation counts one optimiser call.
func (m *Metrics) RecordOptimisation(convergence, status string) {
	if m == nil {
		return
	}
	m.optimisations.WithLabelValues(convergence, status).Inc()
}

// RecordStep counts one finished growth step and the number of structures it kept.
func (m *Metrics) RecordStep(retained int) {
	if m == nil {
		return
	}
	m.growthSteps.Inc()
	m.seedsRetained.Observe(float64(retained))
}

// RecordPathway counts one pathway with its outcome ("completed", "exhausted").
func (m *Metrics) RecordPathway(outcome string) {
	if m == nil {
		return
	}
	m.pathways.WithLabelValues(outcome).Inc()
}

// RecordStop counts an observed stop signal.
func (m *Metrics) RecordStop() {
	if m == nil {
		return
	}
	m.stops.Inc()
}
