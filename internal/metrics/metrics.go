// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/normanking/limbic/internal/emotion"
)

var (
	EmotionLevel = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "limbic_emotion_level",
			Help: "Current intensity of each primary emotion",
		},
		[]string{"emotion"},
	)

	BoredomLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "limbic_boredom_level",
			Help: "Current boredom level",
		},
	)

	MemoryRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "limbic_memory_records",
			Help: "Number of active memory records",
		},
	)

	MemoryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limbic_memory_operations_total",
			Help: "Memory operations by kind and result",
		},
		[]string{"op", "result"},
	)

	ActiveChains = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "limbic_active_chains",
			Help: "Number of live action chains",
		},
	)

	ChainTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limbic_chain_transitions_total",
			Help: "Action chain transitions by type and resulting state",
		},
		[]string{"type", "state"},
	)

	EventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limbic_events_dispatched_total",
			Help: "Input events dispatched through the bus",
		},
		[]string{"type"},
	)

	HandlerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limbic_handler_errors_total",
			Help: "Bus handler failures by handler",
		},
		[]string{"handler"},
	)

	SnapshotResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "limbic_snapshots_total",
			Help: "Snapshot attempts by result",
		},
		[]string{"result"},
	)

	SnapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "limbic_snapshot_duration_seconds",
			Help:    "Snapshot write duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "limbic_dispatch_duration_seconds",
			Help:    "Time spent running one event through every handler",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
	)
)

// ObserveEmotions sets the per-emotion gauges from s.
func ObserveEmotions(s emotion.State) {
	for _, e := range emotion.Primaries {
		EmotionLevel.WithLabelValues(string(e)).Set(s.Get(e))
	}
}

// Result labels an operation outcome.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
