package detector

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	detectorPrometheusMetrics sync.Once

	detectorEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walkdetector",
			Subsystem: "detector",
			Name:      "events_total",
			Help:      "Number of read events ingested, by walk type.",
		},
		[]string{"type"})
	detectorRejectedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "walkdetector",
			Subsystem: "detector",
			Name:      "rejected_events_total",
			Help:      "Number of read events rejected because of a malformed path.",
		})
	detectorWalksCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walkdetector",
			Subsystem: "detector",
			Name:      "walks_created_total",
			Help:      "Number of walks created at a node that held no walk, by walk type.",
		},
		[]string{"type"})
	detectorWalksAdvanced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walkdetector",
			Subsystem: "detector",
			Name:      "walks_advanced_total",
			Help:      "Number of times the depth of an existing walk was increased, by walk type.",
		},
		[]string{"type"})
	detectorGCSweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "walkdetector",
			Subsystem: "detector",
			Name:      "gc_sweeps_total",
			Help:      "Number of garbage collection sweeps over the walk tree.",
		})
	detectorGCEvictedNodes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "walkdetector",
			Subsystem: "detector",
			Name:      "gc_evicted_nodes_total",
			Help:      "Number of idle tree nodes removed by garbage collection.",
		})
)

func registerMetrics() {
	detectorPrometheusMetrics.Do(func() {
		prometheus.MustRegister(detectorEvents)
		prometheus.MustRegister(detectorRejectedEvents)
		prometheus.MustRegister(detectorWalksCreated)
		prometheus.MustRegister(detectorWalksAdvanced)
		prometheus.MustRegister(detectorGCSweeps)
		prometheus.MustRegister(detectorGCEvictedNodes)
	})
}
