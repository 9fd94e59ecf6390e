package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the purge pipeline counters. Each instance registers on
// its own registerer so tests can use a fresh prometheus.Registry.
type Metrics struct {
	TasksProcessed   *prometheus.CounterVec
	TasksFailed      *prometheus.CounterVec
	TerminalFailures prometheus.Counter
	EntitiesPurged   *prometheus.CounterVec
	PurgesSkipped    *prometheus.CounterVec
	ScanEnqueued     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TasksProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trashbin",
			Name:      "purge_tasks_processed_total",
			Help:      "Purge tasks that completed successfully, by kind.",
		}, []string{"kind"}),
		TasksFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trashbin",
			Name:      "purge_task_attempt_failures_total",
			Help:      "Failed purge task attempts, by kind.",
		}, []string{"kind"}),
		TerminalFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "trashbin",
			Name:      "purge_terminal_failures_total",
			Help:      "Entity purge tasks that exhausted their retries or failed permanently.",
		}),
		EntitiesPurged: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trashbin",
			Name:      "entities_purged_total",
			Help:      "Entities permanently removed, by entity type.",
		}, []string{"entity_type"}),
		PurgesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trashbin",
			Name:      "purges_skipped_total",
			Help:      "Purge tasks whose entity no longer qualified, by entity type.",
		}, []string{"entity_type"}),
		ScanEnqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: "trashbin",
			Name:      "scan_enqueued_total",
			Help:      "Purge tasks newly enqueued by the trash scan.",
		}),
	}
}
