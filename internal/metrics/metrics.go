// Package metrics defines the Prometheus collectors for the workflow engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flowengine"

// Operation status label values.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusConflict = "conflict"
)

var (
	// operationsTotal counts lifecycle operations by name and outcome.
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of lifecycle operations",
		},
		[]string{"operation", "status"}, // status: success, error, conflict
	)

	// operationDuration is a histogram of lifecycle operation latency.
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of lifecycle operations in seconds",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// conflictsTotal counts optimistic-lock conflicts, including retried ones.
	conflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Total number of concurrent modification conflicts",
		},
		[]string{"operation"},
	)

	// tasksCreatedTotal counts tasks created per node.
	tasksCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_created_total",
			Help:      "Total number of tasks created",
		},
		[]string{"node"},
	)

	// conditionFailuresTotal counts transition conditions that failed to evaluate.
	conditionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "condition_failures_total",
			Help:      "Total number of transition conditions that failed to evaluate",
		},
	)

	// instancesFinishedTotal counts instances reaching a terminal status.
	instancesFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_finished_total",
			Help:      "Total number of instances that completed or were cancelled",
		},
		[]string{"status"},
	)

	// slaBreachesTotal counts SLA breaches detected by the monitor.
	slaBreachesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sla_breaches_total",
			Help:      "Total number of SLA breaches detected",
		},
		[]string{"kind"}, // kind: task, instance
	)

	// notificationsDroppedTotal counts notifications that could not be queued or delivered.
	notificationsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Total number of notifications dropped",
		},
		[]string{"reason"}, // reason: queue_full, closed, sink_error
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		operationsTotal,
		operationDuration,
		conflictsTotal,
		tasksCreatedTotal,
		conditionFailuresTotal,
		instancesFinishedTotal,
		slaBreachesTotal,
		notificationsDroppedTotal,
	}
)

// RecordOperation records one finished lifecycle operation.
func RecordOperation(operation, status string, durationSeconds float64) {
	operationsTotal.WithLabelValues(operation, status).Inc()
	operationDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordConflict records an optimistic-lock conflict.
func RecordConflict(operation string) {
	conflictsTotal.WithLabelValues(operation).Inc()
}

// RecordTaskCreated records a task created for node.
func RecordTaskCreated(node string) {
	tasksCreatedTotal.WithLabelValues(node).Inc()
}

// RecordConditionFailure records a condition that failed to evaluate.
func RecordConditionFailure() {
	conditionFailuresTotal.Inc()
}

// RecordInstanceFinished records an instance reaching status.
func RecordInstanceFinished(status string) {
	instancesFinishedTotal.WithLabelValues(status).Inc()
}

// RecordSLABreach records a breach of the given kind.
func RecordSLABreach(kind string) {
	slaBreachesTotal.WithLabelValues(kind).Inc()
}

// RecordNotificationDropped records a dropped notification.
func RecordNotificationDropped(reason string) {
	notificationsDroppedTotal.WithLabelValues(reason).Inc()
}
