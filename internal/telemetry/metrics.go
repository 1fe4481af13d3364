// Package telemetry exposes the service's Prometheus metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_events_received_total",
		Help: "Normalized events received, by event kind.",
	}, []string{"kind"})

	TasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_tasks_enqueued_total",
		Help: "Handler invocations enqueued by the dispatcher.",
	})

	HandlerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_handler_runs_total",
		Help: "Handler invocations executed, by task name and outcome.",
	}, []string{"task", "outcome"})

	RetriesScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_retries_scheduled_total",
		Help: "Attempts rescheduled by the retry controller.",
	})

	TargetsReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_targets_reconciled_total",
		Help: "Targets advanced by the reconciliation loop, by sweep and action.",
	}, []string{"sweep", "action"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_queue_depth",
		Help: "Tasks waiting in the ready queue.",
	})

	DeadLetterDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "warden_dead_letter_depth",
		Help: "Terminally failed tasks kept on the dead-letter list.",
	})
)
