// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TasksStartedTotal counts task submissions by platform.
	TasksStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyjob_tasks_started_total",
			Help: "Total number of tasks submitted",
		},
		[]string{"platform"},
	)

	// TasksCompletedTotal counts tasks that finished naturally, by platform.
	TasksCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyjob_tasks_completed_total",
			Help: "Total number of tasks that ran to natural completion",
		},
		[]string{"platform"},
	)

	// TasksKilledTotal counts early task terminations by platform.
	TasksKilledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyjob_tasks_killed_total",
			Help: "Total number of tasks terminated before natural completion",
		},
		[]string{"platform"},
	)

	// ScriptsExecutedTotal counts scripts run by the local worker pool.
	ScriptsExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyjob_scripts_executed_total",
			Help: "Total number of scripts executed by the local worker pool",
		},
		[]string{"result"},
	)

	// ScriptDurationSeconds measures per-script wall time on the local pool.
	ScriptDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pyjob_script_duration_seconds",
			Help:    "Wall time of scripts executed by the local worker pool",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5m
		},
	)

	// WorkersBusy tracks local workers currently executing a script.
	WorkersBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pyjob_workers_busy",
			Help: "Number of local workers currently executing a script",
		},
	)
)
