package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики. Регистрируются в глобальном реестре и отдаются на /metrics.
var (
	// TasksTotal — обработанные записи очереди по режиму и исходу CallExecutor.
	TasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callflow_tasks_total",
		Help: "Task messages handled by the call executor, by mode and outcome",
	}, []string{"mode", "outcome"})

	// ProviderCalls — вызовы провайдеров по итоговому статусу.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callflow_provider_calls_total",
		Help: "Provider calls by provider and result status",
	}, []string{"provider", "status"})

	// RetryDecisions — решения RetryClassifier.
	RetryDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callflow_retry_decisions_total",
		Help: "Retry classifier decisions by action and reason",
	}, []string{"action", "reason"})

	// TaskLatency — время выполнения task.
	TaskLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "callflow_task_latency_seconds",
		Help:    "Task execution latency by mode",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300, 900},
	}, []string{"mode"})

	// SLABreaches — task, превысившие SLA режима.
	SLABreaches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callflow_sla_breaches_total",
		Help: "Tasks whose latency exceeded the mode SLA",
	}, []string{"mode"})

	// PoolBusy — занятые слоты пула.
	PoolBusy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "callflow_pool_busy_workers",
		Help: "Busy worker slots by mode",
	}, []string{"mode"})

	// DeferredTasks — task, отложенные BusinessHoursScheduler или из-за ёмкости.
	DeferredTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callflow_deferred_tasks_total",
		Help: "Tasks deferred into the scheduled set, by reason",
	}, []string{"reason"})

	// SweepRequeued — task, возвращённые в очередь sweep'ом.
	SweepRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callflow_sweep_requeued_total",
		Help: "Deferred tasks pushed back to their queue by the sweep",
	})
)
