package workerpool

import "github.com/prometheus/client_golang/prometheus"

// Metric label values for task results.
const (
	resultOK    = "ok"
	resultPanic = "panic"
)

var (
	workersGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vncmcp_workerpool_workers",
			Help: "Number of live worker goroutines.",
		},
		[]string{"pool"},
	)

	activeGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vncmcp_workerpool_active_tasks",
			Help: "Number of tasks currently executing on a worker.",
		},
		[]string{"pool"},
	)

	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vncmcp_workerpool_tasks_total",
			Help: "Total number of tasks executed by worker pools.",
		},
		[]string{"pool", "result"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vncmcp_workerpool_task_seconds",
			Help:    "Time spent executing a single offloaded task, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pool"},
	)
)

func init() {
	prometheus.MustRegister(workersGauge)
	prometheus.MustRegister(activeGauge)
	prometheus.MustRegister(tasksTotal)
	prometheus.MustRegister(taskDuration)
}
