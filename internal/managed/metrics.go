package managed

import "github.com/prometheus/client_golang/prometheus"

// Run outcome label values.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeCancelled = "cancelled"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vncmcp_runtime_runs_total",
			Help: "Total number of managed runs by outcome.",
		},
		[]string{"outcome"},
	)

	runDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vncmcp_runtime_run_seconds",
			Help:    "Wall-clock duration of managed runs, in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		},
	)

	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vncmcp_runtime_signals_total",
			Help: "Total number of termination signals observed by signal bridges.",
		},
		[]string{"signal"},
	)

	adapterEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vncmcp_runtime_adapter_cache_entries",
			Help: "Number of memoized sync/async adapters.",
		},
		[]string{"direction"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal)
	prometheus.MustRegister(runDuration)
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(adapterEntries)

	for _, o := range []string{outcomeCompleted, outcomeFailed, outcomeCancelled} {
		runsTotal.WithLabelValues(o)
	}
}
