package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vncmcp_tool_calls_total",
			Help: "Total number of MCP tool calls.",
		},
		[]string{"tool", "result"},
	)

	toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vncmcp_tool_call_duration_seconds",
			Help:    "MCP tool call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	screenshotBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vncmcp_screenshot_png_bytes",
			Help:    "Size of PNG encoded screenshots.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)
)

func init() {
	prometheus.MustRegister(toolCallsTotal)
	prometheus.MustRegister(toolCallDuration)
	prometheus.MustRegister(screenshotBytes)
}

func observeCall(tool string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	toolCallsTotal.WithLabelValues(tool, result).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}
