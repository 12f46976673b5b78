package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	generateTotal    *prometheus.CounterVec
	generateDuration *prometheus.HistogramVec
	fallbackTotal    *prometheus.CounterVec
	tokensTotal      *prometheus.CounterVec
	costUSDTotal     *prometheus.CounterVec
	estimatedTotal   *prometheus.CounterVec

	executeTotal    *prometheus.CounterVec
	executeDuration prometheus.Histogram
	laneDepth       *prometheus.GaugeVec
	activeLanes     prometheus.Gauge

	memoryAppendDuration   prometheus.Histogram
	memoryRetrieveDuration prometheus.Histogram
	shortTermEvictions     prometheus.Counter

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	turnWriteTotal  *prometheus.CounterVec
	usageWriteTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			generateTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "router_generate_total",
					Help: "Total router generate calls by backend and status.",
				},
				[]string{"backend", "status"},
			),
			generateDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "router_generate_duration_seconds",
					Help:    "Adapter attempt duration in seconds by backend.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"backend"},
			),
			fallbackTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "router_fallback_total",
					Help: "Total fallback advances by failed backend and failure kind.",
				},
				[]string{"backend", "kind"},
			),
			tokensTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "router_tokens_total",
					Help: "Total tokens consumed by backend.",
				},
				[]string{"backend"},
			),
			costUSDTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "router_cost_usd_total",
					Help: "Total accumulated cost in USD by backend.",
				},
				[]string{"backend"},
			),
			estimatedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "router_estimated_usage_total",
					Help: "Results whose token usage was estimated rather than backend-reported.",
				},
				[]string{"backend"},
			),
			executeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_execute_total",
					Help: "Total agent executions by status.",
				},
				[]string{"status"},
			),
			executeDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agent_execute_duration_seconds",
					Help:    "Agent execution duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			laneDepth: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "mailbox_lane_depth",
					Help: "Queued tasks per agent lane.",
				},
				[]string{"agent"},
			),
			activeLanes: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "mailbox_active_lanes",
					Help: "Number of live agent lanes.",
				},
			),
			memoryAppendDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_append_duration_seconds",
					Help:    "Short-term append duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			memoryRetrieveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_retrieve_duration_seconds",
					Help:    "Long-term retrieval duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			shortTermEvictions: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_short_term_evictions_total",
					Help: "Turns evicted from short-term buffers.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tool_execution_total",
					Help: "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "tool_execution_duration_seconds",
					Help:    "Tool execution duration in seconds by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			turnWriteTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "store_turn_write_total",
					Help: "Turn persistence attempts by status.",
				},
				[]string{"status"},
			),
			usageWriteTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "store_usage_write_total",
					Help: "Usage record persistence attempts by status.",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.generateTotal,
			m.generateDuration,
			m.fallbackTotal,
			m.tokensTotal,
			m.costUSDTotal,
			m.estimatedTotal,
			m.executeTotal,
			m.executeDuration,
			m.laneDepth,
			m.activeLanes,
			m.memoryAppendDuration,
			m.memoryRetrieveDuration,
			m.shortTermEvictions,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.turnWriteTotal,
			m.usageWriteTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordGenerate(backend string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.generateTotal.WithLabelValues(backend, status).Inc()
	m.generateDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

func RecordFallback(backend, kind string) {
	getMetrics().fallbackTotal.WithLabelValues(backend, kind).Inc()
}

// RecordUsage accumulates process-wide token and cost counters. Prometheus
// counter increments are atomic, so concurrent router calls need no extra
// locking here.
func RecordUsage(backend string, tokens int, costUSD float64, estimated bool) {
	m := getMetrics()
	m.tokensTotal.WithLabelValues(backend).Add(float64(tokens))
	m.costUSDTotal.WithLabelValues(backend).Add(costUSD)
	if estimated {
		m.estimatedTotal.WithLabelValues(backend).Inc()
	}
}

func RecordExecute(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.executeTotal.WithLabelValues(status).Inc()
	m.executeDuration.Observe(duration.Seconds())
}

func SetLaneDepth(agentID string, depth int) {
	getMetrics().laneDepth.WithLabelValues(agentID).Set(float64(depth))
}

func SetActiveLanes(count int) {
	getMetrics().activeLanes.Set(float64(count))
}

func RecordMemoryAppend(duration time.Duration) {
	getMetrics().memoryAppendDuration.Observe(duration.Seconds())
}

func RecordMemoryRetrieve(duration time.Duration) {
	getMetrics().memoryRetrieveDuration.Observe(duration.Seconds())
}

func RecordShortTermEviction() {
	getMetrics().shortTermEvictions.Inc()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

func RecordTurnWrite(success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().turnWriteTotal.WithLabelValues(status).Inc()
}

func RecordUsageWrite(success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().usageWriteTotal.WithLabelValues(status).Inc()
}
