package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "a2a"

// Metrics holds the Prometheus collectors shared by every agent served by
// the process. All methods are nil-safe.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	TasksTotal       *prometheus.CounterVec
	ActiveTurns      *prometheus.GaugeVec
	StoredTasks      *prometheus.GaugeVec
	ToolExecutions   *prometheus.CounterVec
	ToolDuration     *prometheus.HistogramVec
	EngineRequests   *prometheus.CounterVec
	EngineLatency    *prometheus.HistogramVec
	StreamEvents     *prometheus.CounterVec
	WebSocketClients prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "JSON-RPC requests by agent, method and outcome.",
		}, []string{"agent", "method", "outcome"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "JSON-RPC request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"agent", "method"}),

		TasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_turns_total",
			Help:      "Finished task turns by agent, final state and reason.",
		}, []string{"agent", "state", "reason"}),

		ActiveTurns: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_turns",
			Help:      "Task turns currently running.",
		}, []string{"agent"}),

		StoredTasks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_tasks",
			Help:      "Tasks currently held in the task store.",
		}, []string{"agent"}),

		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Tool executions by tool, kind and status.",
		}, []string{"tool", "kind", "status"}),

		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),

		EngineRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_requests_total",
			Help:      "Reasoning engine calls by engine and status.",
		}, []string{"engine", "status"}),

		EngineLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_latency_seconds",
			Help:      "Reasoning engine latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"engine"}),

		StreamEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Stream events emitted by agent and kind.",
		}, []string{"agent", "kind"}),

		WebSocketClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_websocket_connections",
			Help:      "Number of active WebSocket connections.",
		}),
	}
}

func status(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}

// ObserveRequest records one JSON-RPC request.
func (m *Metrics) ObserveRequest(agent, method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(agent, method, outcome).Inc()
	m.RequestDuration.WithLabelValues(agent, method).Observe(d.Seconds())
}

// TurnStarted increments the running turn gauge.
func (m *Metrics) TurnStarted(agent string) {
	if m == nil {
		return
	}
	m.ActiveTurns.WithLabelValues(agent).Inc()
}

// TurnFinished records how a turn ended.
func (m *Metrics) TurnFinished(agent, state, reason string) {
	if m == nil {
		return
	}
	m.ActiveTurns.WithLabelValues(agent).Dec()
	m.TasksTotal.WithLabelValues(agent, state, reason).Inc()
}

// SetStoredTasks reports the task store size.
func (m *Metrics) SetStoredTasks(agent string, n int) {
	if m == nil {
		return
	}
	m.StoredTasks.WithLabelValues(agent).Set(float64(n))
}

// ObserveTool records one tool invocation.
func (m *Metrics) ObserveTool(tool, kind string, failed bool, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(tool, kind, status(failed)).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// ObserveEngine records one reasoning engine call.
func (m *Metrics) ObserveEngine(engine string, failed bool, d time.Duration) {
	if m == nil {
		return
	}
	m.EngineRequests.WithLabelValues(engine, status(failed)).Inc()
	m.EngineLatency.WithLabelValues(engine).Observe(d.Seconds())
}

// ObserveEvent counts one emitted stream event.
func (m *Metrics) ObserveEvent(agent, kind string) {
	if m == nil {
		return
	}
	m.StreamEvents.WithLabelValues(agent, kind).Inc()
}

// WebSocketConnected adjusts the connection gauge by delta.
func (m *Metrics) WebSocketConnected(delta int) {
	if m == nil {
		return
	}
	m.WebSocketClients.Add(float64(delta))
}
