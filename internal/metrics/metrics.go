// Package metrics provides Prometheus instrumentation for the agent engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesOpened counts trades opened, partitioned by direction.
	TradesOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvpai_trades_opened_total",
		Help: "Total number of trades opened",
	}, []string{"direction"})

	// TradesSettled counts settlements, partitioned by outcome.
	TradesSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvpai_trades_settled_total",
		Help: "Total number of trades settled",
	}, []string{"outcome"})

	// AgentDeaths counts agents that ran out of fuel.
	AgentDeaths = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvpai_agent_deaths_total",
		Help: "Agents transitioned to dead on energy depletion",
	})

	// Resurrections counts dead agents brought back by re-funding.
	Resurrections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvpai_agent_resurrections_total",
		Help: "Dead agents resurrected by their creator",
	})

	// Investments counts investor deposits into agent pools.
	Investments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvpai_investments_total",
		Help: "Investor deposits into agent capital pools",
	})

	// Withdrawals counts investor withdrawals from agent pools.
	Withdrawals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pvpai_withdrawals_total",
		Help: "Investor withdrawals from agent capital pools",
	})

	// ActiveAgents tracks the number of agents in the active state.
	ActiveAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pvpai_active_agents",
		Help: "Number of currently active agents",
	})

	// SweepDuration tracks how long a full sweep takes, per job.
	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pvpai_sweep_duration_seconds",
		Help:    "Duration of monitor/settle sweeps in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	// SweepAgentErrors counts per-agent failures isolated inside a sweep.
	SweepAgentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvpai_sweep_agent_errors_total",
		Help: "Per-agent errors during sweeps (sweep continues)",
	}, []string{"job"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pvpai_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pvpai_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pvpai_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; route cardinality is small.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
