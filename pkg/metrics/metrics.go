// Package metrics exposes Prometheus metrics for the HTTP surface, agent
// runs and browser provisioning.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/entrhq/browserpilot/pkg/types"
)

var (
	// RequestsTotal counts HTTP requests by route pattern.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserpilot_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks request latency. Streaming requests last as
	// long as their run.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "browserpilot_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RunsActive tracks agent runs in progress.
	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "browserpilot_agent_runs_active",
			Help: "Number of agent runs in progress",
		},
	)

	// RunsTotal counts finished agent runs.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserpilot_agent_runs_total",
			Help: "Total number of finished agent runs",
		},
		[]string{"server_target", "mode", "status"},
	)

	// RunDuration tracks how long agent runs take.
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "browserpilot_agent_run_duration_seconds",
			Help:    "Agent run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 180, 300},
		},
		[]string{"mode", "status"},
	)

	// RunSteps tracks the number of steps per run.
	RunSteps = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "browserpilot_agent_run_steps",
			Help:    "Steps taken per agent run",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 20},
		},
	)

	// TokensTotal counts model tokens by direction.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserpilot_agent_tokens_total",
			Help: "Total number of model tokens",
		},
		[]string{"server_target", "direction"},
	)

	// ToolCalls tracks tool invocations.
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserpilot_tool_calls_total",
			Help: "Total number of agent tool calls",
		},
		[]string{"tool", "status"},
	)

	// SessionsCreated counts browser creations, including reused sessions.
	SessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserpilot_browser_sessions_created_total",
			Help: "Total number of browser session create requests served",
		},
		[]string{"reused"},
	)

	// SessionSpinUp tracks browser provisioning time.
	SessionSpinUp = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "browserpilot_browser_spin_up_seconds",
			Help:    "Browser provisioning time in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
		},
	)
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request metrics. Paths are labelled with the chi
// route pattern to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "other"
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionCreated records a served create request.
func RecordSessionCreated(reused bool, spinUp time.Duration) {
	SessionsCreated.WithLabelValues(strconv.FormatBool(reused)).Inc()
	if !reused {
		SessionSpinUp.Observe(spinUp.Seconds())
	}
}

// RunObserver records agent run metrics. It satisfies the orchestrator's
// Observer interface.
type RunObserver struct{}

// RunStarted marks a run as active.
func (RunObserver) RunStarted(serverTarget string, stream bool) {
	RunsActive.Inc()
}

// RunFinished records the outcome of a run.
func (RunObserver) RunFinished(result *types.RunResult, stream bool, elapsed time.Duration) {
	RunsActive.Dec()

	status := "success"
	if !result.Success {
		status = string(result.ErrorCode)
		if status == "" {
			status = "failed"
		}
	}
	mode := modeLabel(stream)

	RunsTotal.WithLabelValues(result.ServerTarget, mode, status).Inc()
	RunDuration.WithLabelValues(mode, status).Observe(elapsed.Seconds())
	RunSteps.Observe(float64(result.StepCount))
	TokensTotal.WithLabelValues(result.ServerTarget, "input").Add(float64(result.Usage.InputTokens))
	TokensTotal.WithLabelValues(result.ServerTarget, "output").Add(float64(result.Usage.OutputTokens))
}

// ToolCompleted records one tool call.
func (RunObserver) ToolCompleted(toolName string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	ToolCalls.WithLabelValues(toolName, status).Inc()
}

func modeLabel(stream bool) string {
	if stream {
		return "stream"
	}
	return "sync"
}
