package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserpilot/pkg/metrics"
	"github.com/entrhq/browserpilot/pkg/types"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/42", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	assert.Contains(t, scrape(t), `browserpilot_requests_total{method="GET",path="/things/{id}",status="418"} 1`)
}

func TestRunObserver(t *testing.T) {
	var obs metrics.RunObserver

	obs.RunStarted("vps", true)
	obs.ToolCompleted("playwright_execute", true)
	obs.ToolCompleted("computer_click_mouse", false)
	obs.RunFinished(&types.RunResult{
		Success:      true,
		ServerTarget: "vps",
		StepCount:    2,
		Usage:        types.Usage{InputTokens: 30, OutputTokens: 12, TotalTokens: 42},
	}, true, 3*time.Second)

	obs.RunStarted("cloud-eu", false)
	obs.RunFinished(&types.RunResult{ServerTarget: "cloud-eu", ErrorCode: types.CodeProviderError}, false, time.Second)

	body := scrape(t)
	assert.Contains(t, body, `browserpilot_agent_runs_total{mode="stream",server_target="vps",status="success"} 1`)
	assert.Contains(t, body, `browserpilot_agent_runs_total{mode="sync",server_target="cloud-eu",status="provider-error"} 1`)
	assert.Contains(t, body, `browserpilot_tool_calls_total{status="success",tool="playwright_execute"} 1`)
	assert.Contains(t, body, `browserpilot_tool_calls_total{status="failure",tool="computer_click_mouse"} 1`)
	assert.Contains(t, body, `browserpilot_agent_tokens_total{direction="input",server_target="vps"} 30`)
	assert.Contains(t, body, "browserpilot_agent_runs_active 0")
}

func TestRecordSessionCreated(t *testing.T) {
	metrics.RecordSessionCreated(false, 2*time.Second)
	metrics.RecordSessionCreated(true, 0)

	body := scrape(t)
	assert.Contains(t, body, `browserpilot_browser_sessions_created_total{reused="false"} 1`)
	assert.Contains(t, body, `browserpilot_browser_sessions_created_total{reused="true"} 1`)
	assert.Contains(t, body, "browserpilot_browser_spin_up_seconds_count 1")
}
