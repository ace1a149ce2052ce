package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/entrhq/browserpilot/pkg/agent"
	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/browser/browsertest"
	"github.com/entrhq/browserpilot/pkg/config"
	"github.com/entrhq/browserpilot/pkg/enhance"
	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/llm/llmtest"
	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/orchestrator"
	"github.com/entrhq/browserpilot/pkg/remote"
	"github.com/entrhq/browserpilot/pkg/server"
	"github.com/entrhq/browserpilot/pkg/stream"
	"github.com/entrhq/browserpilot/pkg/types"
)

func discard() *logging.Logger {
	return logging.NewLoggerWithWriter("test", io.Discard)
}

func fixedUsage(prompt []*types.Message, completion string) *types.Usage {
	return &types.Usage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12}
}

type fakeCommander struct {
	output   string
	err      error
	commands []string
}

func (c *fakeCommander) Run(ctx context.Context, command string) (string, error) {
	c.commands = append(c.commands, command)
	return c.output, c.err
}

type fakeSkills struct {
	parsed map[string]interface{}
	err    error
}

func (f fakeSkills) List(ctx context.Context) (map[string]interface{}, error) {
	return f.parsed, f.err
}

type harness struct {
	fake  *browsertest.Provider
	model *llmtest.Provider
	env   map[string]string
	cfg   server.Config
}

func newHarness(turns ...llmtest.Turn) *harness {
	h := &harness{
		fake:  browsertest.New(),
		model: llmtest.New(turns...),
		env:   map[string]string{},
	}
	factory := func(config.Backend) (llm.Provider, error) { return h.model, nil }

	settings := config.NewAgentSection().Snapshot()
	settings.RunTimeout = 5 * time.Second
	settings.LagMsMin, settings.LagMsMax = 0, 0

	env := config.MapEnv(h.env)
	h.cfg = server.Config{
		Provisioner: browser.NewProvisioner(h.fake, browser.NewRegistry(),
			browser.WithLogger(discard()), browser.WithCoalesceWait(0)),
		Orchestrator: orchestrator.New(h.fake,
			orchestrator.WithSettings(settings),
			orchestrator.WithEnv(env),
			orchestrator.WithModelFactory(factory),
			orchestrator.WithLogger(discard()),
			orchestrator.WithRunnerOptions(agent.WithTokenizer(fixedUsage))),
		Enhancer: enhance.NewEnhancer(env, factory).WithLogger(discard()),
		Env:      env,
		Settings: config.NewServerSection().Snapshot(),
		Logger:   discard(),
	}
	return h
}

func (h *harness) do(method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	server.New(h.cfg).Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	rec := newHarness().do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness()
	h.do(http.MethodGet, "/healthz", nil, nil)

	rec := h.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `browserpilot_requests_total{method="GET",path="/healthz",status="200"}`)
}

func TestCreateBrowser(t *testing.T) {
	h := newHarness()
	h.fake.Seed("stale")

	rec := h.do(http.MethodPost, "/api/create-browser", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "session-1", body["sessionId"])
	assert.Equal(t, "https://live.test/session-1", body["liveViewUrl"])
	assert.Equal(t, "wss://cdp.test/session-1", body["cdpWsUrl"])
	assert.Contains(t, body, "spinUpTime")
	assert.NotContains(t, body, "reused")
	assert.Equal(t, []string{"session-1"}, h.fake.Active())
}

func TestCreateBrowser_MissingAPIKey(t *testing.T) {
	h := newHarness()
	h.fake.MissingKey = true

	rec := h.do(http.MethodPost, "/api/create-browser", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "MISSING_API_KEY", body["error"])
	assert.Equal(t, "KERNEL_API_KEY environment variable is not set", body["message"])
	assert.Equal(t, string(types.CodeMissingCredentials), body["code"])
	assert.Zero(t, h.fake.CallCount("create"))
}

func TestCreateBrowser_ProviderFailure(t *testing.T) {
	h := newHarness()
	h.fake.Fail["create"] = errors.New("quota exceeded")

	rec := h.do(http.MethodPost, "/api/create-browser", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Failed to create browser", body["error"])
	assert.Contains(t, body["details"], "quota exceeded")
}

func TestCreateBrowser_InFlight(t *testing.T) {
	h := newHarness()
	release := make(chan struct{})
	h.fake.BeforeCreate = func(ctx context.Context) error {
		<-release
		return nil
	}
	handler := server.New(h.cfg).Handler()

	var wg sync.WaitGroup
	first := httptest.NewRecorder()
	wg.Add(1)
	go func() {
		defer wg.Done()
		handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/create-browser", nil))
	}()
	require.Eventually(t, func() bool { return h.fake.CallCount("create") == 1 }, 2*time.Second, 5*time.Millisecond)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/create-browser", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	body := decode(t, second)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Browser creation already in progress", body["error"])

	close(release)
	wg.Wait()
	assert.Equal(t, http.StatusOK, first.Code)

	third := httptest.NewRecorder()
	handler.ServeHTTP(third, httptest.NewRequest(http.MethodPost, "/api/create-browser", nil))
	assert.Equal(t, http.StatusOK, third.Code)
}

func TestDeleteBrowser(t *testing.T) {
	h := newHarness()
	h.fake.Seed("s1")

	rec := h.do(http.MethodPost, "/api/delete-browser", map[string]string{"sessionId": "s1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Browser session closed successfully", decode(t, rec)["message"])

	rec = h.do(http.MethodPost, "/api/delete-browser", map[string]string{"sessionId": "s1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Browser session already closed or not found", body["message"])
}

func TestDeleteBrowser_Errors(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPost, "/api/delete-browser", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing sessionId", decode(t, rec)["error"])

	h.fake.Fail["delete"] = errors.New("provider down")
	rec = h.do(http.MethodPost, "/api/delete-browser", map[string]string{"sessionId": "s1"}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "provider down")
}

func TestAgent_Sync(t *testing.T) {
	h := newHarness(llmtest.Text("The title is ", "Example Domain."))

	rec := h.do(http.MethodPost, "/api/agent", map[string]string{"sessionId": "s1", "task": "read the title"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "The title is Example Domain.", body["response"])
	assert.EqualValues(t, 1, body["stepCount"])
	assert.Equal(t, config.TargetVPS, body["serverTarget"])
}

func TestAgent_ValidationAndConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		body   map[string]string
		accept string
		status int
		error  string
		code   types.ErrorCode
	}{
		{
			name:   "missing task",
			body:   map[string]string{"sessionId": "s1"},
			status: http.StatusBadRequest,
			error:  "Missing sessionId or task",
			code:   types.CodeMissingField,
		},
		{
			name:   "missing task while streaming",
			body:   map[string]string{"sessionId": "s1"},
			accept: "text/event-stream",
			status: http.StatusBadRequest,
			error:  "Missing sessionId or task",
			code:   types.CodeMissingField,
		},
		{
			name:   "cloud profile without settings",
			body:   map[string]string{"sessionId": "s1", "task": "t", "serverTarget": config.TargetCloudEU},
			accept: "text/event-stream",
			status: http.StatusBadRequest,
			code:   types.CodeBackendMisconfigured,
		},
		{
			name:   "unknown profile",
			body:   map[string]string{"sessionId": "s1", "task": "t", "serverTarget": "mars"},
			status: http.StatusBadRequest,
			code:   types.CodeBackendMisconfigured,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(llmtest.Text("unused"))
			header := http.Header{}
			if tt.accept != "" {
				header.Set("Accept", tt.accept)
			}

			rec := h.do(http.MethodPost, "/api/agent", tt.body, header)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
			body := decode(t, rec)
			if tt.error != "" {
				assert.Equal(t, tt.error, body["error"])
			}
			assert.Equal(t, string(tt.code), body["code"])
			assert.Empty(t, h.model.Requests())
		})
	}
}

func TestAgent_MissingKernelKey(t *testing.T) {
	h := newHarness(llmtest.Text("unused"))
	h.fake.MissingKey = true

	rec := h.do(http.MethodPost, "/api/agent", map[string]string{"sessionId": "s1", "task": "t"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "KERNEL_API_KEY environment variable is not set", body["error"])
	assert.Equal(t, []interface{}{"KERNEL_API_KEY"}, body["missing"])
}

func TestAgent_SyncFailureIs500(t *testing.T) {
	h := newHarness()
	h.model.StartErr = &types.ProviderError{Op: "chat", StatusCode: 502, Message: "bad gateway"}

	rec := h.do(http.MethodPost, "/api/agent", map[string]string{"sessionId": "s1", "task": "t"}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "bad gateway")
}

func readFrames(t *testing.T, body io.Reader) []*stream.Frame {
	t.Helper()
	dec := stream.NewDecoder(body)
	var frames []*stream.Frame
	for {
		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, frame)
	}
}

func TestAgent_Stream(t *testing.T) {
	h := newHarness(
		llmtest.ToolCalls("Checking. ", llmtest.Call("c1", "read_page", `{}`)),
		llmtest.Text("Done."),
	)

	rec := h.do(http.MethodPost, "/api/agent", map[string]interface{}{"sessionId": "s1", "task": "t", "stream": true}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	frames := readFrames(t, rec.Body)
	require.NotEmpty(t, frames)
	assert.Equal(t, orchestrator.EventInit, frames[0].Event)
	assert.Equal(t, "s1", frames[0].Get("sessionId").String())

	last := frames[len(frames)-1]
	assert.Equal(t, orchestrator.EventFinal, last.Event)
	assert.True(t, last.Get("success").Bool())
	assert.Equal(t, "Checking. Done.", last.Get("response").String())
	assert.EqualValues(t, 2, last.Get("stepCount").Int())

	var deltas strings.Builder
	finals := 0
	for _, f := range frames {
		switch f.Event {
		case "text-delta":
			deltas.WriteString(f.Get("text").String())
		case orchestrator.EventFinal:
			finals++
		}
	}
	assert.Equal(t, 1, finals)
	assert.Equal(t, "Checking. Done.", deltas.String())
}

func TestAgent_StreamSelectedByAccept(t *testing.T) {
	h := newHarness(llmtest.Text("hi"))
	header := http.Header{}
	header.Set("Accept", "text/event-stream")

	rec := h.do(http.MethodPost, "/api/agent", map[string]string{"sessionId": "s1", "task": "t"}, header)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := readFrames(t, rec.Body)
	require.NotEmpty(t, frames)
	assert.Equal(t, orchestrator.EventFinal, frames[len(frames)-1].Event)
}

func TestEnhancePrompt(t *testing.T) {
	h := newHarness(llmtest.Text("  Open example.com and report the title. "))

	rec := h.do(http.MethodPost, "/api/enhance-prompt", map[string]string{"prompt": "title of example"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Open example.com and report the title.", decode(t, rec)["optimizedPrompt"])
}

func TestEnhancePrompt_Errors(t *testing.T) {
	h := newHarness()

	rec := h.do(http.MethodPost, "/api/enhance-prompt", map[string]string{"prompt": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Prompt is required", decode(t, rec)["error"])

	rec = h.do(http.MethodPost, "/api/enhance-prompt", map[string]string{"prompt": "x", "serverTarget": config.TargetCloudEU}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(types.CodeBackendMisconfigured), decode(t, rec)["code"])

	h.model.StartErr = errors.New("connection refused")
	rec = h.do(http.MethodPost, "/api/enhance-prompt", map[string]string{"prompt": "x"}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to optimize prompt", decode(t, rec)["error"])
}

func deployHarness(commander *fakeCommander) *harness {
	h := newHarness()
	h.env["VPS_DEPLOY_TOKEN"] = "secret"
	h.cfg.NewRemote = func(settings config.SSHSettings) (server.Commander, error) {
		return commander, nil
	}
	return h
}

func tokenHeader(token string) http.Header {
	header := http.Header{}
	header.Set(server.DeployTokenHeader, token)
	return header
}

func TestVPSDeploy(t *testing.T) {
	commander := &fakeCommander{output: "deployed\n"}
	h := deployHarness(commander)

	rec := h.do(http.MethodPost, "/api/vps-deploy", map[string]string{"command": "systemctl restart app"}, tokenHeader("secret"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "deployed\n", body["term_output"])
	assert.Equal(t, []string{"systemctl restart app"}, commander.commands)
}

func TestVPSDeploy_Unauthorized(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		provided   string
	}{
		{name: "wrong token", configured: "secret", provided: "guess"},
		{name: "no token sent", configured: "secret", provided: ""},
		{name: "no token configured", configured: "", provided: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commander := &fakeCommander{}
			h := deployHarness(commander)
			h.env["VPS_DEPLOY_TOKEN"] = tt.configured

			rec := h.do(http.MethodPost, "/api/vps-deploy", map[string]string{"command": "ls"}, tokenHeader(tt.provided))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "Unauthorized", body["error"])
			assert.Empty(t, commander.commands)
		})
	}
}

func TestVPSDeploy_MissingSSHConfig(t *testing.T) {
	h := newHarness()
	h.env["VPS_DEPLOY_TOKEN"] = "secret"

	rec := h.do(http.MethodPost, "/api/vps-deploy", map[string]string{"command": "ls"}, tokenHeader("secret"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, remote.MissingConfigMessage, body["error"])
}

func TestVPSDeploy_CommandErrors(t *testing.T) {
	commander := &fakeCommander{err: errors.New("connect to host:22: connection refused")}
	h := deployHarness(commander)

	rec := h.do(http.MethodPost, "/api/vps-deploy", map[string]string{"command": " "}, tokenHeader("secret"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No command provided", decode(t, rec)["error"])

	rec = h.do(http.MethodPost, "/api/vps-deploy", map[string]string{"command": "ls"}, tokenHeader("secret"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "connection refused")
}

func TestVPSDeploy_RateLimited(t *testing.T) {
	h := deployHarness(&fakeCommander{output: "ok"})
	h.cfg.DeployLimiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	handler := server.New(h.cfg).Handler()

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/vps-deploy", strings.NewReader(`{"command":"ls"}`))
		req.Header.Set(server.DeployTokenHeader, "secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

func TestListSkills(t *testing.T) {
	h := newHarness()
	h.cfg.Skills = fakeSkills{parsed: map[string]interface{}{
		"skills": []interface{}{map[string]interface{}{"name": "weather"}},
	}}

	rec := h.do(http.MethodGet, "/api/openclaw/skills", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["skills"], 1)
}

func TestListSkills_Failure(t *testing.T) {
	h := newHarness()
	h.cfg.Skills = fakeSkills{err: errors.New("openclaw exited with status 1")}

	rec := h.do(http.MethodGet, "/api/openclaw/skills", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Failed to list OpenClaw skills", body["error"])

	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Error", details["name"])
	assert.Equal(t, "openclaw exited with status 1", details["message"])
}

func TestCORS(t *testing.T) {
	h := newHarness()
	h.cfg.Settings.AllowedOrigins = []string{"https://console.example"}

	header := http.Header{}
	header.Set("Origin", "https://console.example")
	rec := h.do(http.MethodGet, "/healthz", nil, header)
	assert.Equal(t, "https://console.example", rec.Header().Get("Access-Control-Allow-Origin"))

	header.Set("Origin", "https://evil.example")
	rec = h.do(http.MethodGet, "/healthz", nil, header)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = h.do(http.MethodOptions, "/api/agent", nil, header)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
