package kernel

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/types"
)

type capturedRequest struct {
	method string
	path   string
	body   []byte
}

func newTestServer(t *testing.T, status int, response string, captured *capturedRequest) *Provider {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if captured != nil {
			captured.method = r.Method
			captured.path = r.URL.Path
			captured.body, _ = io.ReadAll(r.Body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return New("sk-test", WithBaseURL(srv.URL+"/"))
}

func TestCreate(t *testing.T) {
	var req capturedRequest
	p := newTestServer(t, http.StatusOK, `{
		"session_id": "abc123",
		"browser_live_view_url": "https://live.onkernel.com/abc123",
		"cdp_ws_url": "wss://cdp.onkernel.com/abc123",
		"created_at": "2026-10-18T09:30:00Z"
	}`, &req)

	s, err := p.Create(context.Background(), browser.CreateOptions{Stealth: true})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/browsers", req.path)
	assert.True(t, gjson.GetBytes(req.body, "stealth").Bool())
	assert.False(t, gjson.GetBytes(req.body, "headless").Bool())
	assert.False(t, gjson.GetBytes(req.body, "timeout_seconds").Exists())

	assert.Equal(t, "abc123", s.ID)
	assert.Equal(t, "https://live.onkernel.com/abc123", s.LiveViewURL)
	assert.Equal(t, "wss://cdp.onkernel.com/abc123", s.CDPWSURL)
	assert.Equal(t, 2026, s.CreatedAt.Year())
}

func TestList(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "bare array",
			body: `[{"session_id":"a","deleted_at":null},{"session_id":"b","deleted_at":"2026-10-18T09:00:00Z"}]`,
		},
		{
			name: "paged object",
			body: `{"items":[{"session_id":"a"},{"session_id":"b","deleted_at":"2026-10-18T09:00:00Z"}],"has_more":false}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestServer(t, http.StatusOK, tt.body, nil)
			sessions, err := p.List(context.Background())
			require.NoError(t, err)
			require.Len(t, sessions, 2)
			assert.Equal(t, "a", sessions[0].ID)
			assert.False(t, sessions[0].Deleted)
			assert.True(t, sessions[1].Deleted)
		})
	}
}

func TestDeleteNotFound(t *testing.T) {
	var req capturedRequest
	p := newTestServer(t, http.StatusNotFound, `{"code":"not_found","message":"browser not found"}`, &req)

	err := p.Delete(context.Background(), "gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrNotFound)
	assert.Equal(t, http.MethodDelete, req.method)
	assert.Equal(t, "/browsers/gone", req.path)
	assert.Contains(t, err.Error(), "browser not found")
}

func TestExecuteScript(t *testing.T) {
	var req capturedRequest
	p := newTestServer(t, http.StatusOK, `{"success":false,"error":"ReferenceError: foo is not defined","stdout":""}`, &req)

	res, err := p.ExecuteScript(context.Background(), "abc", browser.ScriptRequest{Code: "return foo", TimeoutSec: 20})
	require.NoError(t, err)

	assert.Equal(t, "/browsers/abc/playwright/execute", req.path)
	assert.Equal(t, "return foo", gjson.GetBytes(req.body, "code").String())
	assert.Equal(t, int64(20), gjson.GetBytes(req.body, "timeout_sec").Int())
	assert.False(t, res.Success)
	assert.Equal(t, "ReferenceError: foo is not defined", res.Error)
}

func TestComputerActions(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		call  func(p *Provider) error
		check func(t *testing.T, body []byte)
	}{
		{
			name: "click",
			path: "/browsers/abc/computer/click_mouse",
			call: func(p *Provider) error {
				return p.ClickMouse(context.Background(), "abc", browser.ClickRequest{X: 10, Y: 20, Button: "left", NumClicks: 2})
			},
			check: func(t *testing.T, body []byte) {
				assert.Equal(t, int64(10), gjson.GetBytes(body, "x").Int())
				assert.Equal(t, int64(2), gjson.GetBytes(body, "num_clicks").Int())
			},
		},
		{
			name: "drag",
			path: "/browsers/abc/computer/drag_mouse",
			call: func(p *Provider) error {
				return p.DragMouse(context.Background(), "abc", browser.DragRequest{Path: []browser.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}})
			},
			check: func(t *testing.T, body []byte) {
				assert.Equal(t, `[[1,2],[3,4]]`, gjson.GetBytes(body, "path").Raw)
			},
		},
		{
			name: "type",
			path: "/browsers/abc/computer/type",
			call: func(p *Provider) error {
				return p.TypeText(context.Background(), "abc", browser.TypeRequest{Text: "hello"})
			},
			check: func(t *testing.T, body []byte) {
				assert.Equal(t, "hello", gjson.GetBytes(body, "text").String())
			},
		},
		{
			name: "cursor",
			path: "/browsers/abc/computer/cursor",
			call: func(p *Provider) error {
				return p.SetCursorVisibility(context.Background(), "abc", true)
			},
			check: func(t *testing.T, body []byte) {
				assert.True(t, gjson.GetBytes(body, "hidden").Bool())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req capturedRequest
			p := newTestServer(t, http.StatusOK, `{}`, &req)
			require.NoError(t, tt.call(p))
			assert.Equal(t, tt.path, req.path)
			tt.check(t, req.body)
		})
	}
}

func TestScreenshot(t *testing.T) {
	p := newTestServer(t, http.StatusOK, "\x89PNG", nil)
	png, err := p.Screenshot(context.Background(), "abc", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png)
}

func TestProviderErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"message":"rate limited"}`, "rate limited"},
		{`{"error":{"message":"quota exceeded"}}`, "quota exceeded"},
		{`{"error":"bad request"}`, "bad request"},
		{`upstream timeout`, "upstream timeout"},
		{``, "empty response"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorMessage([]byte(tt.body)))
	}

	p := newTestServer(t, http.StatusBadGateway, `{"message":"upstream down"}`, nil)
	_, err := p.Create(context.Background(), browser.CreateOptions{})
	var provErr *types.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusBadGateway, provErr.StatusCode)
	assert.NotErrorIs(t, err, browser.ErrNotFound)
}

func TestCheckCredentials(t *testing.T) {
	p := New("")
	err := p.CheckCredentials()
	require.Error(t, err)
	assert.Equal(t, types.CodeMissingCredentials, types.CodeOf(err))

	_, err = p.List(context.Background())
	assert.Equal(t, types.CodeMissingCredentials, types.CodeOf(err), "no request without a key")
}
