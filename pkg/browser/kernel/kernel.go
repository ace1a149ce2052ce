// Package kernel implements browser.Provider against the Kernel hosted
// browser API.
package kernel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/tidwall/gjson"

	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/types"
)

// DefaultBaseURL is the public Kernel API endpoint.
const DefaultBaseURL = "https://api.onkernel.com"

// APIKeyEnvVar names the credential setting reported when it is missing.
const APIKeyEnvVar = "KERNEL_API_KEY"

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		if baseURL != "" {
			p.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) { p.client = client }
}

// Provider talks to the Kernel API with bearer authentication.
type Provider struct {
	client  *http.Client
	apiKey  string
	baseURL string
}

// New creates a provider. An empty apiKey is accepted so that the absence
// can be reported through CheckCredentials before any request is made.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		client:  cleanhttp.DefaultPooledClient(),
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckCredentials reports a missing API key.
func (p *Provider) CheckCredentials() error {
	if p.apiKey == "" {
		return &types.ConfigurationError{
			Code:    types.CodeMissingCredentials,
			Message: APIKeyEnvVar + " environment variable is not set",
			Missing: []string{APIKeyEnvVar},
		}
	}
	return nil
}

type createRequest struct {
	TimeoutSeconds int  `json:"timeout_seconds,omitempty"`
	Stealth        bool `json:"stealth"`
	Headless       bool `json:"headless"`
}

// Create provisions a new browser.
func (p *Provider) Create(ctx context.Context, opts browser.CreateOptions) (*browser.ProviderSession, error) {
	body, err := p.do(ctx, "create browser", http.MethodPost, "/browsers", createRequest{
		Stealth:        opts.Stealth,
		Headless:       opts.Headless,
		TimeoutSeconds: opts.TimeoutSeconds,
	})
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	return &browser.ProviderSession{
		ID:          res.Get("session_id").String(),
		LiveViewURL: res.Get("browser_live_view_url").String(),
		CDPWSURL:    res.Get("cdp_ws_url").String(),
		CreatedAt:   parseTime(res.Get("created_at")),
	}, nil
}

// Delete removes a browser. A 404 wraps browser.ErrNotFound.
func (p *Provider) Delete(ctx context.Context, id string) error {
	_, err := p.do(ctx, "delete browser", http.MethodDelete, "/browsers/"+url.PathEscape(id), nil)
	return err
}

// List returns the browsers known to the account.
func (p *Provider) List(ctx context.Context) ([]browser.SessionSummary, error) {
	body, err := p.do(ctx, "list browsers", http.MethodGet, "/browsers", nil)
	if err != nil {
		return nil, err
	}

	items := gjson.ParseBytes(body)
	if !items.IsArray() {
		items = items.Get("items")
	}

	var out []browser.SessionSummary
	items.ForEach(func(_, item gjson.Result) bool {
		deleted := item.Get("deleted_at")
		out = append(out, browser.SessionSummary{
			ID:        item.Get("session_id").String(),
			CreatedAt: parseTime(item.Get("created_at")),
			Deleted:   deleted.Exists() && deleted.Type != gjson.Null && deleted.String() != "",
		})
		return true
	})
	return out, nil
}

type executeRequest struct {
	Code       string `json:"code"`
	TimeoutSec int    `json:"timeout_sec,omitempty"`
}

// ExecuteScript runs Playwright code against the browser.
func (p *Provider) ExecuteScript(ctx context.Context, id string, req browser.ScriptRequest) (*browser.ScriptResult, error) {
	body, err := p.do(ctx, "execute script", http.MethodPost,
		"/browsers/"+url.PathEscape(id)+"/playwright/execute",
		executeRequest{Code: req.Code, TimeoutSec: req.TimeoutSec})
	if err != nil {
		return nil, err
	}

	var res browser.ScriptResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &types.ProviderError{Op: "execute script", Err: fmt.Errorf("decode response: %w", err)}
	}
	return &res, nil
}

type screenshotRequest struct {
	Region *browser.Region `json:"region,omitempty"`
}

// Screenshot captures the live view as PNG.
func (p *Provider) Screenshot(ctx context.Context, id string, region *browser.Region) ([]byte, error) {
	return p.do(ctx, "screenshot", http.MethodPost, p.computerPath(id, "screenshot"), screenshotRequest{Region: region})
}

func (p *Provider) MoveMouse(ctx context.Context, id string, req browser.MoveRequest) error {
	_, err := p.do(ctx, "move mouse", http.MethodPost, p.computerPath(id, "move_mouse"), req)
	return err
}

func (p *Provider) ClickMouse(ctx context.Context, id string, req browser.ClickRequest) error {
	_, err := p.do(ctx, "click mouse", http.MethodPost, p.computerPath(id, "click_mouse"), req)
	return err
}

type dragRequest struct {
	browser.DragRequest
	Path [][2]int `json:"path"`
}

func (p *Provider) DragMouse(ctx context.Context, id string, req browser.DragRequest) error {
	path := make([][2]int, len(req.Path))
	for i, pt := range req.Path {
		path[i] = [2]int{pt.X, pt.Y}
	}
	_, err := p.do(ctx, "drag mouse", http.MethodPost, p.computerPath(id, "drag_mouse"), dragRequest{DragRequest: req, Path: path})
	return err
}

func (p *Provider) Scroll(ctx context.Context, id string, req browser.ScrollRequest) error {
	_, err := p.do(ctx, "scroll", http.MethodPost, p.computerPath(id, "scroll"), req)
	return err
}

func (p *Provider) TypeText(ctx context.Context, id string, req browser.TypeRequest) error {
	_, err := p.do(ctx, "type text", http.MethodPost, p.computerPath(id, "type"), req)
	return err
}

func (p *Provider) PressKey(ctx context.Context, id string, req browser.KeyRequest) error {
	_, err := p.do(ctx, "press key", http.MethodPost, p.computerPath(id, "press_key"), req)
	return err
}

type cursorRequest struct {
	Hidden bool `json:"hidden"`
}

func (p *Provider) SetCursorVisibility(ctx context.Context, id string, hidden bool) error {
	_, err := p.do(ctx, "set cursor", http.MethodPost, p.computerPath(id, "cursor"), cursorRequest{Hidden: hidden})
	return err
}

func (p *Provider) computerPath(id, action string) string {
	return "/browsers/" + url.PathEscape(id) + "/computer/" + action
}

// do sends one request and returns the response body. Non-2xx responses
// become *types.ProviderError; a 404 additionally wraps browser.ErrNotFound.
func (p *Provider) do(ctx context.Context, op, method, path string, payload interface{}) ([]byte, error) {
	if err := p.CheckCredentials(); err != nil {
		return nil, err
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &types.ProviderError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &types.ProviderError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		provErr := &types.ProviderError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(body)}
		if resp.StatusCode == http.StatusNotFound {
			provErr.Err = browser.ErrNotFound
		}
		return nil, provErr
	}
	return body, nil
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"message", "error.message", "error"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "empty response"
	}
	return msg
}

func parseTime(v gjson.Result) time.Time {
	if !v.Exists() {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v.String())
	if err != nil {
		return time.Time{}
	}
	return t
}

var (
	_ browser.Provider          = (*Provider)(nil)
	_ browser.CredentialChecker = (*Provider)(nil)
)
