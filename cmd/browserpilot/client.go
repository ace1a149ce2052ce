package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/tidwall/gjson"
)

// apiClient talks to a running browserpilot server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	// No client timeout: agent runs and streams are bounded server-side.
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: cleanhttp.DefaultClient(),
	}
}

type requestOption func(*http.Request)

func withHeader(key, value string) requestOption {
	return func(req *http.Request) { req.Header.Set(key, value) }
}

// post sends body as JSON. The caller closes the response body.
func (c *apiClient) post(ctx context.Context, path string, body interface{}, accept string, opts ...requestOption) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	for _, opt := range opts {
		opt(req)
	}
	return c.do(req)
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *apiClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

// decode reads a JSON response into v, turning error statuses into errors
// that carry the server's message.
func decode(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return responseError(resp.StatusCode, raw)
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func responseError(status int, raw []byte) error {
	body := gjson.ParseBytes(raw)
	msg := body.Get("error").String()
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if detail := body.Get("message").String(); detail != "" {
		msg += ": " + detail
	} else if detail := body.Get("details").String(); detail != "" && body.Get("details").Type == gjson.String {
		msg += ": " + detail
	}
	if code := body.Get("code").String(); code != "" {
		msg += " (" + code + ")"
	}
	return fmt.Errorf("server returned %d: %s", status, msg)
}
