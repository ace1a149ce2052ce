// Package openai provides an OpenAI-compatible LLM provider implementation.
//
// It targets any server exposing /chat/completions with SSE streaming,
// including Ollama's OpenAI-compatible endpoint. Request bodies are built
// from openai-go parameter types; stream chunks are read with gjson so that
// vendor-specific fields such as reasoning_content survive.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"github.com/tidwall/gjson"

	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/llm/parser"
	"github.com/entrhq/browserpilot/pkg/types"
)

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"

	maxLineSize = 4 * 1024 * 1024
)

// Provider implements llm.Provider for OpenAI-compatible APIs.
type Provider struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use for completions.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// NewProvider creates a provider authenticating with apiKey.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	p := &Provider{
		model:      "gpt-4o",
		apiKey:     apiKey,
		httpClient: cleanhttp.DefaultPooledClient(),
		baseURL:    DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// StreamCompletion sends the request and streams back response chunks.
//
// Raw SSE handling is used instead of the SDK stream so that servers which
// interleave comments or vendor fields are tolerated.
func (p *Provider) StreamCompletion(ctx context.Context, req *llm.Request) (<-chan *llm.StreamChunk, error) {
	resp, err := p.sendStreamRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *llm.StreamChunk, 16)
	go p.processStreamResponse(ctx, resp, chunks)
	return chunks, nil
}

type chatRequest struct {
	Model         string                                   `json:"model"`
	Messages      []openai.ChatCompletionMessageParamUnion `json:"messages"`
	Tools         []openai.ChatCompletionToolParam         `json:"tools,omitempty"`
	Stream        bool                                     `json:"stream"`
	StreamOptions map[string]bool                          `json:"stream_options,omitempty"`
}

func (p *Provider) sendStreamRequest(ctx context.Context, req *llm.Request) (*http.Response, error) {
	body := chatRequest{
		Model:         p.model,
		Messages:      convertMessages(req.Messages),
		Tools:         convertTools(req.Tools),
		Stream:        true,
		StreamOptions: map[string]bool{"include_usage": true},
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &types.ProviderError{Op: "chat completion", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &types.ProviderError{
			Op:         "chat completion",
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
		}
	}
	return resp, nil
}

// errorMessage extracts a human readable message from an error body.
func errorMessage(raw []byte) string {
	for _, path := range []string{"error.message", "error", "message"} {
		if v := gjson.GetBytes(raw, path); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	return strings.TrimSpace(string(raw))
}

// streamState accumulates tool-call fragments and trailing metadata.
type streamState struct {
	thinking     *parser.ThinkingParser
	toolCalls    map[int64]*types.ToolCall
	usage        *types.Usage
	finishReason string
	role         string
}

func (p *Provider) processStreamResponse(ctx context.Context, resp *http.Response, chunks chan<- *llm.StreamChunk) {
	defer close(chunks)
	defer resp.Body.Close()

	state := &streamState{
		thinking:  parser.NewThinkingParser(),
		toolCalls: make(map[int64]*types.ToolCall),
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if !isValidSSELine(line) {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		if !p.processSSEChunk(ctx, data, state, chunks) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		send(ctx, chunks, &llm.StreamChunk{Error: fmt.Errorf("stream read error: %w", err)})
		return
	}
	if err := ctx.Err(); err != nil {
		send(ctx, chunks, &llm.StreamChunk{Error: err})
		return
	}

	p.finishStream(ctx, state, chunks)
}

// isValidSSELine checks if a line is a valid SSE data line
func isValidSSELine(line string) bool {
	return line != "" && !strings.HasPrefix(line, ":") && strings.HasPrefix(line, "data:")
}

// send delivers chunk unless ctx is done. Returns false when the consumer is gone.
func send(ctx context.Context, chunks chan<- *llm.StreamChunk, chunk *llm.StreamChunk) bool {
	if chunk == nil {
		return true
	}
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Provider) processSSEChunk(ctx context.Context, data string, state *streamState, chunks chan<- *llm.StreamChunk) bool {
	if !gjson.Valid(data) {
		return true // tolerate malformed keep-alive payloads
	}
	parsed := gjson.Parse(data)

	if errMsg := parsed.Get("error.message"); errMsg.Exists() {
		send(ctx, chunks, &llm.StreamChunk{Error: &types.ProviderError{Op: "chat completion", Message: errMsg.String()}})
		return false
	}

	if usage := parsed.Get("usage"); usage.IsObject() {
		state.usage = &types.Usage{
			InputTokens:  int(usage.Get("prompt_tokens").Int()),
			OutputTokens: int(usage.Get("completion_tokens").Int()),
			TotalTokens:  int(usage.Get("total_tokens").Int()),
		}
	}

	choice := parsed.Get("choices.0")
	if !choice.Exists() {
		return true
	}
	if reason := choice.Get("finish_reason"); reason.Type == gjson.String && reason.String() != "" {
		state.finishReason = reason.String()
	}

	delta := choice.Get("delta")
	if role := delta.Get("role").String(); role != "" && state.role == "" {
		state.role = role
	}

	// Dedicated reasoning fields take precedence over inline tags.
	for _, field := range []string{"reasoning_content", "reasoning"} {
		if r := delta.Get(field).String(); r != "" {
			if !send(ctx, chunks, &llm.StreamChunk{Content: r, Type: llm.ContentTypeThinking, Role: state.role}) {
				return false
			}
			break
		}
	}

	if content := delta.Get("content").String(); content != "" {
		thinkingChunk, messageChunk := state.thinking.Parse(content)
		if !send(ctx, chunks, withRole(thinkingChunk, state.role)) || !send(ctx, chunks, withRole(messageChunk, state.role)) {
			return false
		}
	}

	delta.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
		index := tc.Get("index").Int()
		call, ok := state.toolCalls[index]
		if !ok {
			call = &types.ToolCall{}
			state.toolCalls[index] = call
		}
		if id := tc.Get("id").String(); id != "" {
			call.ID = id
		}
		if name := tc.Get("function.name").String(); name != "" {
			call.Name = name
		}
		args := tc.Get("function.arguments")
		if args.Type == gjson.String {
			call.Arguments += args.String()
		} else if args.IsObject() {
			// some servers send decoded objects instead of strings
			call.Arguments = args.Raw
		}
		return true
	})

	return true
}

func withRole(chunk *llm.StreamChunk, role string) *llm.StreamChunk {
	if chunk != nil {
		chunk.Role = role
	}
	return chunk
}

// finishStream flushes buffered text then emits tool calls, usage and the
// terminal chunk, in that order.
func (p *Provider) finishStream(ctx context.Context, state *streamState, chunks chan<- *llm.StreamChunk) {
	thinkingChunk, messageChunk := state.thinking.Flush()
	if !send(ctx, chunks, withRole(thinkingChunk, state.role)) || !send(ctx, chunks, withRole(messageChunk, state.role)) {
		return
	}

	indexes := make([]int64, 0, len(state.toolCalls))
	for i := range state.toolCalls {
		indexes = append(indexes, i)
	}
	sort.Slice(indexes, func(a, b int) bool { return indexes[a] < indexes[b] })

	for _, i := range indexes {
		call := state.toolCalls[i]
		if call.Name == "" {
			continue
		}
		if strings.TrimSpace(call.Arguments) == "" {
			call.Arguments = "{}"
		}
		if !send(ctx, chunks, &llm.StreamChunk{ToolCall: call}) {
			return
		}
	}

	if state.usage != nil {
		if !send(ctx, chunks, &llm.StreamChunk{Usage: state.usage}) {
			return
		}
	}

	send(ctx, chunks, &llm.StreamChunk{Finished: true, FinishReason: state.finishReason, Role: state.role})
}

// Complete sends the request and accumulates the full response.
func (p *Provider) Complete(ctx context.Context, req *llm.Request) (*types.Message, error) {
	stream, err := p.StreamCompletion(ctx, req)
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	var toolCalls []types.ToolCall
	for chunk := range stream {
		switch {
		case chunk.IsError():
			return nil, chunk.Error
		case chunk.IsToolCall():
			toolCalls = append(toolCalls, *chunk.ToolCall)
		case chunk.IsMessage():
			content.WriteString(chunk.Content)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return types.NewAssistantMessage(content.String(), toolCalls), nil
}

// GetModel returns the model name being used.
func (p *Provider) GetModel() string {
	return p.model
}

// GetBaseURL returns the base URL being used.
func (p *Provider) GetBaseURL() string {
	return p.baseURL
}

// convertMessages converts conversation messages to request parameters.
func convertMessages(messages []*types.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))

		case types.RoleUser:
			if len(msg.Images) == 0 {
				out = append(out, openai.UserMessage(msg.Content))
				continue
			}
			parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(msg.Content)}
			for _, img := range msg.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL(img),
				}))
			}
			out = append(out, openai.UserMessage(parts))

		case types.RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{Role: "assistant"}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		case types.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))

		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func convertTools(defs []llm.ToolDefinition) []openai.ChatCompletionToolParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  shared.FunctionParameters(def.Parameters),
			},
		})
	}
	return tools
}

func dataURL(img types.Image) string {
	mediaType := img.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
