// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/types"
)

// ErrScriptExhausted is streamed when the model is asked for more turns
// than were scripted.
var ErrScriptExhausted = errors.New("llmtest: no scripted turn left")

// Turn is the chunk sequence returned for one StreamCompletion call.
type Turn []*llm.StreamChunk

// Text builds a turn that streams fragments and stops.
func Text(fragments ...string) Turn {
	turn := make(Turn, 0, len(fragments)+1)
	for _, f := range fragments {
		turn = append(turn, &llm.StreamChunk{Content: f, Type: llm.ContentTypeMessage})
	}
	return append(turn, &llm.StreamChunk{Finished: true, FinishReason: "stop"})
}

// ToolCalls builds a turn that issues calls after an optional text preamble.
func ToolCalls(preamble string, calls ...types.ToolCall) Turn {
	var turn Turn
	if preamble != "" {
		turn = append(turn, &llm.StreamChunk{Content: preamble, Type: llm.ContentTypeMessage})
	}
	for i := range calls {
		call := calls[i]
		turn = append(turn, &llm.StreamChunk{ToolCall: &call})
	}
	return append(turn, &llm.StreamChunk{Finished: true, FinishReason: "tool_calls"})
}

// Call is shorthand for a tool call.
func Call(id, name, args string) types.ToolCall {
	return types.ToolCall{ID: id, Name: name, Arguments: args}
}

// Provider replays scripted turns in order and records every request.
type Provider struct {
	// StartErr fails StreamCompletion before any chunk is sent.
	StartErr error

	// Block, when set, is waited on before each turn is streamed. Tests
	// use it to hold a run mid-step.
	Block chan struct{}

	turns    []Turn
	requests []*llm.Request
	mu       sync.Mutex

	// Repeat replays the last turn forever once the script is exhausted.
	Repeat bool
}

// New creates a provider that answers with turns in order.
func New(turns ...Turn) *Provider {
	return &Provider{turns: turns}
}

// Requests returns the recorded requests.
func (p *Provider) Requests() []*llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.Request(nil), p.requests...)
}

func (p *Provider) next(req *llm.Request) (Turn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	copied := *req
	copied.Messages = append([]*types.Message(nil), req.Messages...)
	p.requests = append(p.requests, &copied)

	i := len(p.requests) - 1
	if i < len(p.turns) {
		return p.turns[i], true
	}
	if p.Repeat && len(p.turns) > 0 {
		return p.turns[len(p.turns)-1], true
	}
	return nil, false
}

func (p *Provider) StreamCompletion(ctx context.Context, req *llm.Request) (<-chan *llm.StreamChunk, error) {
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	turn, ok := p.next(req)

	ch := make(chan *llm.StreamChunk)
	go func() {
		defer close(ch)
		if p.Block != nil {
			select {
			case <-p.Block:
			case <-ctx.Done():
				return
			}
		}
		if !ok {
			turn = Turn{{Error: ErrScriptExhausted}}
		}
		for _, chunk := range turn {
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (p *Provider) Complete(ctx context.Context, req *llm.Request) (*types.Message, error) {
	stream, err := p.StreamCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	var text strings.Builder
	var calls []types.ToolCall
	for chunk := range stream {
		switch {
		case chunk.IsError():
			return nil, chunk.Error
		case chunk.IsMessage():
			text.WriteString(chunk.Content)
		case chunk.IsToolCall():
			calls = append(calls, *chunk.ToolCall)
		}
	}
	return types.NewAssistantMessage(text.String(), calls), nil
}

func (p *Provider) GetModel() string   { return "scripted-model" }
func (p *Provider) GetBaseURL() string { return "http://llm.test/v1" }

var _ llm.Provider = (*Provider)(nil)
