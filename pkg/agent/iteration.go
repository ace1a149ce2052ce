package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/types"
)

// stepOutput is what the model produced during one step.
type stepOutput struct {
	usage        *types.Usage
	text         string
	finishReason string
	toolCalls    []types.ToolCall
}

// runStep streams one model turn, relaying reasoning and text as delta
// events. Tool calls are collected and returned for execution.
func (r *Runner) runStep(ctx context.Context, step int, conv *conversation, defs []llm.ToolDefinition, emit func(*types.AgentEvent) bool) (*stepOutput, error) {
	stream, err := r.provider.StreamCompletion(ctx, &llm.Request{Messages: conv.messages, Tools: defs})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to start completion: %w", err)
	}

	textID := "txt-" + uuid.NewString()
	reasoningID := "rsn-" + uuid.NewString()

	var (
		text      strings.Builder
		usage     *types.Usage
		rawReason string
		calls     []types.ToolCall
	)

	for chunk := range stream {
		switch {
		case chunk.IsError():
			drain(stream)
			return nil, chunk.Error
		case chunk.IsThinking():
			emit(types.NewReasoningDeltaEvent(reasoningID, chunk.Content).WithStep(step))
		case chunk.IsMessage():
			text.WriteString(chunk.Content)
			emit(types.NewTextDeltaEvent(textID, chunk.Content).WithStep(step))
		case chunk.IsToolCall():
			call := *chunk.ToolCall
			if call.ID == "" {
				call.ID = "call_" + uuid.NewString()
			}
			calls = append(calls, call)
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Finished {
			rawReason = chunk.FinishReason
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if usage.IsZero() {
		usage = r.usage(conv.messages, completionText(text.String(), calls))
	}

	return &stepOutput{
		usage:        usage,
		text:         text.String(),
		finishReason: normalizeFinishReason(rawReason, len(calls) > 0),
		toolCalls:    calls,
	}, nil
}

// drain discards the rest of a stream so the producer can exit.
func drain(stream <-chan *llm.StreamChunk) {
	go func() {
		for range stream {
		}
	}()
}

func completionText(text string, calls []types.ToolCall) string {
	var b strings.Builder
	b.WriteString(text)
	for _, c := range calls {
		b.WriteString(c.Name)
		b.WriteString(c.Arguments)
	}
	return b.String()
}

// normalizeFinishReason maps backend finish reasons onto the fixed set.
// A step that issued tool calls always ends with tool-calls.
func normalizeFinishReason(raw string, hasToolCalls bool) string {
	if hasToolCalls {
		return types.FinishReasonToolCalls
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "stop", "end_turn", "stop_sequence":
		return types.FinishReasonStop
	case "length", "max_tokens":
		return types.FinishReasonLength
	case "tool_calls", "tool-calls", "function_call", "tool_use":
		return types.FinishReasonToolCalls
	case "content_filter", "content-filter":
		return types.FinishReasonContentFilter
	case "error":
		return types.FinishReasonError
	default:
		return types.FinishReasonOther
	}
}
