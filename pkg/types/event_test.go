package types

import (
	"errors"
	"testing"
)

func TestAgentEventType(t *testing.T) {
	tests := []struct {
		eventType AgentEventType
		name      string
		expected  string
	}{
		{name: "start", eventType: EventTypeStart, expected: "start"},
		{name: "start-step", eventType: EventTypeStartStep, expected: "start-step"},
		{name: "text-delta", eventType: EventTypeTextDelta, expected: "text-delta"},
		{name: "reasoning-delta", eventType: EventTypeReasoningDelta, expected: "reasoning-delta"},
		{name: "tool-call", eventType: EventTypeToolCall, expected: "tool-call"},
		{name: "tool-result", eventType: EventTypeToolResult, expected: "tool-result"},
		{name: "tool-error", eventType: EventTypeToolError, expected: "tool-error"},
		{name: "finish-step", eventType: EventTypeFinishStep, expected: "finish-step"},
		{name: "finish", eventType: EventTypeFinish, expected: "finish"},
		{name: "error", eventType: EventTypeError, expected: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.eventType) != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, string(tt.eventType))
			}
		})
	}
}

func TestNewTextDeltaEvent(t *testing.T) {
	event := NewTextDeltaEvent("txt-1", "hello")

	if event.Type != EventTypeTextDelta {
		t.Errorf("Expected type %s, got %s", EventTypeTextDelta, event.Type)
	}
	if event.ID != "txt-1" {
		t.Errorf("Expected id 'txt-1', got %q", event.ID)
	}
	if event.Content != "hello" {
		t.Errorf("Expected content 'hello', got %q", event.Content)
	}
	if event.Metadata == nil {
		t.Error("Expected metadata to be initialized")
	}
	if !event.IsContentEvent() {
		t.Error("Expected text delta to be a content event")
	}
}

func TestNewToolEvents(t *testing.T) {
	call := NewToolCallEvent("call_1", "playwright_execute", map[string]interface{}{"code": "return 1"})
	if call.Type != EventTypeToolCall || call.ID != "call_1" || call.ToolName != "playwright_execute" {
		t.Errorf("Unexpected tool call event: %+v", call)
	}
	if call.ToolInput["code"] != "return 1" {
		t.Errorf("Expected tool input to be preserved, got %v", call.ToolInput)
	}

	result := NewToolResultEvent("call_1", "playwright_execute", "ok", false)
	if result.Type != EventTypeToolResult || result.Success {
		t.Errorf("Unexpected tool result event: %+v", result)
	}

	toolErr := errors.New("boom")
	errEvent := NewToolErrorEvent("call_1", "playwright_execute", toolErr)
	if errEvent.Error != toolErr {
		t.Errorf("Expected error to be preserved")
	}

	for _, e := range []*AgentEvent{call, result, errEvent} {
		if !e.IsToolEvent() {
			t.Errorf("Expected %s to be a tool event", e.Type)
		}
		if e.IsStepBoundary() {
			t.Errorf("Expected %s not to be a step boundary", e.Type)
		}
	}
}

func TestStepBoundaryEvents(t *testing.T) {
	start := NewStartStepEvent(3)
	finish := NewFinishStepEvent(3, FinishReasonToolCalls, &Usage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12})

	if !start.IsStepBoundary() || !finish.IsStepBoundary() {
		t.Error("Expected start-step and finish-step to be boundaries")
	}
	if start.IsContentEvent() || finish.IsContentEvent() {
		t.Error("Expected boundaries not to be content events")
	}
	if finish.Step != 3 || finish.FinishReason != FinishReasonToolCalls {
		t.Errorf("Unexpected finish-step event: %+v", finish)
	}
	if finish.Usage.TotalTokens != 12 {
		t.Errorf("Expected usage total 12, got %d", finish.Usage.TotalTokens)
	}
}

func TestWithMetadata(t *testing.T) {
	event := NewStartEvent()
	event.WithMetadata("key1", "value1").WithMetadata("key2", 42)

	if event.Metadata["key1"] != "value1" {
		t.Errorf("Expected metadata key1 to be 'value1', got %v", event.Metadata["key1"])
	}
	if event.Metadata["key2"] != 42 {
		t.Errorf("Expected metadata key2 to be 42, got %v", event.Metadata["key2"])
	}

	bare := &AgentEvent{Type: EventTypeFinish}
	bare.WithMetadata("k", "v")
	if bare.Metadata["k"] != "v" {
		t.Error("Expected WithMetadata to initialize a nil map")
	}
}

func TestErrorEvent(t *testing.T) {
	err := errors.New("backend unreachable")
	event := NewErrorEvent(err).WithStep(2)

	if !event.IsErrorEvent() {
		t.Error("Expected error event")
	}
	if event.Step != 2 {
		t.Errorf("Expected step 2, got %d", event.Step)
	}
	if event.IsContentEvent() {
		t.Error("Expected error event not to be a content event")
	}
}
