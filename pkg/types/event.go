package types

// AgentEventType defines the type of event emitted by the agent loop.
type AgentEventType string

const (
	EventTypeStart          AgentEventType = "start"           // EventTypeStart indicates the agent loop has started for a task.
	EventTypeStartStep      AgentEventType = "start-step"      // EventTypeStartStep indicates a new loop iteration is beginning.
	EventTypeTextDelta      AgentEventType = "text-delta"      // EventTypeTextDelta carries one fragment of model-visible text.
	EventTypeReasoningDelta AgentEventType = "reasoning-delta" // EventTypeReasoningDelta carries one fragment of model reasoning.
	EventTypeToolCall       AgentEventType = "tool-call"       // EventTypeToolCall indicates the agent is calling a tool.
	EventTypeToolResult     AgentEventType = "tool-result"     // EventTypeToolResult indicates a tool call completed (successfully or with a reported failure).
	EventTypeToolError      AgentEventType = "tool-error"      // EventTypeToolError indicates a tool call could not be executed.
	EventTypeFinishStep     AgentEventType = "finish-step"     // EventTypeFinishStep indicates a loop iteration has closed.
	EventTypeFinish         AgentEventType = "finish"          // EventTypeFinish indicates the agent loop has finished.
	EventTypeError          AgentEventType = "error"           // EventTypeError indicates an error that terminates the loop.
)

// Finish reasons reported on finish-step and finish events.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool-calls"
	FinishReasonContentFilter = "content-filter"
	FinishReasonError         = "error"
	FinishReasonOther         = "other"
)

// AgentEvent represents an event emitted by the agent during execution.
type AgentEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// ToolInput is the input being sent to the tool (for tool call events).
	ToolInput map[string]interface{}

	// ToolOutput is the result from the tool (for tool result events).
	ToolOutput interface{}

	// Error contains error information for error and tool-error events.
	Error error

	// Usage holds token accounting for finish-step and finish events.
	Usage *Usage

	// ID correlates related events: the tool call id for tool events,
	// the text part id for deltas.
	ID string

	// Content holds text content for delta events.
	Content string

	// ToolName is the name of the tool being called (for tool events).
	ToolName string

	// FinishReason is set on finish-step and finish events.
	FinishReason string

	// Type indicates the kind of event.
	Type AgentEventType

	// Step is the 1-based step the runner believes the event belongs to.
	// Zero means unknown; consumers keep their own index.
	Step int

	// Success is meaningful only for tool-result events.
	Success bool
}

// NewStartEvent creates a start event.
func NewStartEvent() *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeStart,
		Metadata: make(map[string]interface{}),
	}
}

// NewStartStepEvent creates a step start event.
func NewStartStepEvent(step int) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeStartStep,
		Step:     step,
		Metadata: make(map[string]interface{}),
	}
}

// NewTextDeltaEvent creates a text fragment event.
func NewTextDeltaEvent(id, content string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeTextDelta,
		ID:       id,
		Content:  content,
		Metadata: make(map[string]interface{}),
	}
}

// NewReasoningDeltaEvent creates a reasoning fragment event.
func NewReasoningDeltaEvent(id, content string) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeReasoningDelta,
		ID:       id,
		Content:  content,
		Metadata: make(map[string]interface{}),
	}
}

// NewToolCallEvent creates a tool call event.
func NewToolCallEvent(id, toolName string, toolInput map[string]interface{}) *AgentEvent {
	return &AgentEvent{
		Type:      EventTypeToolCall,
		ID:        id,
		ToolName:  toolName,
		ToolInput: toolInput,
		Metadata:  make(map[string]interface{}),
	}
}

// NewToolResultEvent creates a tool result event.
func NewToolResultEvent(id, toolName string, output interface{}, success bool) *AgentEvent {
	return &AgentEvent{
		Type:       EventTypeToolResult,
		ID:         id,
		ToolName:   toolName,
		ToolOutput: output,
		Success:    success,
		Metadata:   make(map[string]interface{}),
	}
}

// NewToolErrorEvent creates a tool error event.
func NewToolErrorEvent(id, toolName string, err error) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeToolError,
		ID:       id,
		ToolName: toolName,
		Error:    err,
		Metadata: make(map[string]interface{}),
	}
}

// NewFinishStepEvent creates a step finish event.
func NewFinishStepEvent(step int, finishReason string, usage *Usage) *AgentEvent {
	return &AgentEvent{
		Type:         EventTypeFinishStep,
		Step:         step,
		FinishReason: finishReason,
		Usage:        usage,
		Metadata:     make(map[string]interface{}),
	}
}

// NewFinishEvent creates a loop finish event carrying the total usage.
func NewFinishEvent(finishReason string, totalUsage *Usage) *AgentEvent {
	return &AgentEvent{
		Type:         EventTypeFinish,
		FinishReason: finishReason,
		Usage:        totalUsage,
		Metadata:     make(map[string]interface{}),
	}
}

// NewErrorEvent creates an error event.
func NewErrorEvent(err error) *AgentEvent {
	return &AgentEvent{
		Type:     EventTypeError,
		Error:    err,
		Metadata: make(map[string]interface{}),
	}
}

// WithMetadata adds metadata to the event and returns the event for chaining.
func (e *AgentEvent) WithMetadata(key string, value interface{}) *AgentEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithStep stamps the event with the runner's step number.
func (e *AgentEvent) WithStep(step int) *AgentEvent {
	e.Step = step
	return e
}

// IsContentEvent returns true if the event belongs inside a step.
func (e *AgentEvent) IsContentEvent() bool {
	return e.Type == EventTypeTextDelta ||
		e.Type == EventTypeReasoningDelta ||
		e.IsToolEvent()
}

// IsToolEvent returns true if this is any tool-related event.
func (e *AgentEvent) IsToolEvent() bool {
	return e.Type == EventTypeToolCall ||
		e.Type == EventTypeToolResult ||
		e.Type == EventTypeToolError
}

// IsStepBoundary returns true for start-step and finish-step events.
func (e *AgentEvent) IsStepBoundary() bool {
	return e.Type == EventTypeStartStep || e.Type == EventTypeFinishStep
}

// IsErrorEvent returns true if this is an error event.
func (e *AgentEvent) IsErrorEvent() bool {
	return e.Type == EventTypeError
}
