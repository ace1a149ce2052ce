package orchestrator

import (
	"github.com/entrhq/browserpilot/pkg/types"
)

// Stream event names. Every agent event type keeps its own name on the
// wire; init and final frame the stream.
const (
	EventInit  = "init"
	EventFinal = "final"
)

// Event is one named frame of the outgoing stream.
type Event struct {
	Data interface{}
	Name string
}

// InitPayload opens a stream.
type InitPayload struct {
	SessionID    string `json:"sessionId"`
	ServerTarget string `json:"serverTarget"`
	RunID        string `json:"runId"`
	LagMsMin     int    `json:"lagMsMin"`
	LagMsMax     int    `json:"lagMsMax"`
}

// StepPayload is sent for start-step.
type StepPayload struct {
	Type       string `json:"type"`
	StepNumber int    `json:"stepNumber"`
}

// FinishStepPayload is sent for finish-step.
type FinishStepPayload struct {
	Usage        *types.Usage `json:"usage,omitempty"`
	Type         string       `json:"type"`
	FinishReason string       `json:"finishReason"`
	StepNumber   int          `json:"stepNumber"`
}

// DeltaPayload is sent for text-delta and reasoning-delta.
type DeltaPayload struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Text       string `json:"text"`
	StepNumber int    `json:"stepNumber"`
}

// ToolCallPayload is sent for tool-call.
type ToolCallPayload struct {
	Input      map[string]interface{} `json:"input"`
	Type       string                 `json:"type"`
	ToolCallID string                 `json:"toolCallId"`
	ToolName   string                 `json:"toolName"`
	StepNumber int                    `json:"stepNumber"`
}

// ToolResultPayload is sent for tool-result and tool-error.
type ToolResultPayload struct {
	Output     interface{}            `json:"output,omitempty"`
	Error      *types.ErrorInfo       `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Type       string                 `json:"type"`
	ToolCallID string                 `json:"toolCallId"`
	ToolName   string                 `json:"toolName"`
	StepNumber int                    `json:"stepNumber"`
	Success    bool                   `json:"success"`
}

// FinishPayload is sent for finish.
type FinishPayload struct {
	TotalUsage   *types.Usage `json:"totalUsage,omitempty"`
	Type         string       `json:"type"`
	FinishReason string       `json:"finishReason"`
}

// ErrorPayload is sent for error and for any other event carrying an error.
type ErrorPayload struct {
	Error *types.ErrorInfo `json:"error"`
	Type  string           `json:"type"`
}

// PassthroughPayload carries event types without a dedicated shape.
type PassthroughPayload struct {
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Error    *types.ErrorInfo       `json:"error,omitempty"`
	Type     string                 `json:"type"`
}
