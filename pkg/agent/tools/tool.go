package tools

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/entrhq/browserpilot/pkg/types"
)

// Tool represents a capability that an agent can use during execution.
// Tools are invoked by the model through native function calling; the
// arguments arrive as the raw JSON object the model produced and have
// already been validated against Schema when Execute runs.
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "playwright_execute")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters
	Schema() *jsonschema.Schema

	// Execute runs the tool. A failure the model should see and react to
	// is reported as a ToolResult with Success false; a returned error
	// means the call could not be carried out at all.
	Execute(ctx context.Context, args json.RawMessage) (*ToolResult, error)
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	// Output is the structured payload returned to the model and the client.
	Output interface{}

	// Metadata holds optional information for logs and events only.
	Metadata map[string]interface{}

	// Error describes a failure reported by the tool.
	Error string

	// Images are attached to the model's next turn when image attachment
	// is enabled.
	Images []types.Image

	// Success is false when the tool ran but reported a failure.
	Success bool
}

// OK creates a successful result carrying output.
func OK(output interface{}) *ToolResult {
	return &ToolResult{Output: output, Success: true}
}

// Failed creates a failed result carrying a message for the model.
func Failed(message string, output interface{}) *ToolResult {
	return &ToolResult{Output: output, Error: message, Success: false}
}

// Payload is the JSON object sent back to the model as the tool message.
func (r *ToolResult) Payload() map[string]interface{} {
	payload := map[string]interface{}{"success": r.Success}
	if r.Output != nil {
		payload["result"] = r.Output
	}
	if r.Error != "" {
		payload["error"] = r.Error
	}
	return payload
}

// ErrorInfo returns the normalized error of a failed result.
func (r *ToolResult) ErrorInfo() *types.ErrorInfo {
	if r.Success || r.Error == "" {
		return nil
	}
	return &types.ErrorInfo{Name: "Error", Message: r.Error}
}
