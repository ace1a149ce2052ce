package browser

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/entrhq/browserpilot/pkg/agent/tools"
	pb "github.com/entrhq/browserpilot/pkg/browser"
)

// ExecuteToolName is the script tool the agent relies on most.
const ExecuteToolName = "playwright_execute"

// ExecuteTool runs Playwright code against the session.
type ExecuteTool struct {
	provider       pb.SessionProvider
	sessionID      string
	defaultTimeout int
}

// NewExecuteTool creates a script tool bound to one session.
func NewExecuteTool(provider pb.SessionProvider, sessionID string, defaultTimeout int) *ExecuteTool {
	return &ExecuteTool{provider: provider, sessionID: sessionID, defaultTimeout: defaultTimeout}
}

// Name returns the tool name.
func (t *ExecuteTool) Name() string {
	return ExecuteToolName
}

// Description returns the tool description.
func (t *ExecuteTool) Description() string {
	return "Executes JavaScript/Playwright code in the browser. Has access to 'page', 'context', and 'browser' objects. " +
		"The code runs as the body of an async function, so use 'return' to send data back. Returns the result of your code."
}

// Schema returns the tool's JSON schema.
func (t *ExecuteTool) Schema() *jsonschema.Schema {
	return tools.ObjectSchema(map[string]*jsonschema.Schema{
		"code": tools.String("JavaScript code to run, e.g. `await page.goto('https://example.com'); return await page.title();`"),
		"timeout_sec": tools.NonNegativeInteger(
			"Maximum execution time in seconds. Defaults to the server setting."),
	}, "code")
}

type executeInput struct {
	Code       string `json:"code"`
	TimeoutSec int    `json:"timeout_sec"`
}

// Execute runs the code. A script that throws yields a failed result; a
// provider that cannot be reached yields an error.
func (t *ExecuteTool) Execute(ctx context.Context, args json.RawMessage) (*tools.ToolResult, error) {
	var input executeInput
	if err := tools.DecodeArgs(args, &input); err != nil {
		return nil, err
	}

	timeout := input.TimeoutSec
	if timeout == 0 {
		timeout = t.defaultTimeout
	}

	res, err := t.provider.ExecuteScript(ctx, t.sessionID, pb.ScriptRequest{Code: input.Code, TimeoutSec: timeout})
	if err != nil {
		return nil, err
	}

	result := &tools.ToolResult{
		Output:  res.Result,
		Error:   res.Error,
		Success: res.Success,
	}
	if !res.Success && result.Error == "" {
		result.Error = "script execution failed"
	}
	if res.Stdout != "" || res.Stderr != "" {
		result.Metadata = map[string]interface{}{"stdout": res.Stdout, "stderr": res.Stderr}
	}
	return result, nil
}
