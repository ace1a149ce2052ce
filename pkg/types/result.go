package types

// Usage contains token accounting for a step or a whole run.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// IsZero reports whether no tokens were counted.
func (u *Usage) IsZero() bool {
	return u == nil || (u.InputTokens == 0 && u.OutputTokens == 0 && u.TotalTokens == 0)
}

// ExecutedCode summarizes one script execution for clients that only show code.
type ExecutedCode struct {
	Result  interface{} `json:"result,omitempty"`
	Code    string      `json:"code"`
	Error   string      `json:"error,omitempty"`
	Success bool        `json:"success"`
}

// RunResult is the terminal payload of an agent run. The synchronous
// response body and the streaming "final" event carry the same value.
type RunResult struct {
	Usage         Usage          `json:"usage"`
	Response      string         `json:"response"`
	ServerTarget  string         `json:"serverTarget"`
	FinishReason  string         `json:"finishReason,omitempty"`
	RunID         string         `json:"runId,omitempty"`
	Error         string         `json:"error,omitempty"`
	ErrorCode     ErrorCode      `json:"errorCode,omitempty"`
	ExecutedCodes []ExecutedCode `json:"executedCodes"`
	Steps         []Step         `json:"detailedSteps"`
	StepCount     int            `json:"stepCount"`
	Success       bool           `json:"success"`
}

// CollectExecutedCodes pairs every script tool call with its result.
func CollectExecutedCodes(steps []Step) []ExecutedCode {
	codes := make([]ExecutedCode, 0)
	for i := range steps {
		for _, call := range steps[i].ToolCalls() {
			code := call.Code()
			if code == "" {
				continue
			}
			entry := ExecutedCode{Code: code, Success: true}
			if res, ok := steps[i].ResultFor(call.ToolCallID); ok {
				entry.Success = res.Success
				entry.Result = res.Result
				if res.Error != nil {
					entry.Error = res.Error.Message
				}
			}
			codes = append(codes, entry)
		}
	}
	return codes
}
