package types

import (
	"encoding/json"
	"fmt"
)

// ContentKind tags the variant of a ContentItem.
type ContentKind string

const (
	ContentKindText       ContentKind = "text"
	ContentKindToolCall   ContentKind = "tool-call"
	ContentKindToolResult ContentKind = "tool-result"
)

// ContentItem is one entry in a step's ordered content. It is a closed set:
// *TextContent, *ToolCallContent and *ToolResultContent are the only
// implementations, and consumers switch over exactly those three.
type ContentItem interface {
	Kind() ContentKind
	sealed()
}

// TextContent is model-visible text produced during a step.
type TextContent struct {
	Text string
}

// ToolCallContent is a tool invocation requested by the model.
type ToolCallContent struct {
	Input      map[string]interface{}
	ToolCallID string
	ToolName   string
}

// ToolResultContent is the outcome of a tool invocation.
type ToolResultContent struct {
	Result     interface{}
	Error      *ErrorInfo
	ToolCallID string
	ToolName   string
	Success    bool
}

func (*TextContent) Kind() ContentKind       { return ContentKindText }
func (*ToolCallContent) Kind() ContentKind   { return ContentKindToolCall }
func (*ToolResultContent) Kind() ContentKind { return ContentKindToolResult }

func (*TextContent) sealed()       {}
func (*ToolCallContent) sealed()   {}
func (*ToolResultContent) sealed() {}

// Code returns the script source when the call targets a script tool.
func (c *ToolCallContent) Code() string {
	if c.Input == nil {
		return ""
	}
	code, _ := c.Input["code"].(string)
	return code
}

// MarshalJSON renders the text variant in its wire shape.
func (c *TextContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type ContentKind `json:"type"`
		Text string      `json:"text"`
	}{ContentKindText, c.Text})
}

// MarshalJSON renders the tool-call variant in its wire shape. The code
// field mirrors input.code for clients that only display scripts.
func (c *ToolCallContent) MarshalJSON() ([]byte, error) {
	var code *string
	if s := c.Code(); s != "" {
		code = &s
	}
	return json.Marshal(struct {
		Type       ContentKind            `json:"type"`
		ToolCallID string                 `json:"toolCallId"`
		ToolName   string                 `json:"toolName"`
		Input      map[string]interface{} `json:"input"`
		Code       *string                `json:"code"`
	}{ContentKindToolCall, c.ToolCallID, c.ToolName, c.Input, code})
}

// MarshalJSON renders the tool-result variant in its wire shape.
func (c *ToolResultContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       ContentKind `json:"type"`
		ToolCallID string      `json:"toolCallId"`
		ToolName   string      `json:"toolName"`
		Result     interface{} `json:"result,omitempty"`
		Success    bool        `json:"success"`
		Error      *ErrorInfo  `json:"error,omitempty"`
	}{ContentKindToolResult, c.ToolCallID, c.ToolName, c.Result, c.Success, c.Error})
}

// Step is one iteration of the agent loop.
type Step struct {
	FinishReason *string       `json:"finishReason"`
	Content      []ContentItem `json:"content"`
	StepNumber   int           `json:"stepNumber"`
}

// ToolCalls returns the step's tool-call items in order.
func (s *Step) ToolCalls() []*ToolCallContent {
	var calls []*ToolCallContent
	for _, item := range s.Content {
		if call, ok := item.(*ToolCallContent); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// ResultFor returns the tool-result item correlated with toolCallID.
func (s *Step) ResultFor(toolCallID string) (*ToolResultContent, bool) {
	for _, item := range s.Content {
		if res, ok := item.(*ToolResultContent); ok && res.ToolCallID == toolCallID {
			return res, true
		}
	}
	return nil, false
}

// Text returns the concatenated text items of the step.
func (s *Step) Text() string {
	var out string
	for _, item := range s.Content {
		if text, ok := item.(*TextContent); ok {
			out += text.Text
		}
	}
	return out
}

// UnmarshalJSON decodes a step, rejecting content items of unknown type.
func (s *Step) UnmarshalJSON(data []byte) error {
	var raw struct {
		FinishReason *string           `json:"finishReason"`
		Content      []json.RawMessage `json:"content"`
		StepNumber   int               `json:"stepNumber"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.StepNumber = raw.StepNumber
	s.FinishReason = raw.FinishReason
	s.Content = make([]ContentItem, 0, len(raw.Content))
	for i, item := range raw.Content {
		decoded, err := decodeContentItem(item)
		if err != nil {
			return fmt.Errorf("step %d content %d: %w", raw.StepNumber, i, err)
		}
		s.Content = append(s.Content, decoded)
	}
	return nil
}

func decodeContentItem(data json.RawMessage) (ContentItem, error) {
	var wire struct {
		Type       ContentKind            `json:"type"`
		Text       string                 `json:"text"`
		ToolCallID string                 `json:"toolCallId"`
		ToolName   string                 `json:"toolName"`
		Input      map[string]interface{} `json:"input"`
		Result     interface{}            `json:"result"`
		Success    bool                   `json:"success"`
		Error      *ErrorInfo             `json:"error"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}

	switch wire.Type {
	case ContentKindText:
		return &TextContent{Text: wire.Text}, nil
	case ContentKindToolCall:
		return &ToolCallContent{ToolCallID: wire.ToolCallID, ToolName: wire.ToolName, Input: wire.Input}, nil
	case ContentKindToolResult:
		return &ToolResultContent{
			ToolCallID: wire.ToolCallID,
			ToolName:   wire.ToolName,
			Result:     wire.Result,
			Success:    wire.Success,
			Error:      wire.Error,
		}, nil
	default:
		return nil, fmt.Errorf("unknown content type %q", wire.Type)
	}
}
