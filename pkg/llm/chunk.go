package llm

import "github.com/entrhq/browserpilot/pkg/types"

// ContentType distinguishes visible text from model reasoning.
type ContentType string

const (
	ContentTypeMessage  ContentType = "message"
	ContentTypeThinking ContentType = "thinking"
)

// StreamChunk is one increment of a streamed completion. At most one of
// Content, ToolCall, Usage or Error is meaningful per chunk; Finished marks
// the last chunk and carries FinishReason.
type StreamChunk struct {
	Error        error
	ToolCall     *types.ToolCall
	Usage        *types.Usage
	Content      string
	Role         string
	FinishReason string
	Type         ContentType
	Finished     bool
}

// IsError reports whether the chunk carries a stream failure.
func (c *StreamChunk) IsError() bool {
	return c.Error != nil
}

// IsThinking reports whether the chunk carries reasoning text.
func (c *StreamChunk) IsThinking() bool {
	return c.Type == ContentTypeThinking && c.Content != ""
}

// IsMessage reports whether the chunk carries visible text.
func (c *StreamChunk) IsMessage() bool {
	return c.Type != ContentTypeThinking && c.Content != ""
}

// IsToolCall reports whether the chunk carries a complete tool call.
func (c *StreamChunk) IsToolCall() bool {
	return c.ToolCall != nil
}
