// Package prompts assembles the system prompt and the initial conversation
// for an agent run.
package prompts

import (
	"sort"
	"strings"

	"github.com/entrhq/browserpilot/pkg/types"
)

// PromptBuilder constructs the system prompt from the static sections and
// the names of the tools offered to the model.
type PromptBuilder struct {
	toolNames          []string
	customInstructions string
}

// NewPromptBuilder creates a new prompt builder with default settings
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// WithToolNames sets the tools the model can call. Guidance sections are
// only included for tool families that are present.
func (pb *PromptBuilder) WithToolNames(names []string) *PromptBuilder {
	pb.toolNames = append([]string(nil), names...)
	return pb
}

// WithCustomInstructions appends operator-provided instructions.
func (pb *PromptBuilder) WithCustomInstructions(instructions string) *PromptBuilder {
	pb.customInstructions = instructions
	return pb
}

// Build constructs the complete system prompt.
func (pb *PromptBuilder) Build() string {
	sections := []string{IdentityPrompt}

	if len(pb.toolNames) > 0 {
		names := append([]string(nil), pb.toolNames...)
		sort.Strings(names)
		sections = append(sections, "Available tools: "+strings.Join(names, ", ")+".")
	}

	sections = append(sections, TaskPrompt, BehaviorPrompt)

	if pb.has("read_page") {
		sections = append(sections, ReadPagePrompt)
	}
	if pb.hasPrefix("computer_") {
		sections = append(sections, ComputerToolsPrompt)
	}

	if pb.customInstructions != "" {
		sections = append(sections, "Additional instructions:\n"+strings.TrimSpace(pb.customInstructions))
	}

	return strings.Join(sections, "\n\n")
}

func (pb *PromptBuilder) has(name string) bool {
	for _, n := range pb.toolNames {
		if n == name {
			return true
		}
	}
	return false
}

func (pb *PromptBuilder) hasPrefix(prefix string) bool {
	for _, n := range pb.toolNames {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return false
}

// BuildMessages creates the opening conversation of a run: the system
// prompt followed by the task as the user's message.
func BuildMessages(systemPrompt, task string) []*types.Message {
	messages := make([]*types.Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, types.NewSystemMessage(systemPrompt))
	}
	return append(messages, types.NewUserMessage(task))
}

// ToolFailureMessage is sent back to the model when a tool call could not
// be executed at all, so it can correct the call on its next step.
func ToolFailureMessage(toolName string, err error) string {
	return "Tool '" + toolName + "' could not be executed: " + err.Error() +
		"\nCheck the tool name and arguments against the tool's schema and try again."
}
