package prompts

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserpilot/pkg/types"
)

func TestPromptBuilder(t *testing.T) {
	tests := []struct {
		name    string
		tools   []string
		custom  string
		want    []string
		wantNot []string
	}{
		{
			name:    "script only",
			tools:   []string{"playwright_execute"},
			want:    []string{"Eburon Autonomous Agent", "Available tools: playwright_execute.", "page.goto()"},
			wantNot: []string{"Computer tools:", "read_page"},
		},
		{
			name:  "full tool surface",
			tools: []string{"playwright_execute", "read_page", "computer_screenshot", "computer_click_mouse"},
			want: []string{
				"Available tools: computer_click_mouse, computer_screenshot, playwright_execute, read_page.",
				"Computer tools:",
				"Use read_page",
			},
		},
		{
			name:   "custom instructions last",
			custom: "  Always answer in French.  ",
			want:   []string{"Additional instructions:\nAlways answer in French."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt := NewPromptBuilder().WithToolNames(tt.tools).WithCustomInstructions(tt.custom).Build()

			assert.True(t, strings.HasPrefix(prompt, IdentityPrompt))
			for _, want := range tt.want {
				assert.Contains(t, prompt, want)
			}
			for _, not := range tt.wantNot {
				assert.NotContains(t, prompt, not)
			}
			if tt.custom != "" {
				assert.True(t, strings.HasSuffix(prompt, strings.TrimSpace(tt.custom)))
			}
		})
	}
}

func TestPromptBuilder_DoesNotReorderCallerNames(t *testing.T) {
	names := []string{"read_page", "playwright_execute"}
	NewPromptBuilder().WithToolNames(names).Build()
	assert.Equal(t, []string{"read_page", "playwright_execute"}, names)
}

func TestBuildMessages(t *testing.T) {
	messages := BuildMessages("system", "Go to example.com")
	require.Len(t, messages, 2)
	assert.Equal(t, types.RoleSystem, messages[0].Role)
	assert.Equal(t, types.RoleUser, messages[1].Role)
	assert.Equal(t, "Go to example.com", messages[1].Content)

	messages = BuildMessages("", "task")
	require.Len(t, messages, 1)
	assert.Equal(t, types.RoleUser, messages[0].Role)
}

func TestToolFailureMessage(t *testing.T) {
	msg := ToolFailureMessage("computer_click_mouse", errors.New("invalid arguments: missing y"))
	assert.Contains(t, msg, "'computer_click_mouse'")
	assert.Contains(t, msg, "missing y")
}
