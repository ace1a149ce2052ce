package console

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/entrhq/browserpilot/pkg/types"
)

// maxResultBytes caps how much of a tool result the drill-down prints.
const maxResultBytes = 4 << 10

// Renderer formats runs for a terminal.
type Renderer struct {
	styles styles
	hl     *Highlighter
}

// NewRenderer creates a renderer whose color profile is detected from w.
func NewRenderer(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)
	return &Renderer{styles: newStyles(r), hl: NewHighlighter(r)}
}

// Badge is the one-line status marker of a run.
func (r *Renderer) Badge(status Status) string {
	switch status {
	case StatusSucceeded:
		return r.styles.success.Render("✓ succeeded")
	case StatusFailed:
		return r.styles.failure.Render("✗ failed")
	default:
		return r.styles.pending.Render("… running")
	}
}

// Summary renders the run's status, response and counters.
func (r *Renderer) Summary(v RunView) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", r.Badge(v.Status), r.styles.header.Render(v.Task))

	meta := []string{v.ServerTarget, plural(v.StepCount, "step")}
	if v.ToolCalls > 0 || len(v.Steps) > 0 {
		calls := v.ToolCalls
		if calls == 0 {
			calls = countToolCalls(v.Steps)
		}
		meta = append(meta, plural(calls, "tool call"))
	}
	if v.Usage.TotalTokens > 0 {
		meta = append(meta, humanize.Comma(int64(v.Usage.TotalTokens))+" tokens")
	}
	meta = append(meta, v.Elapsed.Round(10*time.Millisecond).String())
	b.WriteString(r.styles.muted.Render(strings.Join(meta, " · ")))
	b.WriteByte('\n')

	if v.Response != "" {
		b.WriteByte('\n')
		b.WriteString(r.styles.response.Render(strings.TrimSpace(v.Response)))
		b.WriteByte('\n')
	}

	if v.Status == StatusFailed {
		msg := v.Error
		if v.ErrorCode != "" {
			msg = fmt.Sprintf("%s (%s)", msg, v.ErrorCode)
		}
		b.WriteByte('\n')
		b.WriteString(r.styles.errorBox.Render(msg))
		b.WriteByte('\n')
	}
	return b.String()
}

// Details renders every step with its tool calls, highlighted scripts and
// the matching results.
func (r *Renderer) Details(v RunView) string {
	if len(v.Steps) == 0 {
		return r.styles.muted.Render("no steps recorded") + "\n"
	}

	var b strings.Builder
	for i := range v.Steps {
		step := &v.Steps[i]
		reason := "running"
		if step.FinishReason != nil {
			reason = *step.FinishReason
		}
		fmt.Fprintf(&b, "%s %s\n", r.styles.header.Render(fmt.Sprintf("Step %d", step.StepNumber)), r.styles.muted.Render(reason))

		for _, item := range step.Content {
			switch c := item.(type) {
			case *types.TextContent:
				if text := strings.TrimSpace(c.Text); text != "" {
					b.WriteString(r.styles.response.Render(text))
					b.WriteByte('\n')
				}
			case *types.ToolCallContent:
				r.writeToolCall(&b, step, c)
			case *types.ToolResultContent:
				// printed with its call
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func (r *Renderer) writeToolCall(b *strings.Builder, step *types.Step, call *types.ToolCallContent) {
	b.WriteString(r.styles.tool.Render("→ " + call.ToolName))
	b.WriteByte('\n')

	if code := call.Code(); code != "" {
		b.WriteString(r.styles.codeBlock.Render(r.hl.Highlight(code, "javascript")))
	} else {
		b.WriteString(r.styles.codeBlock.Render(r.hl.Highlight(prettyJSON(call.Input), "json")))
	}
	b.WriteByte('\n')

	result, ok := step.ResultFor(call.ToolCallID)
	switch {
	case !ok:
		b.WriteString(r.styles.muted.Render("  (no result)"))
	case !result.Success:
		msg := "tool call failed"
		if result.Error != nil {
			msg = result.Error.Message
		}
		b.WriteString(r.styles.failure.Render("✗ " + msg))
	default:
		b.WriteString(r.styles.success.Render("✓ "))
		b.WriteString(r.describeResult(result.Result))
	}
	b.WriteByte('\n')
}

func (r *Renderer) describeResult(result interface{}) string {
	if result == nil {
		return r.styles.muted.Render("ok")
	}
	if m, ok := result.(map[string]interface{}); ok {
		if url, ok := m["dataUrl"].(string); ok && strings.HasPrefix(url, "data:image/") {
			return r.styles.muted.Render(fmt.Sprintf("[image, %s]", humanize.Bytes(uint64(len(url)))))
		}
	}

	text := prettyJSON(result)
	var more string
	if len(text) > maxResultBytes {
		more = "\n" + r.styles.muted.Render(fmt.Sprintf("… %s more", humanize.Bytes(uint64(len(text)-maxResultBytes))))
		text = text[:maxResultBytes]
	}
	return "\n" + r.styles.codeBlock.Render(r.hl.Highlight(text, "json")) + more
}

// Transcript renders every run, newest first.
func (r *Renderer) Transcript(t *Transcript) string {
	runs := t.Runs()
	parts := make([]string, 0, len(runs))
	for _, run := range runs {
		parts = append(parts, r.Summary(run.View()))
	}
	return strings.Join(parts, "\n")
}

func prettyJSON(v interface{}) string {
	if v == nil {
		return "null"
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func countToolCalls(steps []types.Step) int {
	n := 0
	for i := range steps {
		n += len(steps[i].ToolCalls())
	}
	return n
}
