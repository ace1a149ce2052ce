package console

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserpilot/pkg/stream"
	"github.com/entrhq/browserpilot/pkg/types"
)

func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(250 * time.Millisecond)
		return now
	}
}

func newTestTranscript() *Transcript {
	t := NewTranscript()
	t.now = fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	return t
}

type frame struct {
	data  interface{}
	event string
}

func encodeStream(t *testing.T, frames ...frame) *bytes.Buffer {
	t.Helper()
	rec := httptest.NewRecorder()
	w, err := stream.NewWriter(rec)
	require.NoError(t, err)
	for _, f := range frames {
		require.NoError(t, w.Send(f.event, f.data))
	}
	return rec.Body
}

func sampleResult() *types.RunResult {
	stop := types.FinishReasonStop
	calls := types.FinishReasonToolCalls
	steps := []types.Step{
		{StepNumber: 1, FinishReason: &calls, Content: []types.ContentItem{
			&types.TextContent{Text: "Checking. "},
			&types.ToolCallContent{ToolCallID: "c1", ToolName: "playwright_execute", Input: map[string]interface{}{"code": "return document.title"}},
			&types.ToolResultContent{ToolCallID: "c1", ToolName: "playwright_execute", Result: "Example Domain", Success: true},
			&types.ToolCallContent{ToolCallID: "c2", ToolName: "computer_click_mouse", Input: map[string]interface{}{"x": 10, "y": 20}},
			&types.ToolResultContent{ToolCallID: "c2", ToolName: "computer_click_mouse", Error: &types.ErrorInfo{Name: "ToolExecutionError", Message: "boom"}},
		}},
		{StepNumber: 2, FinishReason: &stop, Content: []types.ContentItem{&types.TextContent{Text: "Done."}}},
	}
	return &types.RunResult{
		Success:       true,
		Response:      "Checking. Done.",
		Steps:         steps,
		StepCount:     2,
		ExecutedCodes: types.CollectExecutedCodes(steps),
		Usage:         types.Usage{InputTokens: 1000, OutputTokens: 234, TotalTokens: 1234},
		ServerTarget:  "vps",
		RunID:         "run-1",
		FinishReason:  stop,
	}
}

func successfulStream(t *testing.T) *bytes.Buffer {
	return encodeStream(t,
		frame{event: "init", data: map[string]interface{}{"sessionId": "s1", "serverTarget": "vps", "runId": "run-1"}},
		frame{event: "start", data: map[string]string{"type": "start"}},
		frame{event: "start-step", data: map[string]interface{}{"type": "start-step", "stepNumber": 1}},
		frame{event: "text-delta", data: map[string]string{"type": "text-delta", "text": "Checking. "}},
		frame{event: "tool-call", data: map[string]string{"type": "tool-call", "toolCallId": "c1"}},
		frame{event: "tool-result", data: map[string]interface{}{"type": "tool-result", "toolCallId": "c1", "success": true}},
		frame{event: "tool-call", data: map[string]string{"type": "tool-call", "toolCallId": "c2"}},
		frame{event: "tool-error", data: map[string]interface{}{"type": "tool-error", "toolCallId": "c2", "success": false}},
		frame{event: "finish-step", data: map[string]string{"type": "finish-step"}},
		frame{event: "start-step", data: map[string]interface{}{"type": "start-step", "stepNumber": 2}},
		frame{event: "text-delta", data: map[string]string{"type": "text-delta", "text": "Done."}},
		frame{event: "final", data: sampleResult()},
	)
}

func TestFollow_Success(t *testing.T) {
	tr := newTestTranscript()
	run := tr.Begin("read the title", "vps")

	var seen []string
	var statuses []Status
	err := Follow(successfulStream(t), run, func(f *stream.Frame) {
		v := run.View()
		seen = append(seen, v.Response)
		statuses = append(statuses, v.Status)
	})
	require.NoError(t, err)

	for i := 1; i < len(seen); i++ {
		assert.True(t, strings.HasPrefix(seen[i], seen[i-1]), "text only grows: %q then %q", seen[i-1], seen[i])
	}
	for _, s := range statuses[:len(statuses)-1] {
		assert.Equal(t, StatusPending, s)
	}
	assert.Equal(t, StatusSucceeded, statuses[len(statuses)-1])

	v := run.View()
	assert.Equal(t, "Checking. Done.", v.Response)
	assert.Equal(t, 2, v.StepCount)
	assert.Equal(t, 2, v.ToolCalls)
	assert.Equal(t, 1, v.ToolFailures)
	assert.Equal(t, "run-1", v.RunID)
	require.Len(t, v.Steps, 2)
	require.Len(t, v.Executed, 1)
	assert.Equal(t, "return document.title", v.Executed[0].Code)
	assert.Equal(t, 1234, v.Usage.TotalTokens)
}

func TestFollow_CountsStepsWhileStreaming(t *testing.T) {
	tr := newTestTranscript()
	run := tr.Begin("t", "vps")

	var counts []int
	require.NoError(t, Follow(successfulStream(t), run, func(f *stream.Frame) {
		if f.Event == "start-step" {
			counts = append(counts, run.View().StepCount)
		}
	}))
	assert.Equal(t, []int{1, 2}, counts)
}

func TestFollow_TruncatedStreamFails(t *testing.T) {
	tr := newTestTranscript()
	run := tr.Begin("t", "vps")

	body := encodeStream(t,
		frame{event: "init", data: map[string]string{"runId": "r"}},
		frame{event: "text-delta", data: map[string]string{"text": "partial"}},
	)
	err := Follow(body, run, nil)
	require.ErrorIs(t, err, ErrStreamTruncated)

	v := run.View()
	assert.Equal(t, StatusFailed, v.Status)
	assert.Equal(t, "partial", v.Response)
	assert.Equal(t, ErrStreamTruncated.Error(), v.Error)
}

func TestFollow_FailedFinal(t *testing.T) {
	tr := newTestTranscript()
	run := tr.Begin("t", "cloud-eu")

	body := encodeStream(t, frame{event: "final", data: &types.RunResult{
		Success:   false,
		Error:     "agent run timed out after 5m0s",
		ErrorCode: types.CodeInternalError,
	}})
	require.NoError(t, Follow(body, run, nil))

	v := run.View()
	assert.Equal(t, StatusFailed, v.Status)
	assert.Equal(t, types.CodeInternalError, v.ErrorCode)
	assert.Equal(t, "cloud-eu", v.ServerTarget, "an empty target in the result keeps the requested one")
}

func TestRun_SingleTransition(t *testing.T) {
	tr := newTestTranscript()
	run := tr.Begin("t", "vps")

	run.Fail("client gave up")
	run.Complete(sampleResult())
	final, err := run.Apply(&stream.Frame{Event: "text-delta", Data: []byte(`{"text":"late"}`)})
	require.NoError(t, err)
	assert.False(t, final)

	v := run.View()
	assert.Equal(t, StatusFailed, v.Status)
	assert.Equal(t, "client gave up", v.Error)
	assert.Empty(t, v.Response)
}

func TestRun_InvalidFinalFails(t *testing.T) {
	run := newTestTranscript().Begin("t", "vps")
	final, err := run.Apply(&stream.Frame{Event: "final", Data: []byte(`{"detailedSteps":[{"content":[{"type":"bogus"}]}]}`)})
	require.Error(t, err)
	assert.True(t, final)
	assert.Equal(t, StatusFailed, run.Status())
}

func TestDecodeResult(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status Status
		error  string
		code   types.ErrorCode
	}{
		{
			name:   "success",
			body:   `{"success":true,"response":"hi","detailedSteps":[],"stepCount":1,"serverTarget":"vps"}`,
			status: StatusSucceeded,
		},
		{
			name:   "failed run",
			body:   `{"success":false,"response":"","error":"chat: provider returned 502: bad gateway","errorCode":"provider-error"}`,
			status: StatusFailed,
			error:  "chat: provider returned 502: bad gateway",
			code:   types.CodeProviderError,
		},
		{
			name:   "rejected request",
			body:   `{"error":"Missing sessionId or task","code":"missing-required-field"}`,
			status: StatusFailed,
			error:  "Missing sessionId or task",
			code:   types.CodeMissingField,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := newTestTranscript().Begin("t", "vps")
			require.NoError(t, DecodeResult(strings.NewReader(tt.body), run))
			v := run.View()
			assert.Equal(t, tt.status, v.Status)
			assert.Equal(t, tt.error, v.Error)
			assert.Equal(t, tt.code, v.ErrorCode)
		})
	}
}

func TestDecodeResult_InvalidBody(t *testing.T) {
	run := newTestTranscript().Begin("t", "vps")
	require.Error(t, DecodeResult(strings.NewReader("<html>"), run))
	assert.Equal(t, StatusFailed, run.Status())
}

func TestTranscript_NewestFirstWithUniqueKeys(t *testing.T) {
	tr := NewTranscript()
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	first := tr.Begin("one", "vps")
	second := tr.Begin("two", "vps")

	runs := tr.Runs()
	require.Len(t, runs, 2)
	assert.Same(t, second, runs[0])
	assert.Same(t, first, runs[1])
	assert.NotEqual(t, first.Timestamp, second.Timestamp)

	found, ok := tr.Find(first.Timestamp)
	require.True(t, ok)
	assert.Same(t, first, found)
	_, ok = tr.Find(42)
	assert.False(t, ok)
}

func TestRenderer_Summary(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)

	run := newTestTranscript().Begin("read the title", "vps")
	assert.Contains(t, r.Summary(run.View()), "… running")

	run.Complete(sampleResult())
	out := r.Summary(run.View())
	assert.Contains(t, out, "✓ succeeded")
	assert.Contains(t, out, "read the title")
	assert.Contains(t, out, "2 steps")
	assert.Contains(t, out, "2 tool calls")
	assert.Contains(t, out, "1,234 tokens")
	assert.Contains(t, out, "Checking. Done.")
}

func TestRenderer_SummaryFailure(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{})
	run := newTestTranscript().Begin("t", "cloud-eu")
	run.Complete(&types.RunResult{Success: false, Error: "backend profile is missing", ErrorCode: types.CodeBackendMisconfigured})

	out := r.Summary(run.View())
	assert.Contains(t, out, "✗ failed")
	assert.Contains(t, out, "backend profile is missing")
	assert.Contains(t, out, "backend-misconfigured")
}

func TestRenderer_Details(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{})
	run := newTestTranscript().Begin("t", "vps")
	run.Complete(sampleResult())

	out := r.Details(run.View())
	assert.Contains(t, out, "Step 1")
	assert.Contains(t, out, "tool-calls")
	assert.Contains(t, out, "Step 2")
	assert.Contains(t, out, "→ playwright_execute")
	assert.Contains(t, out, "document")
	assert.Contains(t, out, "Example Domain")
	assert.Contains(t, out, "→ computer_click_mouse")
	assert.Contains(t, out, "✗ boom")
	assert.Contains(t, out, "Done.")
}

func TestRenderer_DetailsImageAndEmpty(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{})
	assert.Contains(t, r.Details(RunView{}), "no steps recorded")

	stop := types.FinishReasonStop
	v := RunView{Steps: []types.Step{{StepNumber: 1, FinishReason: &stop, Content: []types.ContentItem{
		&types.ToolCallContent{ToolCallID: "c1", ToolName: "computer_screenshot"},
		&types.ToolResultContent{ToolCallID: "c1", Success: true, Result: map[string]interface{}{
			"dataUrl": "data:image/png;base64," + strings.Repeat("A", 2000),
		}},
	}}}}
	out := r.Details(v)
	assert.Contains(t, out, "[image, 2.0 kB]")
	assert.NotContains(t, out, "AAAA")
}

func TestHighlighter(t *testing.T) {
	h := NewHighlighter(lipgloss.NewRenderer(&bytes.Buffer{}))
	code := "const title = await page.title();\n// done\nreturn title;"

	out := h.Highlight(code, "javascript")
	assert.Equal(t, 3, strings.Count(out, "\n")+1)
	for _, part := range []string{"const", "title", "await", "page", "// done", "return"} {
		assert.Contains(t, out, part)
	}

	assert.Empty(t, h.Highlight("", "javascript"))
	assert.Contains(t, h.Highlight("plain words", "no-such-language"), "plain words")
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "succeeded", StatusSucceeded.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", Status(9).String())
}
