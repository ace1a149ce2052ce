package orchestrator_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/orchestrator"
	"github.com/entrhq/browserpilot/pkg/types"
)

func newAggregator() *orchestrator.Aggregator {
	return orchestrator.NewAggregator(logging.NewLoggerWithWriter("test", io.Discard))
}

func consumeAll(agg *orchestrator.Aggregator, events ...*types.AgentEvent) []orchestrator.Event {
	var out []orchestrator.Event
	for _, ev := range events {
		out = append(out, agg.Consume(ev)...)
	}
	return out
}

func names(events []orchestrator.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Name
	}
	return out
}

func TestAggregator_TextMergesWithinStep(t *testing.T) {
	agg := newAggregator()
	consumeAll(agg,
		types.NewStartEvent(),
		types.NewStartStepEvent(1),
		types.NewTextDeltaEvent("t1", "Hello"),
		types.NewTextDeltaEvent("t1", ", world"),
		types.NewFinishStepEvent(1, types.FinishReasonStop, &types.Usage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5}),
		types.NewFinishEvent(types.FinishReasonStop, nil),
	)

	result := agg.Result("vps", "run-1")
	require.True(t, result.Success)
	assert.Equal(t, "Hello, world", result.Response)
	require.Len(t, result.Steps, 1)
	require.Len(t, result.Steps[0].Content, 1)
	assert.Equal(t, "Hello, world", result.Steps[0].Text())
	assert.Equal(t, 5, result.Usage.TotalTokens)
	assert.Equal(t, types.FinishReasonStop, result.FinishReason)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "vps", result.ServerTarget)
}

func TestAggregator_LazyStepIsAdopted(t *testing.T) {
	agg := newAggregator()
	out := consumeAll(agg,
		types.NewTextDeltaEvent("t1", "early"),
		types.NewStartStepEvent(1),
		types.NewTextDeltaEvent("t1", " text"),
		types.NewFinishStepEvent(1, types.FinishReasonStop, nil),
		types.NewFinishEvent(types.FinishReasonStop, nil),
	)

	assert.Equal(t, []string{"start-step", "text-delta", "text-delta", "finish-step", "finish"}, names(out))
	result := agg.Result("vps", "r")
	assert.Equal(t, 1, result.StepCount)
	assert.Equal(t, "early text", result.Response)
}

func TestAggregator_StepsAreContiguous(t *testing.T) {
	agg := newAggregator()
	out := consumeAll(agg,
		types.NewStartStepEvent(7),
		types.NewTextDeltaEvent("a", "one"),
		types.NewStartStepEvent(9),
		types.NewTextDeltaEvent("b", "two"),
		types.NewFinishStepEvent(9, types.FinishReasonStop, nil),
		types.NewTextDeltaEvent("c", "three"),
		types.NewFinishEvent(types.FinishReasonStop, nil),
	)

	var numbers []int
	for _, ev := range out {
		if p, ok := ev.Data.(orchestrator.StepPayload); ok {
			numbers = append(numbers, p.StepNumber)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, numbers)

	result := agg.Result("vps", "r")
	require.Len(t, result.Steps, 3)
	for i, step := range result.Steps {
		assert.Equal(t, i+1, step.StepNumber)
		require.NotNil(t, step.FinishReason)
	}
	assert.Equal(t, types.FinishReasonOther, *result.Steps[0].FinishReason, "a step closed by the next start-step")
	assert.Equal(t, "onetwothree", result.Response)
}

func TestAggregator_DropsOrphanAndDuplicateToolEvents(t *testing.T) {
	agg := newAggregator()
	out := consumeAll(agg,
		types.NewStartStepEvent(1),
		types.NewToolResultEvent("ghost", "execute_script", "x", true),
		types.NewToolCallEvent("c1", "execute_script", map[string]interface{}{"code": "1"}),
		types.NewToolCallEvent("c1", "execute_script", map[string]interface{}{"code": "1"}),
		types.NewToolResultEvent("c1", "execute_script", 1, true),
		types.NewToolErrorEvent("c1", "execute_script", errors.New("late")),
		types.NewFinishStepEvent(1, types.FinishReasonToolCalls, nil),
		types.NewFinishEvent(types.FinishReasonStop, nil),
	)

	assert.Equal(t, []string{"start-step", "tool-call", "tool-result", "finish-step", "finish"}, names(out))
	result := agg.Result("vps", "r")
	require.Len(t, result.Steps[0].Content, 2)
	require.Len(t, result.ExecutedCodes, 1)
	assert.Equal(t, types.ExecutedCode{Code: "1", Result: 1, Success: true}, result.ExecutedCodes[0])
}

func TestAggregator_OrphanBetweenStepsOpensNoStep(t *testing.T) {
	agg := newAggregator()
	out := consumeAll(agg,
		types.NewStartStepEvent(1),
		types.NewToolCallEvent("c1", "execute_script", map[string]interface{}{"code": "1"}),
		types.NewToolResultEvent("c1", "execute_script", 1, true),
		types.NewFinishStepEvent(1, types.FinishReasonToolCalls, nil),
		types.NewToolResultEvent("ghost", "execute_script", "x", true),
		types.NewToolErrorEvent("c1", "execute_script", errors.New("late")),
		types.NewFinishEvent(types.FinishReasonStop, nil),
	)

	assert.Equal(t, []string{"start-step", "tool-call", "tool-result", "finish-step", "finish"}, names(out))
	result := agg.Result("vps", "r")
	assert.Equal(t, 1, result.StepCount)
	require.Len(t, result.Steps, 1)
}

func TestAggregator_FailedToolResultCarriesError(t *testing.T) {
	agg := newAggregator()
	out := consumeAll(agg,
		types.NewStartStepEvent(1),
		types.NewToolCallEvent("c1", "execute_script", nil),
		types.NewToolResultEvent("c1", "execute_script", nil, false),
	)

	payload, ok := out[len(out)-1].Data.(orchestrator.ToolResultPayload)
	require.True(t, ok)
	assert.False(t, payload.Success)
	require.NotNil(t, payload.Error)
	assert.Equal(t, "Error", payload.Error.Name)
}

func TestAggregator_ErrorEndsRun(t *testing.T) {
	agg := newAggregator()
	consumeAll(agg,
		types.NewStartStepEvent(1),
		types.NewTextDeltaEvent("t", "partial"),
		types.NewErrorEvent(&types.ProviderError{Op: "chat", StatusCode: 502, Message: "bad gateway"}),
	)

	result := agg.Result("cloud-eu", "r")
	assert.False(t, result.Success)
	assert.Equal(t, types.CodeProviderError, result.ErrorCode)
	assert.Equal(t, types.FinishReasonError, result.FinishReason)
	assert.Equal(t, "partial", result.Response)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, types.FinishReasonError, *result.Steps[0].FinishReason)
}

func TestAggregator_UnterminatedRunIsAFault(t *testing.T) {
	agg := newAggregator()
	consumeAll(agg, types.NewStartStepEvent(1), types.NewTextDeltaEvent("t", "x"))

	result := agg.Result("vps", "r")
	assert.False(t, result.Success)
	assert.Equal(t, types.CodeInternalError, result.ErrorCode)
	assert.Contains(t, result.Error, "without a finish event")
}

func TestAggregator_IgnoresEventsAfterFinish(t *testing.T) {
	agg := newAggregator()
	consumeAll(agg, types.NewFinishEvent(types.FinishReasonStop, nil))
	assert.Equal(t, orchestrator.StateFinished, agg.State())

	assert.Empty(t, agg.Consume(types.NewTextDeltaEvent("t", "late")))
	agg.Fail(errors.New("too late"))
	assert.True(t, agg.Result("vps", "r").Success)
}

func TestAggregator_ReconstructionLaw(t *testing.T) {
	agg := newAggregator()
	out := consumeAll(agg,
		types.NewStartStepEvent(1),
		types.NewTextDeltaEvent("a", "Let me "),
		types.NewTextDeltaEvent("a", "check."),
		types.NewToolCallEvent("c1", "read_page", nil),
		types.NewToolResultEvent("c1", "read_page", map[string]interface{}{"title": "x"}, true),
		types.NewFinishStepEvent(1, types.FinishReasonToolCalls, nil),
		types.NewStartStepEvent(2),
		types.NewTextDeltaEvent("b", " Done."),
		types.NewFinishStepEvent(2, types.FinishReasonStop, nil),
		types.NewFinishEvent(types.FinishReasonStop, nil),
	)

	var streamed strings.Builder
	for _, ev := range out {
		if p, ok := ev.Data.(orchestrator.DeltaPayload); ok && p.Type == "text-delta" {
			streamed.WriteString(p.Text)
		}
	}
	result := agg.Result("vps", "r")
	assert.Equal(t, streamed.String(), result.Response)

	var fromSteps strings.Builder
	for _, step := range result.Steps {
		fromSteps.WriteString(step.Text())
	}
	assert.Equal(t, result.Response, fromSteps.String())
}

func TestAggregator_TotalUsageOverridesStepSum(t *testing.T) {
	agg := newAggregator()
	consumeAll(agg,
		types.NewStartStepEvent(1),
		types.NewFinishStepEvent(1, types.FinishReasonStop, &types.Usage{TotalTokens: 4}),
		types.NewFinishEvent(types.FinishReasonStop, &types.Usage{InputTokens: 60, OutputTokens: 40, TotalTokens: 100}),
	)
	assert.Equal(t, 100, agg.Result("vps", "r").Usage.TotalTokens)
}

func TestAggregator_StepCapFlag(t *testing.T) {
	agg := newAggregator()
	consumeAll(agg, types.NewFinishEvent(types.FinishReasonToolCalls, nil).WithMetadata("maxStepsReached", true))
	assert.True(t, agg.StepCapReached())
	result := agg.Result("vps", "r")
	assert.True(t, result.Success)
	assert.Equal(t, types.FinishReasonToolCalls, result.FinishReason)
}
