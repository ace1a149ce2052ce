package orchestrator

import (
	"context"
	"errors"
	"strings"

	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/types"
)

// State is the aggregator's position in the run.
type State int

const (
	StateIdle State = iota
	StateInStep
	StateBetweenSteps
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInStep:
		return "in-step"
	case StateBetweenSteps:
		return "between-steps"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Aggregator folds the runner's events into steps and wire events. It
// owns the step index: runner step numbers are advisory, and content that
// arrives outside a step lazily opens one.
//
// An Aggregator is not safe for concurrent use.
type Aggregator struct {
	logger       *logging.Logger
	err          error
	steps        []*types.Step
	response     strings.Builder
	calls        map[string]int
	results      map[string]bool
	usage        types.Usage
	finishReason string
	state        State
	totalUsage   bool

	// lazy marks an open step that was started by content rather than by
	// start-step. A later start-step adopts it instead of opening another.
	lazy bool

	capReached bool
}

// NewAggregator creates an aggregator in the idle state.
func NewAggregator(logger *logging.Logger) *Aggregator {
	if logger == nil {
		logger = orchestratorLog
	}
	return &Aggregator{
		logger:  logger,
		calls:   make(map[string]int),
		results: make(map[string]bool),
	}
}

// State returns the current state.
func (a *Aggregator) State() State {
	return a.state
}

// Response returns the text accumulated so far.
func (a *Aggregator) Response() string {
	return a.response.String()
}

// Consume applies one runner event and returns the wire events to emit,
// in order. Events after finish are dropped.
func (a *Aggregator) Consume(ev *types.AgentEvent) []Event {
	if ev == nil || a.state == StateFinished {
		return nil
	}

	if (ev.Type == types.EventTypeToolResult || ev.Type == types.EventTypeToolError) && !a.acceptsResult(ev) {
		return nil
	}

	var out []Event
	if ev.IsContentEvent() && a.state != StateInStep {
		out = append(out, a.openStep(true))
	}

	switch ev.Type {
	case types.EventTypeStart:
		return append(out, Event{Name: string(ev.Type), Data: PassthroughPayload{Type: string(ev.Type), Metadata: ev.Metadata}})

	case types.EventTypeStartStep:
		return append(out, a.startStep()...)

	case types.EventTypeTextDelta:
		a.appendText(ev.Content)
		return append(out, Event{Name: string(ev.Type), Data: DeltaPayload{
			Type: string(ev.Type), ID: ev.ID, Text: ev.Content, StepNumber: a.current().StepNumber,
		}})

	case types.EventTypeReasoningDelta:
		return append(out, Event{Name: string(ev.Type), Data: DeltaPayload{
			Type: string(ev.Type), ID: ev.ID, Text: ev.Content, StepNumber: a.current().StepNumber,
		}})

	case types.EventTypeToolCall:
		return append(out, a.toolCall(ev)...)

	case types.EventTypeToolResult, types.EventTypeToolError:
		return append(out, a.toolResult(ev)...)

	case types.EventTypeFinishStep:
		if a.state != StateInStep {
			a.logger.Debugf("dropping finish-step outside a step (state %s)", a.state)
			return out
		}
		return append(out, a.closeStep(ev.FinishReason, ev.Usage))

	case types.EventTypeFinish:
		if a.state == StateInStep {
			out = append(out, a.closeStep(ev.FinishReason, nil))
		}
		a.finishReason = normalizeReason(ev.FinishReason)
		if ev.Usage != nil {
			a.usage = *ev.Usage
			a.totalUsage = true
		}
		if reached, _ := ev.Metadata["maxStepsReached"].(bool); reached {
			a.capReached = true
		}
		a.state = StateFinished
		return append(out, Event{Name: string(ev.Type), Data: FinishPayload{
			Type: string(ev.Type), FinishReason: a.finishReason, TotalUsage: &a.usage,
		}})

	case types.EventTypeError:
		err := ev.Error
		if err == nil {
			err = errors.New("agent run failed")
		}
		a.recordError(err)
		return append(out, Event{Name: string(ev.Type), Data: ErrorPayload{
			Type: string(ev.Type), Error: types.NewErrorInfo(err),
		}})

	default:
		return append(out, Event{Name: string(ev.Type), Data: PassthroughPayload{
			Type: string(ev.Type), Metadata: ev.Metadata, Error: types.NewErrorInfo(ev.Error),
		}})
	}
}

// Fail records a failure that happened outside the event stream, such as
// a timeout or a disconnect. It replaces a bare context error reported by
// the runner. The open step, if any, is closed with error.
func (a *Aggregator) Fail(err error) {
	if err == nil || a.state == StateFinished {
		return
	}
	if errors.Is(a.err, context.Canceled) || errors.Is(a.err, context.DeadlineExceeded) {
		a.err = err
	}
	a.recordError(err)
}

func (a *Aggregator) recordError(err error) {
	if a.err == nil {
		a.err = err
	}
	if a.state == StateInStep {
		a.closeStep(types.FinishReasonError, nil)
	}
}

func (a *Aggregator) current() *types.Step {
	return a.steps[len(a.steps)-1]
}

func (a *Aggregator) openStep(lazy bool) Event {
	step := &types.Step{StepNumber: len(a.steps) + 1, Content: []types.ContentItem{}}
	a.steps = append(a.steps, step)
	a.state = StateInStep
	a.lazy = lazy
	return Event{Name: string(types.EventTypeStartStep), Data: StepPayload{
		Type: string(types.EventTypeStartStep), StepNumber: step.StepNumber,
	}}
}

func (a *Aggregator) startStep() []Event {
	if a.state == StateInStep {
		if a.lazy {
			a.lazy = false
			return nil
		}
		// the previous step never reported its end
		closing := a.closeStep(types.FinishReasonOther, nil)
		return []Event{closing, a.openStep(false)}
	}
	return []Event{a.openStep(false)}
}

func (a *Aggregator) closeStep(reason string, usage *types.Usage) Event {
	step := a.current()
	if step.FinishReason == nil {
		r := normalizeReason(reason)
		step.FinishReason = &r
	}
	if usage != nil && !a.totalUsage {
		a.usage.Add(usage)
	}
	a.state = StateBetweenSteps
	a.lazy = false
	return Event{Name: string(types.EventTypeFinishStep), Data: FinishStepPayload{
		Type: string(types.EventTypeFinishStep), StepNumber: step.StepNumber, FinishReason: *step.FinishReason, Usage: usage,
	}}
}

func (a *Aggregator) appendText(text string) {
	a.response.WriteString(text)
	step := a.current()
	if n := len(step.Content); n > 0 {
		if last, ok := step.Content[n-1].(*types.TextContent); ok {
			last.Text += text
			return
		}
	}
	step.Content = append(step.Content, &types.TextContent{Text: text})
}

func (a *Aggregator) toolCall(ev *types.AgentEvent) []Event {
	if _, seen := a.calls[ev.ID]; seen {
		a.logger.Warnf("dropping duplicate tool call %s", ev.ID)
		return nil
	}
	step := a.current()
	a.calls[ev.ID] = step.StepNumber
	step.Content = append(step.Content, &types.ToolCallContent{
		ToolCallID: ev.ID, ToolName: ev.ToolName, Input: ev.ToolInput,
	})
	return []Event{{Name: string(ev.Type), Data: ToolCallPayload{
		Type: string(ev.Type), ToolCallID: ev.ID, ToolName: ev.ToolName, Input: ev.ToolInput, StepNumber: step.StepNumber,
	}}}
}

// acceptsResult reports whether a tool result matches a call that has no
// result yet. Orphans and duplicates are dropped before they can open a step.
func (a *Aggregator) acceptsResult(ev *types.AgentEvent) bool {
	if _, called := a.calls[ev.ID]; !called {
		a.logger.Warnf("dropping %s for unknown tool call %s", ev.Type, ev.ID)
		return false
	}
	if a.results[ev.ID] {
		a.logger.Warnf("dropping duplicate %s for tool call %s", ev.Type, ev.ID)
		return false
	}
	return true
}

func (a *Aggregator) toolResult(ev *types.AgentEvent) []Event {
	a.results[ev.ID] = true

	item := &types.ToolResultContent{
		ToolCallID: ev.ID,
		ToolName:   ev.ToolName,
		Result:     ev.ToolOutput,
		Success:    ev.Type == types.EventTypeToolResult && ev.Success,
		Error:      types.NewErrorInfo(ev.Error),
	}
	if !item.Success && item.Error == nil {
		item.Error = &types.ErrorInfo{Name: "Error", Message: "tool call failed"}
	}

	step := a.current()
	step.Content = append(step.Content, item)
	return []Event{{Name: string(ev.Type), Data: ToolResultPayload{
		Type:       string(ev.Type),
		ToolCallID: ev.ID,
		ToolName:   ev.ToolName,
		Output:     ev.ToolOutput,
		Success:    item.Success,
		Error:      item.Error,
		Metadata:   ev.Metadata,
		StepNumber: step.StepNumber,
	}}}
}

// Result builds the terminal payload. It may be called once the event
// stream has ended; an unterminated run is reported as a failure.
func (a *Aggregator) Result(serverTarget, runID string) *types.RunResult {
	if a.state == StateInStep {
		reason := types.FinishReasonOther
		if a.err != nil {
			reason = types.FinishReasonError
		}
		a.closeStep(reason, nil)
	}
	err := a.err
	if err == nil && a.state != StateFinished {
		err = &types.OrchestratorFault{Err: errors.New("agent run ended without a finish event")}
	}

	steps := make([]types.Step, len(a.steps))
	for i, s := range a.steps {
		steps[i] = *s
	}

	result := &types.RunResult{
		Success:       err == nil,
		Response:      a.response.String(),
		ExecutedCodes: types.CollectExecutedCodes(steps),
		Steps:         steps,
		StepCount:     len(steps),
		Usage:         a.usage,
		ServerTarget:  serverTarget,
		FinishReason:  a.finishReason,
		RunID:         runID,
	}
	if err != nil {
		result.Error = err.Error()
		result.ErrorCode = types.CodeOf(err)
		result.FinishReason = types.FinishReasonError
	}
	return result
}

// StepCapReached reports whether the run stopped because it hit the step cap.
func (a *Aggregator) StepCapReached() bool {
	return a.capReached
}

func normalizeReason(reason string) string {
	switch reason {
	case types.FinishReasonStop, types.FinishReasonLength, types.FinishReasonToolCalls,
		types.FinishReasonContentFilter, types.FinishReasonError, types.FinishReasonOther:
		return reason
	default:
		return types.FinishReasonOther
	}
}
