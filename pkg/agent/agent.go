// Package agent runs the bounded, tool-calling agent loop against one
// browser session.
//
// A Runner drives the model through native function calling and reports
// everything it does as *types.AgentEvent values on a channel:
//
//	runner := agent.NewRunner(provider, registry, agent.WithMaxSteps(20))
//	events := make(chan *types.AgentEvent, 64)
//	go func() {
//	    defer close(events)
//	    runner.Run(ctx, "Go to example.com and return the title", events)
//	}()
//	for ev := range events {
//	    ...
//	}
//
// Tool calls are executed one at a time, in the order the model issued
// them, because the browser is a single stateful resource.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/entrhq/browserpilot/pkg/agent/prompts"
	"github.com/entrhq/browserpilot/pkg/agent/tools"
	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/llm/tokenizer"
	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/types"
)

var agentLog *logging.Logger

func init() {
	var err error
	agentLog, err = logging.NewLogger("agent")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		agentLog.Warnf("Failed to initialize agent logger, using stderr fallback: %v", err)
	}
}

// DefaultMaxSteps bounds the number of model turns in one run.
const DefaultMaxSteps = 20

// UsageFunc estimates token usage for a step when the backend does not
// report it.
type UsageFunc func(prompt []*types.Message, completion string) *types.Usage

// Runner executes agent runs. A Runner holds no per-run state and may be
// reused, but runs against the same session must not overlap.
type Runner struct {
	provider           llm.Provider
	registry           *tools.Registry
	logger             *logging.Logger
	usage              UsageFunc
	systemPrompt       string
	customInstructions string
	maxSteps           int
	attachImages       bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxSteps sets the step cap. Values below 1 keep the default.
func WithMaxSteps(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxSteps = n
		}
	}
}

// WithSystemPrompt replaces the generated system prompt.
func WithSystemPrompt(prompt string) RunnerOption {
	return func(r *Runner) {
		r.systemPrompt = prompt
	}
}

// WithCustomInstructions appends operator instructions to the generated
// system prompt.
func WithCustomInstructions(instructions string) RunnerOption {
	return func(r *Runner) {
		r.customInstructions = instructions
	}
}

// WithAttachImages controls whether screenshots are sent to the model as
// images on the following step.
func WithAttachImages(attach bool) RunnerOption {
	return func(r *Runner) {
		r.attachImages = attach
	}
}

// WithTokenizer sets the usage estimator used when the backend omits usage.
func WithTokenizer(fn UsageFunc) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.usage = fn
		}
	}
}

// WithLogger sets the runner's logger.
func WithLogger(logger *logging.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner that offers the registry's tools to provider.
func NewRunner(provider llm.Provider, registry *tools.Registry, opts ...RunnerOption) *Runner {
	r := &Runner{
		provider:     provider,
		registry:     registry,
		logger:       agentLog,
		usage:        tokenizer.Usage,
		maxSteps:     DefaultMaxSteps,
		attachImages: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.systemPrompt == "" {
		r.systemPrompt = prompts.NewPromptBuilder().
			WithToolNames(registry.Names()).
			WithCustomInstructions(r.customInstructions).
			Build()
	}
	return r
}

// MaxSteps returns the configured step cap.
func (r *Runner) MaxSteps() int {
	return r.maxSteps
}

// SystemPrompt returns the prompt sent as the first message of every run.
func (r *Runner) SystemPrompt() string {
	return r.systemPrompt
}

// Run executes task to completion, sending events in emission order:
// start, then per step start-step, reasoning and text deltas, tool-call
// followed by tool-result or tool-error for every call, finish-step, and
// finally finish. A backend failure emits error and is returned.
//
// Run never closes events. Sends give up when ctx is done.
func (r *Runner) Run(ctx context.Context, task string, events chan<- *types.AgentEvent) error {
	emit := func(ev *types.AgentEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	defs, err := r.registry.Definitions()
	if err != nil {
		err = &types.OrchestratorFault{Err: fmt.Errorf("build tool definitions: %w", err)}
		emit(types.NewErrorEvent(err))
		return err
	}

	emit(types.NewStartEvent().
		WithMetadata("model", r.provider.GetModel()).
		WithMetadata("tools", r.registry.Names()))

	conv := &conversation{messages: prompts.BuildMessages(r.systemPrompt, task)}
	total := &types.Usage{}
	lastReason := types.FinishReasonStop

	for step := 1; step <= r.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			emit(types.NewErrorEvent(err))
			return err
		}

		if !emit(types.NewStartStepEvent(step)) {
			return ctx.Err()
		}

		out, err := r.runStep(ctx, step, conv, defs, emit)
		if err != nil {
			r.logger.Errorf("step %d failed: %v", step, err)
			emit(types.NewErrorEvent(err).WithStep(step))
			return err
		}

		conv.append(types.NewAssistantMessage(out.text, out.toolCalls))
		for _, call := range out.toolCalls {
			if err := ctx.Err(); err != nil {
				emit(types.NewErrorEvent(err).WithStep(step))
				return err
			}
			r.executeToolCall(ctx, step, call, conv, emit)
		}
		conv.flushImages()

		lastReason = out.finishReason
		total.Add(out.usage)
		emit(types.NewFinishStepEvent(step, out.finishReason, out.usage))

		if len(out.toolCalls) == 0 {
			emit(types.NewFinishEvent(lastReason, total))
			return nil
		}
	}

	r.logger.Warnf("run stopped at step cap %d", r.maxSteps)
	emit(types.NewFinishEvent(lastReason, total).WithMetadata("maxStepsReached", true))
	return nil
}

// conversation is the message history of one run plus images waiting to
// be attached to the next model turn.
type conversation struct {
	messages []*types.Message
	images   []types.Image
	captions []string
}

func (c *conversation) append(msg *types.Message) {
	c.messages = append(c.messages, msg)
}

// flushImages turns pending images into one user message. Tool messages
// cannot carry images, so they follow the tool results instead.
func (c *conversation) flushImages() {
	if len(c.images) == 0 {
		return
	}
	msg := types.NewUserMessage("Attached images: " + strings.Join(c.captions, ", "))
	msg.Images = c.images
	c.append(msg)
	c.images = nil
	c.captions = nil
}
