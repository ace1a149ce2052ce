// Package orchestrator turns one agent run into either a single result or
// an ordered, paced event stream that ends with the same result.
//
// Both modes share preparation (validation, backend resolution and
// credential checks, all before any model or provider call) and the
// Aggregator, so the synchronous response and the streaming final event
// are built by the same code.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/entrhq/browserpilot/pkg/agent"
	pb "github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/config"
	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/llm/openai"
	"github.com/entrhq/browserpilot/pkg/logging"
	browsertools "github.com/entrhq/browserpilot/pkg/tools/browser"
	"github.com/entrhq/browserpilot/pkg/types"
)

var orchestratorLog *logging.Logger

func init() {
	var err error
	orchestratorLog, err = logging.NewLogger("orchestrator")
	if err != nil {
		orchestratorLog.Warnf("Failed to initialize orchestrator logger, using stderr fallback: %v", err)
	}
}

// DefaultRunTimeout bounds every run in both modes.
const DefaultRunTimeout = 5 * time.Minute

// RunRequest is the body of an agent run request.
type RunRequest struct {
	LagMsMin     *int   `json:"lagMsMin,omitempty"`
	LagMsMax     *int   `json:"lagMsMax,omitempty"`
	SessionID    string `json:"sessionId"`
	Task         string `json:"task"`
	ServerTarget string `json:"serverTarget,omitempty"`
	Stream       bool   `json:"stream,omitempty"`
}

// Validate checks the required fields.
func (r *RunRequest) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" || strings.TrimSpace(r.Task) == "" {
		var fields []string
		if strings.TrimSpace(r.SessionID) == "" {
			fields = append(fields, "sessionId")
		}
		if strings.TrimSpace(r.Task) == "" {
			fields = append(fields, "task")
		}
		return types.NewValidationError("Missing sessionId or task", fields...)
	}
	return nil
}

// Sink receives the named events of a streaming run. A Send error means
// the client is gone.
type Sink interface {
	Send(event string, data interface{}) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(event string, data interface{}) error

func (f SinkFunc) Send(event string, data interface{}) error { return f(event, data) }

// ModelFactory builds the model client for a resolved backend profile.
type ModelFactory func(backend config.Backend) (llm.Provider, error)

// Normalizer reduces a session to one foreground page. Failures must be
// swallowed by the implementation.
type Normalizer interface {
	NormalizeBestEffort(ctx context.Context, sessionID string) *pb.NormalizeReport
}

// Observer is notified about runs and tool calls, e.g. for metrics.
type Observer interface {
	RunStarted(serverTarget string, stream bool)
	RunFinished(result *types.RunResult, stream bool, elapsed time.Duration)
	ToolCompleted(toolName string, success bool)
}

type nopObserver struct{}

func (nopObserver) RunStarted(string, bool)                           {}
func (nopObserver) RunFinished(*types.RunResult, bool, time.Duration) {}
func (nopObserver) ToolCompleted(string, bool)                        {}

// Orchestrator runs agent tasks against the session provider.
type Orchestrator struct {
	provider   pb.Provider
	normalizer Normalizer
	newModel   ModelFactory
	observer   Observer
	logger     *logging.Logger
	sleep      func(ctx context.Context, d time.Duration) error
	random     func(n int64) int64
	env        config.Env
	settings   config.AgentSettings
	toolOpts   browsertools.Options
	runnerOpts []agent.RunnerOption
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSettings sets step cap, timeout and pacing bounds.
func WithSettings(settings config.AgentSettings) Option {
	return func(o *Orchestrator) {
		o.settings = settings
	}
}

// WithEnv sets the environment used to resolve backend profiles.
func WithEnv(env config.Env) Option {
	return func(o *Orchestrator) {
		o.env = env
	}
}

// WithModelFactory replaces the OpenAI-compatible model client.
func WithModelFactory(factory ModelFactory) Option {
	return func(o *Orchestrator) {
		o.newModel = factory
	}
}

// WithNormalizer sets the page normalizer run before every agent loop.
func WithNormalizer(n Normalizer) Option {
	return func(o *Orchestrator) {
		o.normalizer = n
	}
}

// WithObserver sets the run observer.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithScriptOnly offers only the script and page tools to the model.
func WithScriptOnly(scriptOnly bool) Option {
	return func(o *Orchestrator) {
		o.toolOpts.ScriptOnly = scriptOnly
	}
}

// WithRunnerOptions passes extra options to every agent runner.
func WithRunnerOptions(opts ...agent.RunnerOption) Option {
	return func(o *Orchestrator) {
		o.runnerOpts = append(o.runnerOpts, opts...)
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// DefaultModelFactory builds an OpenAI-compatible client for the backend.
func DefaultModelFactory(backend config.Backend) (llm.Provider, error) {
	return openai.NewProvider(backend.APIKey,
		openai.WithBaseURL(backend.BaseURL),
		openai.WithModel(backend.Model))
}

// New creates an orchestrator driving provider's sessions.
func New(provider pb.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: provider,
		newModel: DefaultModelFactory,
		observer: nopObserver{},
		logger:   orchestratorLog,
		sleep:    sleepContext,
		random:   randomInt63n,
		env:      config.OSEnv(),
		settings: config.NewAgentSection().Snapshot(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.settings.RunTimeout <= 0 {
		o.settings.RunTimeout = DefaultRunTimeout
	}
	o.toolOpts.ScriptTimeoutSec = o.settings.ScriptTimeoutSec
	return o
}

// plan is a prepared run: everything that can fail before the loop starts
// has already succeeded.
type plan struct {
	runner       *agent.Runner
	sessionID    string
	task         string
	serverTarget string
	runID        string
	lag          Lag
}

// prepare validates the request and builds the run's collaborators. It
// makes no model or provider calls.
func (o *Orchestrator) prepare(req RunRequest) (*plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	backend, err := config.ResolveBackend(strings.TrimSpace(req.ServerTarget), o.env)
	if err != nil {
		return nil, err
	}
	if err := pb.CheckCredentials(o.provider); err != nil {
		return nil, err
	}

	model, err := o.newModel(backend)
	if err != nil {
		var cfgErr *types.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &types.ConfigurationError{
			Code:    types.CodeBackendMisconfigured,
			Profile: backend.Profile,
			Message: fmt.Sprintf("backend profile %q: %v", backend.Profile, err),
		}
	}

	sessionID := strings.TrimSpace(req.SessionID)
	registry, err := browsertools.NewRegistry(o.provider, sessionID, o.toolOpts)
	if err != nil {
		return nil, &types.OrchestratorFault{Err: fmt.Errorf("build tools: %w", err)}
	}

	runnerOpts := append([]agent.RunnerOption{
		agent.WithMaxSteps(o.settings.MaxSteps),
		agent.WithAttachImages(o.settings.AttachScreenshots),
		agent.WithLogger(o.logger.With("agent")),
	}, o.runnerOpts...)
	runner := agent.NewRunner(model, registry, runnerOpts...)

	return &plan{
		runner:       runner,
		sessionID:    sessionID,
		task:         strings.TrimSpace(req.Task),
		serverTarget: backend.Profile,
		runID:        ulid.Make().String(),
		lag:          o.lagFor(req),
	}, nil
}

// Run executes the request to completion and returns the terminal result.
// The returned error is non-nil only when the request was rejected during
// preparation; failures inside the run are reported in the result.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*types.RunResult, error) {
	p, err := o.prepare(req)
	if err != nil {
		return nil, err
	}
	result, _ := o.execute(ctx, p, false, nil)
	return result, nil
}

// Stream executes the request and sends init, the run's events and
// exactly one final event to sink. Preparation failures are returned
// before anything is sent. After that, the returned error is the sink's,
// meaning the client went away; the run is cancelled in that case.
func (o *Orchestrator) Stream(ctx context.Context, req RunRequest, sink Sink) error {
	p, err := o.prepare(req)
	if err != nil {
		return err
	}

	sinkErr := sink.Send(EventInit, InitPayload{
		SessionID:    p.sessionID,
		ServerTarget: p.serverTarget,
		RunID:        p.runID,
		LagMsMin:     p.lag.Min,
		LagMsMax:     p.lag.Max,
	})
	if sinkErr != nil {
		return sinkErr
	}

	result, sinkErr := o.execute(ctx, p, true, sink)
	if err := sink.Send(EventFinal, result); err != nil && sinkErr == nil {
		sinkErr = err
	}
	return sinkErr
}

// execute runs the agent loop under the run timeout, feeding its events
// through a fresh Aggregator. Wire events go to sink when it is non-nil,
// paced when stream is set. The first sink error cancels the run; the
// remaining events are still drained so the runner can exit.
func (o *Orchestrator) execute(parent context.Context, p *plan, stream bool, sink Sink) (*types.RunResult, error) {
	started := time.Now()
	o.observer.RunStarted(p.serverTarget, stream)
	log := o.logger.With(p.runID)

	ctx, cancel := context.WithTimeout(parent, o.settings.RunTimeout)
	defer cancel()

	if o.normalizer != nil {
		o.normalizer.NormalizeBestEffort(ctx, p.sessionID)
	}

	events := make(chan *types.AgentEvent, 64)
	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				fault := types.NewFaultFromPanic(r)
				log.Errorf("agent run panicked: %v\n%s", r, fault.Stack)
				select {
				case events <- types.NewErrorEvent(fault):
				case <-ctx.Done():
				}
			}
		}()
		if err := p.runner.Run(ctx, p.task, events); err != nil {
			log.Warnf("agent run ended with error: %v", err)
		}
	}()

	agg := NewAggregator(log)
	var sinkErr error
	// Pacing stops once a sleep fails; the deltas themselves are always sent
	// so the streamed text still adds up to the final response.
	paced := stream
	for ev := range events {
		if ev.Type == types.EventTypeToolResult || ev.Type == types.EventTypeToolError {
			o.observer.ToolCompleted(ev.ToolName, ev.Type == types.EventTypeToolResult && ev.Success)
		}
		for _, wire := range agg.Consume(ev) {
			if sink == nil || sinkErr != nil {
				continue
			}
			if paced && wire.Name == string(types.EventTypeTextDelta) {
				if err := o.sleep(ctx, p.lag.Delay(o.random)); err != nil {
					paced = false
				}
			}
			if err := sink.Send(wire.Name, wire.Data); err != nil {
				log.Infof("client went away, cancelling run: %v", err)
				sinkErr = err
				cancel()
			}
		}
	}

	switch {
	case sinkErr != nil:
		agg.Fail(&types.OrchestratorFault{Err: fmt.Errorf("client disconnected: %w", sinkErr)})
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		agg.Fail(&types.OrchestratorFault{Err: fmt.Errorf("agent run timed out after %s", o.settings.RunTimeout)})
	case ctx.Err() != nil:
		agg.Fail(&types.OrchestratorFault{Err: ctx.Err()})
	}

	result := agg.Result(p.serverTarget, p.runID)
	if agg.StepCapReached() {
		log.Warnf("run reached the step cap after %d steps", result.StepCount)
	}
	log.Infof("run finished: success=%t steps=%d finish=%s in %s",
		result.Success, result.StepCount, result.FinishReason, time.Since(started).Round(time.Millisecond))
	o.observer.RunFinished(result, stream, time.Since(started))
	return result, sinkErr
}
