// Package enhance rewrites a user's task into a precise instruction for the
// browser agent with a single completion call.
package enhance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/browserpilot/pkg/config"
	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/types"
)

var enhanceLog *logging.Logger

func init() {
	var err error
	enhanceLog, err = logging.NewLogger("enhance")
	if err != nil {
		enhanceLog.Warnf("Failed to initialize enhance logger, using stderr fallback: %v", err)
	}
}

// SystemPrompt instructs the model to act as a prompt engineer.
const SystemPrompt = `You are an expert AI prompt engineer. Your goal is to rewrite the user's input into a precise, actionable, and robust instruction for an autonomous web agent.

The agent uses a headless browser to interact with websites.
The prompt should be direct (e.g., "Go to X, click Y, extract Z").
Remove ambiguity.
If the user provides a vague goal (e.g., "book a flight"), expand it into logical steps or ask for clarity (but prefer to infer reasonable defaults).

Return ONLY the optimized prompt text. Do not add conversational filler.`

// DefaultTimeout bounds one enhancement.
const DefaultTimeout = 30 * time.Second

// ModelFactory builds the model client for a backend profile.
type ModelFactory func(backend config.Backend) (llm.Provider, error)

// Enhancer rewrites prompts through the selected backend profile.
type Enhancer struct {
	env      config.Env
	newModel ModelFactory
	logger   *logging.Logger
	timeout  time.Duration
}

// NewEnhancer creates an enhancer resolving profiles from env.
func NewEnhancer(env config.Env, newModel ModelFactory) *Enhancer {
	return &Enhancer{env: env, newModel: newModel, logger: enhanceLog, timeout: DefaultTimeout}
}

// WithLogger returns e with its logger replaced.
func (e *Enhancer) WithLogger(logger *logging.Logger) *Enhancer {
	e.logger = logger
	return e
}

// Enhance returns the optimized prompt, trimmed.
func (e *Enhancer) Enhance(ctx context.Context, prompt, serverTarget string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", types.NewValidationError("Prompt is required", "prompt")
	}

	backend, err := config.ResolveBackend(strings.TrimSpace(serverTarget), e.env)
	if err != nil {
		return "", err
	}
	model, err := e.newModel(backend)
	if err != nil {
		return "", &types.ConfigurationError{
			Code:    types.CodeBackendMisconfigured,
			Profile: backend.Profile,
			Message: fmt.Sprintf("backend profile %q: %v", backend.Profile, err),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	msg, err := model.Complete(ctx, &llm.Request{
		Messages: []*types.Message{
			types.NewSystemMessage(SystemPrompt),
			types.NewUserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("optimize prompt: %w", err)
	}

	optimized := strings.TrimSpace(msg.Content)
	e.logger.Infof("optimized prompt with %s/%s in %s (%d -> %d chars)",
		backend.Profile, model.GetModel(), time.Since(start).Round(time.Millisecond), len(prompt), len(optimized))
	return optimized, nil
}
