package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/entrhq/browserpilot/pkg/llm"
	"github.com/entrhq/browserpilot/pkg/types"
)

type registered struct {
	tool     Tool
	resolved *jsonschema.Resolved
}

// Registry holds the tools offered to the model and validates every call
// against the tool's schema before dispatching it.
type Registry struct {
	tools map[string]*registered
	order []string
	mu    sync.RWMutex
}

// NewRegistry creates a registry holding tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]*registered)}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Names must be unique and schemas must resolve.
func (r *Registry) Register(tool Tool) error {
	resolved, err := tool.Schema().Resolve(nil)
	if err != nil {
		return fmt.Errorf("tool %s: invalid schema: %w", tool.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name()]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name())
	}
	r.tools[tool.Name()] = &registered{tool: tool, resolved: resolved}
	r.order = append(r.order, tool.Name())
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return reg.tool, true
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions renders the registered tools for the model request.
func (r *Registry) Definitions() ([]llm.ToolDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name].tool
		params, err := ToMap(tool.Schema())
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        name,
			Description: tool.Description(),
			Parameters:  params,
		})
	}
	return defs, nil
}

// ParseArguments decodes raw model arguments into a JSON object. Empty
// arguments are an empty object.
func ParseArguments(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

// Execute validates args against the named tool's schema and runs it.
// Every error it returns is a *types.ToolExecutionError.
func (r *Registry) Execute(ctx context.Context, name, rawArgs string) (*ToolResult, error) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &types.ToolExecutionError{Tool: name, Err: fmt.Errorf("unknown tool %q", name)}
	}

	args, err := ParseArguments(rawArgs)
	if err != nil {
		return nil, &types.ToolExecutionError{Tool: name, Err: err}
	}
	if err := reg.resolved.Validate(args); err != nil {
		return nil, &types.ToolExecutionError{Tool: name, Err: fmt.Errorf("invalid arguments: %w", err)}
	}

	normalized, err := json.Marshal(args)
	if err != nil {
		return nil, &types.ToolExecutionError{Tool: name, Err: err}
	}

	result, err := reg.tool.Execute(ctx, normalized)
	if err != nil {
		return nil, &types.ToolExecutionError{Tool: name, Err: err}
	}
	if result == nil {
		result = OK(nil)
	}
	return result, nil
}
