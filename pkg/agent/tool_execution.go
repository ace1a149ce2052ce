package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/entrhq/browserpilot/pkg/agent/prompts"
	"github.com/entrhq/browserpilot/pkg/agent/tools"
	"github.com/entrhq/browserpilot/pkg/types"
)

// imageOmitted replaces inline image data in tool messages when the image
// is attached to the next turn instead.
const imageOmitted = "[image attached to the next message]"

// executeToolCall runs one tool call and records its outcome both as events
// and as a tool message in the conversation. Failures never abort the run:
// a tool that reports failure yields tool-result with success false, a call
// that cannot be executed yields tool-error, and the model sees both.
func (r *Runner) executeToolCall(ctx context.Context, step int, call types.ToolCall, conv *conversation, emit func(*types.AgentEvent) bool) {
	input, err := tools.ParseArguments(call.Arguments)
	if err != nil {
		input = map[string]interface{}{"raw": call.Arguments}
	}
	emit(types.NewToolCallEvent(call.ID, call.Name, input).WithStep(step))

	result, err := r.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		r.logger.Warnf("tool %s (%s) failed: %v", call.Name, call.ID, err)
		emit(types.NewToolErrorEvent(call.ID, call.Name, err).WithStep(step))
		conv.append(types.NewToolMessage(call.ID, prompts.ToolFailureMessage(call.Name, unwrapToolError(err))))
		return
	}

	ev := types.NewToolResultEvent(call.ID, call.Name, result.Output, result.Success).WithStep(step)
	if !result.Success {
		ev.Error = errors.New(result.Error)
	}
	for k, v := range result.Metadata {
		ev.WithMetadata(k, v)
	}
	emit(ev)

	attach := r.attachImages && len(result.Images) > 0
	conv.append(types.NewToolMessage(call.ID, toolMessageContent(result, attach)))
	if attach {
		conv.images = append(conv.images, result.Images...)
		conv.captions = append(conv.captions, fmt.Sprintf("%s (%s)", call.Name, call.ID))
	}
}

// unwrapToolError strips the registry's wrapper so the model sees the cause.
func unwrapToolError(err error) error {
	var toolErr *types.ToolExecutionError
	if errors.As(err, &toolErr) && toolErr.Err != nil {
		return toolErr.Err
	}
	return err
}

// toolMessageContent renders the payload the model sees for a result.
func toolMessageContent(result *tools.ToolResult, elideImages bool) string {
	payload := result.Payload()
	if elideImages {
		if out, ok := result.Output.(map[string]interface{}); ok {
			trimmed := make(map[string]interface{}, len(out))
			for k, v := range out {
				trimmed[k] = v
			}
			if _, ok := trimmed["data"]; ok {
				trimmed["data"] = imageOmitted
			}
			payload["result"] = trimmed
		}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"success":%t,"error":"unserializable tool output: %s"}`, result.Success, err)
	}
	return string(data)
}
