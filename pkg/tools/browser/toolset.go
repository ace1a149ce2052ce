package browser

import (
	"github.com/entrhq/browserpilot/pkg/agent/tools"
	pb "github.com/entrhq/browserpilot/pkg/browser"
)

// Options configures the tools bound to a session.
type Options struct {
	// ScriptTimeoutSec is the default playwright_execute timeout.
	ScriptTimeoutSec int

	// ScriptOnly leaves out the computer tools.
	ScriptOnly bool
}

// NewTools creates the full tool surface bound to one session. The script
// tool comes first; it is the one the agent is expected to use most.
func NewTools(provider pb.Provider, sessionID string, opts Options) []tools.Tool {
	timeout := opts.ScriptTimeoutSec
	if timeout <= 0 {
		timeout = 60
	}

	list := []tools.Tool{
		NewExecuteTool(provider, sessionID, timeout),
		NewReadPageTool(provider, sessionID, timeout),
	}
	if opts.ScriptOnly {
		return list
	}

	return append(list,
		NewScreenshotTool(provider, sessionID),
		NewMoveMouseTool(provider, sessionID),
		NewClickMouseTool(provider, sessionID),
		NewDragMouseTool(provider, sessionID),
		NewScrollTool(provider, sessionID),
		NewTypeTextTool(provider, sessionID),
		NewPressKeyTool(provider, sessionID),
		NewSetCursorTool(provider, sessionID),
	)
}

// NewRegistry creates a validated tool registry bound to one session.
func NewRegistry(provider pb.Provider, sessionID string, opts Options) (*tools.Registry, error) {
	return tools.NewRegistry(NewTools(provider, sessionID, opts)...)
}
