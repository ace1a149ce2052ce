package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/entrhq/browserpilot/pkg/agent/tools"
	pb "github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/types"
)

// Computer tool names.
const (
	ScreenshotToolName = "computer_screenshot"
	MoveMouseToolName  = "computer_move_mouse"
	ClickMouseToolName = "computer_click_mouse"
	DragMouseToolName  = "computer_drag_mouse"
	ScrollToolName     = "computer_scroll"
	TypeTextToolName   = "computer_type_text"
	PressKeyToolName   = "computer_press_key"
	SetCursorToolName  = "computer_set_cursor"
)

// computerTool is one host-input primitive bound to a session.
type computerTool struct {
	schema      *jsonschema.Schema
	run         func(ctx context.Context, args json.RawMessage) (*tools.ToolResult, error)
	name        string
	description string
}

func (t *computerTool) Name() string               { return t.name }
func (t *computerTool) Description() string        { return t.description }
func (t *computerTool) Schema() *jsonschema.Schema { return t.schema }

func (t *computerTool) Execute(ctx context.Context, args json.RawMessage) (*tools.ToolResult, error) {
	return t.run(ctx, args)
}

// rejected turns a provider's refusal of the request into a failed result
// the model can react to. Other errors propagate.
func rejected(err error) (*tools.ToolResult, error) {
	var provErr *types.ProviderError
	if errors.As(err, &provErr) && provErr.StatusCode >= http.StatusBadRequest && provErr.StatusCode < http.StatusInternalServerError {
		return tools.Failed(provErr.Error(), nil), nil
	}
	return nil, err
}

func holdKeysSchema() *jsonschema.Schema {
	return tools.ArrayOf("Modifier keys held during the action, e.g. [\"shift\"]", tools.String("key name"), 0)
}

func buttonSchema() *jsonschema.Schema {
	return tools.Enum("Mouse button (default left)", pb.ButtonLeft, pb.ButtonRight, pb.ButtonMiddle)
}

func coordinates(properties map[string]*jsonschema.Schema) map[string]*jsonschema.Schema {
	properties["x"] = tools.NonNegativeInteger("X coordinate in pixels from the left edge of the viewport")
	properties["y"] = tools.NonNegativeInteger("Y coordinate in pixels from the top edge of the viewport")
	return properties
}

// NewScreenshotTool captures the live view, optionally a region of it.
func NewScreenshotTool(c pb.Computer, sessionID string) tools.Tool {
	return &computerTool{
		name: ScreenshotToolName,
		description: "Capture a PNG screenshot of the browser. Pass x, y, width and height to capture a region. " +
			"Use it to find coordinates before using the mouse tools.",
		schema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"x":      tools.NonNegativeInteger("Left edge of the region"),
			"y":      tools.NonNegativeInteger("Top edge of the region"),
			"width":  tools.NonNegativeInteger("Region width"),
			"height": tools.NonNegativeInteger("Region height"),
		}),
		run: func(ctx context.Context, args json.RawMessage) (*tools.ToolResult, error) {
			var region pb.Region
			if err := tools.DecodeArgs(args, &region); err != nil {
				return nil, err
			}
			var regionPtr *pb.Region
			if region.Width > 0 && region.Height > 0 {
				regionPtr = &region
			}

			png, err := c.Screenshot(ctx, sessionID, regionPtr)
			if err != nil {
				return rejected(err)
			}

			result := tools.OK(map[string]interface{}{
				"mediaType": "image/png",
				"size":      humanize.Bytes(uint64(len(png))),
				"data":      base64.StdEncoding.EncodeToString(png),
			})
			result.Images = []types.Image{{MediaType: "image/png", Data: png}}
			return result, nil
		},
	}
}

// NewMoveMouseTool moves the pointer.
func NewMoveMouseTool(c pb.Computer, sessionID string) tools.Tool {
	return &computerTool{
		name:        MoveMouseToolName,
		description: "Move the mouse pointer to a coordinate, e.g. to reveal hover menus.",
		schema: tools.ObjectSchema(coordinates(map[string]*jsonschema.Schema{
			"hold_keys": holdKeysSchema(),
		}), "x", "y"),
		run: func(ctx context.Context, args json.RawMessage) (*tools.ToolResult, error) {
			var req pb.MoveRequest
			if err := tools.DecodeArgs(args, &req); err != nil {
				return nil, err
			}
			if err := c.MoveMouse(ctx, sessionID, req); err != nil {
				return rejected(err)
			}
			return tools.OK(fmt.Sprintf("Moved mouse to (%d, %d)", req.X, req.Y)), nil
		},
	}
}

// NewClickMouseTool clicks at a coordinate.
func NewClickMouseTool(c pb.Computer, sessionID string) tools.Tool {
	return &computerTool{
		name:        ClickMouseToolName,
		description: "Click at a coordinate. Use click_type down/up for press-and-hold, num_clicks 2 for a double click.",
		schema: tools.ObjectSchema(coordinates(map[string]*jsonschema.Schema{
			"button":     buttonSchema(),
			"click_type": tools.Enum("click (default), down or up", pb.ClickTypeClick, pb.ClickTypeDown, pb.ClickTypeUp),
			"num_clicks": tools.NonNegativeInteger("Number of clicks (default 1)"),
			"hold_keys":  holdKeysSchema(),
		}), "x", "y"),
		run: func(ctx context.Context, args json.RawMessage) (*tools.ToolResult, error) {
			var req pb.ClickRequest
			if err := tools.DecodeArgs(args, &req); err != nil {
				return nil, err
			}
			if req.Button == "" {
				req.Button = pb.ButtonLeft
			}
			if err := c.ClickMouse(ctx, sessionID, req); err != nil {
				return rejected(err)
			}
			return tools.OK(fmt.Sprintf("Clicked %s at (%d, %d)", req.Button, req.X, req.Y)), nil
		},
	}
}

type dragInput struct {
	Button   string     `json:"button"`
	HoldKeys []string   `json:"hold_keys"`
	Path     []pb.Point `json:"path"`
	Delay    int        `json:"delay"`
}

// NewDragMouseTool drags along a path of points.
func NewDragMouseTool(c pb.Computer, sessionID string) tools.Tool {
	point := tools.ObjectSchema(coordinates(map[string]*jsonschema.Schema{}), "x", "y")
	return &computerTool{
		name:        DragMouseToolName,
		description: "Press the mouse at the first point of path, move through the others and release at the last.",
		schema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"path":      tools.ArrayOf("Points to drag through, at least two", point, 2),
			"button":    buttonSchema(),
			"delay":     tools.NonNegativeInteger("Delay in milliseconds between points"),
			"hold_keys": holdKeysSchema(),
		}, "path"),
		run: func(ctx context.Context, args json.RawMessage) (*tools.ToolResult, error) {
			var in dragInput
			if err := tools.DecodeArgs(args, &in); err != nil {
				return nil, err
			}
			req := pb.DragRequest{Path: in.Path, Button: in.Button, Delay: in.Delay, HoldKeys: in.HoldKeys}
			if req.Button == "" {
				req.Button = pb.ButtonLeft
			}
			if err := c.DragMouse(ctx, sessionID, req); err != nil {
				return rejected(err)
			}
			last := in.Path[len(in.Path)-1]
			return tools.OK(fmt.Sprintf("Dragged through %d points to (%d, %d)", len(in.Path), last.X, last.Y)), nil
		},
	}
}

// NewScrollTool scrolls at a coordinate.
func NewScrollTool(c pb.Computer, sessionID string) tools.Tool {
	return &computerTool{
		name:        ScrollToolName,
		description: "Scroll the element under a coordinate. Positive delta_y scrolls down, positive delta_x scrolls right.",
		schema: tools.ObjectSchema(coordinates(map[string]*jsonschema.Schema{
			"delta_x":   tools.Integer("Horizontal scroll amount in pixels"),
			"delta_y":   tools.Integer("Vertical scroll amount in pixels"),
			"hold_keys": holdKeysSchema(),
		}), "x", "y"),
		run: func(ctx context.Context, args json.RawMessage) (*tools.ToolResult, error) {
			var req pb.ScrollRequest
			if err := tools.DecodeArgs(args, &req); err != nil {
				return nil, err
			}
			if err := c.Scroll(ctx, sessionID, req); err != nil {
				return rejected(err)
			}
			return tools.OK(fmt.Sprintf("Scrolled (%d, %d) at (%d, %d)", req.DeltaX, req.DeltaY, req.X, req.Y)), nil
		},
	}
}

// NewTypeTextTool types into the focused element.
func NewTypeTextTool(c pb.Computer, sessionID string) tools.Tool {
	return &computerTool{
		name:        TypeTextToolName,
		description: "Type text into the focused element. Click the field first.",
		schema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"text":  tools.String("Text to type"),
			"delay": tools.NonNegativeInteger("Delay in milliseconds between keystrokes"),
		}, "text"),
		run: func(ctx context.Context, args json.RawMessage) (*tools.ToolResult, error) {
			var req pb.TypeRequest
			if err := tools.DecodeArgs(args, &req); err != nil {
				return nil, err
			}
			if err := c.TypeText(ctx, sessionID, req); err != nil {
				return rejected(err)
			}
			return tools.OK(fmt.Sprintf("Typed %d characters", len([]rune(req.Text)))), nil
		},
	}
}

// NewPressKeyTool presses key combinations.
func NewPressKeyTool(c pb.Computer, sessionID string) tools.Tool {
	return &computerTool{
		name:        PressKeyToolName,
		description: "Press keys or combinations in order, e.g. [\"Return\"] or [\"ctrl+a\", \"Delete\"].",
		schema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"keys":      tools.ArrayOf("Keys to press", tools.String("key or combination"), 1),
			"duration":  tools.NonNegativeInteger("How long to hold each key in milliseconds"),
			"hold_keys": holdKeysSchema(),
		}, "keys"),
		run: func(ctx context.Context, args json.RawMessage) (*tools.ToolResult, error) {
			var req pb.KeyRequest
			if err := tools.DecodeArgs(args, &req); err != nil {
				return nil, err
			}
			if err := c.PressKey(ctx, sessionID, req); err != nil {
				return rejected(err)
			}
			return tools.OK("Pressed " + strings.Join(req.Keys, ", ")), nil
		},
	}
}

// NewSetCursorTool toggles the rendered cursor.
func NewSetCursorTool(c pb.Computer, sessionID string) tools.Tool {
	return &computerTool{
		name:        SetCursorToolName,
		description: "Hide or show the mouse cursor in the live view.",
		schema: tools.ObjectSchema(map[string]*jsonschema.Schema{
			"hidden": tools.Boolean("true hides the cursor"),
		}, "hidden"),
		run: func(ctx context.Context, args json.RawMessage) (*tools.ToolResult, error) {
			var in struct {
				Hidden bool `json:"hidden"`
			}
			if err := tools.DecodeArgs(args, &in); err != nil {
				return nil, err
			}
			if err := c.SetCursorVisibility(ctx, sessionID, in.Hidden); err != nil {
				return rejected(err)
			}
			state := "visible"
			if in.Hidden {
				state = "hidden"
			}
			return tools.OK("Cursor " + state), nil
		},
	}
}
