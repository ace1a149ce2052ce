// Package browser provisions and tracks the disposable remote browser that
// the agent drives.
//
// A Provider is the narrow contract every backend implements: session
// lifecycle, script execution and host-level input. The Registry holds the
// single current session for the process and the Provisioner combines the
// two into the create/delete flows used by the HTTP surface and the CLI.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is wrapped by providers when a session does not exist.
	ErrNotFound = errors.New("browser session not found")

	// ErrCreateInFlight is returned when another creation is running and no
	// recent session can be handed out instead.
	ErrCreateInFlight = errors.New("Browser creation already in progress")
)

// CreateOptions configures a new provider session.
type CreateOptions struct {
	Stealth        bool
	Headless       bool
	TimeoutSeconds int
}

// ProviderSession is a session as reported by the provider on creation.
type ProviderSession struct {
	CreatedAt   time.Time
	ID          string
	LiveViewURL string
	CDPWSURL    string
}

// SessionSummary is one entry of the provider's session listing.
type SessionSummary struct {
	CreatedAt time.Time
	ID        string
	Deleted   bool
}

// ScriptRequest is a script executed with page, context and browser bindings.
type ScriptRequest struct {
	Code       string
	TimeoutSec int
}

// ScriptResult is the provider's report of a script execution. Success is
// false when the script itself threw; transport failures are Go errors.
type ScriptResult struct {
	Result  interface{} `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
	Stdout  string      `json:"stdout,omitempty"`
	Stderr  string      `json:"stderr,omitempty"`
	Success bool        `json:"success"`
}

// Region is a rectangle of the viewport in CSS pixels.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Point is a viewport coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Mouse buttons accepted by the computer primitives.
const (
	ButtonLeft   = "left"
	ButtonRight  = "right"
	ButtonMiddle = "middle"
)

// Click types accepted by ClickMouse.
const (
	ClickTypeClick = "click"
	ClickTypeDown  = "down"
	ClickTypeUp    = "up"
)

// MoveRequest moves the pointer.
type MoveRequest struct {
	HoldKeys []string `json:"hold_keys,omitempty"`
	X        int      `json:"x"`
	Y        int      `json:"y"`
}

// ClickRequest clicks at a coordinate.
type ClickRequest struct {
	Button    string   `json:"button,omitempty"`
	ClickType string   `json:"click_type,omitempty"`
	HoldKeys  []string `json:"hold_keys,omitempty"`
	X         int      `json:"x"`
	Y         int      `json:"y"`
	NumClicks int      `json:"num_clicks,omitempty"`
}

// DragRequest drags the pointer along Path.
type DragRequest struct {
	Button   string   `json:"button,omitempty"`
	HoldKeys []string `json:"hold_keys,omitempty"`
	Path     []Point  `json:"-"`
	Delay    int      `json:"delay,omitempty"`
}

// ScrollRequest scrolls at a coordinate.
type ScrollRequest struct {
	HoldKeys []string `json:"hold_keys,omitempty"`
	X        int      `json:"x"`
	Y        int      `json:"y"`
	DeltaX   int      `json:"delta_x"`
	DeltaY   int      `json:"delta_y"`
}

// TypeRequest types text into the focused element.
type TypeRequest struct {
	Text    string `json:"text"`
	DelayMs int    `json:"delay,omitempty"`
}

// KeyRequest presses a key combination, e.g. ["Ctrl+a"] or ["Enter"].
type KeyRequest struct {
	Keys     []string `json:"keys"`
	HoldKeys []string `json:"hold_keys,omitempty"`
	Duration int      `json:"duration,omitempty"`
}

// SessionProvider manages the lifecycle of provider sessions.
type SessionProvider interface {
	Create(ctx context.Context, opts CreateOptions) (*ProviderSession, error)
	// Delete wraps ErrNotFound when the session is already gone.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]SessionSummary, error)
	ExecuteScript(ctx context.Context, id string, req ScriptRequest) (*ScriptResult, error)
}

// Computer issues host-level input against a session's live view.
type Computer interface {
	Screenshot(ctx context.Context, id string, region *Region) ([]byte, error)
	MoveMouse(ctx context.Context, id string, req MoveRequest) error
	ClickMouse(ctx context.Context, id string, req ClickRequest) error
	DragMouse(ctx context.Context, id string, req DragRequest) error
	Scroll(ctx context.Context, id string, req ScrollRequest) error
	TypeText(ctx context.Context, id string, req TypeRequest) error
	PressKey(ctx context.Context, id string, req KeyRequest) error
	SetCursorVisibility(ctx context.Context, id string, hidden bool) error
}

// Provider is a complete browser backend.
type Provider interface {
	SessionProvider
	Computer
}

// CredentialChecker is implemented by providers that need credentials and
// can report their absence before any network call.
type CredentialChecker interface {
	CheckCredentials() error
}

// PageController is implemented by providers that can manage pages
// natively instead of through scripts.
type PageController interface {
	ListPages(ctx context.Context, id string) ([]string, error)
	FocusPage(ctx context.Context, id string, index int) (*NormalizeReport, error)
}

// CheckCredentials reports missing credentials when p supports the check.
func CheckCredentials(p interface{}) error {
	if checker, ok := p.(CredentialChecker); ok {
		return checker.CheckCredentials()
	}
	return nil
}
