// Package browsertest provides an in-memory browser.Provider for tests.
package browsertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/types"
)

// Call records one provider invocation.
type Call struct {
	Args      interface{}
	Op        string
	SessionID string
}

// Provider is a scriptable fake. The zero value is not usable; call New.
type Provider struct {
	// BeforeCreate runs inside Create before the session exists. Tests use
	// it to block creation or inject a failure.
	BeforeCreate func(ctx context.Context) error

	// Script answers ExecuteScript. When nil, scripts succeed with a nil
	// result.
	Script func(id string, req browser.ScriptRequest) (*browser.ScriptResult, error)

	// Fail makes the named operation ("delete", "click_mouse", ...) fail
	// with the given error.
	Fail map[string]error

	sessions map[string]*browser.SessionSummary
	calls    []Call
	png      []byte
	nextID   int
	mu       sync.Mutex

	// NoLiveView makes Create return a session without a live view URL.
	NoLiveView bool

	// MissingKey makes CheckCredentials fail.
	MissingKey bool
}

// New creates an empty fake provider.
func New() *Provider {
	return &Provider{
		sessions: make(map[string]*browser.SessionSummary),
		Fail:     make(map[string]error),
		png:      []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'},
	}
}

// Seed adds an existing, non-deleted session.
func (p *Provider) Seed(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[id] = &browser.SessionSummary{ID: id, CreatedAt: time.Now()}
}

// Active returns the ids of sessions that are not deleted, sorted.
func (p *Provider) Active() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ids []string
	for id, s := range p.sessions {
		if !s.Deleted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Calls returns a copy of the recorded calls.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns how many times op was invoked.
func (p *Provider) CallCount(op string) int {
	n := 0
	for _, c := range p.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (p *Provider) record(op, id string, args interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Op: op, SessionID: id, Args: args})
	return p.Fail[op]
}

// CheckCredentials implements browser.CredentialChecker.
func (p *Provider) CheckCredentials() error {
	if p.MissingKey {
		return &types.ConfigurationError{
			Code:    types.CodeMissingCredentials,
			Message: "KERNEL_API_KEY environment variable is not set",
			Missing: []string{"KERNEL_API_KEY"},
		}
	}
	return nil
}

func (p *Provider) Create(ctx context.Context, opts browser.CreateOptions) (*browser.ProviderSession, error) {
	if err := p.record("create", "", opts); err != nil {
		return nil, err
	}
	if p.BeforeCreate != nil {
		if err := p.BeforeCreate(ctx); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := fmt.Sprintf("session-%d", p.nextID)
	now := time.Now()
	p.sessions[id] = &browser.SessionSummary{ID: id, CreatedAt: now}

	s := &browser.ProviderSession{ID: id, CDPWSURL: "wss://cdp.test/" + id, CreatedAt: now}
	if !p.NoLiveView {
		s.LiveViewURL = "https://live.test/" + id
	}
	return s, nil
}

func (p *Provider) Delete(ctx context.Context, id string) error {
	if err := p.record("delete", id, nil); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	if !ok || s.Deleted {
		return fmt.Errorf("delete %s: %w", id, browser.ErrNotFound)
	}
	s.Deleted = true
	return nil
}

func (p *Provider) List(ctx context.Context) ([]browser.SessionSummary, error) {
	if err := p.record("list", "", nil); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]browser.SessionSummary, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p *Provider) ExecuteScript(ctx context.Context, id string, req browser.ScriptRequest) (*browser.ScriptResult, error) {
	if err := p.record("execute", id, req); err != nil {
		return nil, err
	}
	if p.Script != nil {
		return p.Script(id, req)
	}
	return &browser.ScriptResult{Success: true}, nil
}

func (p *Provider) Screenshot(ctx context.Context, id string, region *browser.Region) ([]byte, error) {
	if err := p.record("screenshot", id, region); err != nil {
		return nil, err
	}
	return p.png, nil
}

func (p *Provider) MoveMouse(ctx context.Context, id string, req browser.MoveRequest) error {
	return p.record("move_mouse", id, req)
}

func (p *Provider) ClickMouse(ctx context.Context, id string, req browser.ClickRequest) error {
	return p.record("click_mouse", id, req)
}

func (p *Provider) DragMouse(ctx context.Context, id string, req browser.DragRequest) error {
	return p.record("drag_mouse", id, req)
}

func (p *Provider) Scroll(ctx context.Context, id string, req browser.ScrollRequest) error {
	return p.record("scroll", id, req)
}

func (p *Provider) TypeText(ctx context.Context, id string, req browser.TypeRequest) error {
	return p.record("type", id, req)
}

func (p *Provider) PressKey(ctx context.Context, id string, req browser.KeyRequest) error {
	return p.record("press_key", id, req)
}

func (p *Provider) SetCursorVisibility(ctx context.Context, id string, hidden bool) error {
	return p.record("cursor", id, hidden)
}

var (
	_ browser.Provider          = (*Provider)(nil)
	_ browser.CredentialChecker = (*Provider)(nil)
)
