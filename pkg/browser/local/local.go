// Package local implements browser.Provider on a Chromium instance driven
// by playwright-go on the current machine. It is meant for development
// without a hosted browser account.
package local

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/logging"
)

const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 800

	// LiveViewScheme prefixes the placeholder live view URL. The headful
	// window itself is the live view for local sessions.
	LiveViewScheme = "local://"
)

// Option configures a Provider.
type Option func(*Provider)

// WithViewport sets the viewport of new sessions.
func WithViewport(width, height int) Option {
	return func(p *Provider) {
		p.width = width
		p.height = height
	}
}

// WithSkipInstall skips downloading the browsers on first use.
func WithSkipInstall() Option {
	return func(p *Provider) { p.skipInstall = true }
}

// WithLogger sets the provider's logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

type session struct {
	createdAt time.Time
	browser   playwright.Browser
	context   playwright.BrowserContext
	id        string
	deleted   bool
}

// Provider manages local Chromium sessions.
type Provider struct {
	pw          *playwright.Playwright
	sessions    map[string]*session
	logger      *logging.Logger
	width       int
	height      int
	mu          sync.Mutex
	skipInstall bool
}

// New creates a provider. Playwright starts lazily on the first Create.
func New(opts ...Option) *Provider {
	p := &Provider{
		sessions: make(map[string]*session),
		width:    DefaultViewportWidth,
		height:   DefaultViewportHeight,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.MustLogger("local-browser")
	}
	return p
}

// initialize installs and starts Playwright. Callers hold p.mu.
func (p *Provider) initialize() error {
	if p.pw != nil {
		return nil
	}

	// Output is discarded so the driver download does not interleave with
	// server logs.
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if !p.skipInstall {
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	p.pw = pw
	return nil
}

// Create launches a new Chromium with one blank page.
func (p *Provider) Create(ctx context.Context, opts browser.CreateOptions) (*browser.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.initialize(); err != nil {
		return nil, err
	}

	headless := opts.Headless
	launchOpts := playwright.BrowserTypeLaunchOptions{Headless: &headless}
	if opts.Stealth {
		launchOpts.Args = []string{"--disable-blink-features=AutomationControlled"}
	}
	b, err := p.pw.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: p.width, Height: p.height},
	})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	if _, err := bctx.NewPage(); err != nil {
		_ = bctx.Close()
		_ = b.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	s := &session{
		id:        uuid.NewString(),
		browser:   b,
		context:   bctx,
		createdAt: time.Now(),
	}
	p.sessions[s.id] = s
	p.logger.Infof("Launched local browser %s (headless=%t)", s.id, headless)

	return &browser.ProviderSession{
		ID:          s.id,
		LiveViewURL: LiveViewScheme + s.id,
		CreatedAt:   s.createdAt,
	}, nil
}

// Delete closes the session's browser.
func (p *Provider) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[id]
	if !ok || s.deleted {
		return fmt.Errorf("session %q: %w", id, browser.ErrNotFound)
	}

	_ = s.context.Close()
	_ = s.browser.Close()
	s.deleted = true
	return nil
}

// List returns every session this provider has created.
func (p *Provider) List(ctx context.Context) ([]browser.SessionSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]browser.SessionSummary, 0, len(p.sessions))
	for _, s := range p.sessions {
		out = append(out, browser.SessionSummary{ID: s.id, CreatedAt: s.createdAt, Deleted: s.deleted})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Shutdown closes all sessions and stops Playwright.
func (p *Provider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.sessions {
		if !s.deleted {
			_ = s.context.Close()
			_ = s.browser.Close()
			s.deleted = true
		}
	}

	if p.pw != nil {
		if err := p.pw.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		p.pw = nil
	}
	return nil
}

func (p *Provider) lookup(id string) (*session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[id]
	if !ok || s.deleted {
		return nil, fmt.Errorf("session %q: %w", id, browser.ErrNotFound)
	}
	return s, nil
}

// activePage returns the first open page, opening one if none is left.
func (p *Provider) activePage(id string) (playwright.Page, error) {
	s, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	if pages := s.context.Pages(); len(pages) > 0 {
		return pages[0], nil
	}
	return s.context.NewPage()
}

// ExecuteScript evaluates the code as the body of an async function in the
// active page. Unlike the hosted provider, page, context and browser are
// not bound; the code sees the page's own globals.
func (p *Provider) ExecuteScript(ctx context.Context, id string, req browser.ScriptRequest) (*browser.ScriptResult, error) {
	page, err := p.activePage(id)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(req.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := page.Evaluate("async () => {\n" + req.Code + "\n}")
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return &browser.ScriptResult{Success: false, Error: out.err.Error()}, nil
		}
		return &browser.ScriptResult{Success: true, Result: out.value}, nil
	case <-ctx.Done():
		return &browser.ScriptResult{Success: false, Error: fmt.Sprintf("script timed out after %s", timeout)}, nil
	}
}

// Screenshot captures the active page, optionally clipped to region.
func (p *Provider) Screenshot(ctx context.Context, id string, region *browser.Region) ([]byte, error) {
	page, err := p.activePage(id)
	if err != nil {
		return nil, err
	}

	opts := playwright.PageScreenshotOptions{}
	if region != nil {
		opts.Clip = &playwright.Rect{
			X:      float64(region.X),
			Y:      float64(region.Y),
			Width:  float64(region.Width),
			Height: float64(region.Height),
		}
	}
	return page.Screenshot(opts)
}

func (p *Provider) MoveMouse(ctx context.Context, id string, req browser.MoveRequest) error {
	page, err := p.activePage(id)
	if err != nil {
		return err
	}
	return withHeldKeys(page.Keyboard(), req.HoldKeys, func() error {
		return page.Mouse().Move(float64(req.X), float64(req.Y))
	})
}

func (p *Provider) ClickMouse(ctx context.Context, id string, req browser.ClickRequest) error {
	page, err := p.activePage(id)
	if err != nil {
		return err
	}
	button := mouseButton(req.Button)
	mouse := page.Mouse()

	return withHeldKeys(page.Keyboard(), req.HoldKeys, func() error {
		switch req.ClickType {
		case browser.ClickTypeDown:
			if err := mouse.Move(float64(req.X), float64(req.Y)); err != nil {
				return err
			}
			return mouse.Down(playwright.MouseDownOptions{Button: button})
		case browser.ClickTypeUp:
			if err := mouse.Move(float64(req.X), float64(req.Y)); err != nil {
				return err
			}
			return mouse.Up(playwright.MouseUpOptions{Button: button})
		default:
			clicks := req.NumClicks
			if clicks <= 0 {
				clicks = 1
			}
			return mouse.Click(float64(req.X), float64(req.Y), playwright.MouseClickOptions{
				Button:     button,
				ClickCount: playwright.Int(clicks),
			})
		}
	})
}

func (p *Provider) DragMouse(ctx context.Context, id string, req browser.DragRequest) error {
	if len(req.Path) < 2 {
		return fmt.Errorf("drag path needs at least 2 points, got %d", len(req.Path))
	}
	page, err := p.activePage(id)
	if err != nil {
		return err
	}
	button := mouseButton(req.Button)
	mouse := page.Mouse()

	return withHeldKeys(page.Keyboard(), req.HoldKeys, func() error {
		start := req.Path[0]
		if err := mouse.Move(float64(start.X), float64(start.Y)); err != nil {
			return err
		}
		if err := mouse.Down(playwright.MouseDownOptions{Button: button}); err != nil {
			return err
		}
		for _, pt := range req.Path[1:] {
			if req.Delay > 0 {
				time.Sleep(time.Duration(req.Delay) * time.Millisecond)
			}
			if err := mouse.Move(float64(pt.X), float64(pt.Y)); err != nil {
				_ = mouse.Up(playwright.MouseUpOptions{Button: button})
				return err
			}
		}
		return mouse.Up(playwright.MouseUpOptions{Button: button})
	})
}

func (p *Provider) Scroll(ctx context.Context, id string, req browser.ScrollRequest) error {
	page, err := p.activePage(id)
	if err != nil {
		return err
	}
	return withHeldKeys(page.Keyboard(), req.HoldKeys, func() error {
		if err := page.Mouse().Move(float64(req.X), float64(req.Y)); err != nil {
			return err
		}
		return page.Mouse().Wheel(float64(req.DeltaX), float64(req.DeltaY))
	})
}

func (p *Provider) TypeText(ctx context.Context, id string, req browser.TypeRequest) error {
	page, err := p.activePage(id)
	if err != nil {
		return err
	}
	opts := playwright.KeyboardTypeOptions{}
	if req.DelayMs > 0 {
		opts.Delay = playwright.Float(float64(req.DelayMs))
	}
	return page.Keyboard().Type(req.Text, opts)
}

func (p *Provider) PressKey(ctx context.Context, id string, req browser.KeyRequest) error {
	page, err := p.activePage(id)
	if err != nil {
		return err
	}
	opts := playwright.KeyboardPressOptions{}
	if req.Duration > 0 {
		opts.Delay = playwright.Float(float64(req.Duration))
	}
	return withHeldKeys(page.Keyboard(), req.HoldKeys, func() error {
		for _, key := range req.Keys {
			if err := page.Keyboard().Press(TranslateKey(key), opts); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetCursorVisibility toggles a stylesheet that hides the pointer.
func (p *Provider) SetCursorVisibility(ctx context.Context, id string, hidden bool) error {
	page, err := p.activePage(id)
	if err != nil {
		return err
	}
	_, err = page.Evaluate(cursorScript, hidden)
	return err
}

const cursorScript = `(hidden) => {
  const id = "__browserpilot_cursor";
  let style = document.getElementById(id);
  if (hidden && !style) {
    style = document.createElement("style");
    style.id = id;
    style.textContent = "* { cursor: none !important; }";
    document.head.appendChild(style);
  } else if (!hidden && style) {
    style.remove();
  }
}`

// ListPages returns the URLs of the session's open pages.
func (p *Provider) ListPages(ctx context.Context, id string) ([]string, error) {
	s, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	pages := s.context.Pages()
	urls := make([]string, len(pages))
	for i, page := range pages {
		urls[i] = page.URL()
	}
	return urls, nil
}

// FocusPage closes every page except the one at index and brings it to front.
func (p *Provider) FocusPage(ctx context.Context, id string, index int) (*browser.NormalizeReport, error) {
	s, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	pages := s.context.Pages()
	if len(pages) == 0 {
		return &browser.NormalizeReport{}, nil
	}
	if index < 0 || index >= len(pages) {
		index = 0
	}

	primary := pages[index]
	for i, page := range pages {
		if i != index {
			_ = page.Close()
		}
	}
	_ = primary.BringToFront()

	return &browser.NormalizeReport{
		PageCountBefore: len(pages),
		PageCountAfter:  len(s.context.Pages()),
		PrimaryURL:      primary.URL(),
	}, nil
}

func mouseButton(name string) *playwright.MouseButton {
	switch name {
	case browser.ButtonRight:
		return playwright.MouseButtonRight
	case browser.ButtonMiddle:
		return playwright.MouseButtonMiddle
	default:
		return playwright.MouseButtonLeft
	}
}

// withHeldKeys presses keys down around fn and always releases them.
func withHeldKeys(kb playwright.Keyboard, keys []string, fn func() error) error {
	var held []string
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = kb.Up(held[i])
		}
	}()
	for _, key := range keys {
		k := TranslateKey(key)
		if err := kb.Down(k); err != nil {
			return err
		}
		held = append(held, k)
	}
	return fn()
}

var keyAliases = map[string]string{
	"ctrl":      "Control",
	"control":   "Control",
	"alt":       "Alt",
	"shift":     "Shift",
	"cmd":       "Meta",
	"super":     "Meta",
	"meta":      "Meta",
	"return":    "Enter",
	"enter":     "Enter",
	"esc":       "Escape",
	"escape":    "Escape",
	"tab":       "Tab",
	"space":     "Space",
	"backspace": "Backspace",
	"delete":    "Delete",
	"up":        "ArrowUp",
	"down":      "ArrowDown",
	"left":      "ArrowLeft",
	"right":     "ArrowRight",
	"pageup":    "PageUp",
	"pagedown":  "PageDown",
	"home":      "Home",
	"end":       "End",
}

// TranslateKey converts xdotool-style combos such as "ctrl+a" or "Return"
// into Playwright key names.
func TranslateKey(combo string) string {
	parts := strings.Split(combo, "+")
	for i, part := range parts {
		if alias, ok := keyAliases[strings.ToLower(strings.TrimSpace(part))]; ok {
			parts[i] = alias
		}
	}
	return strings.Join(parts, "+")
}

var (
	_ browser.Provider       = (*Provider)(nil)
	_ browser.PageController = (*Provider)(nil)
)
