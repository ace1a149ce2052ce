package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/types"
)

const (
	DefaultRecentWindow = 15 * time.Second
	DefaultCoalesceWait = 20 * time.Second
)

// CreateResult is the outcome of CreateSession.
type CreateResult struct {
	Session Session
	Reused  bool
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithRecentWindow sets how long a just-created session is handed to
// concurrent create requests.
func WithRecentWindow(d time.Duration) ProvisionerOption {
	return func(p *Provisioner) { p.recentWindow = d }
}

// WithCoalesceWait sets how long a concurrent create request waits for the
// in-flight creation before giving up.
func WithCoalesceWait(d time.Duration) ProvisionerOption {
	return func(p *Provisioner) { p.coalesceWait = d }
}

// WithCreateOptions overrides the options used for new sessions.
func WithCreateOptions(opts CreateOptions) ProvisionerOption {
	return func(p *Provisioner) { p.createOpts = opts }
}

// WithNormalizer sets the page normalizer run after creation.
func WithNormalizer(n *PageNormalizer) ProvisionerOption {
	return func(p *Provisioner) { p.normalizer = n }
}

// WithLogger sets the provisioner's logger.
func WithLogger(l *logging.Logger) ProvisionerOption {
	return func(p *Provisioner) { p.logger = l }
}

// Provisioner creates and deletes sessions, keeping at most one alive.
type Provisioner struct {
	provider     Provider
	registry     *Registry
	normalizer   *PageNormalizer
	logger       *logging.Logger
	now          func() time.Time
	createOpts   CreateOptions
	recentWindow time.Duration
	coalesceWait time.Duration
}

// NewProvisioner creates a provisioner over provider and registry.
func NewProvisioner(provider Provider, registry *Registry, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{
		provider:     provider,
		registry:     registry,
		now:          time.Now,
		createOpts:   CreateOptions{Stealth: true, Headless: false},
		recentWindow: DefaultRecentWindow,
		coalesceWait: DefaultCoalesceWait,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.MustLogger("provisioner")
	}
	if p.normalizer == nil {
		p.normalizer, _ = NewPageNormalizer(provider, DefaultIgnoredPagePatterns, 20, p.logger)
	}
	return p
}

// Registry returns the registry the provisioner records sessions in.
func (p *Provisioner) Registry() *Registry {
	return p.registry
}

// Normalizer returns the page normalizer bound to the provider.
func (p *Provisioner) Normalizer() *PageNormalizer {
	return p.normalizer
}

// CreateSession tears down every existing session and creates a fresh one.
// A request that arrives while another creation is running is handed the
// recently created session instead.
func (p *Provisioner) CreateSession(ctx context.Context) (*CreateResult, error) {
	if !p.registry.TryBeginCreate() {
		return p.coalesce(ctx)
	}
	defer p.registry.EndCreate()

	if err := CheckCredentials(p.provider); err != nil {
		return nil, err
	}

	start := p.now()

	if prev, ok := p.registry.CurrentSession(); ok {
		if err := p.provider.Delete(ctx, prev.ID); err != nil && !errors.Is(err, ErrNotFound) {
			p.logger.Warnf("Failed to clean previous browser session %s: %v", prev.ID, err)
		}
		p.registry.Clear(prev.ID)
	}

	p.closeAllActiveSessions(ctx)

	p.logger.Infof("Creating browser (stealth=%t headless=%t)", p.createOpts.Stealth, p.createOpts.Headless)
	created, err := p.provider.Create(ctx, p.createOpts)
	if err != nil {
		return nil, fmt.Errorf("create browser: %w", err)
	}
	if created.LiveViewURL == "" {
		if err := p.provider.Delete(ctx, created.ID); err != nil && !errors.Is(err, ErrNotFound) {
			p.logger.Warnf("Failed to delete browser %s without live view: %v", created.ID, err)
		}
		return nil, &types.ProvisionError{SessionID: created.ID, Message: "provider did not return a live view URL"}
	}
	p.logger.Infof("Browser created: %s", created.ID)

	p.normalizer.NormalizeBestEffort(ctx, created.ID)

	session := Session{
		ID:          created.ID,
		LiveViewURL: created.LiveViewURL,
		CDPWSURL:    created.CDPWSURL,
		SpinUpTime:  p.now().Sub(start).Milliseconds(),
	}
	p.registry.RecordSession(session)

	return &CreateResult{Session: session}, nil
}

// coalesce serves a create request that lost the race for the in-flight
// flag. It waits for the running creation up to coalesceWait.
func (p *Provisioner) coalesce(ctx context.Context) (*CreateResult, error) {
	if s, ok := p.registry.RecentSession(p.recentWindow); ok {
		return &CreateResult{Session: s, Reused: true}, nil
	}

	if p.coalesceWait > 0 {
		timer := time.NewTimer(p.coalesceWait)
		defer timer.Stop()

		select {
		case <-p.registry.Done():
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if s, ok := p.registry.RecentSession(p.recentWindow); ok {
			return &CreateResult{Session: s, Reused: true}, nil
		}
	}
	return nil, ErrCreateInFlight
}

// closeAllActiveSessions deletes every non-deleted provider session.
// Failures are logged; a stale session never blocks a new one.
func (p *Provisioner) closeAllActiveSessions(ctx context.Context) {
	summaries, err := p.provider.List(ctx)
	if err != nil {
		p.logger.Warnf("Failed to list browser sessions: %v", err)
		return
	}

	active := lo.Filter(summaries, func(s SessionSummary, _ int) bool { return !s.Deleted })
	for _, s := range active {
		if err := p.provider.Delete(ctx, s.ID); err != nil && !errors.Is(err, ErrNotFound) {
			p.logger.Warnf("Failed to close existing browser session %s: %v", s.ID, err)
		}
	}
}

// DeleteSession deletes id. A session that is already gone counts as
// deleted, so repeated calls succeed.
func (p *Provisioner) DeleteSession(ctx context.Context, id string) (alreadyGone bool, err error) {
	if id == "" {
		return false, types.NewValidationError("Missing sessionId", "sessionId")
	}
	if err := CheckCredentials(p.provider); err != nil {
		return false, err
	}

	err = p.provider.Delete(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		alreadyGone = true
	default:
		return false, fmt.Errorf("delete browser: %w", err)
	}

	p.registry.Clear(id)
	return alreadyGone, nil
}

// NormalizePages reduces the session to one foreground page, logging any
// failure.
func (p *Provisioner) NormalizePages(ctx context.Context, id string) *NormalizeReport {
	return p.normalizer.NormalizeBestEffort(ctx, id)
}
