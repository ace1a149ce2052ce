// Package skills lists the OpenClaw skills installed in the workspace by
// running the openclaw CLI.
package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/entrhq/browserpilot/pkg/config"
	"github.com/entrhq/browserpilot/pkg/logging"
)

var skillsLog *logging.Logger

func init() {
	var err error
	skillsLog, err = logging.NewLogger("skills")
	if err != nil {
		skillsLog.Warnf("Failed to initialize skills logger, using stderr fallback: %v", err)
	}
}

const (
	// HomebrewBinary is preferred over PATH lookup when it exists.
	HomebrewBinary = "/opt/homebrew/bin/openclaw"
	defaultBinary  = "openclaw"

	DefaultTimeout   = 15 * time.Second
	DefaultMaxOutput = 10 * 1024 * 1024
)

// ErrOutputTooLarge is returned when the CLI writes more than the limit.
var ErrOutputTooLarge = errors.New("skills output exceeds the size limit")

// Lister runs `openclaw skills list --json`.
type Lister struct {
	logger    *logging.Logger
	binary    string
	workDir   string
	timeout   time.Duration
	maxOutput int
}

// Option configures a Lister.
type Option func(*Lister)

// WithTimeout bounds each listing.
func WithTimeout(d time.Duration) Option {
	return func(l *Lister) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithMaxOutput limits the bytes read from the CLI's stdout.
func WithMaxOutput(n int) Option {
	return func(l *Lister) {
		if n > 0 {
			l.maxOutput = n
		}
	}
}

// WithLogger sets the lister's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Lister) {
		l.logger = logger
	}
}

// NewLister resolves the binary and working directory from env:
// OPENCLAW_BIN, then HomebrewBinary when it exists, then "openclaw" on
// PATH; OPENCLAW_WORKSPACE_DIR or the process working directory.
func NewLister(env config.Env, opts ...Option) *Lister {
	l := &Lister{
		logger:    skillsLog,
		binary:    resolveBinary(env.SkillsBinary()),
		workDir:   env.SkillsWorkspace(),
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutput,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func resolveBinary(override string) string {
	if override != "" {
		return override
	}
	if info, err := os.Stat(HomebrewBinary); err == nil && !info.IsDir() {
		return HomebrewBinary
	}
	return defaultBinary
}

// Binary returns the resolved CLI path.
func (l *Lister) Binary() string {
	return l.binary
}

// List runs the CLI and returns its parsed JSON object.
func (l *Lister) List(ctx context.Context) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.binary, "skills", "list", "--json")
	cmd.Dir = l.workDir
	cmd.WaitDelay = time.Second

	stdout := &limitedBuffer{limit: l.maxOutput}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		return nil, fmt.Errorf("%s skills list timed out after %s", l.binary, l.timeout)
	case stdout.overflow:
		return nil, fmt.Errorf("%s skills list: %w (%d bytes)", l.binary, ErrOutputTooLarge, l.maxOutput)
	case err != nil:
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s skills list: %w: %s", l.binary, err, msg)
		}
		return nil, fmt.Errorf("%s skills list: %w", l.binary, err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return nil, fmt.Errorf("parse skills output: %w", err)
	}
	l.logger.Debugf("listed skills with %s in %s", l.binary, time.Since(start).Round(time.Millisecond))
	return parsed, nil
}

// limitedBuffer keeps at most limit bytes and discards the rest, so the
// child never blocks on a full pipe.
type limitedBuffer struct {
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.overflow {
		return len(p), nil
	}
	if b.buf.Len()+len(p) > b.limit {
		b.overflow = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) Bytes() []byte { return b.buf.Bytes() }
