// Package remote runs single shell commands on the deployment host over SSH.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/entrhq/browserpilot/pkg/config"
	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/types"
)

var remoteLog *logging.Logger

func init() {
	var err error
	remoteLog, err = logging.NewLogger("remote")
	if err != nil {
		remoteLog.Warnf("Failed to initialize remote logger, using stderr fallback: %v", err)
	}
}

// MissingConfigMessage is reported when the SSH target is incomplete.
const MissingConfigMessage = "Missing VPS SSH config. Set VPS_SSH_HOST, VPS_SSH_USER, VPS_SSH_PASSWORD (and optional VPS_SSH_PORT)."

const defaultDialTimeout = 20 * time.Second

// Executor runs commands with password authentication.
type Executor struct {
	settings    config.SSHSettings
	logger      *logging.Logger
	dialTimeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithDialTimeout bounds connection setup and the SSH handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.dialTimeout = d
		}
	}
}

// WithLogger sets the executor's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor validates settings. Host, user and password are required.
func NewExecutor(settings config.SSHSettings, opts ...Option) (*Executor, error) {
	if !settings.Complete() {
		var missing []string
		if settings.Host == "" {
			missing = append(missing, "VPS_SSH_HOST")
		}
		if settings.User == "" {
			missing = append(missing, "VPS_SSH_USER")
		}
		if settings.Password == "" {
			missing = append(missing, "VPS_SSH_PASSWORD")
		}
		return nil, &types.ConfigurationError{
			Code:    types.CodeMissingCredentials,
			Message: MissingConfigMessage,
			Missing: missing,
		}
	}
	e := &Executor{settings: settings, logger: remoteLog, dialTimeout: defaultDialTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Address is the host:port the executor connects to.
func (e *Executor) Address() string {
	return net.JoinHostPort(e.settings.Host, strconv.Itoa(e.settings.Port))
}

func (e *Executor) clientConfig() (*ssh.ClientConfig, error) {
	cfg := &ssh.ClientConfig{
		User:    e.settings.User,
		Auth:    []ssh.AuthMethod{ssh.Password(e.settings.Password)},
		Timeout: e.dialTimeout,
	}
	if e.settings.HostKey == "" {
		e.logger.Warnf("VPS_SSH_HOST_KEY is not set, not verifying the host key of %s", e.Address())
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey()
		return cfg, nil
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(e.settings.HostKey))
	if err != nil {
		return nil, &types.ConfigurationError{
			Code:    types.CodeMissingCredentials,
			Message: fmt.Sprintf("invalid VPS_SSH_HOST_KEY: %v", err),
			Missing: []string{"VPS_SSH_HOST_KEY"},
		}
	}
	cfg.HostKeyCallback = ssh.FixedHostKey(key)
	return cfg, nil
}

// Run executes command and returns its stdout, or its stderr when stdout
// is empty. A non-zero exit status is not an error; the output is the
// result either way.
func (e *Executor) Run(ctx context.Context, command string) (string, error) {
	if command == "" {
		return "", types.NewValidationError("No command provided", "command")
	}
	cfg, err := e.clientConfig()
	if err != nil {
		return "", err
	}

	dialer := net.Dialer{Timeout: e.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", e.Address())
	if err != nil {
		return "", fmt.Errorf("connect to %s: %w", e.Address(), err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, e.Address(), cfg)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", e.Address(), err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		client.Close()
		return "", ctx.Err()
	case err := <-done:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		var exitErr *ssh.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return "", fmt.Errorf("run remote command: %w", err)
		}
		if exitErr != nil {
			e.logger.Infof("remote command exited with status %d", exitErr.ExitStatus())
		}
	}

	if stdout.Len() > 0 {
		return stdout.String(), nil
	}
	return stderr.String(), nil
}
