// Package server exposes the provisioner, the agent orchestrator and the
// auxiliary operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/config"
	"github.com/entrhq/browserpilot/pkg/enhance"
	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/metrics"
	"github.com/entrhq/browserpilot/pkg/orchestrator"
	"github.com/entrhq/browserpilot/pkg/remote"
)

var serverLog *logging.Logger

func init() {
	var err error
	serverLog, err = logging.NewLogger("server")
	if err != nil {
		serverLog.Warnf("Failed to initialize server logger, using stderr fallback: %v", err)
	}
}

const (
	// DeployTokenHeader carries the shared secret for vps-deploy.
	DeployTokenHeader = "x-vps-deploy-token"

	defaultDeployRate  = rate.Limit(0.5)
	defaultDeployBurst = 3
)

// SkillLister lists the installed agent skills.
type SkillLister interface {
	List(ctx context.Context) (map[string]interface{}, error)
}

// Commander runs one shell command on a remote host.
type Commander interface {
	Run(ctx context.Context, command string) (string, error)
}

// RemoteFactory builds a Commander from the SSH settings. It returns a
// configuration error when the settings are incomplete.
type RemoteFactory func(settings config.SSHSettings) (Commander, error)

// DefaultRemoteFactory connects over SSH with remote.Executor.
func DefaultRemoteFactory(settings config.SSHSettings) (Commander, error) {
	exec, err := remote.NewExecutor(settings)
	if err != nil {
		return nil, err
	}
	return exec, nil
}

// Config holds the server's collaborators.
type Config struct {
	Provisioner  *browser.Provisioner
	Orchestrator *orchestrator.Orchestrator
	Enhancer     *enhance.Enhancer
	Skills       SkillLister
	NewRemote    RemoteFactory
	Logger       *logging.Logger

	// DeployLimiter throttles vps-deploy. Nil uses a shared default.
	DeployLimiter *rate.Limiter

	Env      config.Env
	Settings config.ServerSettings

	// Heartbeat is the idle interval after which a stream gets a ping
	// comment. Zero disables heartbeats.
	Heartbeat time.Duration
}

// Server serves the HTTP API.
type Server struct {
	cfg    Config
	router chi.Router
	logger *logging.Logger
}

// New builds the router. Provisioner and Orchestrator are required.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = serverLog
	}
	if cfg.NewRemote == nil {
		cfg.NewRemote = DefaultRemoteFactory
	}
	if cfg.DeployLimiter == nil {
		cfg.DeployLimiter = rate.NewLimiter(defaultDeployRate, defaultDeployBurst)
	}

	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(corsMiddleware(s.cfg.Settings.AllowedOrigins))
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		OkJSON(w, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/create-browser", s.handleCreateBrowser)
		r.Post("/delete-browser", s.handleDeleteBrowser)
		r.Post("/agent", s.handleAgent)
		r.Post("/enhance-prompt", s.handleEnhancePrompt)
		r.Get("/openclaw/skills", s.handleListSkills)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(s.cfg.DeployLimiter))
			r.Post("/vps-deploy", s.handleVPSDeploy)
		})
	})

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
// within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Settings.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.Settings.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Listening on %s", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Infof("Shutting down server gracefully...")
	timeout := s.cfg.Settings.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Infof("%s %s %d %dB in %s", r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(),
			time.Since(start).Round(time.Millisecond))
	})
}

// corsMiddleware allows the configured origins. An empty list allows any
// origin.
func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, "+DeployTokenHeader)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "2")
				WriteJSON(w, http.StatusTooManyRequests, Failure("Too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
