package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/browserpilot/pkg/browser"
	"github.com/entrhq/browserpilot/pkg/browser/kernel"
	"github.com/entrhq/browserpilot/pkg/browser/local"
	"github.com/entrhq/browserpilot/pkg/config"
	"github.com/entrhq/browserpilot/pkg/enhance"
	"github.com/entrhq/browserpilot/pkg/logging"
	"github.com/entrhq/browserpilot/pkg/metrics"
	"github.com/entrhq/browserpilot/pkg/orchestrator"
	"github.com/entrhq/browserpilot/pkg/server"
	"github.com/entrhq/browserpilot/pkg/skills"
)

func newServeCmd() *cobra.Command {
	var (
		addr     string
		provider string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Initialize(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr != "" {
				if err := cfg.Server.SetData(map[string]interface{}{"addr": addr}); err != nil {
					return err
				}
			}
			if provider != "" {
				if err := cfg.Browser.SetData(map[string]interface{}{"provider": provider}); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, config.OSEnv())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&provider, "provider", "", "browser provider: kernel or local (overrides config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, env config.Env) error {
	log := logging.MustLogger("browserpilot")

	browserSettings := cfg.Browser.Snapshot()
	agentSettings := cfg.Agent.Snapshot()

	backend, shutdown := newBackend(browserSettings, env)
	defer shutdown()

	normalizer, err := browser.NewPageNormalizer(backend, browserSettings.IgnoredPagePatterns, browserSettings.NormalizeTimeoutSec, log)
	if err != nil {
		return fmt.Errorf("page normalizer: %w", err)
	}

	provisioner := browser.NewProvisioner(backend, browser.NewRegistry(),
		browser.WithRecentWindow(browserSettings.RecentWindow),
		browser.WithCoalesceWait(browserSettings.CoalesceWait),
		browser.WithCreateOptions(browser.CreateOptions{
			Stealth:  browserSettings.Stealth,
			Headless: browserSettings.Headless,
		}),
		browser.WithNormalizer(normalizer),
	)

	orch := orchestrator.New(backend,
		orchestrator.WithSettings(agentSettings),
		orchestrator.WithEnv(env),
		orchestrator.WithNormalizer(normalizer),
		orchestrator.WithObserver(metrics.RunObserver{}),
	)

	srv := server.New(server.Config{
		Provisioner:  provisioner,
		Orchestrator: orch,
		Enhancer:     enhance.NewEnhancer(env, orchestrator.DefaultModelFactory),
		Skills:       skills.NewLister(env),
		Env:          env,
		Settings:     cfg.Server.Snapshot(),
		Heartbeat:    agentSettings.HeartbeatInterval,
	})

	log.Infof("Browser provider: %s", browserSettings.Provider)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	return g.Wait()
}

// newBackend selects the provider named in settings. The returned function
// releases provider resources on shutdown.
func newBackend(settings config.BrowserSettings, env config.Env) (browser.Provider, func()) {
	switch settings.Provider {
	case config.ProviderLocal:
		p := local.New(local.WithLogger(logging.MustLogger("local-browser")))
		return p, func() {
			if err := p.Shutdown(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to stop playwright: %v\n", err)
			}
		}
	default:
		p := kernel.New(env.KernelAPIKey(),
			kernel.WithBaseURL(settings.KernelBaseURL),
			kernel.WithHTTPClient(cleanhttp.DefaultPooledClient()),
		)
		return p, func() {}
	}
}
