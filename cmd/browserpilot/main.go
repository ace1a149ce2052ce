// Package main provides the browserpilot command: the HTTP server that
// provisions cloud browsers and runs agent tasks against them, plus a small
// client for driving a running server from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/entrhq/browserpilot/pkg/logging"
)

const (
	version = "0.1.0"

	defaultServerURL = "http://localhost:3000"
	serverURLEnvVar  = "BROWSERPILOT_URL"
)

// Shared flags
var (
	cfgFile   string
	serverURL string
	logLevel  string
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "browserpilot",
		Short: "Cloud browser sessions driven by an LLM agent",
		Long: `browserpilot provisions remote browser sessions and runs natural-language
tasks against them with a tool-calling agent.

Run 'browserpilot serve' to start the HTTP API, then use the session and run
commands to drive it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if logLevel != "" {
				logging.SetLevel(logging.ParseLevel(logLevel))
			}
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.browserpilot/config.yaml)")
	root.PersistentFlags().StringVar(&serverURL, "url", envDefault(serverURLEnvVar, defaultServerURL), "base URL of a running browserpilot server")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "minimum log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(),
		newSessionCmd(),
		newRunCmd(),
		newEnhanceCmd(),
		newSkillsCmd(),
		newDeployCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "browserpilot v%s\n", version)
			},
		},
	)
	return root
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
