package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/entrhq/browserpilot/pkg/console"
	"github.com/entrhq/browserpilot/pkg/orchestrator"
	"github.com/entrhq/browserpilot/pkg/stream"
)

var errRunFailed = errors.New("agent run failed")

type runFlags struct {
	sessionID string
	target    string
	lagMin    int
	lagMax    int
	stream    bool
	details   bool
	copy      bool
}

func newRunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [task...]",
		Short: "Run a natural-language task in a browser session",
		Example: `  browserpilot run --session s_123 "open example.com and read the headline"
  browserpilot run --session s_123 --stream --details "find the pricing page"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd, f, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&f.sessionID, "session", "s", "", "browser session id (required)")
	cmd.Flags().StringVar(&f.target, "target", "", "model backend to run the agent on")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "stream the run as it happens")
	cmd.Flags().IntVar(&f.lagMin, "lag-min", -1, "minimum pause between streamed events in ms")
	cmd.Flags().IntVar(&f.lagMax, "lag-max", -1, "maximum pause between streamed events in ms")
	cmd.Flags().BoolVar(&f.details, "details", false, "print every step with its tool calls and results")
	cmd.Flags().BoolVar(&f.copy, "copy", false, "copy the final response to the clipboard")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func runTask(cmd *cobra.Command, f runFlags, task string) error {
	out := cmd.OutOrStdout()
	renderer := console.NewRenderer(out)

	req := orchestrator.RunRequest{
		SessionID:    f.sessionID,
		Task:         task,
		ServerTarget: f.target,
		Stream:       f.stream,
	}
	if f.lagMin >= 0 {
		req.LagMsMin = &f.lagMin
	}
	if f.lagMax >= 0 {
		req.LagMsMax = &f.lagMax
	}

	accept := "application/json"
	if f.stream {
		accept = "text/event-stream"
	}
	resp, err := newAPIClient(serverURL).post(cmd.Context(), "/api/agent", req, accept)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	run := console.NewTranscript().Begin(task, f.target)

	if isEventStream(resp) {
		streamed := false
		err = console.Follow(resp.Body, run, func(frame *stream.Frame) {
			if frame.Event == "text-delta" {
				io.WriteString(out, frame.Get("text").String())
				streamed = true
			}
		})
		if streamed {
			fmt.Fprintln(out)
		}
		if err != nil && !errors.Is(err, console.ErrStreamTruncated) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
		}
	} else if err := console.DecodeResult(resp.Body, run); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
	}

	view := run.View()
	fmt.Fprintln(out, renderer.Summary(view))
	if f.details {
		fmt.Fprint(out, renderer.Details(view))
	}

	if f.copy && view.Response != "" {
		if err := clipboard.WriteAll(view.Response); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not copy to clipboard: %v\n", err)
		}
	}

	if view.Status != console.StatusSucceeded {
		return errRunFailed
	}
	return nil
}

func isEventStream(resp *http.Response) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mediaType == "text/event-stream"
}
