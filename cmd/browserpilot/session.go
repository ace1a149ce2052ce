package main

import (
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/entrhq/browserpilot/pkg/server"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage browser sessions on a running server",
	}

	var copyURL bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a browser session (or reuse the one being created)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(serverURL).post(cmd.Context(), "/api/create-browser", struct{}{}, "")
			if err != nil {
				return err
			}
			var created server.CreateBrowserResponse
			if err := decode(resp, &created); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Session:   %s\n", created.ID)
			fmt.Fprintf(out, "Live view: %s\n", created.LiveViewURL)
			if created.Reused {
				fmt.Fprintln(out, "(reused a session created moments ago)")
			} else {
				fmt.Fprintf(out, "Spin-up:   %dms\n", created.SpinUpTime)
			}

			if copyURL && created.LiveViewURL != "" {
				if err := clipboard.WriteAll(created.LiveViewURL); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not copy to clipboard: %v\n", err)
				} else {
					fmt.Fprintln(out, "Live view URL copied to clipboard")
				}
			}
			return nil
		},
	}
	create.Flags().BoolVar(&copyURL, "copy", false, "copy the live view URL to the clipboard")

	cmd.AddCommand(create, &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Close a browser session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(serverURL).post(cmd.Context(), "/api/delete-browser",
				server.DeleteBrowserRequest{SessionID: args[0]}, "")
			if err != nil {
				return err
			}
			var deleted server.DeleteBrowserResponse
			if err := decode(resp, &deleted); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), deleted.Message)
			return nil
		},
	})

	return cmd
}
