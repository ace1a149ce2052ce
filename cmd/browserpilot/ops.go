package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/browserpilot/pkg/server"
)

func newEnhanceCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "enhance [prompt...]",
		Short: "Rewrite a rough task into a precise instruction for the agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(serverURL).post(cmd.Context(), "/api/enhance-prompt", server.EnhancePromptRequest{
				Prompt:       strings.Join(args, " "),
				ServerTarget: target,
			}, "")
			if err != nil {
				return err
			}
			var body struct {
				OptimizedPrompt string `json:"optimizedPrompt"`
			}
			if err := decode(resp, &body); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), body.OptimizedPrompt)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "model backend to use")
	return cmd
}

func newSkillsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List the OpenClaw skills installed on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(serverURL).get(cmd.Context(), "/api/openclaw/skills")
			if err != nil {
				return err
			}
			var body map[string]interface{}
			if err := decode(resp, &body); err != nil {
				return err
			}
			out, err := json.MarshalIndent(body, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

const deployTokenEnvVar = "VPS_DEPLOY_TOKEN"

func newDeployCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "deploy [command...]",
		Short: "Run a shell command on the configured VPS through the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newAPIClient(serverURL).post(cmd.Context(), "/api/vps-deploy",
				server.VPSDeployRequest{Command: strings.Join(args, " ")}, "",
				withHeader(server.DeployTokenHeader, token))
			if err != nil {
				return err
			}
			var body struct {
				TermOutput string `json:"term_output"`
			}
			if err := decode(resp, &body); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), body.TermOutput)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", envDefault(deployTokenEnvVar, ""), "deploy token sent in the "+server.DeployTokenHeader+" header")
	return cmd
}
