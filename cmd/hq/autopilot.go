package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newAutopilotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autopilot",
		Short: "Control autonomous execution",
	}
	cmd.AddCommand(
		newAutopilotStatusCmd(),
		newAutopilotSetCmd("enable", "Enable autopilot", "/api/autopilot/enable"),
		newAutopilotSetCmd("disable", "Disable autopilot", "/api/autopilot/disable"),
		newAutopilotSetCmd("panic", "Stop all autonomous execution immediately", "/api/autopilot/panic"),
		newAutopilotSetCmd("resume", "Clear a panic or error pause", "/api/autopilot/resume"),
	)
	return cmd
}

func newAutopilotStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show autopilot status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(cmd)
			var result json.RawMessage
			if err := client.do("GET", "/api/autopilot/", nil, &result); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
}

func newAutopilotSetCmd(use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(cmd)
			var result json.RawMessage
			if err := client.do("POST", path, nil, &result); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
}
