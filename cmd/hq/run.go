package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Trigger and inspect executive runs",
	}
	cmd.AddCommand(newRunTriggerCmd(), newRunListCmd(), newRunTypesCmd())
	return cmd
}

func newRunTriggerCmd() *cobra.Command {
	var platformKey string
	cmd := &cobra.Command{
		Use:   "trigger <run-type>",
		Short: "Trigger a run by type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(cmd)
			body := map[string]string{"requested_by": "cli"}
			if platformKey != "" {
				body["platform_key"] = platformKey
			}
			var result json.RawMessage
			if err := client.do("POST", "/api/runs/"+args[0], body, &result); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	cmd.Flags().StringVar(&platformKey, "platform", "", "platform key the run targets")
	return cmd
}

func newRunListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(cmd)
			var result json.RawMessage
			path := fmt.Sprintf("/api/runs?limit=%d", limit)
			if err := client.do("GET", path, nil, &result); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}

func newRunTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List available run types",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(cmd)
			var result json.RawMessage
			if err := client.do("GET", "/api/run-types", nil, &result); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
}
