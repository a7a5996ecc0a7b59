package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newSchedulerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Inspect and drive the run scheduler",
	}
	cmd.AddCommand(newSchedulerStatusCmd(), newSchedulerJobsCmd(), newSchedulerTickCmd())
	return cmd
}

func newSchedulerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which jobs are due now",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(cmd)
			var result json.RawMessage
			if err := client.do("GET", "/api/scheduler/status", nil, &result); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
}

func newSchedulerJobsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(cmd)
			var result json.RawMessage
			if err := client.do("GET", "/api/scheduler/jobs", nil, &result); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
}

func newSchedulerTickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Force one decision cycle now",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newAPIClient(cmd)
			var result json.RawMessage
			if err := client.do("POST", "/api/scheduler/tick", nil, &result); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
}
