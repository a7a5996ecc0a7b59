package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	// Secrets live in .env during development; missing file is fine.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "hq",
		Short: "Executive dashboard for a SaaS holding",
		Long:  `HQ is the operations backend for a holding of SaaS platforms: KPIs, executive runs, autopilot and scheduling behind one dashboard.`,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.PersistentFlags().String("api", "http://127.0.0.1:8090", "address of a running HQ gateway")

	rootCmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newAutopilotCmd(),
		newSchedulerCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the HQ version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hq %s\n", version)
		},
	}
}
