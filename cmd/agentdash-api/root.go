package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agentdash-api",
	Short: "Agent Dash turns uploaded data files into generated dashboards",
	Long: `Agent Dash runs the conversation API that analyzes uploaded data,
generates a dashboard document and applies targeted edits to it.
Configuration is read from AGENTDASH_* environment variables and an optional .env file.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd, dashboardsCmd, sessionsCmd)
}
