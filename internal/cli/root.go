package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "trendcast",
	Short: "Virality forecasting for trending memes",
	Long:  "Trendcast scores recent memes by engagement per hour, writes the score back, raises alerts on spikes, and snapshots the top forecasts.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $XDG_CONFIG_HOME/trendcast/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
}
