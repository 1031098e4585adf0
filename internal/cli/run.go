package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/trendcast/internal/config"
	"github.com/lazypower/trendcast/internal/forecast"
)

var (
	runHours float64
	runTop   int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one forecast pass",
	Long:  "Fetch memes from the trending window, score and update each one, raise alerts, and write one top-N snapshot.",
	Args:  cobra.NoArgs,
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Float64Var(&runHours, "hours", 0, "Trending window in hours (default from config, 6)")
	runCmd.Flags().IntVarP(&runTop, "top", "n", 0, "Number of memes to snapshot (default from config, 5)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("hours") {
		cfg.Forecast.WindowHours = runHours
	}
	if cmd.Flags().Changed("top") {
		cfg.Forecast.TopN = runTop
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	fc, closer, err := newForecaster(cfg, db, nil)
	if err != nil {
		return fmt.Errorf("configure forecaster: %w", err)
	}
	defer closer.Close()

	report := fc.Run(context.Background())
	printReport(cmd, report)
	return nil
}

func printReport(cmd *cobra.Command, r forecast.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fetched %d memes from the last %v hours.\n", len(r.Fetch.Memes), r.Fetch.Hours)

	alerts := r.Alerts()
	if len(alerts) > 0 {
		fmt.Fprintf(out, "\n## Alerts\n")
		for _, a := range alerts {
			fmt.Fprintf(out, "  %s: %s\n", a.MemeID, a.Reason)
		}
	}

	if r.Snapshot.Written {
		fmt.Fprintf(out, "\n## Top %d\n", len(r.Snapshot.Snapshot.Memes))
		for i, e := range r.Snapshot.Snapshot.Memes {
			fmt.Fprintf(out, "%d. [%.2f] %s (%s)\n", i+1, e.ForecastScore, e.Title, e.ID)
		}
	}

	if n := r.Failures(); n > 0 {
		fmt.Fprintf(out, "\n%d store operations failed; see log.\n", n)
	}
}
