package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "trendcast %s\n", VersionString())
		fmt.Fprintf(out, "  built:   %s\n", BuildDate)
		fmt.Fprintf(out, "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(out, "  window:  %dh, top %d\n", defaultWindowHours, defaultTopN)
	},
}

// VersionString returns "<version> (<commit>)" for health checks and banners.
func VersionString() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
