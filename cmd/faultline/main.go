package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oxbowlabs/faultline/cmd/faultline/commands"
	"github.com/oxbowlabs/faultline/config"
	"github.com/oxbowlabs/faultline/logger"
)

var rootCmd = &cobra.Command{
	Use:   "faultline",
	Short: "Faultline - error classification and aggregation engine",
	Long: `Faultline ingests raw application errors and turns them into
structured, deduplicated, classified records.

Available commands:
  ingest   - Run the capture daemon, reading errors from stdin
  patterns - List registered detection patterns
  recent   - Show recent error records
  stats    - Show capture counts by category and severity
  resolve  - Mark an error record as resolved
  version  - Show version information

Examples:
  faultline ingest                      # Start the capture daemon
  faultline patterns                    # Show the detection pattern set
  faultline recent --severity critical  # Recent critical errors
  faultline resolve err_17... --by ops  # Resolve a record`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := logger.Initialize(cfg.Log.JSON); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.IngestCmd)
	rootCmd.AddCommand(commands.PatternsCmd)
	rootCmd.AddCommand(commands.RecentCmd)
	rootCmd.AddCommand(commands.StatsCmd)
	rootCmd.AddCommand(commands.ResolveCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
