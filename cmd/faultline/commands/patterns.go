package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oxbowlabs/faultline/config"
	"github.com/oxbowlabs/faultline/fault"
)

// PatternsCmd lists the detection patterns in match-priority order.
var PatternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List registered detection patterns",
	Long: `Show the detection pattern set in match-priority order: the
built-in patterns plus any loaded from the configured patterns file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		registry := fault.NewDefaultRegistry()
		if cfg.Patterns.File != "" {
			if _, err := fault.SyncPatternFile(registry, cfg.Patterns.File); err != nil {
				return err
			}
		}

		for i, p := range registry.List() {
			fmt.Printf("%2d. %-22s %-14s %-8s %s\n",
				i+1, p.ID, p.Category, p.Severity, p.Name)
		}
		return nil
	},
}
