package commands

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxbowlabs/faultline/config"
	"github.com/oxbowlabs/faultline/db"
	"github.com/oxbowlabs/faultline/fault"
	"github.com/oxbowlabs/faultline/logger"
	"github.com/oxbowlabs/faultline/store"
)

func openStore() (*store.SQLStore, *sql.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, nil, err
	}
	return store.New(database), database, nil
}

// RecentCmd shows recent error records ordered by last-seen.
var RecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show recent error records",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		severity, _ := cmd.Flags().GetString("severity")
		category, _ := cmd.Flags().GetString("category")

		st, database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		records, err := st.QueryRecent(limit, fault.Severity(severity), fault.Category(category))
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No error records found")
			return nil
		}
		for _, rec := range records {
			resolved := " "
			if rec.Resolved {
				resolved = "R"
			}
			fmt.Printf("%s [%s] %-8s %-14s x%-5d %s  %s\n",
				rec.ID, resolved, rec.Severity, rec.Category, rec.Count,
				rec.LastSeen.Local().Format("2006-01-02 15:04:05"), rec.Message)
		}
		return nil
	},
}

// StatsCmd shows capture counts grouped by category and severity.
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show capture counts by category and severity",
	RunE: func(cmd *cobra.Command, args []string) error {
		hours, _ := cmd.Flags().GetInt("hours")

		st, database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		counts, err := st.GroupCountsSince(time.Now().Add(-time.Duration(hours) * time.Hour))
		if err != nil {
			return err
		}

		fmt.Printf("Captures in the last %dh\n\nBy category:\n", hours)
		for category, count := range counts.ByCategory {
			fmt.Printf("  %-14s %d\n", category, count)
		}
		fmt.Println("\nBy severity:")
		for severity, count := range counts.BySeverity {
			fmt.Printf("  %-8s %d\n", severity, count)
		}
		return nil
	},
}

// ResolveCmd marks an error record as resolved.
var ResolveCmd = &cobra.Command{
	Use:   "resolve <error-id>",
	Short: "Mark an error record as resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolvedBy, _ := cmd.Flags().GetString("by")
		reason, _ := cmd.Flags().GetString("reason")

		st, database, err := openStore()
		if err != nil {
			return err
		}
		defer database.Close()

		if err := st.MarkResolved(args[0], resolvedBy, reason); err != nil {
			if db.IsNotFound(err) {
				fmt.Printf("No error record with id %s\n", args[0])
				return nil
			}
			return err
		}
		fmt.Printf("Resolved %s\n", args[0])
		return nil
	},
}

func init() {
	RecentCmd.Flags().IntP("limit", "n", 20, "Maximum records to show")
	RecentCmd.Flags().String("severity", "", "Filter by severity (critical|high|medium|low|info)")
	RecentCmd.Flags().String("category", "", "Filter by category")

	StatsCmd.Flags().Int("hours", 24, "Look-back window in hours")

	ResolveCmd.Flags().String("by", "", "Who is resolving the error")
	ResolveCmd.Flags().String("reason", "", "Resolution note")
	ResolveCmd.MarkFlagRequired("by")
}
