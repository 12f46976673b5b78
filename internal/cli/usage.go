package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/prismworks/prism/pkg/store"
)

var usageSince time.Duration

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show per-backend token and cost totals",
	RunE:  runUsage,
}

func init() {
	usageCmd.Flags().DurationVar(&usageSince, "since", 0, "only include records newer than this (e.g. 24h); 0 means all")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	st, err := store.New(store.Config{DBPath: storePath(cfg), Logger: log})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var since time.Time
	if usageSince > 0 {
		since = time.Now().Add(-usageSince)
	}

	summaries, err := st.UsageByBackend(cmd.Context(), since)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No usage recorded.")
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%-16s %10s %14s %12s\n", "BACKEND", "REQUESTS", "TOKENS", "COST (USD)")
	var totalTokens int64
	var totalCost float64
	for _, s := range summaries {
		fmt.Fprintf(cmd.OutOrStdout(), "%-16s %10d %14d %12.6f\n", s.Backend, s.Requests, s.TokensUsed, s.CostUSD)
		totalTokens += s.TokensUsed
		totalCost += s.CostUSD
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%-16s %10s %14d %12.6f\n", "total", "", totalTokens, totalCost)
	return nil
}
