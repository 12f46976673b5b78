package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prismworks/prism/pkg/provider"
	"github.com/prismworks/prism/pkg/router"
	"github.com/prismworks/prism/pkg/store"
)

var (
	askTaskType string
	askBackend  string
	askShowCost bool
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send one prompt through the model router",
	Long: `Send one prompt through the model router. The router picks a backend
from the task type's priority order and falls back automatically when a
backend fails. Use --backend to pin a specific backend (no fallback).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askTaskType, "task", "general", "task type (general, code, architecture, design, content, data)")
	askCmd.Flags().StringVar(&askBackend, "backend", provider.BackendAuto, "backend preference (auto, high-reasoning, fast-iteration, low-cost)")
	askCmd.Flags().BoolVar(&askShowCost, "cost", false, "print token and cost accounting")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	var usage router.UsageWriter
	if cfg.DataDir != "" {
		st, err := store.New(store.Config{DBPath: storePath(cfg), Logger: log})
		if err != nil {
			log.Warn().Err(err).Msg("Usage store unavailable, accounting will not persist")
		} else {
			defer st.Close()
			usage = st
		}
	}

	factory := provider.NewConfigFactory(cfg.Providers, log)
	r, err := router.New(router.Config{
		Factory:        factory,
		PricePerToken:  cfg.Router.PricePerToken,
		AttemptTimeout: cfg.Router.AttemptTimeout,
		MaxTokens:      cfg.Router.MaxTokens,
		Logger:         log,
		Usage:          usage,
	})
	if err != nil {
		return err
	}

	ctx := newRequestContext(cmd.Context())
	result, err := r.Generate(ctx, router.GenerateRequest{
		Prompt:     strings.Join(args, " "),
		TaskType:   router.TaskType(askTaskType),
		Preference: askBackend,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Text)
	if askShowCost {
		estimated := ""
		if result.Estimated {
			estimated = " (estimated)"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n[%s/%s] %d tokens%s, $%.6f\n",
			result.Backend, result.Model, result.TokensUsed, estimated, result.CostUSD)
	}
	return nil
}
