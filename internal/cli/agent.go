package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/prismworks/prism/internal/config"
	"github.com/prismworks/prism/pkg/memory"
	"github.com/prismworks/prism/pkg/provider"
	"github.com/prismworks/prism/pkg/router"
	"github.com/prismworks/prism/pkg/runtime"
	"github.com/prismworks/prism/pkg/store"
)

var (
	agentName    string
	agentSystem  string
	agentBackend string
	agentTemp    float64
	agentTask    string
	agentID      string
)

var agentCmd = &cobra.Command{
	Use:   "agent [message]",
	Short: "Run one message through an agent",
	Long: `Run one message through an agent with memory and prompt assembly.
With --id the agent's conversation history and long-term memory persist
across invocations; otherwise a fresh throwaway agent is used.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().StringVar(&agentID, "id", "", "stable agent id (enables history replay)")
	agentCmd.Flags().StringVar(&agentName, "name", "Prism", "agent name")
	agentCmd.Flags().StringVar(&agentSystem, "system", "", "extra system prompt")
	agentCmd.Flags().StringVar(&agentBackend, "backend", provider.BackendAuto, "backend preference")
	agentCmd.Flags().Float64Var(&agentTemp, "temperature", 0.7, "sampling temperature in [0,1]")
	agentCmd.Flags().StringVar(&agentTask, "task", "general", "task type for routing")
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	var st *store.Store
	if cfg.DataDir != "" {
		st, err = store.New(store.Config{DBPath: storePath(cfg), Logger: log})
		if err != nil {
			log.Warn().Err(err).Msg("Store unavailable, turns will not persist")
			st = nil
		} else {
			defer st.Close()
		}
	}

	factory := provider.NewConfigFactory(cfg.Providers, log)
	routerCfg := router.Config{
		Factory:        factory,
		PricePerToken:  cfg.Router.PricePerToken,
		AttemptTimeout: cfg.Router.AttemptTimeout,
		MaxTokens:      cfg.Router.MaxTokens,
		Logger:         log,
	}
	if st != nil {
		routerCfg.Usage = st
	}
	r, err := router.New(routerCfg)
	if err != nil {
		return err
	}

	runtimeCfg := runtime.Config{
		Router:        r,
		Logger:        log,
		RetrieveLimit: cfg.Memory.RetrieveLimit,
		LaneIdleTTL:   cfg.Runtime.LaneIdleTTL,
	}
	if st != nil {
		runtimeCfg.Turns = st
	}
	rt, err := runtime.New(runtimeCfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	longTerm, err := openLongTerm(cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("Long-term memory unavailable")
		longTerm = memory.NopLongTerm{}
	}
	defer longTerm.Close()

	agent, err := buildAgent(cfg, longTerm)
	if err != nil {
		return err
	}

	// Replay persisted history so a stable agent id carries its
	// conversation across processes
	ctx := newRequestContext(cmd.Context())
	if agentID != "" && st != nil {
		turns, err := st.RecentTurns(ctx, agent.ID, cfg.Memory.ShortTermCapacity)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to replay history")
		} else {
			for _, turn := range turns {
				agent.Memory.ShortTerm.Append(turn)
			}
		}
	}

	resp, err := rt.Execute(ctx, agent, runtime.ExecuteRequest{
		Message:  strings.Join(args, " "),
		TaskType: router.TaskType(agentTask),
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	if resp.NewSkill != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "\n[learned skill: %s]\n", resp.NewSkill.Name)
	}
	return nil
}

func buildAgent(cfg *config.Config, longTerm memory.LongTerm) (*runtime.Agent, error) {
	id := agentID
	if id == "" {
		generated, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate agent id: %w", err)
		}
		id = generated
	}

	now := time.Now()
	return &runtime.Agent{
		ID:           id,
		Name:         agentName,
		SystemPrompt: agentSystem,
		Backend:      agentBackend,
		Temperature:  agentTemp,
		Memory:       runtime.NewMemory(cfg.Memory.ShortTermCapacity, longTerm),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func openLongTerm(cfg *config.Config, log zerolog.Logger) (memory.LongTerm, error) {
	if cfg.Memory.LongTermDBPath == "" {
		return memory.NopLongTerm{}, nil
	}
	return memory.NewSQLiteLongTerm(memory.SQLiteConfig{
		DBPath: cfg.Memory.LongTermDBPath,
		Logger: log,
	})
}

func storePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "prism.db")
}
