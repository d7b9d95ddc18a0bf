// Package main is the entry point for the impetus CLI. Impetus is an
// autonomous habit companion that runs decision cycles against local or
// cloud models and nudges the user at moments worth acting on.
package main

import (
	"context"
	"fmt"
	"os"
	osignal "os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/normanking/impetus/internal/bus"
	"github.com/normanking/impetus/internal/config"
	"github.com/normanking/impetus/internal/engine"
	"github.com/normanking/impetus/internal/habit"
	"github.com/normanking/impetus/internal/inference"
	"github.com/normanking/impetus/internal/logging"
	"github.com/normanking/impetus/internal/routing"
	"github.com/normanking/impetus/internal/scoring"
	"github.com/normanking/impetus/internal/server"
	"github.com/normanking/impetus/internal/signal"
	"github.com/normanking/impetus/internal/store"
	"github.com/normanking/impetus/internal/tools"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
	log     *logging.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "impetus",
		Short: "Impetus - autonomous habit decision engine",
		Long: `Impetus watches ambient context signals, scores your habits, and runs
periodic decision cycles against a local or cloud model. Each cycle picks
exactly one action: nudge, adjust, reschedule, observe, or defer.

Run the daemon:       impetus run
Force one cycle:      impetus cycle
List habits:          impetus habits
Mark one done:        impetus complete <id>`,
		PersistentPreRunE: initLogging,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.impetus/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("impetus v%s\n", version)
		},
	})

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(cycleCmd())
	rootCmd.AddCommand(habitsCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LOGGING INITIALIZATION
// ═══════════════════════════════════════════════════════════════════════════════

func initLogging(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	logDir := filepath.Join(home, ".impetus", "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create log directory: %v\n", err)
	}

	cfg := logging.DefaultConfig()
	if verbose {
		cfg.Level = logging.LevelDebug
	}
	cfg.FilePath = filepath.Join(logDir, fmt.Sprintf("impetus_%s.log", time.Now().Format("2006-01-02")))

	log = logging.New(cfg)
	logging.SetGlobal(log)
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// RUNTIME ASSEMBLY
// ═══════════════════════════════════════════════════════════════════════════════

// runtime holds the fully wired component graph for one process.
type runtime struct {
	cfg    *config.Config
	habits *habit.Registry
	store  *store.Store
	engine *engine.Engine
	client *inference.Client
	stats  *routing.Stats
	bus    *bus.Bus
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cfgPath != "" {
		cfg, err = config.LoadFromPath(cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// buildRuntime wires the component graph: store, registry, scoring, signals,
// router, backends, tools, bus, engine. The caller must invoke the returned
// cleanup function.
func buildRuntime(ctx context.Context) (*runtime, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, err
	}

	st, err := store.Open(cfg.Store.Path, cfg.Store.AuditCap)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	habits := habit.NewRegistry()
	saved, err := st.GetAllHabits(ctx)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("load habits: %w", err)
	}
	for _, h := range saved {
		habits.Put(h)
	}

	sc := scoring.New(habits)

	sim := signal.NewSimulated()
	agg := signal.NewAggregator()
	sim.Attach(agg)

	stats := routing.NewStats()
	router := routing.NewRouter(cfg.ToRouting(), stats)

	backends, err := buildBackends(cfg)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	caps := inference.ProbeCapabilities(probeCtx, backends...)
	cancel()
	log.Info("capabilities: cloud=%t hybrid=%t/%t local=%t/%t",
		caps.CloudConfigured, caps.HybridReachable, caps.HybridModelReady,
		caps.LocalReachable, caps.LocalModelReady)

	client := inference.NewClient(backends, caps, stats)

	reg := tools.NewRegistry()
	err = tools.RegisterBuiltins(reg, tools.Deps{
		Habits:   habits,
		Scoring:  sc,
		Notify:   tools.NewDispatcher(&tools.ConsoleNotifier{}),
		Cooldown: cfg.NudgeCooldown(),
	})
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("register tools: %w", err)
	}

	b := bus.New()
	eng := engine.New(cfg.ToEngine(), habits, sc, agg, router, client, reg, st, b)

	rt := &runtime{
		cfg:    cfg,
		habits: habits,
		store:  st,
		engine: eng,
		client: client,
		stats:  stats,
		bus:    b,
	}
	cleanup := func() {
		b.Close()
		if err := st.Close(); err != nil {
			log.Warn("store close: %v", err)
		}
	}
	return rt, cleanup, nil
}

func buildBackends(cfg *config.Config) ([]inference.Backend, error) {
	apiKey := cfg.LLM.Anthropic.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	backends := []inference.Backend{
		inference.NewCloud(inference.CloudConfig{
			APIKey:    apiKey,
			Model:     cfg.LLM.Anthropic.Model,
			MaxTokens: cfg.Engine.MaxTokens,
		}),
	}

	if cfg.LLM.Hybrid.Enabled {
		hybrid, err := inference.NewHybrid(inference.OllamaConfig{
			BaseURL:   cfg.LLM.Hybrid.Endpoint,
			APIKey:    cfg.LLM.Hybrid.APIKey,
			Model:     cfg.LLM.Hybrid.Model,
			MaxTokens: cfg.Engine.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("hybrid backend: %w", err)
		}
		backends = append(backends, hybrid)
	}

	local, err := inference.NewLocal(inference.OllamaConfig{
		BaseURL:   cfg.LLM.Ollama.Endpoint,
		Model:     cfg.LLM.Ollama.Model,
		MaxTokens: cfg.Engine.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("local backend: %w", err)
	}
	backends = append(backends, local, inference.NewMock())

	return backends, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// DAEMON AND CYCLE COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the decision engine daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := osignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, cleanup, err := buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			log.Info("impetus v%s starting with %d habits", version, rt.habits.Len())

			if rt.cfg.Server.Enabled {
				srv := server.New(server.Config{
					Addr:            rt.cfg.Server.Addr,
					ShutdownTimeout: 5 * time.Second,
				}, rt.habits, rt.stats, rt.client, rt.engine, rt.store, rt.bus)
				go func() {
					if err := srv.Start(ctx); err != nil {
						log.Error("server: %v", err)
					}
				}()
			}

			rt.engine.Run(ctx)
			log.Info("shutting down")
			return nil
		},
	}
}

func cycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one decision cycle now and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, cleanup, err := buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			res := rt.engine.RunCycle(ctx, engine.TriggerManual)

			fmt.Printf("cycle %s\n", res.ID)
			fmt.Printf("  path:       %s (%s)\n", res.Decision.Path, res.Decision.Reason)
			fmt.Printf("  backend:    %s\n", res.Backend)
			fmt.Printf("  action:     %s\n", res.Action)
			fmt.Printf("  confidence: %.2f\n", res.Confidence)
			fmt.Printf("  duration:   %s\n", res.Duration.Round(time.Millisecond))
			if res.ToolResult != nil && !res.ToolResult.Success {
				fmt.Printf("  failed:     %s\n", res.ToolResult.Error)
			}
			for _, e := range res.Errors {
				fmt.Printf("  error:      %s\n", e)
			}
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// HABIT COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func habitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "habits",
		Short: "List habits with derived scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, cleanup, err := buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			all := rt.habits.All()
			if len(all) == 0 {
				fmt.Println("no habits configured; add one with: impetus habits add <id> <name>")
				return nil
			}
			sort.Slice(all, func(i, j int) bool { return all[i].MomentumScore > all[j].MomentumScore })

			now := time.Now()
			fmt.Printf("%-14s %-20s %-10s %5s %8s %6s %10s\n",
				"ID", "NAME", "CATEGORY", "DIFF", "MOMENTUM", "STREAK", "COOLDOWN")
			for _, h := range all {
				cooldown := "-"
				if h.OnCooldown(now) {
					cooldown = h.CooldownUntil.Format("15:04")
				}
				fmt.Printf("%-14s %-20s %-10s %5d %8d %6d %10s\n",
					h.ID, h.Name, h.Category, h.Difficulty, h.MomentumScore, h.StreakCount, cooldown)
			}
			return nil
		},
	}
	cmd.AddCommand(habitsAddCmd())
	cmd.AddCommand(habitsRemoveCmd())
	return cmd
}

func habitsAddCmd() *cobra.Command {
	var category string
	var difficulty int
	cmd := &cobra.Command{
		Use:   "add <id> <name>",
		Short: "Add a habit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, cleanup, err := buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if rt.habits.Get(args[0]) != nil {
				return fmt.Errorf("habit %q already exists", args[0])
			}
			if difficulty < 1 || difficulty > 5 {
				return fmt.Errorf("difficulty must be 1-5")
			}

			h := &habit.State{
				ID:         args[0],
				Name:       args[1],
				Category:   category,
				Difficulty: difficulty,
			}
			rt.habits.Put(h)
			if err := rt.store.SaveHabit(ctx, h); err != nil {
				return fmt.Errorf("save habit: %w", err)
			}
			fmt.Printf("added habit %s (%s)\n", h.ID, h.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "general", "habit category")
	cmd.Flags().IntVar(&difficulty, "difficulty", 3, "difficulty 1-5")
	return cmd
}

func habitsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a habit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, cleanup, err := buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if rt.habits.Get(args[0]) == nil {
				return fmt.Errorf("no habit with id %q", args[0])
			}
			rt.habits.Remove(args[0])
			if err := rt.store.DeleteHabit(ctx, args[0]); err != nil {
				return fmt.Errorf("delete habit: %w", err)
			}
			fmt.Printf("removed habit %s\n", args[0])
			return nil
		},
	}
}

func completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <id>",
		Short: "Record a habit completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, cleanup, err := buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			h := rt.engine.Complete(ctx, args[0], time.Now())
			if h == nil {
				return fmt.Errorf("no habit with id %q", args[0])
			}
			fmt.Printf("%s completed: streak %d, momentum %d\n", h.Name, h.StreakCount, h.MomentumScore)
			return nil
		},
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id> <completed|dismissed|ignored|snoozed>",
		Short: "Record how the last nudge for a habit went",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, cleanup, err := buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			outcome := habit.Outcome(args[1])
			switch outcome {
			case habit.OutcomeCompleted, habit.OutcomeDismissed, habit.OutcomeIgnored, habit.OutcomeSnoozed:
			default:
				return fmt.Errorf("unknown outcome %q", args[1])
			}

			h := rt.engine.ResolveNudge(ctx, args[0], outcome)
			if h == nil {
				return fmt.Errorf("no open nudge for habit %q", args[0])
			}
			fmt.Printf("%s nudge resolved as %s (resistance %.2f)\n", h.Name, outcome, h.ResistanceScore)
			return nil
		},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATUS AND CONFIG COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend capabilities and routing stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, cleanup, err := buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			caps := rt.client.Capabilities()
			fmt.Printf("impetus v%s\n\n", version)
			fmt.Println("capabilities:")
			fmt.Printf("  cloud configured:  %t\n", caps.CloudConfigured)
			fmt.Printf("  hybrid reachable:  %t (model ready: %t)\n", caps.HybridReachable, caps.HybridModelReady)
			fmt.Printf("  local reachable:   %t (model ready: %t)\n", caps.LocalReachable, caps.LocalModelReady)

			fmt.Println("\nrouting stats:")
			for _, p := range []routing.Path{routing.PathLocal, routing.PathCloud, routing.PathMock} {
				fmt.Printf("  %-6s avg %-8s failures %d (%d samples)\n",
					p, rt.stats.AverageLatency(p).Round(time.Millisecond),
					rt.stats.Failures(p), rt.stats.SampleCount(p))
			}

			n, err := rt.store.CycleCount(ctx)
			if err == nil {
				fmt.Printf("\n%d habits, %d recorded cycles\n", rt.habits.Len(), n)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config file if none exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfgPath
			if path == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				path = filepath.Join(home, ".impetus", "config.yaml")
			}
			if _, err := config.LoadFromPath(path); err != nil {
				return err
			}
			fmt.Printf("config ready at %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	})

	return cmd
}
