package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/zulandar/parley/internal/api"
	"github.com/zulandar/parley/internal/cases"
	"github.com/zulandar/parley/internal/config"
	"github.com/zulandar/parley/internal/db"
	"github.com/zulandar/parley/internal/dialogue"
	"github.com/zulandar/parley/internal/provider"
	"github.com/zulandar/parley/internal/stats"
	"github.com/zulandar/parley/internal/store"
	"github.com/zulandar/parley/internal/sweeper"
)

// setFields names the session data fields that are set-typed and must be
// rebuilt from their serialized array form on read.
var setFields = []string{"achieved_components"}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Parley API server",
		Long:  "Loads the config, connects the stores and providers, and serves the dialogue API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		turns    store.TurnStore
		states   store.StateStore
		recorder *stats.Recorder
		sweep    *sweeper.Sweeper
	)
	if cfg.Database.Driver == "memory" {
		turns = store.NewMemoryTurnStore()
		states = store.NewMemoryStateStore(setFields)
		fmt.Fprintln(out, "Using in-memory stores; nothing will survive a restart")
	} else {
		gdb, err := db.Connect(cfg.Database)
		if err != nil {
			return err
		}
		if err := db.AutoMigrate(gdb); err != nil {
			return err
		}
		pool := store.NewDBFrom(gdb)
		turns = store.NewGormTurnStore(pool)
		states = store.NewGormStateStore(pool, setFields)
		recorder = stats.NewRecorder(pool)
		if cfg.Sweeper.Enabled {
			sweep, err = sweeper.New(pool, cfg.Sweeper)
			if err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "Connected to %s database\n", cfg.Database.Driver)
	}

	gateway, err := buildGateway(ctx, cfg, turns)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Providers registered: %v (default %s)\n", gateway.Registered(), gateway.DefaultID())

	registry, err := cases.NewRegistry(cfg.Cases)
	if err != nil {
		return err
	}

	orchestratorOpts := dialogue.Opts{
		Gateway:  gateway,
		States:   states,
		Registry: registry,
	}
	if recorder != nil {
		orchestratorOpts.Stats = recorder
	}
	orchestrator, err := dialogue.New(orchestratorOpts)
	if err != nil {
		return err
	}

	if sweep != nil {
		go sweep.Run(ctx)
		fmt.Fprintf(out, "Sweeper scheduled: %s, retention %d days\n", cfg.Sweeper.Schedule, cfg.Sweeper.RetentionDays)
	}

	return api.Start(ctx, api.StartOpts{
		Orchestrator: orchestrator,
		Registry:     registry,
		Stats:        recorder,
		Port:         cfg.Server.Port,
		Out:          out,
	})
}

// buildGateway registers one adapter per configured provider. A provider
// with no api key is skipped; at least one must be configured.
func buildGateway(ctx context.Context, cfg *config.Config, turns store.TurnStore) (*provider.Gateway, error) {
	gateway := provider.NewGateway(provider.GatewayOpts{
		MaxRetries: cfg.Gateway.MaxRetries,
		Timeout:    cfg.Gateway.Timeout(),
		Backoff:    cfg.Gateway.Backoff(),
	})

	if cfg.Providers.OpenAI.APIKey != "" {
		adapter, err := provider.NewOpenAI(provider.OpenAIOpts{
			APIKey:        cfg.Providers.OpenAI.APIKey,
			Model:         cfg.Providers.OpenAI.DefaultModel,
			Turns:         turns,
			MaxConcurrent: cfg.Gateway.MaxConcurrentCalls,
		})
		if err != nil {
			return nil, err
		}
		gateway.Register(adapter, false)
	}
	if cfg.Providers.Gemini.APIKey != "" {
		adapter, err := provider.NewGemini(ctx, provider.GeminiOpts{
			APIKey:        cfg.Providers.Gemini.APIKey,
			Model:         cfg.Providers.Gemini.DefaultModel,
			Turns:         turns,
			MaxConcurrent: cfg.Gateway.MaxConcurrentCalls,
		})
		if err != nil {
			return nil, err
		}
		gateway.Register(adapter, false)
	}

	if len(gateway.Registered()) == 0 {
		return nil, fmt.Errorf("no providers configured: set at least one api key")
	}
	return gateway, nil
}
