package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oranlabs/ricagent/internal/admin"
	"github.com/oranlabs/ricagent/internal/agent"
	"github.com/oranlabs/ricagent/internal/config"
	"github.com/oranlabs/ricagent/internal/e2ap"
	"github.com/oranlabs/ricagent/internal/logging"
	"github.com/oranlabs/ricagent/internal/transport"
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "ricagent",
		Short:         "Control-plane protocol agent",
		Long:          "ricagent maintains a session to a remote controller: it connects, runs the setup procedure, and serves subscription and reset procedures until shut down.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func run(parent context.Context, configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	log := logging.New(cfg.Name, cfg.LogLevel)
	log.Info().
		Str("ric", cfg.RICAddress).
		Uint64("node_id", cfg.NodeID).
		Dur("tick_period", cfg.TickPeriod).
		Msg("starting")

	if cfg.RICAddress == "" {
		return errors.New("ric_address is required; pass --config")
	}

	functions := make([]e2ap.RANFunction, 0, len(cfg.Functions))
	for _, fn := range cfg.Functions {
		functions = append(functions, e2ap.RANFunction{
			ID:          fn.ID,
			Revision:    fn.Revision,
			Description: fn.Description,
		})
	}

	ep := transport.NewTCPEndpoint(transport.TCPConfig{})
	a := agent.New(agent.Config{
		Name:              cfg.Name,
		BindAddress:       cfg.BindAddress,
		RICAddress:        cfg.RICAddress,
		NodeID:            cfg.NodeID,
		Functions:         functions,
		SetupTimeoutTicks: cfg.SetupTimeoutTicks,
		MaxSubscriptions:  cfg.MaxSubscriptions,
		Backoff: agent.BackoffConfig{
			InitialTicks: cfg.Backoff.InitialTicks,
			Multiplier:   cfg.Backoff.Multiplier,
			MaxTicks:     cfg.Backoff.MaxTicks,
			Jitter:       cfg.Backoff.Jitter,
		},
	}, ep, log)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AdminAddress != "" {
		srv := admin.New(cfg.AdminAddress, a, log)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("admin shutdown incomplete")
			}
		}()
	}

	err := a.Run(ctx, cfg.TickPeriod)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("shutdown complete")
		return nil
	}
	return err
}
