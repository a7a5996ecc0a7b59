package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holdinghq/hq/internal/adapters/github"
	"github.com/holdinghq/hq/internal/adapters/stripepay"
	"github.com/holdinghq/hq/internal/ai"
	"github.com/holdinghq/hq/internal/approval"
	"github.com/holdinghq/hq/internal/autopilot"
	"github.com/holdinghq/hq/internal/config"
	"github.com/holdinghq/hq/internal/gateway"
	"github.com/holdinghq/hq/internal/kpi"
	"github.com/holdinghq/hq/internal/logging"
	"github.com/holdinghq/hq/internal/notify"
	"github.com/holdinghq/hq/internal/registry"
	"github.com/holdinghq/hq/internal/runs"
	"github.com/holdinghq/hq/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HQ backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			if configPath == "" {
				configPath = config.DefaultConfigPath()
			}
			return serve(configPath)
		},
	}
}

func serve(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := logging.Init(cfg.Logging); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logging.WithComponent("serve")

	if err := os.MkdirAll(cfg.Storage.DataPath, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// Run history.
	store, err := runs.NewStore(cfg.Storage.DataPath)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer func() { _ = store.Close() }()

	// Autopilot policy persistence.
	configStore, err := autopilot.NewSQLiteConfigStoreFromPath(filepath.Join(cfg.Storage.DataPath, "config.db"))
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer func() { _ = configStore.Close() }()

	// Notification channels.
	channels := []notify.Channel{notify.NewLogChannel()}
	if cfg.Telegram != nil && cfg.Telegram.Enabled {
		channels = append(channels, notify.NewTelegramChannel(cfg.Telegram.BotToken, cfg.Telegram.ChatID))
	}
	notifier := notify.NewDispatcher(channels...)
	defer notifier.Flush()

	// Executor and its collaborators.
	reg := registry.Default()
	aiClient := ai.NewClient(cfg.AI)
	hub := gateway.NewHub()
	executor := runs.NewGatewayExecutor(reg, aiClient, store, hub)

	// Autopilot.
	loc, err := time.LoadLocation(cfg.Autopilot.Timezone)
	if err != nil {
		return fmt.Errorf("load autopilot timezone: %w", err)
	}
	pilot := autopilot.NewController(reg, configStore, executor, loc)
	pilot.SetNotifier(notifier)

	// Approvals.
	approvals := approval.NewManager(cfg.Approvals, executor, notifier)

	// Scheduler.
	sched, err := scheduler.NewRunner(cfg.Scheduler, scheduler.DefaultJobs(), store, pilot, aiClient)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	sched.SetApprovalSink(approvals)

	// KPI aggregation.
	var gh *github.Client
	if cfg.GitHub != nil && cfg.GitHub.Token != "" {
		gh = github.NewClient(cfg.GitHub.Token)
	}
	var stripe stripepay.Source
	if cfg.Stripe != nil && cfg.Stripe.APIKey != "" {
		stripe = stripepay.NewClient(cfg.Stripe.APIKey)
	}
	kpis := kpi.NewAggregator(cfg.Platforms, gh, stripe, store)

	server := gateway.NewServer(cfg.Gateway, gateway.Deps{
		Registry:  reg,
		Store:     store,
		Executor:  executor,
		Autopilot: pilot,
		Scheduler: sched,
		Approvals: approvals,
		KPIs:      kpis,
		Hub:       hub,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go pilot.RunMidnightReset(ctx)
	go approvals.RunExpiry(ctx, 5*time.Minute)
	go sched.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	log.Info("hq started", "config", configPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}
