package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentloom/turnengine/internal/agent"
	"github.com/agentloom/turnengine/internal/autonomy"
	"github.com/agentloom/turnengine/internal/config"
	"github.com/agentloom/turnengine/internal/memory"
	"github.com/agentloom/turnengine/internal/orchestrator"
	"github.com/agentloom/turnengine/internal/pipeline"
	"github.com/agentloom/turnengine/internal/planmode"
	"github.com/agentloom/turnengine/internal/sessions"
	"github.com/agentloom/turnengine/internal/webhook"
	"github.com/agentloom/turnengine/pkg/models"
)

// buildServeCmd mirrors the teacher's "serve" command: load config, start
// every configured component, block until a shutdown signal, then drain.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the turn engine server",
		Long: `Start the turn engine server with all configured channels, providers,
and tools.

The server will:
1. Load and validate configuration from the given file
2. Initialize the session store, structured memory, and tool registry
3. Start the turn pipeline, orchestrator, and webhook HTTP server
4. Start the autonomy scheduler, if enabled
5. Start any enabled channel adapters

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "turnengine.yaml", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

// turnRunnerAdapter implements webhook.TurnRunner by building a TurnContext
// for the webhook channel and running it through the orchestrator, then
// reading the OutgoingResponse back off the same TurnContext the
// orchestrator mutated in place: webhook delivery never needs a registered
// channels.ChannelPort because ResponseRouting degrades gracefully when no
// port is registered for a session's channel.
type turnRunnerAdapter struct {
	sessionStore sessions.Store
	orchestrator *orchestrator.TurnOrchestrator
}

func (a *turnRunnerAdapter) RunTurn(ctx context.Context, msg *models.Message) (*models.OutgoingResponse, error) {
	session, err := a.sessionStore.GetOrCreate(ctx, msg.SessionID, "default", models.ChannelWebhook, msg.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("get or create session: %w", err)
	}
	msg.Channel = models.ChannelWebhook
	msg.Direction = models.DirectionInbound
	msg.Role = models.RoleUser

	tc := &models.TurnContext{Session: session, Inbound: msg}
	if _, err := a.orchestrator.ProcessMessage(ctx, tc); err != nil {
		return nil, err
	}
	return tc.OutgoingResponse, nil
}

// runServe implements the serve command logic.
func runServe(ctx context.Context, configPath string, debug bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting turn engine", "version", version, "commit", commit, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Logging.Format == "json" {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sessionStore, err := buildSessionStore(cfg)
	if err != nil {
		return fmt.Errorf("build session store: %w", err)
	}

	memStore, err := memory.NewItemStore(cfg.Memory.Dir)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}

	provider, err := buildProviders(cfg)
	if err != nil {
		return fmt.Errorf("build llm providers: %w", err)
	}

	var autonomyStore autonomy.Store
	if cfg.Autonomy.Enabled {
		autonomyStore = autonomy.NewMemStore()
	}

	goalStore, diaryStore, err := buildAutonomyGoalStores(cfg)
	if err != nil {
		return fmt.Errorf("build autonomy goal stores: %w", err)
	}

	planManager := planmode.NewManager(planmode.NewMemoryStore())
	approvalChecker := buildApprovalChecker(cfg)
	loopCfg := buildLoopConfig(cfg, approvalChecker, planManager)

	runtime := agent.NewRuntime(provider, sessionStore, loopCfg)
	registerTools(cfg, runtime, autonomyStore, sessionStore)

	compactor := buildCompactionManager(cfg)

	chRegistry, wsAdapter, err := registerChannels(cfg, logger)
	if err != nil {
		return fmt.Errorf("register channels: %w", err)
	}
	if wsAdapter != nil {
		if err := wsAdapter.Start(ctx); err != nil {
			return fmt.Errorf("start websocket channel: %w", err)
		}
	}

	var autoProvider pipeline.AutoContextProvider
	if goalStore != nil {
		autoProvider = autonomy.GoalContextProvider{Goals: goalStore, Diary: diaryStore}
	}

	p, err := buildPipeline(cfg, runtime, memStore, compactor, chRegistry, autoProvider, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	turnOrchestrator := orchestrator.New(p, 0, logger)

	var scheduler *autonomy.Scheduler
	var goalRunner *autonomy.GoalRunner
	if cfg.Autonomy.Enabled {
		executor := autonomy.NewAgentExecutor(turnOrchestrator, sessionStore, autonomy.AgentExecutorConfig{Logger: logger})
		scheduler = autonomy.NewScheduler(autonomyStore, executor, autonomy.SchedulerConfig{
			PollInterval:    cfg.Autonomy.Cron.PollInterval,
			LockDuration:    cfg.Autonomy.Cron.LockDuration,
			MaxConcurrency:  cfg.Autonomy.MaxConcurrentGoals,
		})
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start autonomy scheduler: %w", err)
		}
		logger.Info("autonomy scheduler started", "tick_interval", cfg.Autonomy.TickInterval)

		notifier := autonomy.NewChannelNotifier(chRegistry)
		registerGoalTools(runtime, goalStore, diaryStore, notifier)

		goalRunner = autonomy.NewGoalRunner(goalStore, diaryStore, sessionStore, turnOrchestrator, notifier, nil, autonomy.GoalRunnerConfig{
			TickInterval: cfg.Autonomy.TickInterval,
			Logger:       logger,
		})
		if err := goalRunner.Start(ctx); err != nil {
			return fmt.Errorf("start goal runner: %w", err)
		}
		logger.Info("goal runner started", "tick_interval", cfg.Autonomy.TickInterval)
	}

	var httpServer *http.Server
	if cfg.Webhook.Enabled || wsAdapter != nil {
		mux := http.NewServeMux()
		if cfg.Webhook.Enabled {
			runner := &turnRunnerAdapter{sessionStore: sessionStore, orchestrator: turnOrchestrator}
			webhookServer := webhook.New(webhook.Config{
				Token:          cfg.Webhook.Token,
				MaxPayloadSize: cfg.Webhook.MaxBodyBytes,
				Mappings:       webhookMappings(cfg),
			}, runner, logger)
			mux.Handle("/", webhookServer.Handler())
		}
		if wsAdapter != nil {
			mux.Handle("/ws", wsAdapter.Handler())
		}

		httpServer = &http.Server{
			Addr:    cfg.Server.ListenAddr,
			Handler: mux,
		}
		go func() {
			logger.Info("http server listening", "addr", cfg.Server.ListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("http server stopped unexpectedly", "error", err)
			}
		}()
	}

	logger.Info("turn engine started")
	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if wsAdapter != nil {
		if err := wsAdapter.Stop(shutdownCtx); err != nil {
			logger.Error("websocket channel shutdown error", "error", err)
		}
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Error("autonomy scheduler shutdown error", "error", err)
		}
	}
	if goalRunner != nil {
		if err := goalRunner.Stop(shutdownCtx); err != nil {
			logger.Error("goal runner shutdown error", "error", err)
		}
	}

	logger.Info("turn engine stopped gracefully")
	return nil
}

// webhookMappings has no config-level equivalent yet beyond the bearer
// token and per-mapping HMAC secrets, so each HMAC secret becomes an
// anonymous mapping named after its key.
func webhookMappings(cfg *config.Config) []webhook.Mapping {
	mappings := make([]webhook.Mapping, 0, len(cfg.Webhook.HMACSecrets))
	for name, secret := range cfg.Webhook.HMACSecrets {
		mappings = append(mappings, webhook.Mapping{Name: name, HMACSecret: secret})
	}
	return mappings
}
