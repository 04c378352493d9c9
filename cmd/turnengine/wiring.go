package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/agentloom/turnengine/internal/agent"
	agentctx "github.com/agentloom/turnengine/internal/agent/context"
	"github.com/agentloom/turnengine/internal/agent/providers"
	agentrouting "github.com/agentloom/turnengine/internal/agent/routing"
	"github.com/agentloom/turnengine/internal/autonomy"
	"github.com/agentloom/turnengine/internal/channels"
	"github.com/agentloom/turnengine/internal/channels/discord"
	"github.com/agentloom/turnengine/internal/channels/slack"
	"github.com/agentloom/turnengine/internal/channels/telegram"
	"github.com/agentloom/turnengine/internal/channels/websocket"
	"github.com/agentloom/turnengine/internal/config"
	"github.com/agentloom/turnengine/internal/memory"
	"github.com/agentloom/turnengine/internal/pipeline"
	"github.com/agentloom/turnengine/internal/routing"
	"github.com/agentloom/turnengine/internal/sessions"
	"github.com/agentloom/turnengine/internal/tools/cron"
	"github.com/agentloom/turnengine/internal/tools/exec"
	"github.com/agentloom/turnengine/internal/tools/files"
	goalstools "github.com/agentloom/turnengine/internal/tools/goals"
	sessionstools "github.com/agentloom/turnengine/internal/tools/sessions"
	"github.com/agentloom/turnengine/internal/tools/websearch"
	"github.com/agentloom/turnengine/pkg/models"
)

// buildProviders constructs the configured LLM providers and, when more
// than one is configured (or fallback is explicitly enabled), wraps them in
// an agent/routing.Router. The Router itself satisfies agent.LLMProvider, so
// it slots into LoopConfig exactly like a single provider would, the same
// way the gateway's multi-provider setups worked.
func buildProviders(cfg *config.Config) (agent.LLMProvider, error) {
	config.ResolveSecretRefs(cfg)

	built := make(map[string]agent.LLMProvider, len(cfg.LLM.Providers))
	for name, pc := range cfg.LLM.Providers {
		switch name {
		case "anthropic":
			p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
				APIKey:  pc.APIKey,
				BaseURL: pc.BaseURL,
			})
			if err != nil {
				return nil, fmt.Errorf("anthropic provider: %w", err)
			}
			built[name] = p
		case "openai":
			built[name] = providers.NewOpenAIProvider(pc.APIKey)
		case "bedrock":
			p, err := providers.NewBedrockProvider(providers.BedrockConfig{Region: pc.Region})
			if err != nil {
				return nil, fmt.Errorf("bedrock provider: %w", err)
			}
			built[name] = p
		default:
			return nil, fmt.Errorf("unknown llm provider %q", name)
		}
	}
	if len(built) == 0 {
		return nil, fmt.Errorf("at least one llm provider must be configured")
	}
	if len(built) == 1 && !cfg.LLM.Fallback.Enabled {
		for _, p := range built {
			return p, nil
		}
	}

	fallback := agentrouting.Target{}
	if len(cfg.LLM.Fallback.Chain) > 0 {
		fallback.Provider = cfg.LLM.Fallback.Chain[0]
	}
	return agentrouting.NewRouter(agentrouting.Config{
		DefaultProvider: cfg.LLM.DefaultProvider,
		Fallback:        fallback,
	}, built), nil
}

// buildSessionStore follows the teacher's layered-store idiom: a base
// memory store wrapped with per-session write locking so concurrent turns
// on one session always serialize even if the orchestrator's own
// per-conversation queue is ever bypassed (e.g. direct calls from tests).
func buildSessionStore(cfg *config.Config) (sessions.Store, error) {
	if cfg.Session.Backend != "memory" {
		return nil, fmt.Errorf("session.backend %q is not wired in this build", cfg.Session.Backend)
	}
	base := sessions.NewMemoryStore()
	locks := sessions.NewSessionLockManager(cfg.Session.SessionIdleTimeout)
	return sessions.NewLockingStore(base, locks, "turnengine"), nil
}

// registerChannels builds the registry of enabled channel adapters. The
// websocket adapter, when enabled, is also returned directly so runServe can
// mount its http.Handler alongside the webhook server.
func registerChannels(cfg *config.Config, logger *slog.Logger) (*channels.Registry, *websocket.Adapter, error) {
	registry := channels.NewRegistry()

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(telegram.Config{Token: cfg.Channels.Telegram.Token})
		if err != nil {
			return nil, nil, fmt.Errorf("telegram adapter: %w", err)
		}
		registry.Register(adapter)
	}
	if cfg.Channels.Discord.Enabled {
		adapter, err := discord.NewAdapter(discord.Config{Token: cfg.Channels.Discord.Token})
		if err != nil {
			return nil, nil, fmt.Errorf("discord adapter: %w", err)
		}
		registry.Register(adapter)
	}
	if cfg.Channels.Slack.Enabled {
		registry.Register(slack.NewAdapter(slack.Config{
			BotToken: cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
		}))
	}

	var wsAdapter *websocket.Adapter
	if cfg.Channels.Websocket.Enabled {
		wsAdapter = websocket.NewAdapter(websocket.Config{}, logger)
		registry.Register(wsAdapter)
	}
	return registry, wsAdapter, nil
}

// buildApprovalChecker converts the static require-approval list from
// config into an agent.ApprovalChecker policy. A nil return leaves the loop
// gate disabled, matching ApprovalChecker's own nil-is-off convention.
func buildApprovalChecker(cfg *config.Config) *agent.ApprovalChecker {
	if len(cfg.Tools.RequireApproval) == 0 && len(cfg.Tools.ElevatedTools) == 0 {
		return nil
	}
	return agent.NewApprovalChecker(&agent.ApprovalPolicy{
		RequireApproval: cfg.Tools.RequireApproval,
	})
}

// registerTools populates runtime's tool registry from the configured
// workspace. Tools that need external credentials the config doesn't carry
// (web search backends) are still registered with whatever defaults their
// package provides, since an unconfigured backend simply errors per-call
// rather than failing startup.
func registerTools(cfg *config.Config, runtime *agent.Runtime, autonomyStore autonomy.Store, sessionStore sessions.Store) {
	workspace := filepath.Join(cfg.Server.DataDir, "workspace")
	filesCfg := files.Config{Workspace: workspace, MaxReadBytes: 1 << 20}
	runtime.RegisterTool(files.NewReadTool(filesCfg))
	runtime.RegisterTool(files.NewWriteTool(filesCfg))
	runtime.RegisterTool(files.NewEditTool(filesCfg))
	runtime.RegisterTool(files.NewApplyPatchTool(filesCfg))

	execManager := exec.NewManager(workspace)
	runtime.RegisterTool(exec.NewExecTool("exec", execManager))
	runtime.RegisterTool(exec.NewProcessTool(execManager))

	runtime.RegisterTool(websearch.NewWebSearchTool(&websearch.Config{}))
	runtime.RegisterTool(websearch.NewWebFetchTool(&websearch.FetchConfig{MaxChars: 50000}))

	runtime.RegisterTool(sessionstools.NewListTool(sessionStore, "default"))
	runtime.RegisterTool(sessionstools.NewHistoryTool(sessionStore))
	runtime.RegisterTool(sessionstools.NewStatusTool(sessionStore))
	runtime.RegisterTool(sessionstools.NewSendTool(sessionStore, runtime))

	if cfg.Autonomy.Enabled && autonomyStore != nil {
		runtime.RegisterTool(cron.NewTool(autonomyStore, "default"))
	}
}

// registerGoalTools wires the goal-management tools the LLM calls to
// signal task/goal progress (spec §4.9 step 6) into runtime. Called
// separately from registerTools because it depends on the goal/diary
// stores and channel registry, which are built after the base tool set.
func registerGoalTools(runtime *agent.Runtime, goalStore autonomy.GoalStore, diaryStore autonomy.DiaryStore, notifier autonomy.GoalNotifier) {
	if goalStore == nil {
		return
	}
	runtime.RegisterTool(goalstools.NewUpdateTaskTool(goalStore))
	runtime.RegisterTool(goalstools.NewMilestoneTool(diaryStore, goalStore, notifier))
}

// buildPipeline assembles the ten-system turn pipeline in Order() sequence,
// wiring each system's dependency seam to its concrete implementation.
// autoProvider is nil when autonomy is disabled, in which case ContextBuilding
// simply never injects goal/task/diary context (spec §4.3's auto-mode clause
// is then unreachable since no turn carries AutoContext.AutoMode).
func buildPipeline(cfg *config.Config, runtime *agent.Runtime, memStore *memory.ItemStore, compactor *agent.CompactionManager, chRegistry *channels.Registry, autoProvider pipeline.AutoContextProvider, logger *slog.Logger) (*pipeline.Pipeline, error) {
	adapter := memory.PipelineAdapter{Store: memStore}
	router := routing.New(routing.RegistryResolver{Registry: chRegistry}, nil, logger)
	packer := agentctx.NewPacker(agentctx.DefaultPackOptions())

	disabled := make(map[string]bool, len(cfg.Pipeline.DisabledSystems))
	for _, name := range cfg.Pipeline.DisabledSystems {
		disabled[name] = true
	}

	candidates := []pipeline.System{
		pipeline.InputSanitization{},
		pipeline.SkillRouting{DefaultSkill: "general"},
		pipeline.AutoCompaction{Manager: compactor},
		pipeline.ContextBuilding{
			Packer:          packer,
			Recaller:        adapter,
			AutoProvider:    autoProvider,
			MaxMemoryTokens: cfg.Memory.BudgetTokens,
		},
		pipeline.DynamicTier{DefaultTier: "standard", DefaultEffort: "medium"},
		pipeline.ToolLoopExecution{Loop: runtime},
		pipeline.MemoryPersist{Writer: adapter, Extract: extractMemoryItems},
		pipeline.RagIndexing{},
		pipeline.OutgoingResponsePreparation{},
		pipeline.FeedbackGuarantee{},
		pipeline.ResponseRouting{Router: router},
	}

	systems := make([]pipeline.System, 0, len(candidates))
	for _, s := range candidates {
		if !disabled[s.Name()] {
			systems = append(systems, s)
		}
	}
	return pipeline.New(logger, systems...)
}

// buildAutonomyGoalStores opens the goal and diary stores under
// cfg.Server.DataDir/auto, the spec §6 layout (`auto/goals.json`,
// `auto/diary/YYYY-MM-DD.jsonl`). Returns nil, nil when autonomy is
// disabled, so callers can pass the results straight through to
// autonomy.GoalContextProvider without a nil check at every call site.
func buildAutonomyGoalStores(cfg *config.Config) (autonomy.GoalStore, autonomy.DiaryStore, error) {
	if !cfg.Autonomy.Enabled {
		return nil, nil, nil
	}
	goalStore, err := autonomy.NewFileGoalStore(filepath.Join(cfg.Server.DataDir, "auto", "goals.json"))
	if err != nil {
		return nil, nil, fmt.Errorf("open goal store: %w", err)
	}
	diaryStore, err := autonomy.NewFileDiaryStore(filepath.Join(cfg.Server.DataDir, "auto", "diary"))
	if err != nil {
		return nil, nil, fmt.Errorf("open diary store: %w", err)
	}
	return goalStore, diaryStore, nil
}

// extractMemoryItems is conservative by design: nothing in a base turn is
// durable enough to promote to long-term memory without a skill-specific
// extraction step, so the default build persists nothing. A deployment that
// wants durable memory writes supplies its own extractor here.
func extractMemoryItems(tc *models.TurnContext) []models.MemoryItem {
	return nil
}

// buildLoopConfig assembles the agentic loop's configuration from cfg,
// wiring the approval checker and plan mode gate into the same precedence
// order executeToolsPhase already enforces.
func buildLoopConfig(cfg *config.Config, approvalChecker *agent.ApprovalChecker, planGate agent.PlanGate) *agent.LoopConfig {
	loopCfg := agent.DefaultLoopConfig()
	loopCfg.MaxIterations = cfg.LLM.MaxIterations
	loopCfg.MaxTokens = cfg.LLM.MaxTokens
	loopCfg.MaxToolCalls = cfg.Tools.MaxToolCalls
	loopCfg.ExecutorConfig = &agent.ExecutorConfig{
		MaxConcurrency: cfg.Tools.MaxConcurrent,
		DefaultTimeout: cfg.Tools.DefaultTimeout,
	}
	loopCfg.RequireApproval = cfg.Tools.RequireApproval
	loopCfg.ApprovalChecker = approvalChecker
	loopCfg.ElevatedTools = cfg.Tools.ElevatedTools
	if cfg.PlanMode.Enabled {
		loopCfg.PlanGate = planGate
	}
	return loopCfg
}

// buildCompactionManager wires the session compaction threshold from config
// into the same packer the pipeline's ContextBuilding stage uses, so both
// stages agree on what "the current window" means.
func buildCompactionManager(cfg *config.Config) *agent.CompactionManager {
	packer := agentctx.NewPacker(agentctx.DefaultPackOptions())
	return agent.NewCompactionManager(&agent.CompactionConfig{
		Enabled:          true,
		ThresholdPercent: cfg.Session.CompactionThresholdPercent,
	}, packer)
}
