package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the root configuration for the engine.
type Config struct {
	Version int `yaml:"version" json:"version"`

	Server     ServerConfig     `yaml:"server" json:"server"`
	Session    SessionConfig    `yaml:"session" json:"session"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Tools      ToolsConfig      `yaml:"tools" json:"tools"`
	Pipeline   PipelineConfig   `yaml:"pipeline" json:"pipeline"`
	Memory     MemoryConfig     `yaml:"memory" json:"memory"`
	PlanMode   PlanModeConfig   `yaml:"plan_mode" json:"plan_mode"`
	Autonomy   AutonomyConfig   `yaml:"autonomy" json:"autonomy"`
	Channels   ChannelsConfig   `yaml:"channels" json:"channels"`
	Webhook    WebhookConfig    `yaml:"webhook" json:"webhook"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ServerConfig controls the process-level listener and data directories.
type ServerConfig struct {
	DataDir      string `yaml:"data_dir" json:"data_dir"`
	ListenAddr   string `yaml:"listen_addr" json:"listen_addr"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" json:"shutdown_grace"`
}

// SessionConfig controls session storage and history retention.
type SessionConfig struct {
	Backend           string        `yaml:"backend" json:"backend"` // "memory" | "sql"
	DSN               string        `yaml:"dsn" json:"dsn"`
	MaxMessagesPerSession int       `yaml:"max_messages_per_session" json:"max_messages_per_session"`
	CompactionThresholdPercent int  `yaml:"compaction_threshold_percent" json:"compaction_threshold_percent"`
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout" json:"session_idle_timeout"`
}

// LLMConfig configures model providers and routing fallback.
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" json:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" json:"providers"`
	Fallback        FallbackConfig            `yaml:"fallback" json:"fallback"`
	MaxTokens       int                       `yaml:"max_tokens" json:"max_tokens"`
	MaxIterations   int                       `yaml:"max_iterations" json:"max_iterations"`
}

// ProviderConfig is the per-provider credential and endpoint block.
type ProviderConfig struct {
	APIKey   string `yaml:"api_key" json:"api_key"`
	BaseURL  string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Model    string `yaml:"model" json:"model"`
	Region   string `yaml:"region,omitempty" json:"region,omitempty"`
}

// FallbackConfig lists the ordered chain of provider/model candidates tried on failure.
type FallbackConfig struct {
	Enabled    bool     `yaml:"enabled" json:"enabled"`
	Chain      []string `yaml:"chain" json:"chain"`
	MaxRetries int      `yaml:"max_retries" json:"max_retries"`
}

// ToolsConfig configures the registry and execution limits.
type ToolsConfig struct {
	MaxToolCalls     int           `yaml:"max_tool_calls" json:"max_tool_calls"`
	MaxConcurrent    int           `yaml:"max_concurrent" json:"max_concurrent"`
	DefaultTimeout   time.Duration `yaml:"default_timeout" json:"default_timeout"`
	RequireApproval  []string      `yaml:"require_approval" json:"require_approval"`
	ElevatedTools    []string      `yaml:"elevated_tools" json:"elevated_tools"`
}

// PipelineConfig toggles individual systems in the turn pipeline.
type PipelineConfig struct {
	DisabledSystems []string `yaml:"disabled_systems" json:"disabled_systems"`
}

// MemoryConfig configures the structured memory store and optional vector ranker.
type MemoryConfig struct {
	Dir       string         `yaml:"dir" json:"dir"`
	Ranker    RankerConfig   `yaml:"ranker" json:"ranker"`
	BudgetTokens int         `yaml:"budget_tokens" json:"budget_tokens"`
}

// RankerConfig configures the optional embedding-based semantic ranker.
type RankerConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Backend   string `yaml:"backend" json:"backend"` // "sqlite-vec" | "pgvector" | "lancedb"
	Dimension int    `yaml:"dimension" json:"dimension"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	DSN       string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// EmbeddingsConfig selects the embedding provider for the ranker.
type EmbeddingsConfig struct {
	Provider string `yaml:"provider" json:"provider"` // "openai" | "ollama"
	Model    string `yaml:"model" json:"model"`
	BaseURL  string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// PlanModeConfig controls the preview-before-execute flow.
type PlanModeConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	RequireApproval  bool          `yaml:"require_approval" json:"require_approval"`
	ApprovalTimeout  time.Duration `yaml:"approval_timeout" json:"approval_timeout"`
}

// AutonomyConfig controls the goal/task scheduler.
type AutonomyConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	TickInterval  time.Duration `yaml:"tick_interval" json:"tick_interval"`
	MaxConcurrentGoals int      `yaml:"max_concurrent_goals" json:"max_concurrent_goals"`
	Cron          CronConfig   `yaml:"cron" json:"cron"`
}

// CronConfig configures the cron-driven scheduled task trigger path.
type CronConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	PollInterval    time.Duration `yaml:"poll_interval" json:"poll_interval"`
	LockDuration    time.Duration `yaml:"lock_duration" json:"lock_duration"`
	MaxConcurrency  int           `yaml:"max_concurrency" json:"max_concurrency"`
}

// ChannelsConfig configures the inbound/outbound channel adapters.
type ChannelsConfig struct {
	Telegram  TelegramChannelConfig  `yaml:"telegram" json:"telegram"`
	Discord   DiscordChannelConfig   `yaml:"discord" json:"discord"`
	Slack     SlackChannelConfig     `yaml:"slack" json:"slack"`
	Websocket WebsocketChannelConfig `yaml:"websocket" json:"websocket"`
}

type TelegramChannelConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Token   string `yaml:"token" json:"token"`
}

type DiscordChannelConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Token   string `yaml:"token" json:"token"`
}

type SlackChannelConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	BotToken  string `yaml:"bot_token" json:"bot_token"`
	AppToken  string `yaml:"app_token" json:"app_token"`
}

type WebsocketChannelConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// WebhookConfig configures the inbound webhook surface.
type WebhookConfig struct {
	Enabled       bool              `yaml:"enabled" json:"enabled"`
	BasePath      string            `yaml:"base_path" json:"base_path"`
	Token         string            `yaml:"token" json:"token"`
	MaxBodyBytes  int64             `yaml:"max_body_bytes" json:"max_body_bytes"`
	HMACSecrets   map[string]string `yaml:"hmac_secrets" json:"hmac_secrets"`
	RetryBackoff  RetryConfig       `yaml:"retry_backoff" json:"retry_backoff"`
}

// RetryConfig is the shared exponential backoff policy shape.
type RetryConfig struct {
	BaseDelay  time.Duration `yaml:"base_delay" json:"base_delay"`
	Factor     float64       `yaml:"factor" json:"factor"`
	MaxAttempts int          `yaml:"max_attempts" json:"max_attempts"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // "text" | "json"
}

// ObservabilityConfig configures OpenTelemetry export.
type ObservabilityConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	ServiceName  string `yaml:"service_name" json:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	TraceSampleRatio float64 `yaml:"trace_sample_ratio" json:"trace_sample_ratio"`
}

// Default returns a Config populated with the engine's defaults.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Server: ServerConfig{
			DataDir:       "./data",
			ListenAddr:    ":8080",
			ShutdownGrace: 10 * time.Second,
		},
		Session: SessionConfig{
			Backend:                    "memory",
			MaxMessagesPerSession:      1000,
			CompactionThresholdPercent: 80,
			SessionIdleTimeout:         24 * time.Hour,
		},
		LLM: LLMConfig{
			MaxTokens:     4096,
			MaxIterations: 10,
			Fallback: FallbackConfig{
				MaxRetries: 3,
			},
		},
		Tools: ToolsConfig{
			MaxToolCalls:   50,
			MaxConcurrent:  4,
			DefaultTimeout: 30 * time.Second,
		},
		Memory: MemoryConfig{
			Dir:          "./data/memory",
			BudgetTokens: 2000,
		},
		PlanMode: PlanModeConfig{
			Enabled:         true,
			RequireApproval: true,
			ApprovalTimeout: 5 * time.Minute,
		},
		Autonomy: AutonomyConfig{
			TickInterval:       15 * time.Minute,
			MaxConcurrentGoals: 3,
			Cron: CronConfig{
				PollInterval:   10 * time.Second,
				LockDuration:   10 * time.Minute,
				MaxConcurrency: 5,
			},
		},
		Webhook: WebhookConfig{
			BasePath:     "/hooks",
			MaxBodyBytes: 256 * 1024,
			RetryBackoff: RetryConfig{
				BaseDelay:   1 * time.Second,
				Factor:      2,
				MaxAttempts: 3,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			ServiceName:      "turnengine",
			TraceSampleRatio: 0.1,
		},
	}
}

// Load reads and validates a configuration file, resolving $include directives
// and environment variable expansion before decoding.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Version == 0 {
		c.Version = d.Version
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = d.Server.DataDir
	}
	if c.Server.ShutdownGrace == 0 {
		c.Server.ShutdownGrace = d.Server.ShutdownGrace
	}
	if c.Session.Backend == "" {
		c.Session.Backend = d.Session.Backend
	}
	if c.Session.MaxMessagesPerSession == 0 {
		c.Session.MaxMessagesPerSession = d.Session.MaxMessagesPerSession
	}
	if c.Session.CompactionThresholdPercent == 0 {
		c.Session.CompactionThresholdPercent = d.Session.CompactionThresholdPercent
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = d.LLM.MaxTokens
	}
	if c.LLM.MaxIterations == 0 {
		c.LLM.MaxIterations = d.LLM.MaxIterations
	}
	if c.LLM.Fallback.MaxRetries == 0 {
		c.LLM.Fallback.MaxRetries = d.LLM.Fallback.MaxRetries
	}
	if c.Tools.MaxToolCalls == 0 {
		c.Tools.MaxToolCalls = d.Tools.MaxToolCalls
	}
	if c.Tools.MaxConcurrent == 0 {
		c.Tools.MaxConcurrent = d.Tools.MaxConcurrent
	}
	if c.Tools.DefaultTimeout == 0 {
		c.Tools.DefaultTimeout = d.Tools.DefaultTimeout
	}
	if c.Memory.Dir == "" {
		c.Memory.Dir = d.Memory.Dir
	}
	if c.Memory.BudgetTokens == 0 {
		c.Memory.BudgetTokens = d.Memory.BudgetTokens
	}
	if c.PlanMode.ApprovalTimeout == 0 {
		c.PlanMode.ApprovalTimeout = d.PlanMode.ApprovalTimeout
	}
	if c.Autonomy.TickInterval == 0 {
		c.Autonomy.TickInterval = d.Autonomy.TickInterval
	}
	if c.Autonomy.Cron.PollInterval == 0 {
		c.Autonomy.Cron.PollInterval = d.Autonomy.Cron.PollInterval
	}
	if c.Autonomy.Cron.LockDuration == 0 {
		c.Autonomy.Cron.LockDuration = d.Autonomy.Cron.LockDuration
	}
	if c.Autonomy.Cron.MaxConcurrency == 0 {
		c.Autonomy.Cron.MaxConcurrency = d.Autonomy.Cron.MaxConcurrency
	}
	if c.Webhook.BasePath == "" {
		c.Webhook.BasePath = d.Webhook.BasePath
	}
	if c.Webhook.MaxBodyBytes == 0 {
		c.Webhook.MaxBodyBytes = d.Webhook.MaxBodyBytes
	}
	if c.Webhook.RetryBackoff.MaxAttempts == 0 {
		c.Webhook.RetryBackoff = d.Webhook.RetryBackoff
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = d.Observability.ServiceName
	}
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	if err := ValidateVersion(c.Version); err != nil {
		return err
	}
	switch c.Session.Backend {
	case "memory", "sql":
	default:
		return fmt.Errorf("session.backend must be \"memory\" or \"sql\", got %q", c.Session.Backend)
	}
	if c.Session.Backend == "sql" && strings.TrimSpace(c.Session.DSN) == "" {
		return fmt.Errorf("session.dsn is required when session.backend is \"sql\"")
	}
	if c.Webhook.Enabled && strings.TrimSpace(c.Webhook.Token) == "" && len(c.Webhook.HMACSecrets) == 0 {
		return fmt.Errorf("webhook.token or webhook.hmac_secrets is required when webhook.enabled is true")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

// ResolveSecretRefs expands any "env:VAR_NAME" style value in provider API keys.
func ResolveSecretRefs(c *Config) {
	for name, p := range c.LLM.Providers {
		p.APIKey = resolveSecretRef(p.APIKey)
		c.LLM.Providers[name] = p
	}
}

func resolveSecretRef(val string) string {
	const prefix = "env:"
	if !strings.HasPrefix(val, prefix) {
		return val
	}
	return os.Getenv(strings.TrimPrefix(val, prefix))
}
