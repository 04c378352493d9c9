package models

import "time"

// TurnContext is per-turn scratch state: created when a message enters the
// pipeline, discarded when the turn ends. It is never persisted.
type TurnContext struct {
	Session *Session
	Inbound *Message

	// Populated by pipeline systems.
	SystemPrompt    string
	MemoryPack      string
	RagContext      string
	AvailableTools  []string
	ActiveSkill     string
	ModelTier       string
	ReasoningEffort string
	AutoContext     *AutoContext

	// History is the session's full transcript, loaded once and reused by
	// AutoCompaction and ContextBuilding.
	History       []*Message
	Summary       *Message
	PackedHistory []*Message

	// Execution results.
	LlmResponse      *LlmResponse
	OutgoingResponse *OutgoingResponse
	RoutingOutcome   *RoutingOutcome
	Failures         []FailureEvent

	// SkillTransitionRequest, when set, tells ResponseRouting to suppress
	// delivery: a skill transition is a control-flow step, not a reply.
	SkillTransitionRequest *SkillTransition

	// Sanitization records what InputSanitization found, for observability.
	Sanitization SanitizationReport

	// CompactionReport records the most recent compaction performed for
	// this turn's session, if any.
	CompactionReport *CompactionReport

	// Attrs is an untyped bag for provider-level diagnostics only; it must
	// never carry cross-system contracts (those get typed fields above).
	Attrs map[string]any

	StartedAt time.Time
}

// AutoContext carries autonomous-mode routing metadata for a synthetic turn.
type AutoContext struct {
	AutoMode bool
	GoalID   string
	TaskID   string
	RunKind  RunKind
	RunID    string

	// SystemPromptOverride, when set, is appended to the system prompt
	// ContextBuilding assembles for the turn. Scheduled tasks use this to
	// carry a task-specific system prompt without a pipeline-wide override
	// seam.
	SystemPromptOverride string
}

// RunKind distinguishes goal-scoped from standalone-task autonomous runs.
type RunKind string

const (
	RunKindGoal RunKind = "GOAL_RUN"
	RunKindTask RunKind = "TASK_RUN"
)

// SkillTransition signals that the turn is a control-flow skill switch, not
// a user-facing exchange.
type SkillTransition struct {
	FromSkill string
	ToSkill   string
	Reason    string
}

// SanitizationReport records what InputSanitization detected, without ever
// rejecting the input.
type SanitizationReport struct {
	Performed        bool
	DetectedThreats  []string
}

// OutgoingResponse is the single source of truth for what gets delivered to
// the user for a turn.
type OutgoingResponse struct {
	Text                string       `json:"text"`
	VoiceRequested      bool         `json:"voice_requested"`
	VoiceText           string       `json:"voice_text,omitempty"`
	Attachments         []Attachment `json:"attachments,omitempty"`
	SkipAssistantHistory bool        `json:"skip_assistant_history"`
}

// RoutingOutcome is written exclusively by ResponseRouting.
type RoutingOutcome struct {
	Attempted      bool   `json:"attempted"`
	SentText       bool   `json:"sent_text"`
	SentVoice      bool   `json:"sent_voice"`
	SentAttachments bool  `json:"sent_attachments"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// FailureSource identifies which layer raised a FailureEvent.
type FailureSource string

const (
	FailureSourceSystem    FailureSource = "System"
	FailureSourceLLM       FailureSource = "LLM"
	FailureSourceTool      FailureSource = "Tool"
	FailureSourceTransport FailureSource = "Transport"
)

// FailureKind classifies a FailureEvent or ToolResult failure.
type FailureKind string

const (
	FailureKindException   FailureKind = "Exception"
	FailureKindTimeout     FailureKind = "Timeout"
	FailureKindValidation  FailureKind = "Validation"
	FailureKindPolicy      FailureKind = "Policy"
	FailureKindRateLimit   FailureKind = "RateLimit"
	FailureKindUnknown     FailureKind = "Unknown"
)

// FailureEvent records a non-fatal fault encountered while processing a turn.
type FailureEvent struct {
	Source    FailureSource `json:"source"`
	Component string        `json:"component"`
	Kind      FailureKind   `json:"kind"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// StopReason enumerates why the tool loop stopped iterating.
type StopReason string

const (
	StopReasonSuccess             StopReason = "SUCCESS"
	StopReasonIterationLimit      StopReason = "ITERATION_LIMIT"
	StopReasonDeadline            StopReason = "DEADLINE"
	StopReasonToolFailure         StopReason = "TOOL_FAILURE"
	StopReasonConfirmationDenied  StopReason = "CONFIRMATION_DENIED"
	StopReasonPolicyDenied        StopReason = "POLICY_DENIED"
	StopReasonCancelled           StopReason = "CANCELLED"
)

// ToolResultFailureKind classifies why a tool call did not succeed.
type ToolResultFailureKind string

const (
	ToolFailureConfirmationDenied ToolResultFailureKind = "ConfirmationDenied"
	ToolFailurePolicyDenied       ToolResultFailureKind = "PolicyDenied"
	ToolFailureExecutionFailed    ToolResultFailureKind = "ExecutionFailed"
)

// CompactionReport summarizes a single compaction run for observability.
type CompactionReport struct {
	SchemaVersion    int      `json:"schema_version"`
	Reason           string   `json:"reason"`
	SummarizedCount  int      `json:"summarized_count"`
	KeptCount        int      `json:"kept_count"`
	UsedLlmSummary   bool     `json:"used_llm_summary"`
	SplitTurnDetected bool    `json:"split_turn_detected"`
	FallbackUsed     bool     `json:"fallback_used"`
	DurationMs       int64    `json:"duration_ms"`
	ToolNames        []string `json:"tool_names,omitempty"`
	ReadFiles        []string `json:"read_files,omitempty"`
	ModifiedFiles    []string `json:"modified_files,omitempty"`
}

// LlmResponse is the normalized result of one LlmPort.chat call.
type LlmResponse struct {
	Text      string     `json:"text,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Model     string     `json:"model"`
}
