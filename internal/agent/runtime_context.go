package agent

import (
	"context"
	"strings"

	"github.com/agentloom/turnengine/internal/tools/policy"
	"github.com/agentloom/turnengine/pkg/models"
)

type systemPromptKey struct{}
type sessionKey struct{}
type runtimeOptsKey struct{}
type elevatedKey struct{}
type modelKey struct{}
type toolPolicyKey struct{}

// MaxResponseTextSize bounds accumulated response text per turn.
const MaxResponseTextSize = 1 << 20

// MaxToolCallsPerIteration bounds tool calls within a single loop iteration.
const MaxToolCallsPerIteration = 100

// WithSession attaches the active session to ctx.
func WithSession(ctx context.Context, session *models.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the session attached by WithSession, or nil.
func SessionFromContext(ctx context.Context) *models.Session {
	session, _ := ctx.Value(sessionKey{}).(*models.Session)
	return session
}

// WithRuntimeOptions attaches runtime options to ctx.
func WithRuntimeOptions(ctx context.Context, opts RuntimeOptions) context.Context {
	return context.WithValue(ctx, runtimeOptsKey{}, opts)
}

func runtimeOptionsFromContext(ctx context.Context) (RuntimeOptions, bool) {
	opts, ok := ctx.Value(runtimeOptsKey{}).(RuntimeOptions)
	return opts, ok
}

// ElevatedMode controls whether tools that would otherwise require approval
// run without prompting.
type ElevatedMode string

const (
	// ElevatedOff requires approval for every tool call the policy flags.
	ElevatedOff ElevatedMode = "off"
	// ElevatedAsk prompts before running an elevated tool call.
	ElevatedAsk ElevatedMode = "ask"
	// ElevatedFull runs elevated tool calls without prompting.
	ElevatedFull ElevatedMode = "full"
)

// ParseElevatedMode parses a string into an ElevatedMode.
func ParseElevatedMode(value string) (ElevatedMode, bool) {
	switch ElevatedMode(strings.ToLower(strings.TrimSpace(value))) {
	case ElevatedOff:
		return ElevatedOff, true
	case ElevatedAsk:
		return ElevatedAsk, true
	case ElevatedFull:
		return ElevatedFull, true
	default:
		return ElevatedOff, false
	}
}

// WithElevated attaches an elevated mode to ctx.
func WithElevated(ctx context.Context, mode ElevatedMode) context.Context {
	return context.WithValue(ctx, elevatedKey{}, mode)
}

// ElevatedFromContext returns the elevated mode attached by WithElevated,
// defaulting to ElevatedOff.
func ElevatedFromContext(ctx context.Context) ElevatedMode {
	mode, ok := ctx.Value(elevatedKey{}).(ElevatedMode)
	if !ok {
		return ElevatedOff
	}
	return mode
}

// WithSystemPrompt attaches a system prompt override to ctx. An empty or
// whitespace-only prompt is a no-op.
func WithSystemPrompt(ctx context.Context, prompt string) context.Context {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ctx
	}
	return context.WithValue(ctx, systemPromptKey{}, prompt)
}

func systemPromptFromContext(ctx context.Context) (string, bool) {
	prompt, ok := ctx.Value(systemPromptKey{}).(string)
	return prompt, ok
}

// WithModel attaches a model override to ctx.
func WithModel(ctx context.Context, model string) context.Context {
	model = strings.TrimSpace(model)
	if model == "" {
		return ctx
	}
	return context.WithValue(ctx, modelKey{}, model)
}

func modelFromContext(ctx context.Context) (string, bool) {
	model, ok := ctx.Value(modelKey{}).(string)
	return model, ok
}

type toolPolicyValue struct {
	resolver *policy.Resolver
	policy   *policy.Policy
}

// WithToolPolicy attaches a policy resolver and policy to ctx so the loop
// can filter and guard tool calls for the turn.
func WithToolPolicy(ctx context.Context, resolver *policy.Resolver, toolPolicy *policy.Policy) context.Context {
	if resolver == nil || toolPolicy == nil {
		return ctx
	}
	return context.WithValue(ctx, toolPolicyKey{}, toolPolicyValue{resolver: resolver, policy: toolPolicy})
}

func toolPolicyFromContext(ctx context.Context) (*policy.Resolver, *policy.Policy, bool) {
	v, ok := ctx.Value(toolPolicyKey{}).(toolPolicyValue)
	if !ok {
		return nil, nil, false
	}
	return v.resolver, v.policy, true
}
