package agent

import (
	"context"

	"github.com/agentloom/turnengine/pkg/models"
)

// PlanGate is the agentic loop's view of plan mode: it decides whether a
// tool call should be diverted into a Plan as a proposed step instead of
// being executed, returning the synthetic tool result content to use when
// it is.
type PlanGate interface {
	// CollectIfActive appends call to sessionID's active Collecting plan and
	// returns its synthetic result content with collected=true. When the
	// session has no active plan (or its plan is past Collecting), it
	// returns collected=false and the tool call proceeds to normal
	// execution.
	CollectIfActive(ctx context.Context, sessionID string, call models.ToolCall) (content string, collected bool, err error)
}
