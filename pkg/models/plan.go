package models

import "time"

// PlanStatus tracks a Plan's progress through the plan-mode lifecycle.
type PlanStatus string

const (
	PlanStatusCollecting         PlanStatus = "Collecting"
	PlanStatusReady              PlanStatus = "Ready"
	PlanStatusApproved           PlanStatus = "Approved"
	PlanStatusExecuting          PlanStatus = "Executing"
	PlanStatusCompleted          PlanStatus = "Completed"
	PlanStatusPartiallyCompleted PlanStatus = "PartiallyCompleted"
	PlanStatusCancelled          PlanStatus = "Cancelled"
)

// PlanStepStatus tracks one step of a Plan.
type PlanStepStatus string

const (
	PlanStepPending PlanStepStatus = "Pending"
	PlanStepDone    PlanStepStatus = "Done"
	PlanStepFailed  PlanStepStatus = "Failed"
	PlanStepSkipped PlanStepStatus = "Skipped"
)

// PlanStep is a single proposed tool call collected during plan mode.
type PlanStep struct {
	ID       string         `json:"id"`
	ToolCall ToolCall       `json:"tool_call"`
	Status   PlanStepStatus `json:"status"`
	Result   string         `json:"result,omitempty"`
}

// Plan is a user-approved sequence of steps an agent collects before
// executing, set apart from ordinary tool-loop behavior by requiring an
// explicit approval gate.
type Plan struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Title       string     `json:"title"`
	Status      PlanStatus `json:"status"`
	Steps       []PlanStep `json:"steps"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Finalized reports whether the plan's content is frozen and ready for
// approval: either the agent explicitly set its final content, or the LLM
// stopped producing tool calls while collecting steps.
func (p Plan) Finalized() bool {
	return p.Status == PlanStatusReady || p.Status == PlanStatusApproved ||
		p.Status == PlanStatusExecuting || p.Status == PlanStatusCompleted ||
		p.Status == PlanStatusPartiallyCompleted
}
