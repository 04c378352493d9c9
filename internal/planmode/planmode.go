// Package planmode implements the plan-collect-approve-execute lifecycle:
// while a session is in plan mode, the tool loop stops executing tool calls
// directly and instead appends them as PlanSteps for the user to review.
package planmode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/agentloom/turnengine/internal/agent"
	"github.com/agentloom/turnengine/pkg/models"
)

// ErrNotFound is returned when a plan id has no matching record.
var ErrNotFound = fmt.Errorf("planmode: plan not found")

// plannedResultContent is the synthetic tool result content returned to the
// LLM for every tool call collected into a plan instead of executed.
const plannedResultContent = "[Planned]"

// Store persists Plan records.
type Store interface {
	Create(ctx context.Context, plan *models.Plan) error
	Get(ctx context.Context, id string) (*models.Plan, error)
	Update(ctx context.Context, plan *models.Plan) error
	GetActiveForSession(ctx context.Context, sessionID string) (*models.Plan, error)
}

// Manager drives a Plan through Collecting -> Ready -> Approved -> Executing
// -> Completed|PartiallyCompleted, or Collecting/Ready -> Cancelled.
type Manager struct {
	mu    sync.Mutex
	store Store
}

// NewManager creates a Manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// StartOrGet returns the active (non-finalized, non-cancelled) plan for a
// session, creating a new Collecting plan if none exists.
func (m *Manager) StartOrGet(ctx context.Context, sessionID string) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.store.GetActiveForSession(ctx, sessionID)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	plan := &models.Plan{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Status:    models.PlanStatusCollecting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// CollectStep appends a proposed tool call as a new PlanStep and returns the
// synthetic tool result content that must be returned to the LLM in its
// place. It is an error to collect a step into a plan that is not
// Collecting.
func (m *Manager) CollectStep(ctx context.Context, planID string, call models.ToolCall) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, err := m.store.Get(ctx, planID)
	if err != nil {
		return "", err
	}
	if plan.Status != models.PlanStatusCollecting {
		return "", fmt.Errorf("planmode: plan %s is %s, not Collecting", planID, plan.Status)
	}

	plan.Steps = append(plan.Steps, models.PlanStep{
		ID:       uuid.New().String(),
		ToolCall: call,
		Status:   models.PlanStepPending,
	})
	plan.UpdatedAt = time.Now().UTC()
	if err := m.store.Update(ctx, plan); err != nil {
		return "", err
	}
	return plannedResultContent, nil
}

// CollectIfActive implements agent.PlanGate: it diverts call into
// sessionID's active Collecting plan, starting one if none exists yet.
func (m *Manager) CollectIfActive(ctx context.Context, sessionID string, call models.ToolCall) (string, bool, error) {
	m.mu.Lock()
	existing, err := m.store.GetActiveForSession(ctx, sessionID)
	m.mu.Unlock()
	if err != nil && err != ErrNotFound {
		return "", false, err
	}
	if existing == nil || existing.Status != models.PlanStatusCollecting {
		return "", false, nil
	}

	content, err := m.CollectStep(ctx, existing.ID, call)
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

var _ agent.PlanGate = (*Manager)(nil)

// Finalize transitions a plan from Collecting to Ready, called either on an
// explicit plan_set_content tool call or when the LLM stops producing tool
// calls while a plan is being collected.
func (m *Manager) Finalize(ctx context.Context, planID, title string) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, err := m.store.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != models.PlanStatusCollecting {
		return plan, nil
	}
	if title != "" {
		plan.Title = title
	}
	plan.Status = models.PlanStatusReady
	plan.UpdatedAt = time.Now().UTC()
	if err := m.store.Update(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Approve transitions a Ready plan to Approved.
func (m *Manager) Approve(ctx context.Context, planID string) (*models.Plan, error) {
	return m.transition(ctx, planID, models.PlanStatusReady, models.PlanStatusApproved, func(p *models.Plan) {
		now := time.Now().UTC()
		p.ApprovedAt = &now
	})
}

// Cancel transitions a Collecting or Ready plan to Cancelled.
func (m *Manager) Cancel(ctx context.Context, planID string) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, err := m.store.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != models.PlanStatusCollecting && plan.Status != models.PlanStatusReady {
		return nil, fmt.Errorf("planmode: cannot cancel plan %s from state %s", planID, plan.Status)
	}
	plan.Status = models.PlanStatusCancelled
	plan.UpdatedAt = time.Now().UTC()
	if err := m.store.Update(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// BeginExecution transitions an Approved plan to Executing.
func (m *Manager) BeginExecution(ctx context.Context, planID string) (*models.Plan, error) {
	return m.transition(ctx, planID, models.PlanStatusApproved, models.PlanStatusExecuting, nil)
}

// StepExecutor runs one PlanStep's tool call and reports its result.
type StepExecutor func(ctx context.Context, call models.ToolCall) (result string, err error)

// Execute runs an Executing plan's steps in order, honoring stopOnFailure:
// when true, the first failing step halts remaining steps (left Pending)
// and the plan is marked PartiallyCompleted; when false, all steps run
// regardless of individual failures. The plan must already be Executing
// (via BeginExecution).
func (m *Manager) Execute(ctx context.Context, planID string, stopOnFailure bool, run StepExecutor) (*models.Plan, error) {
	m.mu.Lock()
	plan, err := m.store.Get(ctx, planID)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if plan.Status != models.PlanStatusExecuting {
		return nil, fmt.Errorf("planmode: plan %s is %s, not Executing", planID, plan.Status)
	}

	anyFailed := false
	for i := range plan.Steps {
		if ctx.Err() != nil {
			break
		}
		step := &plan.Steps[i]
		if step.Status != models.PlanStepPending {
			continue
		}

		result, err := run(ctx, step.ToolCall)
		if err != nil {
			step.Status = models.PlanStepFailed
			step.Result = err.Error()
			anyFailed = true
			if stopOnFailure {
				break
			}
			continue
		}
		step.Status = models.PlanStepDone
		step.Result = result
	}

	now := time.Now().UTC()
	plan.UpdatedAt = now
	if anyFailed {
		plan.Status = models.PlanStatusPartiallyCompleted
	} else {
		plan.Status = models.PlanStatusCompleted
	}
	plan.CompletedAt = &now

	m.mu.Lock()
	err = m.store.Update(ctx, plan)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (m *Manager) transition(ctx context.Context, planID string, from, to models.PlanStatus, mutate func(*models.Plan)) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	plan, err := m.store.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != from {
		return nil, fmt.Errorf("planmode: plan %s is %s, expected %s", planID, plan.Status, from)
	}
	plan.Status = to
	plan.UpdatedAt = time.Now().UTC()
	if mutate != nil {
		mutate(plan)
	}
	if err := m.store.Update(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
