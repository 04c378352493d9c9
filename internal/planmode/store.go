package planmode

import (
	"context"
	"sync"

	"github.com/agentloom/turnengine/pkg/models"
)

// MemoryStore is a thread-safe in-memory Store implementation, suitable for
// single-instance deployments and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]*models.Plan
}

// NewMemoryStore creates an empty in-memory plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string]*models.Plan)}
}

func clonePlan(p *models.Plan) *models.Plan {
	c := *p
	c.Steps = append([]models.PlanStep(nil), p.Steps...)
	return &c
}

// Create stores a new plan.
func (s *MemoryStore) Create(ctx context.Context, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.ID] = clonePlan(plan)
	return nil
}

// Get returns a plan by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePlan(p), nil
}

// Update overwrites a stored plan.
func (s *MemoryStore) Update(ctx context.Context, plan *models.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[plan.ID]; !ok {
		return ErrNotFound
	}
	s.plans[plan.ID] = clonePlan(plan)
	return nil
}

// GetActiveForSession returns the session's plan that has not yet been
// finalized into a terminal state (Completed/PartiallyCompleted/Cancelled),
// or ErrNotFound if none exists.
func (s *MemoryStore) GetActiveForSession(ctx context.Context, sessionID string) (*models.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.plans {
		if p.SessionID != sessionID {
			continue
		}
		switch p.Status {
		case models.PlanStatusCompleted, models.PlanStatusPartiallyCompleted, models.PlanStatusCancelled:
			continue
		}
		return clonePlan(p), nil
	}
	return nil, ErrNotFound
}
