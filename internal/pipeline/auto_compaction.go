package pipeline

import (
	"context"

	"github.com/agentloom/turnengine/internal/agent"
	"github.com/agentloom/turnengine/pkg/models"
)

// Compactor is the subset of *agent.CompactionManager that AutoCompaction
// depends on.
type Compactor interface {
	Check(ctx context.Context, sessionID string, history []*models.Message, incoming *models.Message, summary *models.Message) (bool, error)
}

// AutoCompaction is order-18: it checks whether the session's history has
// grown past the compaction threshold and, if so, triggers a compaction
// pass before context is built for this turn.
type AutoCompaction struct {
	alwaysProcess
	Manager Compactor
}

func (AutoCompaction) Name() string { return "AutoCompaction" }
func (AutoCompaction) Order() int   { return 18 }

func (a AutoCompaction) Process(ctx context.Context, tc *models.TurnContext) error {
	if a.Manager == nil || tc.Session == nil {
		return nil
	}
	compacted, err := a.Manager.Check(ctx, tc.Session.ID, tc.History, tc.Inbound, tc.Summary)
	if err != nil {
		return err
	}
	if compacted {
		tc.CompactionReport = &models.CompactionReport{Reason: "threshold exceeded"}
	}
	return nil
}

var _ Compactor = (*agent.CompactionManager)(nil)
