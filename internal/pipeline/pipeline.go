// Package pipeline runs a turn through an ordered sequence of Systems,
// generalizing the gateway's single hard-coded message-handling sequence
// into a configurable chain.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/agentloom/turnengine/pkg/models"
)

// feedbackGuaranteeOrder is the order of the FeedbackGuarantee system. Once a
// turn has failed, every system ordered below this is skipped so the
// pipeline can still reach response preparation and delivery.
const feedbackGuaranteeOrder = 59

// System is one stage of turn processing.
type System interface {
	Name() string
	Order() int
	ShouldProcess(ctx context.Context, tc *models.TurnContext) bool
	Process(ctx context.Context, tc *models.TurnContext) error
}

// Pipeline runs a fixed set of Systems over a TurnContext, in ascending
// Order.
type Pipeline struct {
	systems []System
	logger  *slog.Logger
}

// New builds a Pipeline from the given systems. Duplicate orders are
// rejected since they would make processing order ambiguous.
func New(logger *slog.Logger, systems ...System) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[int]string, len(systems))
	for _, s := range systems {
		if other, ok := seen[s.Order()]; ok {
			return nil, fmt.Errorf("pipeline: duplicate order %d used by %q and %q", s.Order(), other, s.Name())
		}
		seen[s.Order()] = s.Name()
	}
	ordered := append([]System(nil), systems...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order() < ordered[j].Order() })
	return &Pipeline{systems: ordered, logger: logger}, nil
}

// Run processes tc through every System in order. A System error is
// recorded as a FailureEvent rather than aborting the turn: once any system
// fails, systems ordered below FeedbackGuarantee are skipped so the turn
// still reaches response preparation and delivery.
func (p *Pipeline) Run(ctx context.Context, tc *models.TurnContext) error {
	failed := false
	for _, sys := range p.systems {
		if err := ctx.Err(); err != nil {
			return err
		}
		if failed && sys.Order() < feedbackGuaranteeOrder {
			continue
		}
		if !sys.ShouldProcess(ctx, tc) {
			continue
		}
		start := time.Now()
		if err := sys.Process(ctx, tc); err != nil {
			p.logger.Error("pipeline system failed",
				"system", sys.Name(),
				"order", sys.Order(),
				"error", err,
				"duration", time.Since(start))
			tc.Failures = append(tc.Failures, models.FailureEvent{
				Source:    models.FailureSourceSystem,
				Component: sys.Name(),
				Kind:      models.FailureKindException,
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
			failed = true
			continue
		}
		p.logger.Debug("pipeline system completed",
			"system", sys.Name(), "order", sys.Order(), "duration", time.Since(start))
	}
	return nil
}
