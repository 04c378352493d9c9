package pipeline

import (
	"context"

	"github.com/agentloom/turnengine/pkg/models"
)

// Router delivers a turn's OutgoingResponse to the originating channel.
type Router interface {
	Route(ctx context.Context, tc *models.TurnContext) (*models.RoutingOutcome, error)
}

// ResponseRouting is order-60, the pipeline's final system: it hands the
// turn's OutgoingResponse to the channel router. Delivery is suppressed
// entirely for skill-transition turns.
type ResponseRouting struct {
	alwaysProcess
	Router Router
}

func (ResponseRouting) Name() string { return "ResponseRouting" }
func (ResponseRouting) Order() int   { return 60 }

func (ResponseRouting) ShouldProcess(_ context.Context, tc *models.TurnContext) bool {
	return tc.SkillTransitionRequest == nil
}

func (r ResponseRouting) Process(ctx context.Context, tc *models.TurnContext) error {
	if r.Router == nil {
		return nil
	}
	outcome, err := r.Router.Route(ctx, tc)
	if err != nil {
		return err
	}
	tc.RoutingOutcome = outcome
	return nil
}
