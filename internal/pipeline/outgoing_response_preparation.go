package pipeline

import (
	"context"

	"github.com/agentloom/turnengine/pkg/models"
)

// OutgoingResponsePreparation is order-58: it derives the turn's single
// OutgoingResponse from the LLM's text output, preserving any attachments
// ToolLoopExecution already attached and suppressing delivery entirely when
// a skill transition is in flight.
type OutgoingResponsePreparation struct {
	alwaysProcess
}

func (OutgoingResponsePreparation) Name() string { return "OutgoingResponsePreparation" }
func (OutgoingResponsePreparation) Order() int    { return 58 }

func (OutgoingResponsePreparation) Process(_ context.Context, tc *models.TurnContext) error {
	if tc.SkillTransitionRequest != nil {
		tc.OutgoingResponse = &models.OutgoingResponse{SkipAssistantHistory: true}
		return nil
	}

	out := tc.OutgoingResponse
	if out == nil {
		out = &models.OutgoingResponse{}
	}
	if tc.LlmResponse != nil {
		out.Text = tc.LlmResponse.Text
	}
	tc.OutgoingResponse = out
	return nil
}
