package pipeline

import (
	"context"
	"strings"

	"github.com/agentloom/turnengine/pkg/models"
)

// fallbackMessage is delivered when a turn produced no usable response,
// whether because the model returned nothing or an earlier system failed.
const fallbackMessage = "Sorry, I ran into a problem handling that. Please try again."

// FeedbackGuarantee is order-59: it ensures the user receives some response
// for every turn that was not deliberately silent, even one that failed
// partway through processing.
type FeedbackGuarantee struct {
	alwaysProcess
}

func (FeedbackGuarantee) Name() string { return "FeedbackGuarantee" }
func (FeedbackGuarantee) Order() int   { return 59 }

func (FeedbackGuarantee) Process(_ context.Context, tc *models.TurnContext) error {
	if tc.SkillTransitionRequest != nil {
		return nil
	}
	if tc.OutgoingResponse == nil {
		tc.OutgoingResponse = &models.OutgoingResponse{}
	}
	if strings.TrimSpace(tc.OutgoingResponse.Text) == "" && len(tc.OutgoingResponse.Attachments) == 0 {
		tc.OutgoingResponse.Text = fallbackMessage
	}
	return nil
}
