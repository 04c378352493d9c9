package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/agentloom/turnengine/pkg/models"
)

var (
	tierCodeRegex   = regexp.MustCompile("(?i)\\b(func|class|def|package|import|SELECT|INSERT|UPDATE|DELETE)\\b")
	tierReasonRegex = regexp.MustCompile("(?i)\\b(analyze|reason|think through|derive|prove|why|tradeoff)\\b")
	tierQuickRegex  = regexp.MustCompile("(?i)\\b(what is|define|quick|brief|summary)\\b")
)

// DynamicTier is order-25: it picks a model tier and reasoning effort for
// the turn from simple content heuristics, the way the LLM router's
// heuristic classifier tags requests by content shape.
type DynamicTier struct {
	alwaysProcess
	DefaultTier   string
	DefaultEffort string
}

func (DynamicTier) Name() string { return "DynamicTier" }
func (DynamicTier) Order() int   { return 25 }

func (d DynamicTier) Process(_ context.Context, tc *models.TurnContext) error {
	tier := d.DefaultTier
	if tier == "" {
		tier = "standard"
	}
	effort := d.DefaultEffort
	if effort == "" {
		effort = "medium"
	}

	if tc.Inbound != nil {
		content := strings.TrimSpace(tc.Inbound.Content)
		switch {
		case tierReasonRegex.MatchString(content) || tierCodeRegex.MatchString(content):
			tier = "premium"
			effort = "high"
		case tierQuickRegex.MatchString(content) || len(content) < 80:
			tier = "fast"
			effort = "low"
		}
	}

	tc.ModelTier = tier
	tc.ReasoningEffort = effort
	return nil
}
