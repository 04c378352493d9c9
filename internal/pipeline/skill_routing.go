package pipeline

import (
	"context"
	"strings"

	"github.com/agentloom/turnengine/pkg/models"
)

// SkillRule maps a content pattern to a named skill.
type SkillRule struct {
	Skill    string
	Keywords []string
}

// SkillRouting is order-15: it picks the active skill for the turn from the
// inbound content, or keeps the session's current skill when nothing
// matches.
type SkillRouting struct {
	alwaysProcess
	Rules       []SkillRule
	DefaultSkill string
}

func (SkillRouting) Name() string { return "SkillRouting" }
func (SkillRouting) Order() int   { return 15 }

func (s SkillRouting) Process(_ context.Context, tc *models.TurnContext) error {
	skill := s.DefaultSkill
	if tc.Session != nil {
		if current, ok := tc.Session.Metadata["active_skill"].(string); ok && current != "" {
			skill = current
		}
	}

	// Auto-mode turns are synthetic (spec §4.9): there is no user text to
	// route on, and a keyword match against a goal/task title could switch
	// the session's skill out from under its next real user turn. Keep the
	// session's current skill (or the default) and skip keyword matching
	// and skill-transition requests entirely.
	if tc.AutoContext != nil && tc.AutoContext.AutoMode {
		tc.ActiveSkill = skill
		return nil
	}

	if tc.Inbound != nil {
		lower := strings.ToLower(tc.Inbound.Content)
		for _, rule := range s.Rules {
			for _, kw := range rule.Keywords {
				if strings.Contains(lower, strings.ToLower(kw)) {
					skill = rule.Skill
					break
				}
			}
		}
	}

	if tc.Session != nil {
		prior, _ := tc.Session.Metadata["active_skill"].(string)
		if prior != "" && prior != skill {
			tc.SkillTransitionRequest = &models.SkillTransition{
				FromSkill: prior,
				ToSkill:   skill,
				Reason:    "keyword match",
			}
		}
	}
	tc.ActiveSkill = skill
	return nil
}
