package pipeline

import (
	"context"
	"testing"

	"github.com/agentloom/turnengine/pkg/models"
)

func TestSkillRouting_MatchesKeywordRule(t *testing.T) {
	s := SkillRouting{
		DefaultSkill: "general",
		Rules:        []SkillRule{{Skill: "coding", Keywords: []string{"refactor"}}},
	}
	tc := &models.TurnContext{Inbound: &models.Message{Content: "please refactor this function"}}

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if tc.ActiveSkill != "coding" {
		t.Errorf("ActiveSkill = %q, want %q", tc.ActiveSkill, "coding")
	}
}

func TestSkillRouting_AutoModeSkipsKeywordMatchingAndTransitions(t *testing.T) {
	s := SkillRouting{
		DefaultSkill: "general",
		Rules:        []SkillRule{{Skill: "coding", Keywords: []string{"search"}}},
	}
	tc := &models.TurnContext{
		Session: &models.Session{Metadata: map[string]any{"active_skill": "research"}},
		Inbound: &models.Message{Content: "Search papers"},
		AutoContext: &models.AutoContext{
			AutoMode: true,
			GoalID:   "g1",
			TaskID:   "t1",
			RunKind:  models.RunKindGoal,
		},
	}

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if tc.ActiveSkill != "research" {
		t.Errorf("expected session's current skill to be kept, got %q", tc.ActiveSkill)
	}
	if tc.SkillTransitionRequest != nil {
		t.Errorf("expected no skill transition for an auto-mode turn, got %+v", tc.SkillTransitionRequest)
	}
}
