package autonomy

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentloom/turnengine/internal/pipeline"
	"github.com/agentloom/turnengine/pkg/models"
)

// GoalContextProvider implements pipeline.AutoContextProvider: it renders
// the active goal/task and recent diary entries into text ContextBuilding
// appends to the system prompt for auto-mode turns (spec §4.3).
type GoalContextProvider struct {
	Goals GoalStore
	Diary DiaryStore

	// RecentEntries bounds how many diary entries to surface. Default 5.
	RecentEntries int
}

func (p GoalContextProvider) AutoContextFor(ctx context.Context, tc *models.TurnContext) (string, error) {
	auto := tc.AutoContext
	if auto == nil || !auto.AutoMode {
		return "", nil
	}

	var b strings.Builder

	if auto.GoalID != "" && p.Goals != nil {
		goal, err := p.Goals.GetGoal(ctx, auto.GoalID)
		if err == nil && goal != nil {
			fmt.Fprintf(&b, "Goal: %s (%s)\n", goal.Title, goal.Status)
			if goal.Description != "" {
				fmt.Fprintf(&b, "Goal description: %s\n", goal.Description)
			}
			for _, t := range goal.Tasks {
				marker := " "
				if t.ID == auto.TaskID {
					marker = ">"
				}
				fmt.Fprintf(&b, "%s task %s [%s]: %s\n", marker, t.ID, t.Status, t.Title)
			}
		}
	}

	if p.Diary != nil {
		limit := p.RecentEntries
		if limit <= 0 {
			limit = 5
		}
		entries, err := p.Diary.Recent(ctx, auto.GoalID, auto.TaskID, limit)
		if err == nil && len(entries) > 0 {
			b.WriteString("Recent diary entries:\n")
			for _, e := range entries {
				prefix := "-"
				if e.Milestone {
					prefix = "* milestone"
				}
				fmt.Fprintf(&b, "%s %s\n", prefix, e.Summary)
			}
		}
	}

	return strings.TrimSpace(b.String()), nil
}

var _ pipeline.AutoContextProvider = GoalContextProvider{}
