package autonomy

import (
	"sort"

	"github.com/agentloom/turnengine/pkg/models"
)

// ScopeOf reports the scope key a GOAL_RUN or TASK_RUN turn's memory writes
// and reads should be attributed to, matching spec §3's scope grammar
// (`goal:<channel>:<key>:<goalId>`, `task:<taskId>`). A goal scope requires
// the owning session's channel and key, since goal/task scopes are only
// reachable under their matching session.
func ScopeOf(channel, sessionKey, goalID, taskID string) string {
	if goalID != "" {
		return models.GoalScope(channel, sessionKey, goalID)
	}
	if taskID != "" {
		return models.TaskScope(taskID)
	}
	return models.ScopeGlobal
}

// SelectNextTask implements spec §4.9 step 3: pick the first Pending task
// across goals (oldest goal first, then lowest order); if no pending tasks
// exist anywhere and some goal has no tasks at all, that goal is selected
// for a synthesized task-planning turn instead.
//
// Returns the selected goal and task (task is nil when synth is true, in
// which case the goal has no tasks and needs planning). Returns a nil goal
// when there is no work at all.
func SelectNextTask(goals []*models.Goal) (goal *models.Goal, task *models.Task, synth bool) {
	ordered := make([]*models.Goal, len(goals))
	copy(ordered, goals)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	for _, g := range ordered {
		pending := pendingTasksOf(g)
		if len(pending) == 0 {
			continue
		}
		sort.SliceStable(pending, func(i, j int) bool {
			return pending[i].Order < pending[j].Order
		})
		return g, pending[0], false
	}

	for _, g := range ordered {
		if len(g.Tasks) == 0 {
			return g, nil, true
		}
	}

	return nil, nil, false
}

func pendingTasksOf(g *models.Goal) []*models.Task {
	var pending []*models.Task
	for i := range g.Tasks {
		if g.Tasks[i].Status == models.TaskPending {
			pending = append(pending, &g.Tasks[i])
		}
	}
	return pending
}
