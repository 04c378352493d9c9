package pipeline

import (
	"context"

	"github.com/agentloom/turnengine/pkg/models"
)

// MemoryWriter persists structured memory items extracted from a turn.
type MemoryWriter interface {
	Write(ctx context.Context, scope string, items []models.MemoryItem) error
}

// MemoryPersist is order-50: it writes any memory items the turn produced to
// the appropriate scope(s), deriving scope from the turn's autonomy context
// when present and falling back to the session scope otherwise.
//
// A GOAL_RUN turn splits its items: MemoryTypeTaskState goes to the task
// scope (intermediate state), everything else goes to the goal scope
// (shared insights) (spec §4.9). A TASK_RUN turn writes every item to both
// the task scope and the session scope it rode along on (spec §4.9: "writes
// to task and session only"). A plain turn writes to the session scope.
type MemoryPersist struct {
	alwaysProcess
	Writer  MemoryWriter
	Extract func(tc *models.TurnContext) []models.MemoryItem
}

func (MemoryPersist) Name() string { return "MemoryPersist" }
func (MemoryPersist) Order() int   { return 50 }

func (m MemoryPersist) Process(ctx context.Context, tc *models.TurnContext) error {
	if m.Writer == nil || m.Extract == nil {
		return nil
	}
	items := m.Extract(tc)
	if len(items) == 0 {
		return nil
	}

	for scope, scoped := range scopedWrites(tc, items) {
		if len(scoped) == 0 {
			continue
		}
		if err := m.Writer.Write(ctx, scope, scoped); err != nil {
			return err
		}
	}
	return nil
}

// scopedWrites partitions items across the scope(s) a turn's writes should
// land in, per the run-kind rules in spec §4.9.
func scopedWrites(tc *models.TurnContext, items []models.MemoryItem) map[string][]models.MemoryItem {
	auto := tc.AutoContext
	sessionScope := ""
	if tc.Session != nil {
		sessionScope = models.SessionScope(tc.Session.ChannelID, tc.Session.Key)
	}

	if auto == nil || !auto.AutoMode {
		scope := sessionScope
		if scope == "" {
			scope = models.ScopeGlobal
		}
		return map[string][]models.MemoryItem{scope: items}
	}

	switch auto.RunKind {
	case models.RunKindGoal:
		goalScope := models.ScopeGlobal
		if tc.Session != nil && auto.GoalID != "" {
			goalScope = models.GoalScope(tc.Session.ChannelID, tc.Session.Key, auto.GoalID)
		}
		taskScope := ""
		if auto.TaskID != "" {
			taskScope = models.TaskScope(auto.TaskID)
		}

		out := map[string][]models.MemoryItem{}
		for _, item := range items {
			if item.Type == models.MemoryTypeTaskState && taskScope != "" {
				out[taskScope] = append(out[taskScope], item)
				continue
			}
			out[goalScope] = append(out[goalScope], item)
		}
		return out

	case models.RunKindTask:
		out := map[string][]models.MemoryItem{}
		if auto.TaskID != "" {
			taskScope := models.TaskScope(auto.TaskID)
			out[taskScope] = append(out[taskScope], items...)
		}
		if sessionScope != "" {
			out[sessionScope] = append(out[sessionScope], items...)
		}
		if len(out) == 0 {
			out[models.ScopeGlobal] = items
		}
		return out

	default:
		scope := sessionScope
		if scope == "" {
			scope = models.ScopeGlobal
		}
		return map[string][]models.MemoryItem{scope: items}
	}
}
