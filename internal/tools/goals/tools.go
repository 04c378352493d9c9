// Package goals provides tools the LLM calls to signal task and goal
// progress during an autonomous GOAL_RUN turn (spec §4.9 step 6): updating
// a task's status and recording a milestone that triggers a channel
// notification.
package goals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentloom/turnengine/internal/agent"
	"github.com/agentloom/turnengine/internal/autonomy"
	"github.com/agentloom/turnengine/pkg/models"
)

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}

// UpdateTaskTool lets the LLM record a task's outcome (completed, failed,
// blocked) against the goal store, so the next tick's SelectNextTask sees
// accurate state.
type UpdateTaskTool struct {
	store autonomy.GoalStore
}

// NewUpdateTaskTool creates a goal_update_task tool.
func NewUpdateTaskTool(store autonomy.GoalStore) *UpdateTaskTool {
	return &UpdateTaskTool{store: store}
}

func (t *UpdateTaskTool) Name() string { return "goal_update_task" }

func (t *UpdateTaskTool) Description() string {
	return "Update the status and result of a task belonging to an autonomous goal."
}

func (t *UpdateTaskTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"goal_id": map[string]interface{}{
				"type":        "string",
				"description": "The goal the task belongs to.",
			},
			"task_id": map[string]interface{}{
				"type":        "string",
				"description": "The task to update.",
			},
			"status": map[string]interface{}{
				"type":        "string",
				"description": "New task status.",
				"enum":        []string{"Pending", "InProgress", "Completed", "Failed", "Skipped"},
			},
			"result": map[string]interface{}{
				"type":        "string",
				"description": "Summary of the outcome, stored on the task.",
			},
			"blocked_on": map[string]interface{}{
				"type":        "string",
				"description": "If status is not terminal, what this task is waiting on.",
			},
		},
		"required": []string{"goal_id", "task_id", "status"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *UpdateTaskTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return toolError("goal store unavailable"), nil
	}
	var input struct {
		GoalID    string `json:"goal_id"`
		TaskID    string `json:"task_id"`
		Status    string `json:"status"`
		Result    string `json:"result"`
		BlockedOn string `json:"blocked_on"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	goalID := strings.TrimSpace(input.GoalID)
	taskID := strings.TrimSpace(input.TaskID)
	status := models.TaskStatus(strings.TrimSpace(input.Status))
	if goalID == "" || taskID == "" || status == "" {
		return toolError("goal_id, task_id, and status are required"), nil
	}

	goal, err := t.store.GetGoal(ctx, goalID)
	if err != nil {
		return toolError(fmt.Sprintf("get goal: %v", err)), nil
	}

	found := false
	now := time.Now()
	for i := range goal.Tasks {
		if goal.Tasks[i].ID != taskID {
			continue
		}
		goal.Tasks[i].Status = status
		goal.Tasks[i].Result = input.Result
		goal.Tasks[i].BlockedOn = input.BlockedOn
		goal.Tasks[i].UpdatedAt = now
		found = true
		break
	}
	if !found {
		return toolError(fmt.Sprintf("task %q not found on goal %q", taskID, goalID)), nil
	}
	goal.UpdatedAt = now

	if status == models.TaskCompleted && allTasksTerminal(goal.Tasks) {
		goal.Status = models.GoalStatusCompleted
	}

	if err := t.store.SaveGoal(ctx, goal); err != nil {
		return toolError(fmt.Sprintf("save goal: %v", err)), nil
	}

	payload, _ := json.Marshal(map[string]any{
		"goal_id":   goalID,
		"task_id":   taskID,
		"status":    status,
		"goal_done": goal.Status == models.GoalStatusCompleted,
	})
	return &agent.ToolResult{Content: string(payload)}, nil
}

func allTasksTerminal(tasks []models.Task) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		switch t.Status {
		case models.TaskCompleted, models.TaskSkipped:
		default:
			return false
		}
	}
	return true
}

// MilestoneTool lets the LLM record a diary milestone entry and trigger a
// notification to the channel the goal was enabled from.
type MilestoneTool struct {
	diary    autonomy.DiaryStore
	goals    autonomy.GoalStore
	notifier autonomy.GoalNotifier
}

// NewMilestoneTool creates a goal_milestone tool.
func NewMilestoneTool(diary autonomy.DiaryStore, goals autonomy.GoalStore, notifier autonomy.GoalNotifier) *MilestoneTool {
	return &MilestoneTool{diary: diary, goals: goals, notifier: notifier}
}

func (t *MilestoneTool) Name() string { return "goal_milestone" }

func (t *MilestoneTool) Description() string {
	return "Record a milestone for an autonomous goal and notify its owning channel."
}

func (t *MilestoneTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"goal_id": map[string]interface{}{
				"type":        "string",
				"description": "The goal this milestone belongs to.",
			},
			"task_id": map[string]interface{}{
				"type":        "string",
				"description": "The task in progress when the milestone happened, if any.",
			},
			"summary": map[string]interface{}{
				"type":        "string",
				"description": "What was accomplished, in one or two sentences.",
			},
		},
		"required": []string{"goal_id", "summary"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *MilestoneTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.diary == nil {
		return toolError("diary store unavailable"), nil
	}
	var input struct {
		GoalID  string `json:"goal_id"`
		TaskID  string `json:"task_id"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	goalID := strings.TrimSpace(input.GoalID)
	summary := strings.TrimSpace(input.Summary)
	if goalID == "" || summary == "" {
		return toolError("goal_id and summary are required"), nil
	}

	entry := models.DiaryEntry{
		ID:        uuid.NewString(),
		GoalID:    goalID,
		TaskID:    strings.TrimSpace(input.TaskID),
		Summary:   summary,
		Milestone: true,
		CreatedAt: time.Now(),
	}
	if err := t.diary.Append(ctx, entry); err != nil {
		return toolError(fmt.Sprintf("record milestone: %v", err)), nil
	}

	if t.notifier != nil && t.goals != nil {
		goal, err := t.goals.GetGoal(ctx, goalID)
		if err == nil && goal.ChannelID != "" {
			if err := t.notifier.NotifyMilestone(ctx, goal, entry); err != nil {
				return toolError(fmt.Sprintf("milestone recorded but notification failed: %v", err)), nil
			}
		}
	}

	payload, _ := json.Marshal(map[string]any{"recorded": true, "entry_id": entry.ID})
	return &agent.ToolResult{Content: string(payload)}, nil
}

var (
	_ agent.Tool = (*UpdateTaskTool)(nil)
	_ agent.Tool = (*MilestoneTool)(nil)
)
