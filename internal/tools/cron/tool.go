// Package cron exposes scheduled-task management as an agent tool, backed
// by the autonomy package's Store.
package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentloom/turnengine/internal/agent"
	"github.com/agentloom/turnengine/internal/autonomy"
	"github.com/google/uuid"
)

// Tool exposes scheduled-task CRUD and manual-run actions to agents.
type Tool struct {
	store   autonomy.Store
	agentID string
}

// NewTool creates a cron tool scoped to agentID.
func NewTool(store autonomy.Store, agentID string) *Tool {
	return &Tool{store: store, agentID: agentID}
}

func (t *Tool) Name() string { return "cron" }

func (t *Tool) Description() string {
	return "Manage scheduled tasks (list/get/create/update/delete/executions)."
}

func (t *Tool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "Action: list, get, create, update, delete, executions.",
			},
			"id": map[string]interface{}{
				"type":        "string",
				"description": "Task id for get/update/delete/executions actions.",
			},
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Task name for create/update.",
			},
			"schedule": map[string]interface{}{
				"type":        "string",
				"description": "Cron expression for create/update.",
			},
			"prompt": map[string]interface{}{
				"type":        "string",
				"description": "Prompt sent to the agent when the task fires.",
			},
			"status": map[string]interface{}{
				"type":        "string",
				"description": "Task status: active, paused, disabled.",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Limit for list/executions actions.",
			},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.store == nil {
		return toolError("scheduler store unavailable"), nil
	}
	var input struct {
		Action   string `json:"action"`
		ID       string `json:"id"`
		Name     string `json:"name"`
		Schedule string `json:"schedule"`
		Prompt   string `json:"prompt"`
		Status   string `json:"status"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	action := strings.ToLower(strings.TrimSpace(input.Action))

	switch action {
	case "list":
		tasks, err := t.store.ListTasks(ctx, autonomy.ListTasksOptions{AgentID: t.agentID, Limit: input.Limit})
		if err != nil {
			return toolError(fmt.Sprintf("list tasks: %v", err)), nil
		}
		return jsonResult(map[string]any{"tasks": tasks}), nil

	case "get":
		if strings.TrimSpace(input.ID) == "" {
			return toolError("id is required"), nil
		}
		task, err := t.store.GetTask(ctx, input.ID)
		if err != nil {
			return toolError(fmt.Sprintf("get task: %v", err)), nil
		}
		return jsonResult(task), nil

	case "create":
		if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.Schedule) == "" || strings.TrimSpace(input.Prompt) == "" {
			return toolError("name, schedule, and prompt are required"), nil
		}
		now := time.Now()
		task := &autonomy.ScheduledTask{
			ID:        uuid.NewString(),
			Name:      input.Name,
			AgentID:   t.agentID,
			Schedule:  input.Schedule,
			Prompt:    input.Prompt,
			Config:    autonomy.DefaultTaskConfig(),
			Status:    autonomy.TaskStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := t.store.CreateTask(ctx, task); err != nil {
			return toolError(fmt.Sprintf("create task: %v", err)), nil
		}
		return jsonResult(task), nil

	case "update":
		if strings.TrimSpace(input.ID) == "" {
			return toolError("id is required"), nil
		}
		task, err := t.store.GetTask(ctx, input.ID)
		if err != nil {
			return toolError(fmt.Sprintf("get task: %v", err)), nil
		}
		if input.Schedule != "" {
			task.Schedule = input.Schedule
		}
		if input.Prompt != "" {
			task.Prompt = input.Prompt
		}
		if input.Status != "" {
			task.Status = autonomy.TaskStatus(input.Status)
		}
		task.UpdatedAt = time.Now()
		if err := t.store.UpdateTask(ctx, task); err != nil {
			return toolError(fmt.Sprintf("update task: %v", err)), nil
		}
		return jsonResult(task), nil

	case "delete":
		if strings.TrimSpace(input.ID) == "" {
			return toolError("id is required"), nil
		}
		if err := t.store.DeleteTask(ctx, input.ID); err != nil {
			return toolError(fmt.Sprintf("delete task: %v", err)), nil
		}
		return jsonResult(map[string]string{"status": "deleted", "id": input.ID}), nil

	case "executions":
		if strings.TrimSpace(input.ID) == "" {
			return toolError("id is required"), nil
		}
		execs, err := t.store.ListExecutions(ctx, input.ID, autonomy.ListExecutionsOptions{Limit: input.Limit})
		if err != nil {
			return toolError(fmt.Sprintf("list executions: %v", err)), nil
		}
		return jsonResult(map[string]any{"task_id": input.ID, "executions": execs}), nil

	default:
		return toolError("unsupported action"), nil
	}
}

func toolError(message string) *agent.ToolResult {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolResult{Content: message, IsError: true}
	}
	return &agent.ToolResult{Content: string(payload), IsError: true}
}

func jsonResult(payload any) *agent.ToolResult {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err))
	}
	return &agent.ToolResult{Content: string(encoded)}
}
