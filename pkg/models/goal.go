package models

import "time"

// GoalStatus tracks the lifecycle of an autonomous goal.
type GoalStatus string

const (
	GoalStatusActive    GoalStatus = "Active"
	GoalStatusCompleted GoalStatus = "Completed"
	GoalStatusPaused    GoalStatus = "Paused"
	GoalStatusCancelled GoalStatus = "Cancelled"
)

// Goal is a standing objective an agent works toward across many ticks,
// decomposed into an ordered list of Tasks. Channel/ChannelID/SessionKey
// identify the session the goal was enabled from: GOAL_RUN turns dispatch
// under that session's identity, and milestone notifications are sent back
// to that channel.
type Goal struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agent_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      GoalStatus     `json:"status"`
	Tasks       []Task         `json:"tasks"`
	Channel     ChannelType    `json:"channel,omitempty"`
	ChannelID   string         `json:"channel_id,omitempty"`
	SessionKey  string         `json:"session_key,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskStatus tracks an individual unit of work toward a goal.
type TaskStatus string

const (
	TaskPending    TaskStatus = "Pending"
	TaskInProgress TaskStatus = "InProgress"
	TaskCompleted  TaskStatus = "Completed"
	TaskFailed     TaskStatus = "Failed"
	TaskSkipped    TaskStatus = "Skipped"
)

// Task is one concrete step toward completing a Goal. Order ranks tasks
// within their goal for scheduling: the Scheduler picks the lowest-order
// Pending task of the oldest eligible goal.
type Task struct {
	ID        string     `json:"id"`
	GoalID    string     `json:"goal_id"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status"`
	Order     int        `json:"order"`
	Result    string     `json:"result,omitempty"`
	BlockedOn string     `json:"blocked_on,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// DiaryEntry is a single autonomous-tick log record: what the agent
// observed, decided, and did, kept for later review and milestone
// notification. Entries are append-only and partitioned per UTC day.
type DiaryEntry struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goal_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Summary   string    `json:"summary"`
	Milestone bool      `json:"milestone"`
	CreatedAt time.Time `json:"created_at"`
}
