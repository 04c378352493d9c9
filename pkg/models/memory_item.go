package models

import "time"

// MemoryLayer partitions MemoryItem storage by retention and recall path.
type MemoryLayer string

const (
	MemoryLayerWorking    MemoryLayer = "Working"
	MemoryLayerEpisodic   MemoryLayer = "Episodic"
	MemoryLayerSemantic   MemoryLayer = "Semantic"
	MemoryLayerProcedural MemoryLayer = "Procedural"
)

// MemoryItemType classifies the content of a MemoryItem.
type MemoryItemType string

const (
	MemoryTypeDecision      MemoryItemType = "Decision"
	MemoryTypeConstraint    MemoryItemType = "Constraint"
	MemoryTypeFailure       MemoryItemType = "Failure"
	MemoryTypeFix           MemoryItemType = "Fix"
	MemoryTypePreference    MemoryItemType = "Preference"
	MemoryTypeProjectFact   MemoryItemType = "ProjectFact"
	MemoryTypeTaskState     MemoryItemType = "TaskState"
	MemoryTypeCommandResult MemoryItemType = "CommandResult"
)

// MemoryItemStatus tracks a MemoryItem's lifecycle.
type MemoryItemStatus string

const (
	MemoryStatusActive     MemoryItemStatus = "Active"
	MemoryStatusSuperseded MemoryItemStatus = "Superseded"
	MemoryStatusArchived   MemoryItemStatus = "Archived"
)

// MemoryItem is a single structured fact, decision, or outcome retained
// across turns. Unlike MemoryEntry (a flat vector-search record), a
// MemoryItem is scoped, typed, and deduplicated by fingerprint.
type MemoryItem struct {
	ID             string           `json:"id"`
	Layer          MemoryLayer      `json:"layer"`
	Type           MemoryItemType   `json:"type"`
	Title          string           `json:"title,omitempty"`
	Content        string           `json:"content"`
	Tags           []string         `json:"tags,omitempty"`
	Scope          string           `json:"scope"`
	Source         string           `json:"source,omitempty"`
	Confidence     float64          `json:"confidence"`
	Salience       float64          `json:"salience"`
	TTLDays        int              `json:"ttl_days,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	References     []string         `json:"references,omitempty"`
	Fingerprint    string           `json:"fingerprint"`
	Status         MemoryItemStatus `json:"status"`
	SupersededByID string           `json:"superseded_by_id,omitempty"`
}

// Expired reports whether the item has outlived its TTL relative to now.
// A zero TTLDays means the item never expires on its own.
func (m MemoryItem) Expired(now time.Time) bool {
	if m.TTLDays <= 0 {
		return false
	}
	return now.Sub(m.CreatedAt) > time.Duration(m.TTLDays)*24*time.Hour
}

// ScopeGlobal is the one memory scope shared across all sessions and goals.
const ScopeGlobal = "global"

// SessionScope builds the session-level memory scope string for a channel
// and session key.
func SessionScope(channelID, sessionKey string) string {
	return "session:" + channelID + ":" + sessionKey
}

// GoalScope builds the goal-level memory scope string.
func GoalScope(channelID, sessionKey, goalID string) string {
	return "goal:" + channelID + ":" + sessionKey + ":" + goalID
}

// TaskScope builds the task-level memory scope string.
func TaskScope(taskID string) string {
	return "task:" + taskID
}
