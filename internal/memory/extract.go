package memory

import (
	"time"

	"github.com/agentloom/turnengine/pkg/models"
)

// promoteConfidenceThreshold is the confidence above which an episodic
// candidate is promoted straight to the Semantic layer instead of only
// being retained as an episodic record.
const promoteConfidenceThreshold = 0.85

var defaultCaptureConfig = AutoCaptureConfig{
	MinContentLength:   10,
	MaxContentLength:   500,
	DuplicateThreshold: 0.95,
	DefaultImportance:  0.7,
}

// ExtractTurnItems derives MemoryItem candidates from a just-completed turn:
// the user's message, the assistant's final answer, and any tool failures
// recorded on the turn. It reuses the same capture heuristic as the
// vector-memory auto-capture hook (shouldCapture/detectCategory) so the two
// memory paths agree on what counts as worth remembering.
func ExtractTurnItems(tc *models.TurnContext) []models.MemoryItem {
	if tc == nil {
		return nil
	}
	now := time.Now().UTC()
	var items []models.MemoryItem

	if tc.Inbound != nil && shouldCapture(tc.Inbound.Content, defaultCaptureConfig) {
		items = append(items, buildTurnItem(tc.Inbound.Content, "user", now))
	}
	if tc.LlmResponse != nil && shouldCapture(tc.LlmResponse.Text, defaultCaptureConfig) {
		items = append(items, buildTurnItem(tc.LlmResponse.Text, "assistant", now))
	}
	for _, f := range tc.Failures {
		if f.Source != models.FailureSourceTool {
			continue
		}
		items = append(items, models.MemoryItem{
			Layer:      models.MemoryLayerEpisodic,
			Type:       models.MemoryTypeFailure,
			Title:      truncate(f.Message, 60),
			Content:    f.Message,
			Source:     "tool:" + f.Component,
			Confidence: 0.6,
			Salience:   0.6,
			Status:     models.MemoryStatusActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	return items
}

func buildTurnItem(content, role string, now time.Time) models.MemoryItem {
	category := detectCategory(content)
	itemType := memoryTypeForCategory(category)
	confidence := confidenceForCategory(category)
	layer := models.MemoryLayerEpisodic
	if confidence >= promoteConfidenceThreshold {
		layer = models.MemoryLayerSemantic
	}
	return models.MemoryItem{
		Layer:      layer,
		Type:       itemType,
		Title:      truncate(content, 60),
		Content:    content,
		Source:     role,
		Confidence: confidence,
		Salience:   confidence,
		Status:     models.MemoryStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func memoryTypeForCategory(c MemoryCategory) models.MemoryItemType {
	switch c {
	case CategoryPreference:
		return models.MemoryTypePreference
	case CategoryDecision:
		return models.MemoryTypeDecision
	case CategoryFact, CategoryEntity:
		return models.MemoryTypeProjectFact
	default:
		return models.MemoryTypeTaskState
	}
}

func confidenceForCategory(c MemoryCategory) float64 {
	switch c {
	case CategoryPreference, CategoryDecision:
		return 0.9
	case CategoryFact, CategoryEntity:
		return 0.8
	default:
		return 0.5
	}
}
