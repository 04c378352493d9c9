package memory

import (
	"context"

	"github.com/agentloom/turnengine/internal/pipeline"
	"github.com/agentloom/turnengine/pkg/models"
)

// PipelineAdapter wires an *ItemStore into the pipeline's MemoryWriter (order
// 50, MemoryPersist) and MemoryRecaller (order 20, ContextBuilding) seams.
type PipelineAdapter struct {
	Store *ItemStore
}

// Write implements pipeline.MemoryWriter.
func (a PipelineAdapter) Write(ctx context.Context, scope string, items []models.MemoryItem) error {
	for i := range items {
		item := items[i]
		item.Scope = scope
		if err := a.Store.Write(ctx, &item); err != nil {
			return err
		}
	}
	return nil
}

// Recall implements pipeline.MemoryRecaller: it retrieves each scope in the
// caller's precedence order and concatenates their items before packing, so
// higher-precedence scopes (earlier in the list) win the token budget first
// (Pack drops items that would overflow rather than truncating).
func (a PipelineAdapter) Recall(ctx context.Context, scopes []string, maxTokens int) (string, error) {
	var all []*models.MemoryItem
	for _, scope := range scopes {
		items, err := a.Store.Retrieve(ctx, scope, RetrieveOptions{})
		if err != nil {
			return "", err
		}
		all = append(all, items...)
	}
	return Pack(all, maxTokens), nil
}

var (
	_ pipeline.MemoryWriter   = PipelineAdapter{}
	_ pipeline.MemoryRecaller = PipelineAdapter{}
)
