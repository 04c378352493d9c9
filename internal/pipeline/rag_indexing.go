package pipeline

import (
	"context"

	"github.com/agentloom/turnengine/pkg/models"
)

// RagIndexer indexes turn content for later similarity search.
type RagIndexer interface {
	Index(ctx context.Context, sessionID, text string) error
}

// RagIndexing is order-55: it feeds the turn's exchange into the vector
// index used for semantic recall, when a RagIndexer is configured.
type RagIndexing struct {
	alwaysProcess
	Indexer RagIndexer
}

func (RagIndexing) Name() string { return "RagIndexing" }
func (RagIndexing) Order() int   { return 55 }

func (RagIndexing) ShouldProcess(_ context.Context, tc *models.TurnContext) bool {
	return tc.LlmResponse != nil && tc.LlmResponse.Text != ""
}

func (r RagIndexing) Process(ctx context.Context, tc *models.TurnContext) error {
	if r.Indexer == nil || tc.Session == nil {
		return nil
	}
	return r.Indexer.Index(ctx, tc.Session.ID, tc.LlmResponse.Text)
}
