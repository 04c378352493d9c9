package pipeline

import (
	"context"
	"strings"

	"github.com/agentloom/turnengine/internal/agent"
	"github.com/agentloom/turnengine/pkg/models"
)

// maxResponseSize caps accumulated response text to prevent memory
// exhaustion from a runaway stream, mirroring the gateway's limit.
const maxResponseSize = 1 << 20 // 1MB

// Looper is the subset of *agent.AgenticLoop that ToolLoopExecution
// depends on.
type Looper interface {
	Run(ctx context.Context, session *models.Session, msg *models.Message) (<-chan *agent.ResponseChunk, error)
}

// ToolLoopExecution is order-30: it runs the bounded LLM/tool iteration loop
// and drains its streamed chunks into the turn's LlmResponse.
type ToolLoopExecution struct {
	alwaysProcess
	Loop Looper
}

func (ToolLoopExecution) Name() string { return "ToolLoopExecution" }
func (ToolLoopExecution) Order() int   { return 30 }

func (t ToolLoopExecution) Process(ctx context.Context, tc *models.TurnContext) error {
	if t.Loop == nil {
		return nil
	}
	chunks, err := t.Loop.Run(ctx, tc.Session, tc.Inbound)
	if err != nil {
		return err
	}

	var text strings.Builder
	var attachments []models.Attachment
	var toolCalls []models.ToolCall
	for chunk := range chunks {
		if chunk.Error != nil {
			tc.Failures = append(tc.Failures, models.FailureEvent{
				Source:    models.FailureSourceLLM,
				Component: "ToolLoopExecution",
				Kind:      models.FailureKindException,
				Message:   chunk.Error.Error(),
			})
			continue
		}
		if chunk.Text != "" && text.Len()+len(chunk.Text) <= maxResponseSize {
			text.WriteString(chunk.Text)
		}
		if chunk.ToolResult != nil && chunk.ToolResult.IsError {
			tc.Failures = append(tc.Failures, models.FailureEvent{
				Source:    models.FailureSourceTool,
				Component: chunk.ToolResult.ToolCallID,
				Kind:      models.FailureKindException,
				Message:   chunk.ToolResult.Content,
			})
		}
		for _, art := range chunk.Artifacts {
			attachments = append(attachments, models.Attachment{
				ID:       art.ID,
				Type:     art.Type,
				URL:      art.URL,
				Filename: art.Filename,
				MimeType: art.MimeType,
				Size:     int64(len(art.Data)),
			})
		}
	}

	tc.LlmResponse = &models.LlmResponse{Text: text.String(), ToolCalls: toolCalls}
	if len(attachments) > 0 {
		if tc.OutgoingResponse == nil {
			tc.OutgoingResponse = &models.OutgoingResponse{}
		}
		tc.OutgoingResponse.Attachments = attachments
	}
	return nil
}
