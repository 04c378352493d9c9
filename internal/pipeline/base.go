package pipeline

import (
	"context"

	"github.com/agentloom/turnengine/pkg/models"
)

// alwaysProcess is embedded by systems that run unconditionally.
type alwaysProcess struct{}

func (alwaysProcess) ShouldProcess(context.Context, *models.TurnContext) bool { return true }
