package pipeline

import (
	"context"
	"strings"

	"github.com/agentloom/turnengine/pkg/models"
)

// maxInputSize caps inbound content the way the gateway's message handler
// did, to prevent memory exhaustion from a single oversized message.
const maxInputSize = 1 << 20 // 1MB

var externalDataMarkers = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard your instructions",
	"you are now",
	"new instructions:",
}

// InputSanitization is order-10: it never rejects input, only truncates
// oversized content and records suspicious patterns for observability.
type InputSanitization struct {
	alwaysProcess
}

func (InputSanitization) Name() string { return "InputSanitization" }
func (InputSanitization) Order() int   { return 10 }

func (InputSanitization) Process(_ context.Context, tc *models.TurnContext) error {
	if tc.Inbound == nil {
		return nil
	}
	if len(tc.Inbound.Content) > maxInputSize {
		tc.Inbound.Content = tc.Inbound.Content[:maxInputSize]
	}

	lowered := strings.ToLower(tc.Inbound.Content)
	var detected []string
	for _, marker := range externalDataMarkers {
		if strings.Contains(lowered, marker) {
			detected = append(detected, marker)
		}
	}
	tc.Sanitization = models.SanitizationReport{
		Performed:       true,
		DetectedThreats: detected,
	}
	return nil
}
