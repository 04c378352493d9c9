// Package routing implements ResponseRouting: delivering a turn's
// OutgoingResponse to the channel it arrived from, in a fixed order, never
// propagating a per-channel send failure back up as a turn failure.
package routing

import (
	"context"
	"log/slog"

	"github.com/agentloom/turnengine/internal/channels"
	"github.com/agentloom/turnengine/internal/voice"
	"github.com/agentloom/turnengine/pkg/models"
)

// PortResolver looks up the ChannelPort for a channel type, the way
// channels.Registry.GetOutbound does for OutboundAdapter.
type PortResolver interface {
	Resolve(channel models.ChannelType) (channels.ChannelPort, bool)
}

// RegistryResolver adapts a *channels.Registry to PortResolver.
type RegistryResolver struct {
	Registry *channels.Registry
}

func (r RegistryResolver) Resolve(channel models.ChannelType) (channels.ChannelPort, bool) {
	outbound, ok := r.Registry.GetOutbound(channel)
	if !ok {
		return nil, false
	}
	return channels.NewChannelPort(channel, outbound), true
}

// Router resolves the ChannelPort for a turn's session and delivers its
// OutgoingResponse: text, then voice (falling back to text on failure),
// then attachments, in that strict order.
type Router struct {
	Ports  PortResolver
	Voice  voice.Port
	Logger *slog.Logger
}

// New builds a Router. A nil logger falls back to slog.Default. A nil
// voice.Port falls back to voice.Stub, which always fails synthesis so
// voice requests immediately fall back to text delivery.
func New(ports PortResolver, voicePort voice.Port, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if voicePort == nil {
		voicePort = voice.Stub{}
	}
	return &Router{Ports: ports, Voice: voicePort, Logger: logger}
}

// Route delivers tc.OutgoingResponse and returns the RoutingOutcome. It
// never returns an error for a per-channel send failure: those are
// recorded in the outcome and logged, since the turn itself has already
// completed by the time routing runs.
func (r *Router) Route(ctx context.Context, tc *models.TurnContext) (*models.RoutingOutcome, error) {
	outcome := &models.RoutingOutcome{Attempted: true}
	if tc.SkillTransitionRequest != nil || tc.OutgoingResponse == nil || tc.Session == nil {
		outcome.Attempted = false
		return outcome, nil
	}

	port, ok := r.Ports.Resolve(tc.Session.Channel)
	if !ok {
		outcome.ErrorMessage = "no channel port registered for " + string(tc.Session.Channel)
		r.Logger.Error("response routing failed to resolve channel port",
			"channel", tc.Session.Channel, "session_id", tc.Session.ID)
		return outcome, nil
	}

	resp := tc.OutgoingResponse
	chatID := tc.Session.ChannelID

	if resp.Text != "" {
		if err := port.SendMessage(ctx, chatID, resp.Text); err != nil {
			r.Logger.Error("failed to send text", "error", err, "session_id", tc.Session.ID)
			outcome.ErrorMessage = err.Error()
		} else {
			outcome.SentText = true
		}
	}

	if resp.VoiceRequested && resp.VoiceText != "" {
		audio, mimeType, err := r.Voice.Synthesize(ctx, resp.VoiceText, voice.VoiceConfig{})
		switch {
		case err != nil:
			r.Logger.Debug("voice synthesis unavailable, falling back to text", "error", err, "session_id", tc.Session.ID)
			if sendErr := port.SendMessage(ctx, chatID, resp.VoiceText); sendErr != nil {
				r.Logger.Error("failed to send voice fallback text", "error", sendErr, "session_id", tc.Session.ID)
				if outcome.ErrorMessage == "" {
					outcome.ErrorMessage = sendErr.Error()
				}
			}
		default:
			if sendErr := port.SendVoice(ctx, chatID, audio, mimeType); sendErr != nil {
				r.Logger.Error("failed to send voice", "error", sendErr, "session_id", tc.Session.ID)
				if outcome.ErrorMessage == "" {
					outcome.ErrorMessage = sendErr.Error()
				}
			} else {
				outcome.SentVoice = true
			}
		}
	}

	if len(resp.Attachments) > 0 {
		sentAny := false
		for _, att := range resp.Attachments {
			if err := port.SendAttachment(ctx, chatID, att); err != nil {
				r.Logger.Error("failed to send attachment", "error", err, "session_id", tc.Session.ID, "attachment_id", att.ID)
				if outcome.ErrorMessage == "" {
					outcome.ErrorMessage = err.Error()
				}
				continue
			}
			sentAny = true
		}
		outcome.SentAttachments = sentAny
	}

	return outcome, nil
}
