package channels

import (
	"context"
	"encoding/base64"

	"github.com/agentloom/turnengine/pkg/models"
)

// ChannelPort is the per-channel transport contract response routing
// depends on: independent delivery operations for text, voice, and
// attachments, plus a sender-authorization check. It is narrower than
// OutboundAdapter on purpose, so routing code can't reach into channel
// internals it has no business touching.
type ChannelPort interface {
	SendMessage(ctx context.Context, transportChatID, text string) error
	SendVoice(ctx context.Context, transportChatID string, audio []byte, mimeType string) error
	SendAttachment(ctx context.Context, transportChatID string, attachment models.Attachment) error
	IsAuthorized(ctx context.Context, senderID string) bool
}

// Authorizer is implemented by adapters that can answer an authorization
// check directly. Adapters that don't implement it are treated as
// authorizing every sender, matching the teacher's default-open channels.
type Authorizer interface {
	IsAuthorized(ctx context.Context, senderID string) bool
}

// portAdapter adapts an OutboundAdapter to ChannelPort. The channel SDKs
// wired into this package send a full Message rather than exposing
// text/voice/attachment as independent calls, so voice and attachments are
// expressed as Message.Attachments the same way the gateway's
// artifactToAttachment conversion did.
type portAdapter struct {
	channel  models.ChannelType
	outbound OutboundAdapter
}

// NewChannelPort wraps outbound as a ChannelPort for channel.
func NewChannelPort(channel models.ChannelType, outbound OutboundAdapter) ChannelPort {
	return &portAdapter{channel: channel, outbound: outbound}
}

func (p *portAdapter) SendMessage(ctx context.Context, transportChatID, text string) error {
	return p.outbound.Send(ctx, &models.Message{
		Channel:   p.channel,
		ChannelID: transportChatID,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Content:   text,
	})
}

func (p *portAdapter) SendVoice(ctx context.Context, transportChatID string, audio []byte, mimeType string) error {
	if mimeType == "" {
		mimeType = "audio/ogg"
	}
	return p.outbound.Send(ctx, &models.Message{
		Channel:   p.channel,
		ChannelID: transportChatID,
		Direction: models.DirectionOutbound,
		Role:      models.RoleAssistant,
		Attachments: []models.Attachment{{
			Type:     "audio",
			MimeType: mimeType,
			URL:      "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(audio),
			Size:     int64(len(audio)),
		}},
	})
}

func (p *portAdapter) SendAttachment(ctx context.Context, transportChatID string, attachment models.Attachment) error {
	return p.outbound.Send(ctx, &models.Message{
		Channel:     p.channel,
		ChannelID:   transportChatID,
		Direction:   models.DirectionOutbound,
		Role:        models.RoleAssistant,
		Attachments: []models.Attachment{attachment},
	})
}

func (p *portAdapter) IsAuthorized(ctx context.Context, senderID string) bool {
	if auth, ok := p.outbound.(Authorizer); ok {
		return auth.IsAuthorized(ctx, senderID)
	}
	return true
}
