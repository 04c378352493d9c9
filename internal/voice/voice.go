// Package voice defines VoicePort, the speech transcription/synthesis
// contract. No STT/TTS SDK appears in the dependency pack beyond the audio
// helpers already bundled into the Anthropic/OpenAI provider SDKs wired
// into internal/agent/providers, so this package ships only a reference
// stub that reports itself unconfigured rather than a real backend.
package voice

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by the stub VoicePort for every operation.
var ErrNotConfigured = errors.New("voice: no speech backend configured")

// VoiceConfig selects the voice and style used for synthesis.
type VoiceConfig struct {
	VoiceID string
	Style   string
}

// Port is the speech transcription/synthesis contract.
type Port interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
	Synthesize(ctx context.Context, text string, cfg VoiceConfig) ([]byte, string, error)
}

// Stub is a Port that always reports ErrNotConfigured, so callers can wire
// VoicePort-shaped code paths (synthesize-then-fallback-to-text) without a
// real speech backend.
type Stub struct{}

func (Stub) Transcribe(context.Context, []byte, string) (string, error) {
	return "", ErrNotConfigured
}

func (Stub) Synthesize(context.Context, string, VoiceConfig) ([]byte, string, error) {
	return nil, "", ErrNotConfigured
}
