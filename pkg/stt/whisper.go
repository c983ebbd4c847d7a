package stt

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/voiceloop/voiceloop/pkg/audioio"
)

const providerWhisper = "whisper"

// Whisper transcribes audio through an OpenAI-compatible
// /audio/transcriptions endpoint (local whisper server or hosted API).
type Whisper struct {
	client *openai.Client
	config *Config
	logger *slog.Logger
}

// NewWhisper creates a new Whisper transcriber.
func NewWhisper(opts ...Option) (*Whisper, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Whisper{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
		logger: cfg.Logger.With("component", "stt.whisper"),
	}, nil
}

// Transcribe converts one utterance of PCM16 mono audio to text.
func (w *Whisper) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*Transcript, error) {
	if len(pcm) == 0 {
		return nil, WrapError(providerWhisper, ErrNoAudio)
	}

	start := time.Now()

	wav := audioio.WAVBytes(pcm, sampleRate, 1)

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.config.Model,
		Reader:   bytes.NewReader(wav),
		FilePath: "utterance.wav",
		Language: w.config.Language,
	})
	if err != nil {
		return nil, WrapError(providerWhisper, fmt.Errorf("transcription request: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	w.logger.Debug("transcribed utterance",
		"bytes", len(pcm),
		"chars", len(resp.Text),
		"latency_ms", latency,
	)

	return &Transcript{
		Text:      resp.Text,
		LatencyMs: latency,
	}, nil
}

// Health checks API connectivity.
func (w *Whisper) Health(ctx context.Context) error {
	if _, err := w.client.ListModels(ctx); err != nil {
		return WrapError(providerWhisper, fmt.Errorf("health check: %w", err))
	}
	return nil
}

// Close releases resources.
func (w *Whisper) Close() error {
	return nil
}

// Verify Whisper implements Transcriber at compile time.
var _ Transcriber = (*Whisper)(nil)
