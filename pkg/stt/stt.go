// Package stt provides a unified interface for speech-to-text providers.
//
// The bundled Whisper provider talks to any OpenAI-compatible
// transcription endpoint, which covers local whisper servers as well as
// the hosted API. The agent only depends on the Transcriber interface.
package stt

import (
	"context"
	"errors"
	"fmt"
)

// Transcriber converts captured audio into text.
type Transcriber interface {
	// Transcribe converts one utterance of PCM16 mono audio to text.
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (*Transcript, error)

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Transcript is the result of one transcription.
type Transcript struct {
	// Text is the recognized utterance.
	Text string

	// LatencyMs is the request time in milliseconds.
	LatencyMs int64
}

// Sentinel errors for common conditions.
var (
	// ErrNoAudio is returned when the audio buffer is empty.
	ErrNoAudio = errors.New("stt: no audio provided")

	// ErrProviderUnavailable is returned when the backend cannot be reached.
	ErrProviderUnavailable = errors.New("stt: provider unavailable")
)

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("stt [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
