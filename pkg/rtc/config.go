package rtc

import "log/slog"

// Config holds WebRTC transport tuning.
type Config struct {
	// STUNServers used for ICE gathering.
	STUNServers []string

	// DecodeRate is the rate the inbound opus stream is decoded at.
	DecodeRate int

	// CaptureRate is the rate utterances are handed to recognition at.
	CaptureRate int

	// PlaybackRate is the PCM rate of synthesized reply audio.
	PlaybackRate int

	Logger *slog.Logger
}

// DefaultConfig returns tuning that matches the rest of the pipeline:
// opus decodes at 48kHz, recognition wants 16kHz, synthesis emits 24kHz.
func DefaultConfig() Config {
	return Config{
		STUNServers:  []string{"stun:stun.l.google.com:19302"},
		DecodeRate:   48000,
		CaptureRate:  16000,
		PlaybackRate: 24000,
		Logger:       slog.Default(),
	}
}
