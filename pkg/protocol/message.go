// Package protocol defines the WebSocket message types for the call
// transport. This package is shared between the browser client and the
// server; phone transports use their own carrier formats.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Server messages
	TypeAudio MessageType = "audio" // Microphone audio chunk
	TypeText  MessageType = "text"  // Typed utterance (no-mic fallback)

	// Server → Client messages
	TypeTranscript MessageType = "transcript" // What the caller said
	TypeChunk      MessageType = "chunk"      // Streaming response text chunk
	TypeResponse   MessageType = "response"   // Complete response text
	TypeSpeak      MessageType = "speak"      // TTS audio playback
	TypeState      MessageType = "state"      // Session state change
	TypeError      MessageType = "error"      // Recoverable error notice

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Session states carried by state messages.
const (
	StateListening = "listening"
	StateThinking  = "thinking"
	StateSpeaking  = "speaking"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		b, err := sonic.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
		rawData = b
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return sonic.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return sonic.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Client → Server Message Types
// =============================================================================

// AudioData contains microphone audio
type AudioData struct {
	Format     string `json:"format"`      // "pcm16"
	SampleRate int    `json:"sample_rate"` // e.g., 16000
	Channels   int    `json:"channels"`    // 1 for mono
	Data       string `json:"data"`        // base64 encoded
}

// TextData contains a typed utterance
type TextData struct {
	Text string `json:"text"`
}

// =============================================================================
// Server → Client Message Types
// =============================================================================

// TranscriptData contains the recognized caller utterance
type TranscriptData struct {
	Text      string `json:"text"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// ChunkData contains one streamed piece of the response text
type ChunkData struct {
	Text  string `json:"text"`
	Index int    `json:"index"`
	Final bool   `json:"final"` // true on the last chunk of a turn
}

// ResponseData contains the complete response text for a turn
type ResponseData struct {
	Text      string `json:"text"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
}

// SpeakData contains TTS audio to play
type SpeakData struct {
	Format     string `json:"format"`      // "pcm16", "mp3"
	SampleRate int    `json:"sample_rate"` // e.g., 24000
	Channels   int    `json:"channels"`    // 1 for mono
	Data       string `json:"data"`        // base64 encoded
	Final      bool   `json:"final"`       // true on the last audio chunk of a turn
}

// StateData announces a session state change
type StateData struct {
	State     string `json:"state"` // listening, thinking, speaking
	SessionID string `json:"session_id,omitempty"`
}

// ErrorData carries a recoverable error notice
type ErrorData struct {
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
