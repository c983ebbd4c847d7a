package protocol

import (
	"encoding/base64"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewAudioMessage creates a microphone audio message
func NewAudioMessage(pcmData []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeAudio, AudioData{
		Format:     "pcm16",
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcmData),
	})
}

// NewTextMessage creates a typed utterance message
func NewTextMessage(text string) (*Message, error) {
	return NewMessage(TypeText, TextData{Text: text})
}

// NewTranscriptMessage creates a transcript message
func NewTranscriptMessage(text string, latencyMs int64) (*Message, error) {
	return NewMessage(TypeTranscript, TranscriptData{
		Text:      text,
		LatencyMs: latencyMs,
	})
}

// NewChunkMessage creates a streaming response chunk message
func NewChunkMessage(text string, index int, final bool) (*Message, error) {
	return NewMessage(TypeChunk, ChunkData{
		Text:  text,
		Index: index,
		Final: final,
	})
}

// NewResponseMessage creates a complete response message
func NewResponseMessage(text string, latencyMs int64) (*Message, error) {
	return NewMessage(TypeResponse, ResponseData{
		Text:      text,
		LatencyMs: latencyMs,
	})
}

// NewSpeakMessage creates a speak message with audio data
func NewSpeakMessage(audioData []byte, format string, sampleRate int, final bool) (*Message, error) {
	return NewMessage(TypeSpeak, SpeakData{
		Format:     format,
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(audioData),
		Final:      final,
	})
}

// NewStateMessage creates a state message
func NewStateMessage(state, sessionID string) (*Message, error) {
	return NewMessage(TypeState, StateData{
		State:     state,
		SessionID: sessionID,
	})
}

// NewErrorMessage creates an error notice message
func NewErrorMessage(message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: message})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetAudioData extracts audio data from a message
func (m *Message) GetAudioData() (*AudioData, error) {
	var data AudioData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeAudioData decodes the base64 audio data
func (a *AudioData) DecodeAudioData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(a.Data)
}

// GetTextData extracts typed utterance data from a message
func (m *Message) GetTextData() (*TextData, error) {
	var data TextData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTranscriptData extracts transcript data from a message
func (m *Message) GetTranscriptData() (*TranscriptData, error) {
	var data TranscriptData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetChunkData extracts response chunk data from a message
func (m *Message) GetChunkData() (*ChunkData, error) {
	var data ChunkData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetResponseData extracts response data from a message
func (m *Message) GetResponseData() (*ResponseData, error) {
	var data ResponseData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSpeakData extracts speak data from a message
func (m *Message) GetSpeakData() (*SpeakData, error) {
	var data SpeakData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeSpeakData decodes the base64 audio data
func (s *SpeakData) DecodeSpeakData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(s.Data)
}

// GetStateData extracts state data from a message
func (m *Message) GetStateData() (*StateData, error) {
	var data StateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
