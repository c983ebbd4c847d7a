package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "transcript message",
			msgType: TypeTranscript,
			data:    TranscriptData{Text: "hello", LatencyMs: 120},
			wantErr: false,
		},
		{
			name:    "state message",
			msgType: TypeState,
			data:    StateData{State: StateThinking},
			wantErr: false,
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if msg == nil && !tt.wantErr {
				t.Error("NewMessage() returned nil message")
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg, err := NewTranscriptMessage("turn it down please", 85)
	if err != nil {
		t.Fatalf("NewTranscriptMessage() error = %v", err)
	}

	bytes, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(bytes)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	if parsed.Type != TypeTranscript {
		t.Errorf("Type = %v, want %v", parsed.Type, TypeTranscript)
	}

	transcript, err := parsed.GetTranscriptData()
	if err != nil {
		t.Fatalf("GetTranscriptData() error = %v", err)
	}

	if transcript.Text != "turn it down please" {
		t.Errorf("Text = %q", transcript.Text)
	}
	if transcript.LatencyMs != 85 {
		t.Errorf("LatencyMs = %v, want 85", transcript.LatencyMs)
	}
}

func TestAudioMessage(t *testing.T) {
	pcmData := make([]byte, 1024)
	for i := range pcmData {
		pcmData[i] = byte(i % 256)
	}

	msg, err := NewAudioMessage(pcmData, 16000)
	if err != nil {
		t.Fatalf("NewAudioMessage() error = %v", err)
	}

	if msg.Type != TypeAudio {
		t.Errorf("Type = %v, want %v", msg.Type, TypeAudio)
	}

	audio, err := msg.GetAudioData()
	if err != nil {
		t.Fatalf("GetAudioData() error = %v", err)
	}

	if audio.SampleRate != 16000 {
		t.Errorf("SampleRate = %v, want 16000", audio.SampleRate)
	}
	if audio.Format != "pcm16" {
		t.Errorf("Format = %v, want pcm16", audio.Format)
	}

	decoded, err := audio.DecodeAudioData()
	if err != nil {
		t.Fatalf("DecodeAudioData() error = %v", err)
	}

	if len(decoded) != len(pcmData) {
		t.Errorf("Decoded length = %v, want %v", len(decoded), len(pcmData))
	}
}

func TestChunkMessageOrdering(t *testing.T) {
	chunks := []string{"I can ", "hear you ", "loud and clear."}

	for i, text := range chunks {
		final := i == len(chunks)-1
		msg, err := NewChunkMessage(text, i, final)
		if err != nil {
			t.Fatalf("NewChunkMessage() error = %v", err)
		}

		data, err := msg.GetChunkData()
		if err != nil {
			t.Fatalf("GetChunkData() error = %v", err)
		}

		if data.Index != i {
			t.Errorf("Index = %v, want %v", data.Index, i)
		}
		if data.Final != final {
			t.Errorf("Final = %v, want %v", data.Final, final)
		}
		if data.Text != text {
			t.Errorf("Text = %q, want %q", data.Text, text)
		}
	}
}

func TestSpeakMessage(t *testing.T) {
	audioData := []byte{0x00, 0x01, 0x02, 0x03}

	msg, err := NewSpeakMessage(audioData, "pcm16", 24000, true)
	if err != nil {
		t.Fatalf("NewSpeakMessage() error = %v", err)
	}

	if msg.Type != TypeSpeak {
		t.Errorf("Type = %v, want %v", msg.Type, TypeSpeak)
	}

	speakData, err := msg.GetSpeakData()
	if err != nil {
		t.Fatalf("GetSpeakData() error = %v", err)
	}

	if speakData.Format != "pcm16" {
		t.Errorf("Format = %v, want pcm16", speakData.Format)
	}
	if speakData.SampleRate != 24000 {
		t.Errorf("SampleRate = %v, want 24000", speakData.SampleRate)
	}
	if !speakData.Final {
		t.Error("Final should be true")
	}

	decoded, err := speakData.DecodeSpeakData()
	if err != nil {
		t.Fatalf("DecodeSpeakData() error = %v", err)
	}

	if len(decoded) != len(audioData) {
		t.Errorf("Decoded length = %v, want %v", len(decoded), len(audioData))
	}
}

func TestStateMessage(t *testing.T) {
	msg, err := NewStateMessage(StateSpeaking, "sess-42")
	if err != nil {
		t.Fatalf("NewStateMessage() error = %v", err)
	}

	stateData, err := msg.GetStateData()
	if err != nil {
		t.Fatalf("GetStateData() error = %v", err)
	}

	if stateData.State != StateSpeaking {
		t.Errorf("State = %v, want %v", stateData.State, StateSpeaking)
	}
	if stateData.SessionID != "sess-42" {
		t.Errorf("SessionID = %v, want sess-42", stateData.SessionID)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	if pingMsg.Type != TypePing {
		t.Errorf("Type = %v, want %v", pingMsg.Type, TypePing)
	}

	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}

	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingMsg.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}

	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}

	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestParseInvalidMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:    "invalid json",
			input:   "not json",
			wantErr: true,
		},
		{
			name:    "empty json",
			input:   "{}",
			wantErr: false, // Empty is valid, just no type
		},
		{
			name:    "valid message",
			input:   `{"type":"ping","ts":1234567890}`,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMessageJSON(t *testing.T) {
	// Verify JSON structure matches the wire format the browser expects
	msg, _ := NewStateMessage(StateListening, "")

	bytes, _ := msg.Bytes()

	var parsed map[string]interface{}
	if err := json.Unmarshal(bytes, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal as map: %v", err)
	}

	if parsed["type"] != "state" {
		t.Errorf("type = %v, want state", parsed["type"])
	}

	if _, ok := parsed["ts"]; !ok {
		t.Error("ts field should be present")
	}

	if _, ok := parsed["data"]; !ok {
		t.Error("data field should be present")
	}
}

func BenchmarkNewAudioMessage(b *testing.B) {
	pcmData := make([]byte, 32*1024)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewAudioMessage(pcmData, 16000)
	}
}

func BenchmarkParseMessage(b *testing.B) {
	msg, _ := NewAudioMessage(make([]byte, 32*1024), 16000)
	bytes, _ := msg.Bytes()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseMessage(bytes)
	}
}
