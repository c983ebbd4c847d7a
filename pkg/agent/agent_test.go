package agent

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/voiceloop/voiceloop/pkg/convo"
	"github.com/voiceloop/voiceloop/pkg/inference"
	"github.com/voiceloop/voiceloop/pkg/stt"
	"github.com/voiceloop/voiceloop/pkg/tts"
)

func echoBackend() *inference.Mock {
	m := inference.NewMock()
	m.ChatFunc = func(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
		last := req.Messages[len(req.Messages)-1]
		return &inference.ChatResponse{
			Message: inference.NewAssistantMessage("echo: " + last.Content),
		}, nil
	}
	return m
}

func newTestSession(transcriber stt.Transcriber, speech tts.Provider, events Events) *Session {
	processor := convo.NewProcessor(echoBackend(), convo.NewMemory(4))
	return NewSession(transcriber, processor, speech, WithEvents(events))
}

func TestSessionAudioTurn(t *testing.T) {
	var states []string
	var transcripts []string
	var responses []string
	var audio bytes.Buffer
	gotFinal := false

	events := Events{
		OnState:      func(s string) { states = append(states, s) },
		OnTranscript: func(text string, _ int64) { transcripts = append(transcripts, text) },
		OnResponse:   func(text string) { responses = append(responses, text) },
		OnAudio: func(chunk []byte, _ tts.AudioFormat, final bool) {
			audio.Write(chunk)
			if final {
				gotFinal = true
			}
		},
	}

	session := newTestSession(stt.NewMock("hello there"), tts.NewMock(), events)

	if err := session.HandleAudio(context.Background(), make([]byte, 3200), 16000); err != nil {
		t.Fatalf("HandleAudio failed: %v", err)
	}

	if len(transcripts) != 1 || transcripts[0] != "hello there" {
		t.Errorf("transcripts = %v", transcripts)
	}
	if len(responses) != 1 || responses[0] != "echo: hello there" {
		t.Errorf("responses = %v", responses)
	}

	wantStates := []string{StateThinking, StateSpeaking, StateListening}
	if len(states) != len(wantStates) {
		t.Fatalf("states = %v, want %v", states, wantStates)
	}
	for i, w := range wantStates {
		if states[i] != w {
			t.Errorf("state %d = %v, want %v", i, states[i], w)
		}
	}

	if !gotFinal {
		t.Error("no final audio chunk delivered")
	}
	// Mock TTS yields ~960 silent bytes per character.
	if audio.Len() == 0 {
		t.Error("no audio delivered")
	}
	if session.Turns() != 1 {
		t.Errorf("Turns = %d, want 1", session.Turns())
	}
}

func TestSessionAudioChunkOrder(t *testing.T) {
	// Stream three distinct chunks and verify delivery order and that
	// only the last carries the final flag.
	chunks := [][]byte{{1, 1}, {2, 2}, {3, 3}}
	speech := tts.NewMock()
	speech.StreamFunc = func(ctx context.Context, text string) (tts.AudioStream, error) {
		return &sliceStream{chunks: chunks}, nil
	}

	var got [][]byte
	var finals []bool
	events := Events{
		OnAudio: func(chunk []byte, _ tts.AudioFormat, final bool) {
			got = append(got, chunk)
			finals = append(finals, final)
		},
	}

	session := newTestSession(stt.NewMock("order test"), speech, events)
	if err := session.HandleAudio(context.Background(), make([]byte, 320), 16000); err != nil {
		t.Fatalf("HandleAudio failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3", len(got))
	}
	for i := range chunks {
		if !bytes.Equal(got[i], chunks[i]) {
			t.Errorf("chunk %d = %v, want %v", i, got[i], chunks[i])
		}
		wantFinal := i == len(chunks)-1
		if finals[i] != wantFinal {
			t.Errorf("chunk %d final = %v, want %v", i, finals[i], wantFinal)
		}
	}
}

func TestSessionEmptyTranscriptSkipsTurn(t *testing.T) {
	var states []string
	events := Events{
		OnState: func(s string) { states = append(states, s) },
	}

	session := newTestSession(stt.NewMock("   "), tts.NewMock(), events)
	if err := session.HandleAudio(context.Background(), make([]byte, 320), 16000); err != nil {
		t.Fatalf("HandleAudio failed: %v", err)
	}

	if len(states) != 0 {
		t.Errorf("empty transcript should not start a turn, got states %v", states)
	}
	if session.Turns() != 0 {
		t.Errorf("Turns = %d, want 0", session.Turns())
	}
	if len(session.History()) != 0 {
		t.Errorf("memory should be untouched, got %d messages", len(session.History()))
	}
}

func TestSessionTranscribeError(t *testing.T) {
	wantErr := errors.New("stt offline")
	transcriber := &stt.Mock{
		TranscribeFunc: func(ctx context.Context, pcm []byte, sampleRate int) (*stt.Transcript, error) {
			return nil, wantErr
		},
	}

	var errs []error
	events := Events{
		OnError: func(err error) { errs = append(errs, err) },
	}

	session := newTestSession(transcriber, tts.NewMock(), events)
	err := session.HandleAudio(context.Background(), make([]byte, 320), 16000)
	if !errors.Is(err, wantErr) {
		t.Errorf("expected stt error, got %v", err)
	}
	if len(errs) != 1 {
		t.Errorf("OnError fired %d times, want 1", len(errs))
	}
}

func TestSessionSynthesisFailureKeepsTurn(t *testing.T) {
	var errs []error
	var responses []string
	events := Events{
		OnResponse: func(text string) { responses = append(responses, text) },
		OnError:    func(err error) { errs = append(errs, err) },
		OnAudio:    func(chunk []byte, _ tts.AudioFormat, final bool) {},
	}

	speech := tts.WithError(errors.New("speech server down"))
	session := newTestSession(stt.NewMock("still there?"), speech, events)

	if err := session.HandleAudio(context.Background(), make([]byte, 320), 16000); err != nil {
		t.Fatalf("HandleAudio failed: %v", err)
	}

	if len(responses) != 1 {
		t.Fatalf("response should be delivered despite TTS failure, got %v", responses)
	}
	if len(errs) != 1 {
		t.Errorf("OnError fired %d times, want 1", len(errs))
	}
	if session.Turns() != 1 {
		t.Errorf("Turns = %d, want 1", session.Turns())
	}
	// Memory still records the turn.
	if len(session.History()) != 2 {
		t.Errorf("memory has %d messages, want 2", len(session.History()))
	}
}

func TestSessionTextTurn(t *testing.T) {
	var responses []string
	events := Events{
		OnResponse: func(text string) { responses = append(responses, text) },
	}

	session := newTestSession(stt.NewMock(""), tts.NewMock(), events)
	if err := session.HandleText(context.Background(), "typed hello"); err != nil {
		t.Fatalf("HandleText failed: %v", err)
	}

	if len(responses) != 1 || responses[0] != "echo: typed hello" {
		t.Errorf("responses = %v", responses)
	}
}

func TestSessionHistory(t *testing.T) {
	session := newTestSession(stt.NewMock(""), tts.NewMock(), Events{})

	session.HandleText(context.Background(), "one")
	session.HandleText(context.Background(), "two")

	history := session.History()
	if len(history) != 4 {
		t.Fatalf("history has %d messages, want 4", len(history))
	}
	if history[0].Content != "one" || history[2].Content != "two" {
		t.Errorf("unexpected history order: %v", history)
	}
}

func TestSessionUniqueIDs(t *testing.T) {
	a := newTestSession(stt.NewMock(""), tts.NewMock(), Events{})
	b := newTestSession(stt.NewMock(""), tts.NewMock(), Events{})

	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("session IDs should be unique and non-empty: %q vs %q", a.ID(), b.ID())
	}
}

// sliceStream replays fixed chunks as an AudioStream.
type sliceStream struct {
	chunks [][]byte
	pos    int
}

func (s *sliceStream) Read() ([]byte, error) {
	if s.pos >= len(s.chunks) {
		return nil, nil
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *sliceStream) Close() error { return nil }

func (s *sliceStream) Format() tts.AudioFormat {
	return tts.AudioFormat{Encoding: tts.EncodingPCM, SampleRate: 24000, Channels: 1, BitDepth: 16}
}
