// Package agent wires a call session end to end: caller audio goes
// through speech recognition, the turn processor produces a reply, and
// the reply is synthesized and streamed back chunk by chunk.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voiceloop/voiceloop/pkg/convo"
	"github.com/voiceloop/voiceloop/pkg/inference"
	"github.com/voiceloop/voiceloop/pkg/stt"
	"github.com/voiceloop/voiceloop/pkg/tts"
)

// Session states reported through Events.OnState.
const (
	StateListening = "listening"
	StateThinking  = "thinking"
	StateSpeaking  = "speaking"
)

// Events carries the session's output callbacks. Nil fields are
// skipped. Callbacks run on the turn goroutine, so they must not block
// for long.
type Events struct {
	// OnState fires on listening/thinking/speaking transitions.
	OnState func(state string)

	// OnTranscript fires when the caller's utterance is recognized.
	OnTranscript func(text string, latencyMs int64)

	// OnResponse fires with the complete reply text before synthesis.
	OnResponse func(text string)

	// OnAudio fires for each synthesized audio chunk, in stream order.
	// final is true on the last chunk of the turn.
	OnAudio func(chunk []byte, format tts.AudioFormat, final bool)

	// OnError fires for recoverable per-turn failures.
	OnError func(err error)
}

// Session is one caller's conversation. A session owns its memory via
// the turn processor and serializes turns: one utterance is fully
// answered before the next is taken.
type Session struct {
	id          string
	transcriber stt.Transcriber
	processor   *convo.Processor
	speech      tts.Provider
	events      Events
	logger      *slog.Logger

	mu      sync.Mutex
	started time.Time
	turns   int
}

// Option configures a Session.
type Option func(*Session)

// WithEvents sets the session's output callbacks.
func WithEvents(events Events) Option {
	return func(s *Session) {
		s.events = events
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a session over the given pipeline stages.
func NewSession(transcriber stt.Transcriber, processor *convo.Processor, speech tts.Provider, opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		transcriber: transcriber,
		processor:   processor,
		speech:      speech,
		logger:      slog.Default(),
		started:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "agent.session", "session_id", s.id)
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Turns returns the number of completed turns.
func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// History returns a snapshot of the conversation memory.
func (s *Session) History() []inference.Message {
	return s.processor.Memory().Snapshot()
}

// HandleAudio runs one full turn from caller PCM audio: transcribe,
// respond, synthesize. Empty transcripts are dropped without a turn.
func (s *Session) HandleAudio(ctx context.Context, pcm []byte, sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	transcript, err := s.transcriber.Transcribe(ctx, pcm, sampleRate)
	if err != nil {
		s.fireError(fmt.Errorf("transcribe: %w", err))
		return err
	}

	text := strings.TrimSpace(transcript.Text)
	if text == "" {
		s.logger.Debug("empty transcript, skipping turn")
		return nil
	}

	s.logger.Info("caller utterance",
		"text", text,
		"stt_latency_ms", transcript.LatencyMs,
	)
	if s.events.OnTranscript != nil {
		s.events.OnTranscript(text, transcript.LatencyMs)
	}

	return s.respond(ctx, text)
}

// HandleText runs one full turn from a typed utterance, bypassing
// speech recognition.
func (s *Session) HandleText(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return s.respond(ctx, text)
}

// respond produces and delivers the reply for one utterance.
// Caller holds s.mu.
func (s *Session) respond(ctx context.Context, utterance string) error {
	start := time.Now()
	s.fireState(StateThinking)

	response := s.processor.Process(ctx, utterance)
	thinkMs := time.Since(start).Milliseconds()

	s.logger.Info("turn response",
		"chars", len(response),
		"think_ms", thinkMs,
	)
	if s.events.OnResponse != nil {
		s.events.OnResponse(response)
	}

	s.fireState(StateSpeaking)
	if err := s.speak(ctx, response); err != nil {
		// The caller already has the text response; a synthesis
		// failure does not lose the turn.
		s.fireError(fmt.Errorf("synthesize: %w", err))
	}

	s.turns++
	s.fireState(StateListening)
	return nil
}

// speak streams the reply audio to OnAudio, preserving chunk order.
func (s *Session) speak(ctx context.Context, text string) error {
	if s.events.OnAudio == nil {
		return nil
	}

	stream, err := s.speech.Stream(ctx, text)
	if err != nil {
		return err
	}
	defer stream.Close()

	format := stream.Format()
	var pending []byte
	first := true
	ttfb := time.Now()

	for {
		chunk, err := stream.Read()
		if err != nil {
			return err
		}
		if chunk == nil {
			break
		}
		if first {
			s.logger.Debug("first audio chunk", "ttfb_ms", time.Since(ttfb).Milliseconds())
			first = false
		}
		// Hold one chunk back so the last delivered chunk can carry
		// the final flag.
		if pending != nil {
			s.events.OnAudio(pending, format, false)
		}
		pending = chunk
	}

	if pending != nil {
		s.events.OnAudio(pending, format, true)
	} else {
		s.events.OnAudio(nil, format, true)
	}
	return nil
}

func (s *Session) fireState(state string) {
	if s.events.OnState != nil {
		s.events.OnState(state)
	}
}

func (s *Session) fireError(err error) {
	s.logger.Warn("session error", "error", err)
	if s.events.OnError != nil {
		s.events.OnError(err)
	}
}
