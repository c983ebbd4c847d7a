package convo

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voiceloop/voiceloop/pkg/inference"
)

// Processor turns one transcribed utterance into a spoken response.
// It owns the conversation memory and never lets a backend failure
// escape: every call yields a response string, worst case the apology.
type Processor struct {
	backend inference.Provider
	memory  *Memory
	config  *Config
	logger  *slog.Logger

	// Serializes turns if the transport dispatches them concurrently.
	mu sync.Mutex
}

// NewProcessor creates a turn processor over the given backend and memory.
func NewProcessor(backend inference.Provider, memory *Memory, opts ...Option) *Processor {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &Processor{
		backend: backend,
		memory:  memory,
		config:  cfg,
		logger:  cfg.Logger.With("component", "convo.processor"),
	}
}

// Memory returns the processor's conversation memory.
func (p *Processor) Memory() *Memory {
	return p.memory
}

// Process handles one utterance and returns the response text.
//
// The prompt is [system] + memory snapshot (oldest first) + the new user
// message. The backend is invoked at most Attempts times with a fixed
// backoff in between; after the final failure the apology is returned
// and the error logged. Exactly one user and one assistant message are
// appended to memory per call, on every path.
func (p *Processor) Process(ctx context.Context, utterance string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := p.memory.Snapshot()
	messages := make([]inference.Message, 0, len(snapshot)+2)
	messages = append(messages, inference.NewSystemMessage(p.config.SystemPrompt))
	messages = append(messages, snapshot...)
	userMsg := inference.NewUserMessage(utterance)
	messages = append(messages, userMsg)

	var response string
	var lastErr error

	for attempt := 1; attempt <= p.config.Attempts; attempt++ {
		resp, err := p.backend.Chat(ctx, &inference.ChatRequest{
			Messages:    messages,
			Model:       p.config.Model,
			MaxTokens:   p.config.MaxTokens,
			Temperature: p.config.Temperature,
			TopP:        p.config.TopP,
		})
		if err == nil {
			response = resp.Message.Content
			lastErr = nil
			p.logger.Debug("response generated",
				"attempt", attempt,
				"latency_ms", resp.LatencyMs,
				"tokens", resp.Usage.CompletionTokens,
			)
			break
		}

		lastErr = err
		p.logger.Warn("chat request failed",
			"attempt", attempt,
			"error", err,
		)

		if attempt < p.config.Attempts {
			select {
			case <-time.After(p.config.Backoff):
			case <-ctx.Done():
			}
		}
	}

	if lastErr != nil {
		response = p.config.Apology
	}

	p.memory.Append(userMsg)
	p.memory.Append(inference.NewAssistantMessage(response))

	return response
}
