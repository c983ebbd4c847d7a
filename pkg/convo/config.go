package convo

import (
	"log/slog"
	"time"
)

// DefaultSystemPrompt matches the voice-call framing the agent runs with
// when no prompt file or flag overrides it.
const DefaultSystemPrompt = "You are a helpful LLM in a WebRTC call. " +
	"Your goal is to demonstrate your capabilities in a succinct way. " +
	"Your output will be converted to audio so don't include emojis or " +
	"special characters in your answers. Respond to what the user said " +
	"in a creative and helpful way."

// DefaultApology is spoken when the backend fails on every attempt.
const DefaultApology = "I'm sorry, I had trouble responding. Could you please repeat that?"

// Config holds turn-processor configuration.
type Config struct {
	// Prompt assembly
	SystemPrompt string

	// Generation parameters forwarded to the backend.
	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64

	// Retry policy. Attempts is the total invocation budget,
	// Backoff the fixed wait between attempts.
	Attempts int
	Backoff  time.Duration

	// Apology is the canned response substituted after the final failure.
	Apology string

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring the processor.
type Option func(*Config)

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) { c.SystemPrompt = prompt }
}

// WithModel sets the model passed to the backend.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens sets the response token limit.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = t }
}

// WithTopP sets the nucleus sampling parameter.
func WithTopP(p float64) Option {
	return func(c *Config) { c.TopP = p }
}

// WithRetry configures the attempt budget and the fixed backoff.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Config) {
		c.Attempts = attempts
		c.Backoff = backoff
	}
}

// WithApology sets the canned fallback response.
func WithApology(text string) Option {
	return func(c *Config) { c.Apology = text }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults for a local voice session.
func DefaultConfig() *Config {
	return &Config{
		SystemPrompt: DefaultSystemPrompt,
		MaxTokens:    200,
		Temperature:  0.7,
		TopP:         0.9,
		Attempts:     2,
		Backoff:      200 * time.Millisecond,
		Apology:      DefaultApology,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
