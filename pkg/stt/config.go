package stt

import "log/slog"

// Config holds transcriber configuration.
type Config struct {
	// Connection
	BaseURL string // OpenAI-compatible API base (e.g. "http://localhost:8001/v1")
	APIKey  string // Optional for local servers

	// Model
	Model    string // Transcription model name
	Language string // Language hint (ISO-639-1)

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring transcribers.
type Option func(*Config)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the transcription model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithLanguage sets the language hint.
func WithLanguage(lang string) Option {
	return func(c *Config) { c.Language = lang }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults for a local whisper server.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  "http://localhost:8001/v1",
		Model:    "whisper-1",
		Language: "en",
		Logger:   slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
