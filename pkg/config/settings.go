// Package config resolves the effective voiceloop settings from built-in
// defaults, an optional YAML config file, an optional system-prompt file,
// and command-line flags, in that precedence order.
//
// File problems are never fatal: a missing config file is silently
// tolerated, and malformed files or unreadable prompt files log a warning
// and keep the previous values. Command-line flags only override when the
// user actually supplied them (cmd/voiceloop uses flag.Visit), so a flag's
// default never clobbers a config-file value.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/voiceloop/voiceloop/pkg/convo"
)

// Default settings for a local deployment.
const (
	DefaultModel       = "gemma3:1b"
	DefaultMaxTokens   = 200
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
	DefaultMemoryTurns = 4
	DefaultAddr        = "127.0.0.1:7860"
	DefaultLogLevel    = "debug"
	DefaultLLMURL      = "http://localhost:11434"
	DefaultSTTURL      = "http://localhost:8001/v1"
	DefaultTTSURL      = "http://localhost:8880/v1"
)

// Settings is the effective parameter set for one session.
// It is built once at startup and immutable afterwards.
type Settings struct {
	// Generation
	Model        string
	MaxTokens    int
	Temperature  float64
	TopP         float64
	SystemPrompt string

	// Conversation
	MemoryTurns int

	// Backends
	LLMURL string
	STTURL string
	TTSURL string

	// Launch
	Addr     string
	Share    bool
	Phone    bool
	LogLevel string
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Model:        DefaultModel,
		MaxTokens:    DefaultMaxTokens,
		Temperature:  DefaultTemperature,
		TopP:         DefaultTopP,
		SystemPrompt: convo.DefaultSystemPrompt,
		MemoryTurns:  DefaultMemoryTurns,
		LLMURL:       DefaultLLMURL,
		STTURL:       DefaultSTTURL,
		TTSURL:       DefaultTTSURL,
		Addr:         DefaultAddr,
		LogLevel:     DefaultLogLevel,
	}
}

// Load resolves defaults plus the optional YAML config file at path.
// An empty path skips the file layer entirely.
func Load(path string, logger *slog.Logger) Settings {
	if logger == nil {
		logger = slog.Default()
	}
	s := Defaults()
	if path == "" {
		return s
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Optional file; defaults stand.
			return s
		}
		logger.Warn("could not read config file, using defaults",
			"path", path,
			"error", err,
		)
		return s
	}

	s.applyFile(v, logger)

	if promptPath := v.GetString("system_prompt_file"); promptPath != "" {
		s.ApplyPromptFile(promptPath, logger)
	}

	return s
}

// applyFile copies recognized keys from the parsed file onto s.
// Out-of-range values are rejected with a warning, keeping the default.
func (s *Settings) applyFile(v *viper.Viper, logger *slog.Logger) {
	if v.IsSet("model") {
		s.Model = v.GetString("model")
	}
	if v.IsSet("max_tokens") {
		s.MaxTokens = v.GetInt("max_tokens")
	}
	if v.IsSet("temperature") {
		s.Temperature = v.GetFloat64("temperature")
	}
	if v.IsSet("top_p") {
		s.TopP = v.GetFloat64("top_p")
	}
	if v.IsSet("memory_turns") {
		s.MemoryTurns = v.GetInt("memory_turns")
	}
	if v.IsSet("llm_url") {
		s.LLMURL = v.GetString("llm_url")
	}
	if v.IsSet("stt_url") {
		s.STTURL = v.GetString("stt_url")
	}
	if v.IsSet("tts_url") {
		s.TTSURL = v.GetString("tts_url")
	}

	if err := s.Validate(); err != nil {
		logger.Warn("config file has invalid values, reverting them",
			"error", err,
		)
		s.revertInvalid()
	}
}

// ApplyPromptFile reads a UTF-8 system prompt from path, trimming
// whitespace. An empty or unreadable file keeps the current prompt.
func (s *Settings) ApplyPromptFile(path string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("could not read system prompt file",
			"path", path,
			"error", err,
		)
		return
	}

	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		logger.Warn("system prompt file is empty, keeping previous prompt",
			"path", path,
		)
		return
	}
	s.SystemPrompt = prompt
}

// Validate checks value ranges.
func (s *Settings) Validate() error {
	if s.Temperature < 0 || s.Temperature > 2 {
		return fmt.Errorf("config: temperature must be between 0 and 2, got %v", s.Temperature)
	}
	if s.TopP < 0 || s.TopP > 1 {
		return fmt.Errorf("config: top_p must be between 0 and 1, got %v", s.TopP)
	}
	if s.MaxTokens < 0 {
		return fmt.Errorf("config: max_tokens must not be negative, got %d", s.MaxTokens)
	}
	if s.MemoryTurns < 0 {
		return fmt.Errorf("config: memory_turns must not be negative, got %d", s.MemoryTurns)
	}
	if s.Model == "" {
		return errors.New("config: model must not be empty")
	}
	return nil
}

// revertInvalid resets any out-of-range field to its default.
func (s *Settings) revertInvalid() {
	d := Defaults()
	if s.Temperature < 0 || s.Temperature > 2 {
		s.Temperature = d.Temperature
	}
	if s.TopP < 0 || s.TopP > 1 {
		s.TopP = d.TopP
	}
	if s.MaxTokens < 0 {
		s.MaxTokens = d.MaxTokens
	}
	if s.MemoryTurns < 0 {
		s.MemoryTurns = d.MemoryTurns
	}
	if s.Model == "" {
		s.Model = d.Model
	}
}
