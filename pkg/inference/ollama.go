package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voiceloop/voiceloop/internal/httpc"
)

const providerOllama = "ollama"

// Ollama is the inference provider for a local Ollama server.
// It speaks the native /api/chat endpoint.
type Ollama struct {
	baseURL string
	config  *Config
	http    *http.Client
	logger  *slog.Logger
}

// NewOllama creates a new Ollama inference provider.
func NewOllama(opts ...Option) (*Ollama, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Ollama{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		config:  cfg,
		http:    httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "inference.ollama"),
	}, nil
}

// Chat generates a chat completion.
// The call is a single attempt; callers own any retry policy.
func (o *Ollama) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = o.config.Model
	}

	payload := o.buildChatPayload(req, model)

	resp, err := o.post(ctx, "/api/chat", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, o.parseError(resp)
	}

	var result ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, WrapError(providerOllama, fmt.Errorf("decode response: %w", err))
	}

	if result.Message.Content == "" && !result.Done {
		return nil, WrapError(providerOllama, ErrEmptyResponse)
	}

	latency := time.Since(start).Milliseconds()
	o.logger.Debug("chat completion",
		"model", result.Model,
		"prompt_tokens", result.PromptEvalCount,
		"completion_tokens", result.EvalCount,
		"latency_ms", latency,
	)

	return &ChatResponse{
		Message: Message{
			Role:    RoleAssistant,
			Content: result.Message.Content,
		},
		Model: result.Model,
		Usage: Usage{
			PromptTokens:     result.PromptEvalCount,
			CompletionTokens: result.EvalCount,
			TotalTokens:      result.PromptEvalCount + result.EvalCount,
		},
		LatencyMs: latency,
	}, nil
}

// Health checks server connectivity.
func (o *Ollama) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/api/tags", nil)
	if err != nil {
		return WrapError(providerOllama, fmt.Errorf("create request: %w", err))
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return WrapError(providerOllama, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return o.parseError(resp)
	}
	return nil
}

// Close releases resources.
func (o *Ollama) Close() error {
	o.http.CloseIdleConnections()
	return nil
}

// buildChatPayload constructs the native API request payload.
func (o *Ollama) buildChatPayload(req *ChatRequest, model string) map[string]interface{} {
	messages := make([]map[string]string, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = map[string]string{
			"role":    string(msg.Role),
			"content": msg.Content,
		}
	}

	options := map[string]interface{}{}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.config.MaxTokens
	}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}

	temp := req.Temperature
	if temp == 0 {
		temp = o.config.Temperature
	}
	if temp > 0 {
		options["temperature"] = temp
	}

	topP := req.TopP
	if topP == 0 {
		topP = o.config.TopP
	}
	if topP > 0 {
		options["top_p"] = topP
	}

	return map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   false,
		"options":  options,
	}
}

// post makes a POST request.
func (o *Ollama) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerOllama, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerOllama, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, WrapError(providerOllama, err)
	}
	return resp, nil
}

// parseError reads and parses an error response.
func (o *Ollama) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerOllama,
	}
}

// ollamaChatResponse is the native API response shape.
type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// Verify Ollama implements Provider at compile time.
var _ Provider = (*Ollama)(nil)
