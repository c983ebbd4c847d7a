package tts

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

const providerKokoro = "kokoro"

// Kokoro implements Provider against an OpenAI-compatible speech
// endpoint (POST {base}/audio/speech). Kokoro-FastAPI is the usual
// local backend, but api.openai.com works with an API key.
type Kokoro struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// NewKokoro creates a new speech-server provider.
func NewKokoro(opts ...Option) (*Kokoro, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	return &Kokoro{
		config: cfg,
		// No client-level timeout: streaming responses stay open for
		// the length of the utterance. Callers bound requests via ctx.
		client: httpc.NewClient(0),
		logger: cfg.Logger.With("component", "tts.kokoro"),
	}, nil
}

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (k *Kokoro) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	stream, err := k.Stream(ctx, text)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var buf bytes.Buffer
	var firstByte int64 = -1
	for {
		chunk, err := stream.Read()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		if firstByte < 0 {
			firstByte = time.Since(start).Milliseconds()
		}
		buf.Write(chunk)
	}

	audio := buf.Bytes()
	k.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", firstByte,
		"voice", k.config.VoiceID,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    k.outputFormat(),
		Duration:  k.pcmDuration(len(audio)),
		CharCount: len(text),
		LatencyMs: firstByte,
	}, nil
}

// Stream converts text to audio with streaming output. The server
// chunks raw PCM over the response body, so chunks are playable as
// they arrive.
func (k *Kokoro) Stream(ctx context.Context, text string) (AudioStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerKokoro, ErrNoText)
	}

	payload := speechRequest{
		Model:          k.config.ModelID,
		Input:          text,
		Voice:          k.config.VoiceID,
		ResponseFormat: string(k.config.OutputFormat),
		Speed:          k.config.Speed,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerKokoro, fmt.Errorf("marshal payload: %w", err))
	}

	url := strings.TrimSuffix(k.config.BaseURL, "/") + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerKokoro, fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	if k.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+k.config.APIKey)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, WrapError(providerKokoro, fmt.Errorf("speech request: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, k.parseError(resp)
	}

	return &httpStream{
		body:   resp.Body,
		format: k.outputFormat(),
	}, nil
}

// Health checks server connectivity via the models endpoint.
func (k *Kokoro) Health(ctx context.Context) error {
	url := strings.TrimSuffix(k.config.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return WrapError(providerKokoro, err)
	}
	if k.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+k.config.APIKey)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return WrapError(providerKokoro, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return k.parseError(resp)
	}
	return nil
}

// Close releases resources.
func (k *Kokoro) Close() error {
	k.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the configured voice.
func (k *Kokoro) VoiceID() string {
	return k.config.VoiceID
}

// parseError reads and parses an error response.
func (k *Kokoro) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Detail string `json:"detail"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Error.Message != "" {
			message = errResp.Error.Message
		} else if errResp.Detail != "" {
			message = errResp.Detail
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerKokoro,
	}
}

func (k *Kokoro) outputFormat() AudioFormat {
	return AudioFormat{
		Encoding:   k.config.OutputFormat,
		SampleRate: k.config.SampleRate,
		Channels:   1,
		BitDepth:   16,
	}
}

func (k *Kokoro) pcmDuration(n int) time.Duration {
	if k.config.OutputFormat != EncodingPCM || k.config.SampleRate == 0 {
		return 0
	}
	samples := n / 2
	return time.Duration(samples) * time.Second / time.Duration(k.config.SampleRate)
}

// httpStream reads audio chunks from a chunked HTTP response body.
type httpStream struct {
	body   io.ReadCloser
	format AudioFormat
	closed bool
}

const streamChunkSize = 4096

// Read returns the next audio chunk, or nil at end of stream.
func (s *httpStream) Read() ([]byte, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}

	buf := make([]byte, streamChunkSize)
	n, err := s.body.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, WrapError(providerKokoro, fmt.Errorf("read stream: %w", err))
	}
	return []byte{}, nil
}

// Close stops the stream and releases resources.
func (s *httpStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}

// Format returns the audio format.
func (s *httpStream) Format() AudioFormat {
	return s.format
}

// bufferStream wraps a byte slice as AudioStream.
type bufferStream struct {
	data   []byte
	offset int
	format AudioFormat
}

// Read returns the next audio chunk.
func (s *bufferStream) Read() ([]byte, error) {
	if s.offset >= len(s.data) {
		return nil, nil
	}
	end := s.offset + streamChunkSize
	if end > len(s.data) {
		end = len(s.data)
	}
	chunk := s.data[s.offset:end]
	s.offset = end
	return chunk, nil
}

// Close releases resources.
func (s *bufferStream) Close() error {
	return nil
}

// Format returns the audio format.
func (s *bufferStream) Format() AudioFormat {
	return s.format
}

// Verify implementations at compile time.
var (
	_ Provider    = (*Kokoro)(nil)
	_ AudioStream = (*httpStream)(nil)
	_ AudioStream = (*bufferStream)(nil)
)
