package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestKokoroStream(t *testing.T) {
	pcm := make([]byte, 9000)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}

		var req speechRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if req.Model != "kokoro" {
			t.Errorf("Expected model kokoro, got %s", req.Model)
		}
		if req.Voice != "af_heart" {
			t.Errorf("Expected voice af_heart, got %s", req.Voice)
		}
		if req.ResponseFormat != "pcm" {
			t.Errorf("Expected response_format pcm, got %s", req.ResponseFormat)
		}
		if req.Input != "hello there" {
			t.Errorf("Expected input 'hello there', got %q", req.Input)
		}

		w.Header().Set("Content-Type", "audio/pcm")
		w.Write(pcm)
	}))
	defer server.Close()

	provider, err := NewKokoro(WithBaseURL(server.URL + "/v1"))
	if err != nil {
		t.Fatalf("NewKokoro failed: %v", err)
	}
	defer provider.Close()

	stream, err := provider.Stream(context.Background(), "hello there")
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close()

	if stream.Format().SampleRate != 24000 {
		t.Errorf("Expected 24kHz format, got %d", stream.Format().SampleRate)
	}

	var got bytes.Buffer
	chunks := 0
	for {
		chunk, err := stream.Read()
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if chunk == nil {
			break
		}
		chunks++
		got.Write(chunk)
	}

	if chunks < 2 {
		t.Errorf("Expected multiple chunks for 9000 bytes, got %d", chunks)
	}
	if !bytes.Equal(got.Bytes(), pcm) {
		t.Errorf("Reassembled audio does not match: %d bytes vs %d", got.Len(), len(pcm))
	}
}

func TestKokoroSynthesize(t *testing.T) {
	// 24000 samples = 1 second at 24kHz PCM16.
	pcm := make([]byte, 48000)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(pcm)
	}))
	defer server.Close()

	provider, _ := NewKokoro(WithBaseURL(server.URL + "/v1"))
	defer provider.Close()

	result, err := provider.Synthesize(context.Background(), "one second of speech")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if len(result.Audio) != len(pcm) {
		t.Errorf("Expected %d bytes, got %d", len(pcm), len(result.Audio))
	}
	if result.Duration.Seconds() != 1.0 {
		t.Errorf("Expected 1s duration, got %v", result.Duration)
	}
	if result.CharCount != len("one second of speech") {
		t.Errorf("Wrong CharCount: %d", result.CharCount)
	}
}

func TestKokoroEmptyText(t *testing.T) {
	provider, _ := NewKokoro()
	defer provider.Close()

	_, err := provider.Stream(context.Background(), "   ")
	if !errors.Is(err, ErrNoText) {
		t.Errorf("Expected ErrNoText, got %v", err)
	}
}

func TestKokoroAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail": "model not loaded"}`))
	}))
	defer server.Close()

	provider, _ := NewKokoro(WithBaseURL(server.URL + "/v1"))
	defer provider.Close()

	_, err := provider.Stream(context.Background(), "hello")
	if err == nil {
		t.Fatal("Expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T", err)
	}
	if apiErr.StatusCode != 500 {
		t.Errorf("Expected status 500, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "model not loaded" {
		t.Errorf("Expected detail message, got %q", apiErr.Message)
	}
	if !apiErr.IsRetryable() {
		t.Error("500 should be retryable")
	}
}

func TestKokoroHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"data": [{"id": "kokoro"}]}`))
	}))
	defer server.Close()

	provider, _ := NewKokoro(WithBaseURL(server.URL + "/v1"))
	defer provider.Close()

	if err := provider.Health(context.Background()); err != nil {
		t.Errorf("Health failed: %v", err)
	}
}

func TestBufferStreamChunking(t *testing.T) {
	data := make([]byte, streamChunkSize+100)
	s := &bufferStream{data: data, format: AudioFormat{SampleRate: 24000}}

	first, err := s.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(first) != streamChunkSize {
		t.Errorf("Expected %d byte chunk, got %d", streamChunkSize, len(first))
	}

	second, _ := s.Read()
	if len(second) != 100 {
		t.Errorf("Expected 100 byte tail, got %d", len(second))
	}

	done, _ := s.Read()
	if done != nil {
		t.Error("Expected nil at end of stream")
	}
}
