package phone

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zaf/g711"

	"github.com/voiceloop/voiceloop/pkg/agent"
	"github.com/voiceloop/voiceloop/pkg/audioio"
	"github.com/voiceloop/voiceloop/pkg/convo"
	"github.com/voiceloop/voiceloop/pkg/inference"
	"github.com/voiceloop/voiceloop/pkg/stt"
	"github.com/voiceloop/voiceloop/pkg/tts"
)

func testFactory() SessionFactory {
	return func(events agent.Events) *agent.Session {
		backend := inference.NewMock()
		backend.ChatFunc = func(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
			return &inference.ChatResponse{
				Message: inference.NewAssistantMessage("on my way"),
			}, nil
		}
		processor := convo.NewProcessor(backend, convo.NewMemory(4))
		return agent.NewSession(stt.NewMock("hello"), processor, tts.NewMock(), agent.WithEvents(events))
	}
}

func TestVoiceReturnsTwiML(t *testing.T) {
	s := NewServer("127.0.0.1:0", "calls.example.com", testFactory(), nil)

	req := httptest.NewRequest("POST", "/voice", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Content-Type = %q, want text/xml", ct)
	}

	body, _ := io.ReadAll(rec.Body)
	twiml := string(body)
	if !strings.Contains(twiml, `<Stream url="wss://calls.example.com/media" />`) {
		t.Errorf("TwiML missing stream URL:\n%s", twiml)
	}
	if !strings.Contains(twiml, "<Connect>") {
		t.Errorf("TwiML missing Connect verb:\n%s", twiml)
	}
}

func TestVoiceFallsBackToRequestHost(t *testing.T) {
	s := NewServer("127.0.0.1:0", "", testFactory(), nil)

	req := httptest.NewRequest("POST", "/voice", nil)
	req.Host = "dynamic.example.net"
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "wss://dynamic.example.net/media") {
		t.Errorf("TwiML should use request host:\n%s", body)
	}
}

// ulawFrame builds one 20ms inbound media payload at 8kHz.
func ulawFrame(amplitude int16) string {
	samples := make([]int16, 160)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amplitude
		} else {
			samples[i] = -amplitude
		}
	}
	ulaw := g711.EncodeUlaw(audioio.SamplesToBytes(samples))
	return base64.StdEncoding.EncodeToString(ulaw)
}

func TestMediaStreamFullTurn(t *testing.T) {
	s := NewServer("127.0.0.1:0", "", testFactory(), nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/media"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	send := func(v interface{}) {
		if err := conn.WriteJSON(v); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}

	send(map[string]interface{}{
		"event": "start",
		"start": map[string]string{
			"accountSid": "AC123",
			"streamSid":  "MZ456",
			"callSid":    "CA789",
		},
	})

	// 200ms of speech then enough silence to close the utterance.
	for i := 0; i < 10; i++ {
		send(map[string]interface{}{
			"event": "media",
			"media": map[string]string{"payload": ulawFrame(8000)},
		})
	}
	for i := 0; i < 40; i++ {
		send(map[string]interface{}{
			"event": "media",
			"media": map[string]string{"payload": ulawFrame(0)},
		})
	}

	// The reply comes back as one or more media events on MZ456.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got outboundMedia
	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("no reply audio before deadline: %v", err)
		}
		if msg["event"] == "media" {
			raw, _ := msg["media"].(map[string]interface{})
			payload, _ := raw["payload"].(string)
			got.StreamSid, _ = msg["streamSid"].(string)
			got.Media.Payload = payload
			break
		}
	}

	if got.StreamSid != "MZ456" {
		t.Errorf("streamSid = %q, want MZ456", got.StreamSid)
	}
	ulaw, err := base64.StdEncoding.DecodeString(got.Media.Payload)
	if err != nil {
		t.Fatalf("reply payload is not base64: %v", err)
	}
	if len(ulaw) == 0 {
		t.Error("reply payload is empty")
	}

	send(map[string]string{"event": "stop"})
}

func TestMediaIgnoresGarbagePayload(t *testing.T) {
	s := NewServer("127.0.0.1:0", "", testFactory(), nil)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/media"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.WriteJSON(map[string]interface{}{
		"event": "media",
		"media": map[string]string{"payload": "!!!not-base64!!!"},
	})

	// Stop should still be processed cleanly after the bad frame.
	conn.WriteJSON(map[string]string{"event": "stop"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Error("expected server to close after stop")
	}
}

func TestVoiceHandlerMethods(t *testing.T) {
	s := NewServer("127.0.0.1:0", "", testFactory(), nil)

	// Twilio uses POST by default but GET is configurable.
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "/voice", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != 200 {
			t.Errorf("%s /voice = %d, want 200", method, rec.Code)
		}
	}
}
