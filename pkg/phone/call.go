package phone

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/zaf/g711"

	"github.com/voiceloop/voiceloop/pkg/agent"
	"github.com/voiceloop/voiceloop/pkg/audioio"
	"github.com/voiceloop/voiceloop/pkg/tts"
)

const (
	// carrierRate is the μ-law rate on the Twilio leg.
	carrierRate = 8000

	// captureRate is what recognition runs at.
	captureRate = 16000
)

// mediaMessage is the Twilio media stream wire format, both directions.
type mediaMessage struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid,omitempty"`
	Media     *struct {
		Track     string `json:"track,omitempty"`
		Payload   string `json:"payload"`
		Timestamp string `json:"timestamp,omitempty"`
	} `json:"media,omitempty"`
	Start *struct {
		AccountSid string `json:"accountSid"`
		StreamSid  string `json:"streamSid"`
		CallSid    string `json:"callSid"`
	} `json:"start,omitempty"`
}

// outboundMedia is the message shape for audio sent back to Twilio.
type outboundMedia struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// call is one live phone call.
type call struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	session *agent.Session
	gate    *audioio.Gate

	streamSid string
	callSid   string
}

func newCall(conn *websocket.Conn, newSession SessionFactory, logger *slog.Logger) *call {
	c := &call{
		conn:   conn,
		logger: logger.With("component", "phone.call"),
		gate:   audioio.NewGate(audioio.DefaultGateConfig(captureRate)),
	}

	c.session = newSession(agent.Events{
		OnTranscript: func(text string, latencyMs int64) {
			c.logger.Info("caller said", "text", text, "stt_latency_ms", latencyMs)
		},
		OnResponse: func(text string) {
			c.logger.Info("replying", "chars", len(text))
		},
		OnAudio: c.sendAudio,
		OnError: func(err error) {
			c.logger.Warn("call turn error", "error", err)
		},
	})
	return c
}

// run drives the call until the stream stops. Turns execute on this
// goroutine, so outbound writes never interleave.
func (c *call) run() {
	defer c.conn.Close()

	for {
		var msg mediaMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("media socket error", "error", err)
			}
			return
		}

		switch msg.Event {
		case "start":
			c.handleStart(&msg)
		case "media":
			c.handleMedia(&msg)
		case "stop":
			c.logger.Info("call stopped",
				"call_sid", c.callSid,
				"turns", c.session.Turns(),
			)
			return
		}
	}
}

func (c *call) handleStart(msg *mediaMessage) {
	if msg.Start == nil {
		return
	}
	c.streamSid = msg.Start.StreamSid
	c.callSid = msg.Start.CallSid
	c.logger.Info("call started",
		"call_sid", c.callSid,
		"session_id", c.session.ID(),
	)
}

// handleMedia decodes one inbound μ-law frame and feeds the gate.
func (c *call) handleMedia(msg *mediaMessage) {
	if msg.Media == nil {
		return
	}
	ulaw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
	if err != nil {
		c.logger.Debug("bad media payload", "error", err)
		return
	}

	pcm := g711.DecodeUlaw(ulaw)
	samples := audioio.Resample(audioio.BytesToSamples(pcm), carrierRate, captureRate)

	utterance, done := c.gate.Feed(samples)
	if !done {
		return
	}

	c.session.HandleAudio(context.Background(), audioio.SamplesToBytes(utterance), captureRate)
}

// sendAudio converts reply PCM to μ-law and writes it to the stream.
func (c *call) sendAudio(chunk []byte, format tts.AudioFormat, final bool) {
	if len(chunk) == 0 || c.streamSid == "" {
		return
	}

	samples := audioio.BytesToSamples(chunk)
	if format.SampleRate != carrierRate && format.SampleRate > 0 {
		samples = audioio.Resample(samples, format.SampleRate, carrierRate)
	}
	ulaw := g711.EncodeUlaw(audioio.SamplesToBytes(samples))

	var out outboundMedia
	out.Event = "media"
	out.StreamSid = c.streamSid
	out.Media.Payload = base64.StdEncoding.EncodeToString(ulaw)

	if err := c.conn.WriteJSON(out); err != nil {
		c.logger.Debug("media write failed", "error", err)
	}
}
