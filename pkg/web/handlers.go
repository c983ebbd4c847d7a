package web

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/voiceloop/voiceloop/pkg/agent"
	"github.com/voiceloop/voiceloop/pkg/audioio"
	"github.com/voiceloop/voiceloop/pkg/hub"
	"github.com/voiceloop/voiceloop/pkg/protocol"
	"github.com/voiceloop/voiceloop/pkg/tts"
)

// callSampleRate is the PCM16 rate the browser client captures at.
const callSampleRate = 16000

// handleIndex serves the inline call page.
func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.SendString(callPage)
}

// handleStatus returns the server's current state.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	status := Status{
		Status:    "ok",
		Monitors:  s.monitorHub.ClientCount(),
		UptimeSec: int64(time.Since(s.started).Seconds()),
	}
	if session := s.currentSession(); session != nil {
		status.SessionID = session.ID()
		status.Turns = session.Turns()
	}
	return c.JSON(status)
}

// handleConversation returns the active session's conversation memory.
func (s *Server) handleConversation(c *fiber.Ctx) error {
	session := s.currentSession()
	if session == nil {
		return c.JSON([]ConversationEntry{})
	}

	history := session.History()
	entries := make([]ConversationEntry, 0, len(history))
	for _, msg := range history {
		entries = append(entries, ConversationEntry{
			Role:    string(msg.Role),
			Message: msg.Content,
		})
	}
	return c.JSON(entries)
}

// handleCallWS runs one call. Each connection gets a fresh session and
// a fresh utterance gate; inbound audio is segmented server-side and
// every closed utterance drives one turn. All session events are
// written back on this goroutine, so the connection never sees
// interleaved writes.
func (s *Server) handleCallWS(c *websocket.Conn) {
	send := func(msg *protocol.Message, err error) {
		if err != nil {
			s.logger.Warn("encode outbound message", "error", err)
			return
		}
		data, err := msg.Bytes()
		if err != nil {
			s.logger.Warn("encode outbound message", "error", err)
			return
		}
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("write to call socket failed", "error", err)
		}
		s.monitorHub.Broadcast(hub.NewJSONMessage(data))
	}

	var session *agent.Session
	events := agent.Events{
		OnState: func(state string) {
			id := ""
			if session != nil {
				id = session.ID()
			}
			send(protocol.NewStateMessage(state, id))
		},
		OnTranscript: func(text string, latencyMs int64) {
			send(protocol.NewTranscriptMessage(text, latencyMs))
		},
		OnResponse: func(text string) {
			send(protocol.NewResponseMessage(text, 0))
		},
		OnAudio: func(chunk []byte, format tts.AudioFormat, final bool) {
			send(protocol.NewSpeakMessage(chunk, "pcm16", format.SampleRate, final))
		},
		OnError: func(err error) {
			send(protocol.NewErrorMessage(err.Error()))
		},
	}

	session = s.newSession(events)
	s.setCurrent(session)
	s.logger.Info("call connected", "session_id", session.ID())
	defer s.logger.Info("call ended", "session_id", session.ID())

	send(protocol.NewStateMessage(protocol.StateListening, session.ID()))

	gate := audioio.NewGate(audioio.DefaultGateConfig(callSampleRate))
	ctx := context.Background()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			s.logger.Debug("bad call message", "error", err)
			continue
		}

		switch msg.Type {
		case protocol.TypeAudio:
			audio, err := msg.GetAudioData()
			if err != nil {
				continue
			}
			pcm, err := audio.DecodeAudioData()
			if err != nil {
				continue
			}
			samples := audioio.BytesToSamples(pcm)
			if audio.SampleRate != callSampleRate && audio.SampleRate > 0 {
				samples = audioio.Resample(samples, audio.SampleRate, callSampleRate)
			}
			if utterance, done := gate.Feed(samples); done {
				session.HandleAudio(ctx, audioio.SamplesToBytes(utterance), callSampleRate)
			}

		case protocol.TypeText:
			text, err := msg.GetTextData()
			if err != nil {
				continue
			}
			session.HandleText(ctx, text.Text)

		case protocol.TypePing:
			ping, err := msg.GetPingData()
			if err != nil {
				continue
			}
			send(protocol.NewPongMessage(ping.ID, msg.Timestamp, time.Now().UnixMilli()))
		}
	}
}

// rtcOfferRequest is the /api/rtc/offer request and response body.
type rtcOfferRequest struct {
	SDP string `json:"sdp"`
}

// handleRTCOffer answers a WebRTC SDP offer when the transport is wired.
func (s *Server) handleRTCOffer(c *fiber.Ctx) error {
	if s.rtcOffer == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "webrtc transport not enabled",
		})
	}

	var req rtcOfferRequest
	if err := c.BodyParser(&req); err != nil || req.SDP == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing sdp",
		})
	}

	answer, err := s.rtcOffer(c.Context(), req.SDP)
	if err != nil {
		s.logger.Warn("rtc offer failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(rtcOfferRequest{SDP: answer})
}

// handleMonitorWS attaches a read-only observer to the monitor hub.
func (s *Server) handleMonitorWS(c *websocket.Conn) {
	hub.NewClient(s.monitorHub, c, nil).Run()
}
