// Package rtc provides the WebRTC call transport: browser audio comes
// in as opus over RTP, utterances are segmented and answered, and the
// reply is opus-encoded onto an outbound track.
package rtc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/voiceloop/voiceloop/pkg/agent"
	"github.com/voiceloop/voiceloop/pkg/audioio"
	"github.com/voiceloop/voiceloop/pkg/tts"
)

// maxOpusFrame is 120ms at 48kHz, the largest frame opus allows.
const maxOpusFrame = 5760

// Peer is one WebRTC call leg.
type Peer struct {
	config Config
	logger *slog.Logger

	pc    *webrtc.PeerConnection
	track *webrtc.TrackLocalStaticSample

	decoder *opus.Decoder
	encoder *opus.Encoder

	gate   *audioio.Gate
	frames *frameBuffer

	mu      sync.Mutex
	session *agent.Session

	// Inbound stats, for the connection log line on close.
	packets int64
	dropped int64
}

// NewPeer creates a call leg ready to answer an SDP offer.
func NewPeer(cfg Config) (*Peer, error) {
	iceServers := make([]webrtc.ICEServer, 0, len(cfg.STUNServers))
	for _, url := range cfg.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{url}})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "voiceloop",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create outbound track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add outbound track: %w", err)
	}

	decoder, err := opus.NewDecoder(cfg.DecodeRate, 1)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	encoder, err := opus.NewEncoder(cfg.PlaybackRate, 1, opus.AppVoIP)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Peer{
		config:  cfg,
		logger:  logger.With("component", "rtc.peer"),
		pc:      pc,
		track:   track,
		decoder: decoder,
		encoder: encoder,
		gate:    audioio.NewGate(audioio.DefaultGateConfig(cfg.CaptureRate)),
		frames:  newFrameBuffer(cfg.PlaybackRate),
	}

	pc.OnTrack(p.handleTrack)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Info("connection state", "state", state.String())
	})

	return p, nil
}

// SetSession attaches the call session that answers utterances.
func (p *Peer) SetSession(session *agent.Session) {
	p.mu.Lock()
	p.session = session
	p.mu.Unlock()
}

// Events returns session callbacks that play reply audio on the
// outbound track.
func (p *Peer) Events() agent.Events {
	return agent.Events{
		OnAudio: func(chunk []byte, format tts.AudioFormat, final bool) {
			p.SendAudio(chunk, format.SampleRate, final)
		},
	}
}

// HandleOffer answers a remote SDP offer and returns the local answer
// once ICE gathering completes, so the answer carries all candidates.
func (p *Peer) HandleOffer(ctx context.Context, offerSDP string) (string, error) {
	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return p.pc.LocalDescription().SDP, nil
}

// SendAudio encodes reply PCM onto the outbound opus track. final
// flushes the tail frame of the turn.
func (p *Peer) SendAudio(pcm []byte, sampleRate int, final bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	samples := audioio.BytesToSamples(pcm)
	if sampleRate != p.config.PlaybackRate && sampleRate > 0 {
		samples = audioio.Resample(samples, sampleRate, p.config.PlaybackRate)
	}

	for _, frame := range p.frames.Push(samples) {
		p.writeFrame(frame)
	}
	if final {
		if tail := p.frames.Flush(); tail != nil {
			p.writeFrame(tail)
		}
	}
}

// writeFrame opus-encodes one 20ms frame and writes it to the track.
// Caller holds p.mu.
func (p *Peer) writeFrame(frame []int16) {
	encoded := make([]byte, 1500)
	n, err := p.encoder.Encode(frame, encoded)
	if err != nil {
		p.logger.Warn("opus encode failed", "error", err)
		return
	}
	err = p.track.WriteSample(media.Sample{
		Data:     encoded[:n],
		Duration: frameDurationMs * time.Millisecond,
	})
	if err != nil {
		p.logger.Debug("track write failed", "error", err)
	}
}

// handleTrack decodes the caller's opus stream and feeds the utterance
// gate. Each closed utterance drives one conversation turn.
func (p *Peer) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	p.logger.Info("inbound track", "codec", track.Codec().MimeType)

	frameBuf := make([]int16, maxOpusFrame)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			p.logger.Debug("inbound track closed",
				"error", err,
				"packets", p.packets,
				"dropped", p.dropped,
			)
			return
		}
		p.handlePacket(pkt, frameBuf)
	}
}

// handlePacket decodes one RTP packet worth of audio.
func (p *Peer) handlePacket(pkt *rtp.Packet, frameBuf []int16) {
	p.packets++

	n, err := p.decoder.Decode(pkt.Payload, frameBuf)
	if err != nil {
		p.dropped++
		if p.dropped <= 5 {
			p.logger.Warn("opus decode failed", "error", err, "bytes", len(pkt.Payload))
		}
		return
	}

	samples := audioio.Resample(frameBuf[:n], p.config.DecodeRate, p.config.CaptureRate)
	utterance, done := p.gate.Feed(samples)
	if !done {
		return
	}

	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return
	}

	// The session serializes turns; running on a fresh goroutine keeps
	// the RTP read loop from stalling while the reply is produced.
	go session.HandleAudio(context.Background(), audioio.SamplesToBytes(utterance), p.config.CaptureRate)
}

// Close tears down the call leg.
func (p *Peer) Close() error {
	return p.pc.Close()
}
