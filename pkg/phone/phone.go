// Package phone answers real phone calls over Twilio media streams.
// Twilio hits /voice for TwiML, then opens a WebSocket to /media and
// streams base64 μ-law audio both ways at 8kHz.
package phone

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/voiceloop/voiceloop/pkg/agent"
)

// SessionFactory creates a fresh call session for one phone call.
type SessionFactory func(events agent.Events) *agent.Session

// Server terminates Twilio media streams.
type Server struct {
	addr       string
	publicHost string
	logger     *slog.Logger
	newSession SessionFactory
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewServer creates a phone server. publicHost is the externally
// reachable hostname Twilio should open the media socket against; when
// empty, the TwiML uses the request's Host header.
func NewServer(addr, publicHost string, newSession SessionFactory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:       addr,
		publicHost: publicHost,
		logger:     logger.With("component", "phone.server"),
		newSession: newSession,
		upgrader: websocket.Upgrader{
			// Twilio's media stream client sends no Origin header.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start serves TwiML and media sockets, blocking until shutdown.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/voice", s.handleVoice)
	mux.HandleFunc("/media", s.handleMedia)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}
	s.logger.Info("phone server ready", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting calls.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

// Handler exposes the route mux for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/voice", s.handleVoice)
	mux.HandleFunc("/media", s.handleMedia)
	return mux
}

// handleVoice returns TwiML that connects the call to the media socket.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	host := s.publicHost
	if host == "" {
		host = r.Host
	}

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Connect>
    <Stream url="wss://%s/media" />
  </Connect>
</Response>
`, host)
}

// handleMedia upgrades to a media stream WebSocket and runs the call.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("media upgrade failed", "error", err)
		return
	}

	call := newCall(conn, s.newSession, s.logger)
	call.run()
}
