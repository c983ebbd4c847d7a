// Package web serves the browser call page and its WebSocket transport.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/voiceloop/voiceloop/pkg/agent"
	"github.com/voiceloop/voiceloop/pkg/hub"
)

// SessionFactory creates a fresh call session for one connection.
type SessionFactory func(events agent.Events) *agent.Session

// Status is the /api/status response body.
type Status struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id,omitempty"`
	Turns     int    `json:"turns"`
	Monitors  int    `json:"monitors"`
	UptimeSec int64  `json:"uptime_sec"`
}

// ConversationEntry represents one message in the conversation view.
type ConversationEntry struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// Server is the web call server.
type Server struct {
	app        *fiber.App
	addr       string
	logger     *slog.Logger
	newSession SessionFactory

	// monitorHub fans state and transcript updates out to every open
	// monitor tab, independent of the active call connection.
	monitorHub *hub.Hub

	started time.Time

	// rtcOffer answers a WebRTC SDP offer with a local answer. Left
	// nil when the WebRTC transport is not wired in.
	rtcOffer func(ctx context.Context, offerSDP string) (string, error)

	mu      sync.RWMutex
	current *agent.Session
}

// NewServer creates a new call server listening on addr.
func NewServer(addr string, newSession SessionFactory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:       addr,
		logger:     logger.With("component", "web.server"),
		newSession: newSession,
		monitorHub: hub.New("monitor", logger),
		started:    time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voiceloop",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/", s.handleIndex)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/conversation", s.handleConversation)
	api.Post("/rtc/offer", s.handleRTCOffer)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/call", websocket.New(s.handleCallWS))
	app.Get("/ws/monitor", websocket.New(s.handleMonitorWS))

	s.app = app
	return s
}

// Start starts the web server and blocks.
func (s *Server) Start() error {
	s.logger.Info("call page ready", "addr", s.addr, "url", "http://"+s.addr)
	go s.monitorHub.Run()
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetRTCOffer wires the WebRTC transport's offer handler. Must be
// called before Start.
func (s *Server) SetRTCOffer(handler func(ctx context.Context, offerSDP string) (string, error)) {
	s.rtcOffer = handler
}

// setCurrent tracks the most recent call session for the status API.
func (s *Server) setCurrent(session *agent.Session) {
	s.mu.Lock()
	s.current = session
	s.mu.Unlock()
}

func (s *Server) currentSession() *agent.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
