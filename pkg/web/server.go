// Package web serves the live status of a monitoring session over HTTP.
package web

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/MrCodeEU/drowsiguard/pkg/archive"
	"github.com/MrCodeEU/drowsiguard/pkg/logging"
	"github.com/MrCodeEU/drowsiguard/pkg/monitor"
	"github.com/MrCodeEU/drowsiguard/pkg/session"
)

// Source is what the server reads from. *monitor.Pipeline implements it.
type Source interface {
	Latest() (monitor.Snapshot, bool)
	Session() *session.Session
}

// History lists archived sessions. *archive.Archive implements it.
type History interface {
	Sessions(ctx context.Context, limit int) ([]archive.SessionRow, error)
	Events(ctx context.Context, sessionID string) ([]session.Event, error)
}

var (
	_ Source  = (*monitor.Pipeline)(nil)
	_ History = (*archive.Archive)(nil)
)

// DefaultHistoryLimit caps GET /sessions.
const DefaultHistoryLimit = 50

// Server is the status server.
type Server struct {
	app     *fiber.App
	listen  string
	source  Source
	history History
}

// NewServer creates a server for source. history may be nil.
func NewServer(listen string, source Source, history History) *Server {
	s := &Server{
		listen:  listen,
		source:  source,
		history: history,
	}

	app := fiber.New(fiber.Config{
		AppName:               "drowsiguard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)
	app.Get("/status", s.handleStatus)
	app.Get("/summary", s.handleSummary)
	app.Get("/sessions", s.handleSessions)
	app.Get("/sessions/:id/events", s.handleSessionEvents)

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	logging.Component("web").WithField("listen", s.listen).Info("Status server listening")
	return s.app.Listen(s.listen)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			logging.Component("web").WithError(err).Error("Status server stopped")
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
