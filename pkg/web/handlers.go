package web

import (
	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus returns the latest snapshot. A stopped monitor is not an HTTP
// error; clients poll and check the body.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	if s.source.Session() == nil {
		return c.JSON(fiber.Map{"error": "stopped"})
	}
	snap, ok := s.source.Latest()
	if !ok {
		return c.JSON(fiber.Map{"error": "stopped"})
	}
	return c.JSON(snap)
}

// handleSummary returns the running session's summary.
func (s *Server) handleSummary(c *fiber.Ctx) error {
	sess := s.source.Session()
	if sess == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no active session"})
	}
	return c.JSON(sess.Summarize())
}

// handleSessions lists archived sessions, newest first.
func (s *Server) handleSessions(c *fiber.Ctx) error {
	if s.history == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "archive disabled"})
	}

	limit := c.QueryInt("limit", DefaultHistoryLimit)
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := s.history.Sessions(c.UserContext(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(rows)
}

func (s *Server) handleSessionEvents(c *fiber.Ctx) error {
	if s.history == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "archive disabled"})
	}

	events, err := s.history.Events(c.UserContext(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if len(events) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown session"})
	}
	return c.JSON(events)
}
