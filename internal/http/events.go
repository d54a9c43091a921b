package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/folio/internal/auth"
)

// handleEvents streams the caller's domain events via Server-Sent Events.
//
// Example:
//
//	GET /api/v1/events
//
//	event: resume.saved
//	data: {"resumeId":"...","userId":"...","created":true,"at":"..."}
//
//	event: subscription.changed
//	data: {"userId":"...","priceId":"price_...","active":true,"at":"..."}
func (s *Server) handleEvents(c echo.Context) error {
	if s.deps.Events == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event streaming is not configured")
	}

	msgChan := make(chan *nats.Msg, 16)
	sub, err := s.deps.Events.SubscribeUser(auth.UserID(c), msgChan)
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()

	// Heartbeat keeps proxies from closing idle streams.
	ticker := time.NewTicker(s.config.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			fmt.Fprintf(c.Response(), "event: %s\n", s.deps.Events.EventName(msg.Subject))
			fmt.Fprintf(c.Response(), "data: %s\n\n", msg.Data)
			c.Response().Flush()

		case <-ticker.C:
			fmt.Fprintf(c.Response(), ": heartbeat\n\n")
			c.Response().Flush()

		case <-c.Request().Context().Done():
			return nil
		}
	}
}
