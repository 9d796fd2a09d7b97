package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/senses3/coolercontrol/internal/events"
)

// streamTopic subscribes to topic and relays every published value to
// the client as a Server-Sent Event until the connection closes, at
// which point it unsubscribes - the transport-side half of
// internal/events.Topic's documented "connect, read until dropped or
// disconnected" contract.
func streamTopic[T any](c echo.Context, topic *events.Topic[T]) error {
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	ch, unsubscribe := topic.Subscribe()
	defer unsubscribe()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case v, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(v)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "data: %s\n\n", data); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

func (s *Server) sseStatus(c echo.Context) error {
	return streamTopic(c, s.deps.StatusBus)
}

func (s *Server) sseLogs(c echo.Context) error {
	return streamTopic(c, s.deps.LogBus)
}

func (s *Server) sseModes(c echo.Context) error {
	return streamTopic(c, s.deps.ModeBus)
}

func (s *Server) sseAlerts(c echo.Context) error {
	return streamTopic(c, s.deps.AlertBus)
}
