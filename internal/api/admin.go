package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/senses3/coolercontrol/internal/log"
)

func (s *Server) getLogs(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, map[string]interface{}{"entries": log.Recent()}, indentationChar)
}

// postShutdown begins graceful daemon shutdown (POST /shutdown).
// The response is written before Shutdown is invoked so the caller
// sees a confirmation even though the process is about to tear down
// its own listener.
func (s *Server) postShutdown(c echo.Context) error {
	if err := c.NoContent(http.StatusAccepted); err != nil {
		return err
	}
	if s.deps.Shutdown != nil {
		go s.deps.Shutdown()
	}
	return nil
}
