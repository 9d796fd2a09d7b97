package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/events"
)

func (s *Server) getDevices(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, map[string]interface{}{"devices": s.deps.Registry.All()}, indentationChar)
}

type deviceHistory struct {
	UID     string                `json:"uid"`
	History []device.DeviceStatus `json:"history"`
}

// getStatus serves GET /status?since=<ts>?all=<bool> -> current or
// full status_history. With neither query param, it returns only
// the latest snapshot per device via events.StatusResponse, the same
// shape published on /sse/status each tick. With `all=true` or a
// `since` timestamp, it returns the device's full (or windowed) ring
// contents instead.
func (s *Server) getStatus(c echo.Context) error {
	all := c.QueryParam("all") == "true"
	sinceParam := c.QueryParam("since")

	devices := s.deps.Registry.All()

	if !all && sinceParam == "" {
		resp := events.StatusResponse{}
		for _, d := range devices {
			if st, ok := s.deps.History.Latest(d.UID); ok {
				resp.Devices = append(resp.Devices, events.DeviceStatusDTO{UID: string(d.UID), Status: st})
			}
		}
		return c.JSONPretty(http.StatusOK, resp, indentationChar)
	}

	since := time.Time{}
	if sinceParam != "" {
		t, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			return returnError(c, err)
		}
		since = t
	}

	out := make([]deviceHistory, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceHistory{UID: string(d.UID), History: s.deps.History.Since(d.UID, since)})
	}
	return c.JSONPretty(http.StatusOK, map[string]interface{}{"devices": out}, indentationChar)
}
