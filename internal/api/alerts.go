package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/senses3/coolercontrol/internal/alerts"
)

func (s *Server) registerAlertEndpoints(e *echo.Echo) {
	group := e.Group("/alerts")
	group.GET("/", s.getAlerts)
	group.GET("/:"+urlParamUID+"/", s.getAlert)
	group.POST("/", s.requireAuth(s.postAlert))
	group.PUT("/:"+urlParamUID+"/", s.requireAuth(s.putAlert))
	group.DELETE("/:"+urlParamUID+"/", s.requireAuth(s.deleteAlert))
}

func (s *Server) getAlerts(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, map[string]interface{}{
		"alerts": s.deps.AlertsEng.All(),
		"log":    s.deps.AlertsEng.RecentLog(),
	}, indentationChar)
}

func (s *Server) getAlert(c echo.Context) error {
	uid := c.Param(urlParamUID)
	a, ok := s.deps.AlertsEng.Get(uid)
	if !ok {
		return returnNotFound(c, uid)
	}
	return c.JSONPretty(http.StatusOK, a, indentationChar)
}

func (s *Server) postAlert(c echo.Context) error {
	var a alerts.Alert
	if err := c.Bind(&a); err != nil {
		return returnError(c, err)
	}
	if a.UID == "" {
		a.UID = uuid.NewString()
	}
	if err := a.Validate(); err != nil {
		return returnError(c, err)
	}
	s.deps.AlertsEng.Put(a)
	if err := s.persist(); err != nil {
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, a, indentationChar)
}

func (s *Server) putAlert(c echo.Context) error {
	uid := c.Param(urlParamUID)
	if _, ok := s.deps.AlertsEng.Get(uid); !ok {
		return returnNotFound(c, uid)
	}
	var a alerts.Alert
	if err := c.Bind(&a); err != nil {
		return returnError(c, err)
	}
	a.UID = uid
	if err := a.Validate(); err != nil {
		return returnError(c, err)
	}
	s.deps.AlertsEng.Put(a)
	if err := s.persist(); err != nil {
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, a, indentationChar)
}

func (s *Server) deleteAlert(c echo.Context) error {
	uid := c.Param(urlParamUID)
	if _, ok := s.deps.AlertsEng.Get(uid); !ok {
		return returnNotFound(c, uid)
	}
	s.deps.AlertsEng.Delete(uid)
	if err := s.persist(); err != nil {
		return returnError(c, err)
	}
	return c.NoContent(http.StatusOK)
}
