package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/senses3/coolercontrol/internal/modes"
)

func (s *Server) registerModeEndpoints(e *echo.Echo) {
	group := e.Group("/modes")
	group.GET("/", s.getModes)
	group.GET("/:"+urlParamUID+"/", s.getMode)
	group.POST("/", s.requireAuth(s.postMode))
	group.PUT("/:"+urlParamUID+"/", s.requireAuth(s.putMode))
	group.DELETE("/:"+urlParamUID+"/", s.requireAuth(s.deleteMode))
	group.POST("/:"+urlParamUID+"/activate/", s.requireAuth(s.activateMode))
}

func (s *Server) getModes(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, map[string]interface{}{
		"modes":      s.deps.ModesCtrl.All(),
		"active_uid": s.deps.ModesCtrl.ActiveUID(),
	}, indentationChar)
}

func (s *Server) getMode(c echo.Context) error {
	uid := c.Param(urlParamUID)
	m, ok := s.deps.ModesCtrl.Get(uid)
	if !ok {
		return returnNotFound(c, uid)
	}
	return c.JSONPretty(http.StatusOK, m, indentationChar)
}

func (s *Server) postMode(c echo.Context) error {
	var m modes.Mode
	if err := c.Bind(&m); err != nil {
		return returnError(c, err)
	}
	if m.UID == "" {
		m.UID = uuid.NewString()
	}
	s.deps.ModesCtrl.Put(m)
	if err := s.persist(); err != nil {
		// an entry referencing an unknown profile is only caught by
		// persist's full-document validation, not by binding the request.
		s.deps.ModesCtrl.Delete(m.UID)
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, m, indentationChar)
}

func (s *Server) putMode(c echo.Context) error {
	uid := c.Param(urlParamUID)
	previous, ok := s.deps.ModesCtrl.Get(uid)
	if !ok {
		return returnNotFound(c, uid)
	}
	var m modes.Mode
	if err := c.Bind(&m); err != nil {
		return returnError(c, err)
	}
	m.UID = uid
	s.deps.ModesCtrl.Put(m)
	if err := s.persist(); err != nil {
		s.deps.ModesCtrl.Put(previous)
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, m, indentationChar)
}

func (s *Server) deleteMode(c echo.Context) error {
	uid := c.Param(urlParamUID)
	previous, ok := s.deps.ModesCtrl.Get(uid)
	if !ok {
		return returnNotFound(c, uid)
	}
	s.deps.ModesCtrl.Delete(uid)
	if err := s.persist(); err != nil {
		s.deps.ModesCtrl.Put(previous)
		return returnError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) activateMode(c echo.Context) error {
	uid := c.Param(urlParamUID)
	failed, err := s.deps.ModesCtrl.Activate(uid)
	if err != nil {
		if _, ok := err.(*modes.NotFoundError); ok {
			return returnNotFound(c, uid)
		}
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, map[string]interface{}{
		"activated":       uid,
		"failed_channels": failed,
	}, indentationChar)
}
