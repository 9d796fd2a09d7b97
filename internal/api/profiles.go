package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/senses3/coolercontrol/internal/profiles"
)

const urlParamUID = "uid"

func (s *Server) registerProfileEndpoints(e *echo.Echo) {
	group := e.Group("/profiles")
	group.GET("/", s.getProfiles)
	group.GET("/:"+urlParamUID+"/", s.getProfile)
	group.POST("/", s.requireAuth(s.postProfile))
	group.PUT("/:"+urlParamUID+"/", s.requireAuth(s.putProfile))
	group.DELETE("/:"+urlParamUID+"/", s.requireAuth(s.deleteProfile))
}

func (s *Server) getProfiles(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, map[string]interface{}{"profiles": s.deps.ProfilesEng.All()}, indentationChar)
}

func (s *Server) getProfile(c echo.Context) error {
	uid := c.Param(urlParamUID)
	p, ok := s.deps.ProfilesEng.Get(uid)
	if !ok {
		return returnNotFound(c, uid)
	}
	return c.JSONPretty(http.StatusOK, p, indentationChar)
}

func (s *Server) postProfile(c echo.Context) error {
	var p profiles.Profile
	if err := c.Bind(&p); err != nil {
		return returnError(c, err)
	}
	if p.UID == "" {
		p.UID = uuid.NewString()
	}
	if err := p.Validate(); err != nil {
		return returnError(c, err)
	}
	s.deps.ProfilesEng.Put(p)
	if err := s.persist(); err != nil {
		// p.Validate() only checked this profile in isolation; persist's
		// full-document check can still reject it (e.g. a Mix-membership
		// cycle), in which case the new profile must not stay live.
		s.deps.ProfilesEng.Delete(p.UID)
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, p, indentationChar)
}

func (s *Server) putProfile(c echo.Context) error {
	uid := c.Param(urlParamUID)
	previous, ok := s.deps.ProfilesEng.Get(uid)
	if !ok {
		return returnNotFound(c, uid)
	}
	var p profiles.Profile
	if err := c.Bind(&p); err != nil {
		return returnError(c, err)
	}
	p.UID = uid
	if err := p.Validate(); err != nil {
		return returnError(c, err)
	}
	s.deps.ProfilesEng.Put(p)
	if err := s.persist(); err != nil {
		s.deps.ProfilesEng.Put(previous)
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, p, indentationChar)
}

func (s *Server) deleteProfile(c echo.Context) error {
	uid := c.Param(urlParamUID)
	previous, ok := s.deps.ProfilesEng.Get(uid)
	if !ok {
		return returnNotFound(c, uid)
	}
	s.deps.ProfilesEng.Delete(uid)
	if err := s.persist(); err != nil {
		// a deletion that orphans a Mix member or a Mode entry referencing
		// this profile must not actually take effect.
		s.deps.ProfilesEng.Put(previous)
		return returnError(c, err)
	}
	return c.NoContent(http.StatusOK)
}
