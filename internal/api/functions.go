package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/senses3/coolercontrol/internal/functions"
)

func (s *Server) registerFunctionEndpoints(e *echo.Echo) {
	group := e.Group("/functions")
	group.GET("/", s.getFunctions)
	group.GET("/:"+urlParamUID+"/", s.getFunction)
	group.POST("/", s.requireAuth(s.postFunction))
	group.PUT("/:"+urlParamUID+"/", s.requireAuth(s.putFunction))
	group.DELETE("/:"+urlParamUID+"/", s.requireAuth(s.deleteFunction))
}

func (s *Server) getFunctions(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, map[string]interface{}{"functions": s.deps.FunctionDefs.All()}, indentationChar)
}

func (s *Server) getFunction(c echo.Context) error {
	uid := c.Param(urlParamUID)
	fn, ok := s.deps.FunctionDefs.Get(uid)
	if !ok {
		return returnNotFound(c, uid)
	}
	return c.JSONPretty(http.StatusOK, fn, indentationChar)
}

func (s *Server) postFunction(c echo.Context) error {
	var fn functions.Function
	if err := c.Bind(&fn); err != nil {
		return returnError(c, err)
	}
	if fn.UID == "" {
		fn.UID = uuid.NewString()
	}
	if err := fn.Validate(); err != nil {
		return returnError(c, err)
	}
	s.deps.FunctionDefs.Put(fn)
	s.deps.Scheduler.LoadFunctions(s.deps.FunctionDefs.All())
	if err := s.persist(); err != nil {
		s.deps.FunctionDefs.Delete(fn.UID)
		s.deps.Scheduler.LoadFunctions(s.deps.FunctionDefs.All())
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, fn, indentationChar)
}

func (s *Server) putFunction(c echo.Context) error {
	uid := c.Param(urlParamUID)
	previous, ok := s.deps.FunctionDefs.Get(uid)
	if !ok {
		return returnNotFound(c, uid)
	}
	var fn functions.Function
	if err := c.Bind(&fn); err != nil {
		return returnError(c, err)
	}
	fn.UID = uid
	if err := fn.Validate(); err != nil {
		return returnError(c, err)
	}
	s.deps.FunctionDefs.Put(fn)
	s.deps.Scheduler.LoadFunctions(s.deps.FunctionDefs.All())
	if err := s.persist(); err != nil {
		s.deps.FunctionDefs.Put(previous)
		s.deps.Scheduler.LoadFunctions(s.deps.FunctionDefs.All())
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, fn, indentationChar)
}

func (s *Server) deleteFunction(c echo.Context) error {
	uid := c.Param(urlParamUID)
	previous, ok := s.deps.FunctionDefs.Get(uid)
	if !ok {
		return returnNotFound(c, uid)
	}
	s.deps.FunctionDefs.Delete(uid)
	if err := s.persist(); err != nil {
		// a Profile still referencing this function_uid is only caught by
		// persist's full-document validation, since Defs has no notion of
		// who references a function - restore it rather than leave a
		// Profile's function_uid dangling.
		s.deps.FunctionDefs.Put(previous)
		s.deps.Scheduler.LoadFunctions(s.deps.FunctionDefs.All())
		return returnError(c, err)
	}
	s.deps.Scheduler.LoadFunctions(s.deps.FunctionDefs.All())
	return c.NoContent(http.StatusOK)
}
