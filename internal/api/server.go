// Package api implements the HTTP/SSE transport surface: one
// echo.Echo wired up through New() with a middleware stack and a
// set of register*Endpoints(echo) functions, one per resource group,
// plus session-cookie auth and SSE streaming.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoprometheus "github.com/labstack/echo-contrib/prometheus"

	"github.com/senses3/coolercontrol/internal/alerts"
	"github.com/senses3/coolercontrol/internal/buildinfo"
	"github.com/senses3/coolercontrol/internal/config"
	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/events"
	"github.com/senses3/coolercontrol/internal/functions"
	"github.com/senses3/coolercontrol/internal/health"
	"github.com/senses3/coolercontrol/internal/history"
	"github.com/senses3/coolercontrol/internal/modes"
	"github.com/senses3/coolercontrol/internal/profiles"
	"github.com/senses3/coolercontrol/internal/scheduler"
)

const indentationChar = "  "

// Result is the DTO for not-found/error responses.
type Result struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Applier performs an immediate hardware write for a Manual setting
// change made through the API, implemented by *scheduler.Scheduler.
type Applier interface {
	ApplyManual(key control.ChannelKey, duty int) error
}

// Deps bundles every component the transport layer reads from or
// mutates. Nothing here is owned by this package - it is all
// constructed and wired together by cmd/.
type Deps struct {
	Registry     *device.Registry
	History      *history.Store
	Settings     *control.Registry
	ProfilesEng  *profiles.Engine
	FunctionDefs *functions.Defs
	ModesCtrl    *modes.Controller
	AlertsEng    *alerts.Engine
	Scheduler    *scheduler.Scheduler
	Applier      Applier

	CfgStore  *config.Store
	CredStore *config.CredentialStore

	StatusBus *events.Topic[events.StatusResponse]
	LogBus    *events.Topic[events.LogEntry]
	ModeBus   *events.Topic[events.ModeActivated]
	AlertBus  *events.Topic[events.AlertLog]

	Health *health.Tracker
	Build  buildinfo.Info

	// Shutdown is invoked by POST /shutdown to begin graceful daemon
	// shutdown (typically context cancellation in cmd/'s run.Group).
	Shutdown func()
}

// Server owns the live, mutable Configuration document plus the
// credentials loaded at startup, guarded by a mutex since both the API
// and the original boot sequence can touch them.
type Server struct {
	deps Deps

	cfgMu sync.Mutex
	cfg   *config.Configuration

	credMu sync.Mutex
	creds  *config.Credentials
}

// New builds the echo instance and registers every route group:
// HideBanner, AddTrailingSlash pre-middleware, Secure/Logger/Recover,
// then one register call per resource.
func New(deps Deps, cfg *config.Configuration, creds *config.Credentials) *echo.Echo {
	s := &Server{deps: deps, cfg: cfg, creds: creds}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.AddTrailingSlash())
	e.Use(middleware.Secure())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// echo-contrib's request-metrics middleware auto-registers into the
	// default Prometheus registry alongside internal/statistics' own
	// collectors, and serves GET /metrics.
	p := echoprometheus.NewPrometheus("coolerctld", nil)
	p.Use(e)

	loginLimiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      1,
			Burst:     3,
			ExpiresIn: 3 * time.Minute,
		}),
	})

	e.GET("/alive/", isAlive)
	e.GET("/health/", s.getHealth)
	e.POST("/handshake/", s.postHandshake)

	e.GET("/devices/", s.getDevices)
	e.GET("/status/", s.getStatus)
	e.GET("/sse/status/", s.sseStatus)
	e.GET("/sse/logs/", s.sseLogs)
	e.GET("/sse/modes/", s.sseModes)
	e.GET("/sse/alerts/", s.sseAlerts)

	e.POST("/login/", s.postLogin, loginLimiter)
	e.POST("/logout/", s.postLogout)
	e.GET("/session/valid/", s.getSessionValid)
	e.POST("/passwd/", s.requireAuth(s.postPasswd))

	s.registerProfileEndpoints(e)
	s.registerFunctionEndpoints(e)
	s.registerModeEndpoints(e)
	s.registerAlertEndpoints(e)
	s.registerSettingsEndpoints(e)

	e.GET("/logs/", s.requireAuth(s.getLogs))
	e.POST("/shutdown/", s.requireAuth(s.postShutdown))

	return e
}

func isAlive(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func returnNotFound(c echo.Context, id string) error {
	return c.JSONPretty(http.StatusNotFound, &Result{
		Name:    "Not found",
		Message: "no item with id '" + id + "' found",
	}, indentationChar)
}

func returnError(c echo.Context, err error) error {
	return c.JSONPretty(http.StatusInternalServerError, &Result{
		Name:    "Error",
		Message: err.Error(),
	}, indentationChar)
}

func returnUnauthorized(c echo.Context) error {
	return c.JSONPretty(http.StatusUnauthorized, &Result{
		Name:    "Unauthorized",
		Message: "authentication required",
	}, indentationChar)
}

func (s *Server) getHealth(c echo.Context) error {
	report := s.deps.Health.Snapshot(time.Now())
	return c.JSONPretty(http.StatusOK, report, indentationChar)
}

func (s *Server) postHandshake(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, map[string]bool{"shake": true}, indentationChar)
}
