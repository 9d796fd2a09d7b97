package api

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/senses3/coolercontrol/internal/config"
)

const (
	sessionCookieName = "coolercontrol_session"
	sessionTTL        = 24 * time.Hour
)

type sessionPayload struct {
	ExpiresUnix int64 `json:"exp"`
}

// issueSession builds a signed, HttpOnly session cookie good for
// sessionTTL. There is no
// server-side session store: validity is entirely a function of the
// HMAC signature and the embedded expiry, so POST /logout only clears
// the client's cookie rather than revoking a token - identical in
// effect to letting it expire.
func (s *Server) issueSession(c echo.Context) error {
	payload, err := json.Marshal(sessionPayload{ExpiresUnix: time.Now().Add(sessionTTL).Unix()})
	if err != nil {
		return err
	}
	s.credMu.Lock()
	mac := config.SignSession(s.creds, payload)
	s.credMu.Unlock()

	value := base64.RawURLEncoding.EncodeToString(payload) + "." + hex.EncodeToString(mac)
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Server) clearSession(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// validSession reports whether the request carries a session cookie
// with a valid signature and an unexpired embedded timestamp. Never
// distinguishes "missing cookie" from "bad signature" from "expired" in
// its return value, so a caller can't probe which of the three applies.
func (s *Server) validSession(c echo.Context) bool {
	cookie, err := c.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}
	parts := splitOnce(cookie.Value, '.')
	if parts == nil {
		return false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	mac, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}

	s.credMu.Lock()
	ok := config.VerifySession(s.creds, payload, mac)
	s.credMu.Unlock()
	if !ok {
		return false
	}

	var sp sessionPayload
	if err := json.Unmarshal(payload, &sp); err != nil {
		return false
	}
	return time.Now().Unix() < sp.ExpiresUnix
}

func splitOnce(s string, sep byte) []string {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return []string{s[:i], s[i+1:]}
		}
	}
	return nil
}

// requireAuth gates admin endpoints behind a valid session. Admin
// endpoints require an authenticated session; read endpoints are
// anonymous.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !s.validSession(c) {
			return returnUnauthorized(c)
		}
		return next(c)
	}
}

type loginRequest struct {
	Password string `json:"password"`
}

func (s *Server) postLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return returnError(c, err)
	}

	s.credMu.Lock()
	creds := s.creds
	s.credMu.Unlock()

	ok, err := config.Verify(creds, req.Password)
	if err != nil {
		return returnError(c, err)
	}
	if !ok {
		return returnUnauthorized(c)
	}
	if err := s.issueSession(c); err != nil {
		return returnError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) postLogout(c echo.Context) error {
	s.clearSession(c)
	return c.NoContent(http.StatusOK)
}

func (s *Server) getSessionValid(c echo.Context) error {
	return c.JSONPretty(http.StatusOK, map[string]bool{"valid": s.validSession(c)}, indentationChar)
}

type passwdRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *Server) postPasswd(c echo.Context) error {
	var req passwdRequest
	if err := c.Bind(&req); err != nil {
		return returnError(c, err)
	}

	s.credMu.Lock()
	defer s.credMu.Unlock()

	ok, err := config.Verify(s.creds, req.CurrentPassword)
	if err != nil {
		return returnError(c, err)
	}
	if !ok {
		return returnUnauthorized(c)
	}
	if err := s.deps.CredStore.SetPassword(s.creds, req.NewPassword); err != nil {
		return returnError(c, err)
	}
	return c.NoContent(http.StatusOK)
}
