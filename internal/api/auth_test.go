package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senses3/coolercontrol/internal/config"
)

func newTestServer(t *testing.T) (*Server, string) {
	store := config.NewCredentialStore(filepath.Join(t.TempDir(), "passwd"))
	creds, password, err := store.LoadOrBootstrap()
	require.NoError(t, err)
	s := &Server{deps: Deps{CredStore: store}, creds: creds}
	return s, password
}

func TestPostLoginIssuesSessionCookieOnCorrectPassword(t *testing.T) {
	// GIVEN
	s, password := newTestServer(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/login/", strings.NewReader(`{"password":"`+password+`"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// WHEN
	require.NoError(t, s.postLogin(c))

	// THEN
	assert.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestPostLoginRejectsWrongPassword(t *testing.T) {
	// GIVEN
	s, _ := newTestServer(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/login/", strings.NewReader(`{"password":"wrong"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// WHEN
	require.NoError(t, s.postLogin(c))

	// THEN
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestValidSessionAcceptsACookieIssuedByLogin(t *testing.T) {
	// GIVEN
	s, password := newTestServer(t)
	e := echo.New()
	loginReq := httptest.NewRequest(http.MethodPost, "/login/", strings.NewReader(`{"password":"`+password+`"}`))
	loginReq.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	loginRec := httptest.NewRecorder()
	require.NoError(t, s.postLogin(e.NewContext(loginReq, loginRec)))
	issued := loginRec.Result().Cookies()[0]

	// WHEN
	checkReq := httptest.NewRequest(http.MethodGet, "/session/valid/", nil)
	checkReq.AddCookie(issued)
	checkRec := httptest.NewRecorder()
	c := e.NewContext(checkReq, checkRec)

	// THEN
	assert.True(t, s.validSession(c))
}

func TestValidSessionRejectsMissingCookie(t *testing.T) {
	s, _ := newTestServer(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/session/valid/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	assert.False(t, s.validSession(c))
}

func TestValidSessionRejectsTamperedPayload(t *testing.T) {
	// GIVEN
	s, password := newTestServer(t)
	e := echo.New()
	loginReq := httptest.NewRequest(http.MethodPost, "/login/", strings.NewReader(`{"password":"`+password+`"}`))
	loginReq.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	loginRec := httptest.NewRecorder()
	require.NoError(t, s.postLogin(e.NewContext(loginReq, loginRec)))
	issued := loginRec.Result().Cookies()[0]
	issued.Value = issued.Value + "tampered"

	// WHEN
	checkReq := httptest.NewRequest(http.MethodGet, "/session/valid/", nil)
	checkReq.AddCookie(issued)
	checkRec := httptest.NewRecorder()
	c := e.NewContext(checkReq, checkRec)

	// THEN
	assert.False(t, s.validSession(c))
}

func TestRequireAuthBlocksWithoutAValidSession(t *testing.T) {
	// GIVEN
	s, _ := newTestServer(t)
	e := echo.New()
	called := false
	handler := s.requireAuth(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/passwd/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// WHEN
	require.NoError(t, handler(c))

	// THEN
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostLogoutClearsTheSessionCookie(t *testing.T) {
	// GIVEN
	s, _ := newTestServer(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/logout/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// WHEN
	require.NoError(t, s.postLogout(c))

	// THEN
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestPostPasswdChangesWhichPasswordVerifies(t *testing.T) {
	// GIVEN
	s, password := newTestServer(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/passwd/", strings.NewReader(
		`{"current_password":"`+password+`","new_password":"newpass123"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// WHEN
	require.NoError(t, s.postPasswd(c))

	// THEN
	assert.Equal(t, http.StatusOK, rec.Code)
	ok, err := config.Verify(s.creds, "newpass123")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = config.Verify(s.creds, password)
	require.NoError(t, err)
	assert.False(t, ok)
}
