package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/history"
)

func newTestDevicesServer() (*Server, *device.Registry, *history.Store, device.UID) {
	reg := device.NewRegistry()
	uid := device.NewUID(device.DeviceTypeHwmon, "chip0")
	reg.Put(&device.Device{UID: uid, Name: "chip0", Type: device.DeviceTypeHwmon})
	hist := history.NewStore(8)
	s := &Server{deps: Deps{Registry: reg, History: hist}}
	return s, reg, hist, uid
}

func TestGetDevicesListsEveryRegisteredDevice(t *testing.T) {
	// GIVEN
	s, _, _, _ := newTestDevicesServer()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/devices/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// WHEN
	require.NoError(t, s.getDevices(c))

	// THEN
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chip0")
}

func TestGetStatusWithNoQueryParamsReturnsLatestSnapshotOnly(t *testing.T) {
	// GIVEN
	s, _, hist, uid := newTestDevicesServer()
	hist.Append(uid, device.DeviceStatus{Timestamp: time.Now(), Temps: []device.TempStatus{{Name: "core", Temp: 55}}})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/status/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// WHEN
	require.NoError(t, s.getStatus(c))

	// THEN
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "core")
}

func TestGetStatusWithAllReturnsFullHistoryPerDevice(t *testing.T) {
	// GIVEN
	s, _, hist, uid := newTestDevicesServer()
	hist.Append(uid, device.DeviceStatus{Timestamp: time.Now(), Temps: []device.TempStatus{{Name: "core", Temp: 40}}})
	hist.Append(uid, device.DeviceStatus{Timestamp: time.Now(), Temps: []device.TempStatus{{Name: "core", Temp: 50}}})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/status/?all=true", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// WHEN
	require.NoError(t, s.getStatus(c))

	// THEN
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(uid))
}

func TestGetStatusRejectsMalformedSinceTimestamp(t *testing.T) {
	// GIVEN
	s, _, _, _ := newTestDevicesServer()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/status/?since=not-a-time", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// WHEN
	require.NoError(t, s.getStatus(c))

	// THEN
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetStatusWithSinceFiltersToEntriesAfterTimestamp(t *testing.T) {
	// GIVEN
	s, _, hist, uid := newTestDevicesServer()
	cutoff := time.Now()
	hist.Append(uid, device.DeviceStatus{Timestamp: cutoff.Add(time.Second), Temps: []device.TempStatus{{Name: "core", Temp: 60}}})
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/status/?since="+cutoff.Format(time.RFC3339), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// WHEN
	require.NoError(t, s.getStatus(c))

	// THEN
	assert.Equal(t, http.StatusOK, rec.Code)
}
