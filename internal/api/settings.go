package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/senses3/coolercontrol/internal/config"
	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/log"
)

func (s *Server) registerSettingsEndpoints(e *echo.Echo) {
	e.PUT("/devices/:device_uid/settings/:channel/", s.requireAuth(s.putChannelSetting))
	e.GET("/settings/", s.getGeneralSettings)
	e.PUT("/settings/", s.requireAuth(s.putGeneralSettings))
	e.GET("/settings/devices/:"+urlParamUID+"/", s.getDeviceSettings)
	e.PUT("/settings/devices/:"+urlParamUID+"/", s.requireAuth(s.putDeviceSettings))
}

type channelSettingRequest struct {
	SpeedFixed *int    `json:"speed_fixed,omitempty"`
	ProfileUID *string `json:"profile_uid,omitempty"`
}

// putChannelSetting applies a manual duty or a profile binding to one
// channel via PUT /devices/{uid}/settings/{channel} with body
// {speed_fixed} or {profile_uid}. The setting takes effect on the
// controller immediately (forced reapply) and is additionally
// given an out-of-band immediate write here so the change is visible
// before the next tick, matching the same best-effort immediate-apply
// the mode controller performs on activation.
func (s *Server) putChannelSetting(c echo.Context) error {
	deviceUID := c.Param("device_uid")
	channel := c.Param("channel")

	s.cfgMu.Lock()
	blacklisted := s.cfg.IsDisabled(deviceUID) || s.cfg.IsChannelDisabled(deviceUID, channel)
	s.cfgMu.Unlock()
	if blacklisted {
		return returnNotFound(c, deviceUID+"/"+channel)
	}

	var req channelSettingRequest
	if err := c.Bind(&req); err != nil {
		return returnError(c, err)
	}

	var setting control.Setting
	switch {
	case req.SpeedFixed != nil:
		setting = control.ManualSetting(*req.SpeedFixed)
	case req.ProfileUID != nil:
		if _, ok := s.deps.ProfilesEng.Get(*req.ProfileUID); !ok {
			return returnNotFound(c, *req.ProfileUID)
		}
		setting = control.ProfileSetting(*req.ProfileUID)
	default:
		setting = control.NoneSetting()
	}

	key := control.ChannelKey{DeviceUID: deviceUID, Channel: channel}
	ctrl := s.deps.Settings.Ensure(key)
	ctrl.Apply(setting)

	if setting.Kind == control.SettingKindManual && s.deps.Applier != nil {
		if err := s.deps.Applier.ApplyManual(key, setting.Duty); err != nil {
			log.Warn("api: immediate apply for %s failed, will retry on next tick: %v", key.String(), err)
		} else {
			ctrl.ConfirmApplied(setting.Duty)
		}
	}

	if err := s.persist(); err != nil {
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, setting, indentationChar)
}

func (s *Server) getGeneralSettings(c echo.Context) error {
	s.cfgMu.Lock()
	general := s.cfg.General
	s.cfgMu.Unlock()
	return c.JSONPretty(http.StatusOK, general, indentationChar)
}

func (s *Server) putGeneralSettings(c echo.Context) error {
	var general config.General
	if err := c.Bind(&general); err != nil {
		return returnError(c, err)
	}

	s.cfgMu.Lock()
	previous := s.cfg.General
	s.cfg.General = general
	err := config.Validate(s.cfg)
	if err != nil {
		s.cfg.General = previous
	}
	s.cfgMu.Unlock()
	if err != nil {
		return returnError(c, err)
	}

	if err := s.persist(); err != nil {
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, general, indentationChar)
}

func (s *Server) getDeviceSettings(c echo.Context) error {
	uid := c.Param(urlParamUID)
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	for _, entry := range s.cfg.Devices {
		if entry.UID == uid {
			return c.JSONPretty(http.StatusOK, entry, indentationChar)
		}
	}
	return c.JSONPretty(http.StatusOK, config.DeviceBlacklistEntry{UID: uid}, indentationChar)
}

func (s *Server) putDeviceSettings(c echo.Context) error {
	uid := c.Param(urlParamUID)
	var entry config.DeviceBlacklistEntry
	if err := c.Bind(&entry); err != nil {
		return returnError(c, err)
	}
	entry.UID = uid

	s.cfgMu.Lock()
	replaced := false
	for i := range s.cfg.Devices {
		if s.cfg.Devices[i].UID == uid {
			s.cfg.Devices[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		s.cfg.Devices = append(s.cfg.Devices, entry)
	}
	s.cfgMu.Unlock()

	if err := s.persist(); err != nil {
		return returnError(c, err)
	}
	return c.JSONPretty(http.StatusOK, entry, indentationChar)
}
