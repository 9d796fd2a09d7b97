// Package config holds the durable on-disk configuration document and
// its in-memory representation: general daemon settings, the device
// blacklist, and the full set of user-authored Profiles, Functions,
// Modes, Alerts, and per-channel Settings.
package config

import (
	"time"

	"github.com/senses3/coolercontrol/internal/alerts"
	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/functions"
	"github.com/senses3/coolercontrol/internal/modes"
	"github.com/senses3/coolercontrol/internal/profiles"
	"github.com/senses3/coolercontrol/internal/repositories/customsensors"
)

// CurrentSchemaVersion gates in-memory migrations.
const CurrentSchemaVersion = 1

// General holds daemon-wide tunables, defaults chosen to match the
// scheduler's tick cadence and the controller's forced-reapply policy.
type General struct {
	PollRate                      float64 `toml:"poll_rate" json:"poll_rate"`
	ApplyOnBoot                   bool    `toml:"apply_on_boot" json:"apply_on_boot"`
	StartupDelaySeconds           int     `toml:"startup_delay" json:"startup_delay"`
	ThinkPadFullSpeed             bool    `toml:"thinkpad_full_speed" json:"thinkpad_full_speed"`
	HideDuplicateDevices          bool    `toml:"hide_duplicate_devices" json:"hide_duplicate_devices"`
	LiquidctlIntegration          bool    `toml:"liquidctl_integration" json:"liquidctl_integration"`
	Compress                      bool    `toml:"compress" json:"compress"`
	DrivetempSuspend              bool    `toml:"drivetemp_suspend" json:"drivetemp_suspend"`
	HealthErrorGracePeriodSeconds int     `toml:"health_error_grace_period_s" json:"health_error_grace_period_s"`
	FunctionStaleLimit            int     `toml:"function_stale_limit" json:"function_stale_limit"`
}

// DefaultGeneral returns the documented defaults.
func DefaultGeneral() General {
	return General{
		PollRate:                      1.0,
		ApplyOnBoot:                   true,
		StartupDelaySeconds:           2,
		ThinkPadFullSpeed:             false,
		HideDuplicateDevices:          true,
		LiquidctlIntegration:          true,
		Compress:                      false,
		DrivetempSuspend:              true,
		HealthErrorGracePeriodSeconds: 60,
		FunctionStaleLimit:            10,
	}
}

// PollInterval returns the tick cadence as a time.Duration, clamped to
// the documented 0.25..=2.0 Hz range.
func (g General) PollInterval() time.Duration {
	rate := g.PollRate
	if rate < 0.25 {
		rate = 0.25
	}
	if rate > 2.0 {
		rate = 2.0
	}
	return time.Duration(float64(time.Second) / rate)
}

// DeviceBlacklistEntry disables a device, or specific channels on it,
// entirely.
type DeviceBlacklistEntry struct {
	UID              string   `toml:"uid" json:"uid"`
	Disable          bool     `toml:"disable" json:"disable"`
	DisabledChannels []string `toml:"disabled_channels,omitempty" json:"disabled_channels,omitempty"`
}

// Configuration is the full durable document. It is the single
// value (de)serialized to /etc/coolercontrol/config.toml.
type Configuration struct {
	Version       int                     `toml:"version"`
	General       General                 `toml:"general"`
	Devices       []DeviceBlacklistEntry  `toml:"devices,omitempty"`
	Profiles      []profiles.Profile      `toml:"profile,omitempty"`
	Functions     []functions.Function    `toml:"function,omitempty"`
	Modes         []modes.Mode            `toml:"mode,omitempty"`
	Alerts        []alerts.Alert          `toml:"alert,omitempty"`
	Settings      []ChannelSettingEntry   `toml:"setting,omitempty"`
	CustomSensors customsensors.Config    `toml:"custom_sensors,omitempty" json:"custom_sensors,omitempty"`

	// Unknown preserves TOML keys/tables this version of coolerctld does
	// not understand, so a hand-edited config with future fields never
	// loses data on a round trip through an older binary.
	Unknown map[string]interface{} `toml:"-"`
}

// ChannelSettingEntry is the persisted form of one per-channel Setting.
type ChannelSettingEntry struct {
	DeviceUID   string          `toml:"device_uid" json:"device_uid"`
	ChannelName string          `toml:"channel_name" json:"channel_name"`
	Setting     control.Setting `toml:"setting" json:"setting"`
}

// NewDefault returns an empty, schema-current configuration with the
// documented defaults applied - used on first run.
func NewDefault() *Configuration {
	return &Configuration{
		Version: CurrentSchemaVersion,
		General: DefaultGeneral(),
	}
}

// IsDisabled reports whether the given device UID is fully blacklisted.
func (c *Configuration) IsDisabled(uid string) bool {
	for _, d := range c.Devices {
		if d.UID == uid && d.Disable {
			return true
		}
	}
	return false
}

// IsChannelDisabled reports whether a specific channel of a device has
// been blacklisted.
func (c *Configuration) IsChannelDisabled(uid, channel string) bool {
	for _, d := range c.Devices {
		if d.UID != uid {
			continue
		}
		for _, ch := range d.DisabledChannels {
			if ch == channel {
				return true
			}
		}
	}
	return false
}
