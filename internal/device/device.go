package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// DeviceType identifies the hardware class a Device belongs to.
type DeviceType string

const (
	DeviceTypeCPU           DeviceType = "CPU"
	DeviceTypeGPU           DeviceType = "GPU"
	DeviceTypeLiquidctl     DeviceType = "Liquidctl"
	DeviceTypeHwmon         DeviceType = "Hwmon"
	DeviceTypeCustomSensors DeviceType = "CustomSensors"
	DeviceTypeThinkPad      DeviceType = "ThinkPad"
)

// UID is the stable fingerprint of a Device's hardware identity. It is
// derived once at enumeration time and never recomputed for the lifetime
// of the process, so it must not depend on anything that varies between
// boots other than the hardware itself (bus address, chip name, vendor
// string - never PCI slot ordering or kernel-assigned indices alone).
type UID string

// NewUID hashes a device-type-specific identity tuple into a stable UID.
// Each element of parts should be a string that uniquely and durably
// identifies the device within its type (e.g. for hwmon: chip name, bus
// type, bus number, and a sorted list of its channel labels).
func NewUID(deviceType DeviceType, parts ...string) UID {
	h := sha256.New()
	h.Write([]byte(deviceType))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	sum := h.Sum(nil)
	return UID(hex.EncodeToString(sum[:16]))
}

// LightingMode describes one selectable lighting mode on a channel.
type LightingMode struct {
	Name      string `json:"name"`
	MinColors int    `json:"min_colors"`
	MaxColors int    `json:"max_colors"`
	Speeds    bool   `json:"speed_enabled"`
}

// SpeedOptions describes the duty-control capabilities of a channel.
type SpeedOptions struct {
	MinDuty               int  `json:"min_duty"`
	MaxDuty               int  `json:"max_duty"`
	FixedEnabled          bool `json:"fixed_enabled"`
	ProfilesEnabled       bool `json:"profiles_enabled"`
	ManualProfilesEnabled bool `json:"manual_profiles_enabled"`
}

// LcdInfo describes an LCD screen attached to a channel, as exposed by
// the liquidctl helper.
type LcdInfo struct {
	ScreenWidth  int      `json:"screen_width"`
	ScreenHeight int      `json:"screen_height"`
	MaxImageSize int      `json:"max_image_size_bytes"`
	Modes        []string `json:"modes"`
}

// ChannelInfo is the immutable capability descriptor of a named channel
// on a device. It never changes after enumeration.
type ChannelInfo struct {
	Label         string        `json:"label,omitempty"`
	Speed         *SpeedOptions `json:"speed_options,omitempty"`
	LightingModes []LightingMode `json:"lighting_modes,omitempty"`
	Lcd           *LcdInfo      `json:"lcd_info,omitempty"`
}

// LcInfo carries liquidctl subtype hints that cannot be inferred purely
// from the device's reported model (e.g. AseTek-690-family pumps that
// identify identically over USB but use different firmware protocols).
type LcInfo struct {
	DriverType      string `json:"driver_type"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	Unknown690Asetek bool  `json:"unknown_asetek_690,omitempty"`
	Serial          string `json:"serial_number,omitempty"`
}

// Device is the uniform model for one piece of cooling hardware,
// regardless of which Repository produced it. All relations to other
// parts of the system (settings, history) go through UID + channel name,
// never through pointers into this struct - see Registry.
type Device struct {
	UID        UID                     `json:"uid"`
	Name       string                  `json:"name"`
	Type       DeviceType              `json:"type"`
	TypeIndex  int                     `json:"type_index"`
	Info       map[string]*ChannelInfo `json:"device_info,omitempty"`
	LcInfo     *LcInfo                 `json:"lc_info,omitempty"`
}

// ChannelNames returns the sorted set of channel names this device
// exposes, for deterministic iteration (UID-stable ordering, §4.5 boot).
func (d *Device) ChannelNames() []string {
	names := make([]string, 0, len(d.Info))
	for name := range d.Info {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Device) String() string {
	return fmt.Sprintf("%s(%s)[%d]", d.Name, d.Type, d.TypeIndex)
}
