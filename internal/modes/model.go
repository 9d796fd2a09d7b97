// Package modes implements named, atomically-activatable snapshots of
// all channel settings.
package modes

import "github.com/senses3/coolercontrol/internal/control"

// ChannelRef identifies one (device, channel) pair within a Mode
// snapshot.
type ChannelRef struct {
	DeviceUID string `toml:"device_uid" json:"device_uid"`
	Channel   string `toml:"channel" json:"channel"`
}

// Entry is one (channel → setting) pair in a Mode snapshot.
type Entry struct {
	ChannelRef ChannelRef      `toml:"channel_ref" json:"channel_ref"`
	Setting    control.Setting `toml:"setting" json:"setting"`
}

// Mode is an immutable snapshot of all channel settings, activatable
// atomically.
type Mode struct {
	UID     string  `toml:"uid" json:"uid"`
	Name    string  `toml:"name" json:"name"`
	Entries []Entry `toml:"entry,omitempty" json:"entries,omitempty"`
}
