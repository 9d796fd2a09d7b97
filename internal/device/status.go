package device

import "time"

// TempStatus is a single named temperature reading for one tick.
type TempStatus struct {
	Name string  `json:"name"`
	Temp float32 `json:"temp"`
}

// ChannelStatus is the set of readings/readbacks for one channel in one
// tick. Absent values are nil, never zero - a zero duty and "no reading"
// must never be confused (§4.1: stale/error readings surface as absent
// fields, never poisoned defaults).
type ChannelStatus struct {
	Name string   `json:"name"`
	Duty *float32 `json:"duty,omitempty"`
	Rpm  *float32 `json:"rpm,omitempty"`
	Freq *float32 `json:"freq,omitempty"`
	Watts *float32 `json:"watts,omitempty"`
}

// DeviceStatus is one tick's sample of one device. Timestamps are
// stamped centrally at the tick boundary (internal/scheduler), so all
// devices in the same tick carry the same Timestamp value.
type DeviceStatus struct {
	Timestamp time.Time       `json:"timestamp"`
	Temps     []TempStatus    `json:"temps,omitempty"`
	Channels  []ChannelStatus `json:"channels,omitempty"`
}

// TempByName returns the most specific match for name, or false if this
// status carries no reading for it.
func (s *DeviceStatus) TempByName(name string) (float32, bool) {
	for i := range s.Temps {
		if s.Temps[i].Name == name {
			return s.Temps[i].Temp, true
		}
	}
	return 0, false
}

// ChannelByName returns the channel status for name, or false if absent.
func (s *DeviceStatus) ChannelByName(name string) (*ChannelStatus, bool) {
	for i := range s.Channels {
		if s.Channels[i].Name == name {
			return &s.Channels[i], true
		}
	}
	return nil, false
}
