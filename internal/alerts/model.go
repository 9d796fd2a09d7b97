// Package alerts implements bounded-range monitors with activation
// hysteresis: each Alert watches one channel metric and
// transitions between Inactive and Active as the value crosses its
// min/max band.
package alerts

// Metric discriminates which field of a channel's status an Alert
// monitors.
type Metric string

const (
	MetricTemp Metric = "temp"
	MetricDuty Metric = "duty"
	MetricRpm  Metric = "rpm"
	MetricFreq Metric = "freq"
	MetricWatts Metric = "watts"
)

// State mirrors events.AlertState but is kept local to avoid this
// package depending on events for its own persisted document - the
// config store only needs State, not the broadcast machinery.
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
)

// Alert is a user-defined bounded-range rule, identified by UID and
// persisted in the config document.
type Alert struct {
	UID         string `toml:"uid" json:"uid"`
	Name        string `toml:"name" json:"name"`
	DeviceUID   string `toml:"device_uid" json:"device_uid"`
	ChannelName string `toml:"channel_name" json:"channel_name"`
	Metric      Metric `toml:"metric" json:"metric"`

	Min        float32 `toml:"min" json:"min"`
	Max        float32 `toml:"max" json:"max"`
	Hysteresis float32 `toml:"hysteresis" json:"hysteresis"`

	// MessageTemplate is copied as-is into the alert log entry's message;
	// no placeholders are substituted.
	MessageTemplate string `toml:"message_template,omitempty" json:"message_template,omitempty"`

	// State and LastTransitionUnixMs are the alert's live status, also
	// persisted so a restart does not spuriously re-fire an Active alert
	// as a fresh transition.
	State                State `toml:"state" json:"state"`
	LastTransitionUnixMs int64 `toml:"last_transition_ms,omitempty" json:"last_transition_ms,omitempty"`
}

// Validate checks the field invariants: min <= max; hysteresis >= 0.
func (a *Alert) Validate() error {
	if a.Min > a.Max {
		return errInvalidField("min", "must be <= max")
	}
	if a.Hysteresis < 0 {
		return errInvalidField("hysteresis", "must be >= 0")
	}
	switch a.Metric {
	case MetricTemp, MetricDuty, MetricRpm, MetricFreq, MetricWatts:
	default:
		return errInvalidField("metric", "unknown metric "+string(a.Metric))
	}
	return nil
}
