// Package functions implements the post-processing filters applied to
// a raw temperature before profile lookup: Identity, Standard
// (latency+deadband), and ExponentialMovingAverage.
package functions

// Type discriminates the three Function variants.
type Type string

const (
	TypeIdentity Type = "identity"
	TypeStandard Type = "standard"
	TypeEMA      Type = "ema"
)

// Function is a user-defined post-processing filter, identified by UID
// and referenced from Profiles via FunctionUID.
type Function struct {
	UID  string `toml:"uid" json:"uid"`
	Name string `toml:"name" json:"name"`
	Type Type   `toml:"type" json:"type"`

	// Standard-only.
	ResponseDelaySeconds int     `toml:"response_delay_s,omitempty" json:"response_delay_s,omitempty"`
	DevianceC            float32 `toml:"deviance_c,omitempty" json:"deviance_c,omitempty"`
	OnlyDownward         bool    `toml:"only_downward,omitempty" json:"only_downward,omitempty"`

	// EMA-only.
	SampleWindow int     `toml:"sample_window,omitempty" json:"sample_window,omitempty"`
	TauSeconds   float32 `toml:"tau_s,omitempty" json:"tau_s,omitempty"`
}

// IdentityUID is the uid of the built-in passthrough function, "0" by
// convention - mirrors the Default profile's uid "0".
const IdentityUID = "0"

// emaWarmupCap bounds the simple-mean warmup window regardless of a
// user-configured SampleWindow, so a misconfigured large window can't
// delay the EMA's first real output indefinitely.
const emaWarmupCap = 16

// Validate checks field invariants for the function's variant, clamping
// and warning rather than silently reshaping is the caller's job
// (config load, §3 invariants) - Validate only reports.
func (f *Function) Validate() error {
	switch f.Type {
	case TypeIdentity:
		return nil
	case TypeStandard:
		if f.ResponseDelaySeconds < 0 {
			return errInvalidField("response_delay_s", "must be >= 0")
		}
		if f.DevianceC < 0 {
			return errInvalidField("deviance_c", "must be >= 0")
		}
		return nil
	case TypeEMA:
		if f.SampleWindow <= 0 {
			return errInvalidField("sample_window", "must be > 0")
		}
		if f.TauSeconds < 0 {
			return errInvalidField("tau_s", "must be >= 0")
		}
		return nil
	default:
		return errInvalidField("type", "unknown function type "+string(f.Type))
	}
}

func (f *Function) effectiveSampleWindow() int {
	w := f.SampleWindow
	if w <= 0 {
		w = emaWarmupCap
	}
	if w > emaWarmupCap {
		w = emaWarmupCap
	}
	return w
}
