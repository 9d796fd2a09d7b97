// Package profiles implements speed profiles: Default,
// Fixed, Graph (piecewise-linear interpolation), and Mix (combinator
// over other profiles).
package profiles

import (
	"fmt"

	"github.com/senses3/coolercontrol/internal/log"
)

// Type discriminates the four Profile variants.
type Type string

const (
	TypeDefault Type = "default"
	TypeFixed   Type = "fixed"
	TypeGraph   Type = "graph"
	TypeMix     Type = "mix"
)

// DefaultUID is the well-known uid of the built-in "driver default /
// passthrough" profile.
const DefaultUID = "0"

// MixFunction discriminates how a Mix profile combines its members.
type MixFunction string

const (
	MixMin MixFunction = "min"
	MixMax MixFunction = "max"
	MixAvg MixFunction = "avg"
)

// GraphPoint is one (temperature, duty) breakpoint of a Graph profile.
type GraphPoint struct {
	TempC float32 `toml:"temp_c" json:"temp_c"`
	Duty  int     `toml:"duty" json:"duty"`
}

// TempSource names the device channel a Profile reads its input
// temperature from.
type TempSource struct {
	DeviceUID string `toml:"device_uid" json:"device_uid"`
	TempName  string `toml:"temp_name" json:"temp_name"`
}

// Profile is a user-defined function from temperature to duty.
type Profile struct {
	UID  string `toml:"uid" json:"uid"`
	Name string `toml:"name" json:"name"`
	Type Type   `toml:"type" json:"type"`

	SpeedFixed   int          `toml:"speed_fixed,omitempty" json:"speed_fixed,omitempty"`
	SpeedProfile []GraphPoint `toml:"speed_profile,omitempty" json:"speed_profile,omitempty"`

	TempSource *TempSource `toml:"temp_source,omitempty" json:"temp_source,omitempty"`
	FunctionUID string     `toml:"function_uid,omitempty" json:"function_uid,omitempty"`

	MemberProfileUIDs []string    `toml:"member_profile_uids,omitempty" json:"member_profile_uids,omitempty"`
	MixFunctionType   MixFunction `toml:"mix_function_type,omitempty" json:"mix_function_type,omitempty"`
}

// NewDefaultProfile returns the built-in driver-default profile.
func NewDefaultProfile() Profile {
	return Profile{UID: DefaultUID, Name: "Default", Type: TypeDefault}
}

// Validate checks the static invariants that don't require
// cross-referencing other profiles (that's done at config-load time by
// the validation package, which can detect Mix membership cycles).
// Out-of-range duties are clamped in place with a logged warning rather
// than rejected (spec: "duties in [0, 100]; clamped on load with a
// warning, never silently reshaped") - only the strictly-ascending-temp
// requirement and the type/mix-shape checks are hard load failures.
func (p *Profile) Validate() error {
	switch p.Type {
	case TypeDefault:
		return nil
	case TypeFixed:
		if p.SpeedFixed < 0 || p.SpeedFixed > 100 {
			clamped := clamp(p.SpeedFixed)
			log.Warn("profile %s: speed_fixed %d out of [0,100], clamped to %d", p.UID, p.SpeedFixed, clamped)
			p.SpeedFixed = clamped
		}
		return nil
	case TypeGraph:
		return validateGraphPoints(p.UID, p.SpeedProfile)
	case TypeMix:
		if len(p.MemberProfileUIDs) == 0 {
			return fmt.Errorf("profile %s: mix profile has no members", p.UID)
		}
		switch p.MixFunctionType {
		case MixMin, MixMax, MixAvg:
		default:
			return fmt.Errorf("profile %s: unknown mix function %q", p.UID, p.MixFunctionType)
		}
		return nil
	default:
		return fmt.Errorf("profile %s: unknown type %q", p.UID, p.Type)
	}
}

func validateGraphPoints(uid string, points []GraphPoint) error {
	if len(points) < 2 {
		return fmt.Errorf("profile %s: graph profile needs at least two points", uid)
	}
	for i := range points {
		if points[i].Duty < 0 || points[i].Duty > 100 {
			clamped := clamp(points[i].Duty)
			log.Warn("profile %s: point %d duty %d out of [0,100], clamped to %d", uid, i, points[i].Duty, clamped)
			points[i].Duty = clamped
		}
		if i > 0 && points[i].TempC <= points[i-1].TempC {
			return fmt.Errorf("profile %s: points must be strictly ascending by temp (point %d: %.1f <= %.1f)",
				uid, i, points[i].TempC, points[i-1].TempC)
		}
	}
	return nil
}
