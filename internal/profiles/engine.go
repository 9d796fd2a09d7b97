package profiles

import (
	"fmt"
	"sort"
	"sync"
)

// TempResolver supplies the function-processed temperature for a
// non-Mix profile's own temp_source + function binding. Implemented by
// the tick scheduler, which owns the history store and the functions
// engine - kept out of this package to avoid a dependency cycle.
type TempResolver interface {
	ProcessedTemp(p *Profile) (value float32, ok bool)
}

// Engine evaluates Profiles into target duties and owns the live
// set of defined profiles, mutable via the API
// (GET|POST|PUT|DELETE /profiles[/{uid}]) the same way alerts.Engine
// and modes.Controller own their own definitions.
type Engine struct {
	mu    sync.RWMutex
	byUID map[string]*Profile
}

// NewEngine builds an evaluation engine over the given set of profiles,
// indexed by UID for Mix member lookups.
func NewEngine(all []Profile) *Engine {
	e := &Engine{byUID: make(map[string]*Profile)}
	e.Load(all)
	return e
}

// Load replaces the full set of defined profiles, typically from the
// config store at startup or after a bulk edit.
func (e *Engine) Load(all []Profile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byUID = make(map[string]*Profile, len(all))
	for i := range all {
		p := all[i]
		e.byUID[p.UID] = &p
	}
}

// Put creates or replaces a profile definition.
func (e *Engine) Put(p Profile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stored := p
	e.byUID[p.UID] = &stored
}

// Delete removes a profile definition.
func (e *Engine) Delete(uid string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.byUID, uid)
}

// Get returns a copy of the profile with the given UID.
func (e *Engine) Get(uid string) (Profile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.byUID[uid]
	if !ok {
		return Profile{}, false
	}
	return *p, true
}

// All returns every defined profile, sorted by UID for deterministic
// API listing order.
func (e *Engine) All() []Profile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Profile, 0, len(e.byUID))
	for _, p := range e.byUID {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Lookup returns the profile with the given UID, as indexed at
// construction time or by the most recent Load/Put/Delete.
func (e *Engine) Lookup(uid string) (*Profile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.byUID[uid]
	return p, ok
}

// Evaluate computes the target duty for p, or nil if the profile
// resolves to "no override" (Default, or a Mix whose members all
// resolved to nil) - the setting controller interprets nil as "apply no
// override".
func (e *Engine) Evaluate(p *Profile, resolver TempResolver) (*int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.evaluate(p, resolver, make(map[string]bool))
}

func (e *Engine) evaluate(p *Profile, resolver TempResolver, visiting map[string]bool) (*int, error) {
	switch p.Type {
	case TypeDefault:
		return nil, nil
	case TypeFixed:
		d := clamp(p.SpeedFixed)
		return &d, nil
	case TypeGraph:
		temp, ok := resolver.ProcessedTemp(p)
		if !ok {
			return nil, nil
		}
		d := clamp(Interpolate(p.SpeedProfile, temp))
		return &d, nil
	case TypeMix:
		if visiting[p.UID] {
			return nil, fmt.Errorf("profile %s: cyclic mix membership detected at evaluation time", p.UID)
		}
		visiting[p.UID] = true
		defer delete(visiting, p.UID)

		var values []int
		for _, memberUID := range p.MemberProfileUIDs {
			member, ok := e.byUID[memberUID]
			if !ok {
				return nil, fmt.Errorf("profile %s: member %s not found", p.UID, memberUID)
			}
			v, err := e.evaluate(member, resolver, visiting)
			if err != nil {
				return nil, err
			}
			if v != nil {
				values = append(values, *v)
			}
		}
		if len(values) == 0 {
			return nil, nil
		}
		d := clamp(combine(p.MixFunctionType, values))
		return &d, nil
	default:
		return nil, fmt.Errorf("profile %s: unknown type %q", p.UID, p.Type)
	}
}

func combine(fn MixFunction, values []int) int {
	switch fn {
	case MixMin:
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case MixMax:
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	default: // MixAvg
		total := 0
		for _, v := range values {
			total += v
		}
		return int(roundHalfAwayFromZero(float64(total) / float64(len(values))))
	}
}

func clamp(duty int) int {
	if duty < 0 {
		return 0
	}
	if duty > 100 {
		return 100
	}
	return duty
}

// ClampToSpeedOptions clamps a resolved duty against a channel's
// SpeedOptions min/max, applied by the setting controller after profile
// evaluation.
func ClampToSpeedOptions(duty, minDuty, maxDuty int) int {
	if maxDuty > 0 && duty > maxDuty {
		duty = maxDuty
	}
	if duty < minDuty {
		duty = minDuty
	}
	return clamp(duty)
}
