package alerts

import (
	"sort"
	"sync"
	"time"

	"github.com/senses3/coolercontrol/internal/events"
)

// ValueResolver supplies an alert's monitored metric value for the
// current tick. Implemented by the tick scheduler, which owns the
// history store - kept out of this package to avoid a dependency
// cycle, the same pattern as profiles.TempResolver.
type ValueResolver interface {
	MetricValue(a *Alert) (value float32, ok bool)
}

// logCap bounds the in-memory alert log: append to an in-memory
// bounded alert log.
const logCap = 200

// Engine evaluates every defined Alert once per tick and drives the
// Inactive/Active hysteresis state machine.
type Engine struct {
	mu    sync.RWMutex
	byUID map[string]*Alert
	log   []events.AlertLog
	bus   *events.Topic[events.AlertLog]
}

// NewEngine creates an alert engine publishing transitions on bus. bus
// may be nil in tests that only care about the returned transitions.
func NewEngine(bus *events.Topic[events.AlertLog]) *Engine {
	return &Engine{byUID: make(map[string]*Alert), bus: bus}
}

// Load replaces the set of defined alerts, typically from the config
// store at startup. Persisted State/LastTransitionUnixMs are kept as
// loaded, so a restart does not spuriously re-announce an already
// Active alert as a fresh transition.
func (e *Engine) Load(all []Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.byUID = make(map[string]*Alert, len(all))
	for i := range all {
		a := all[i]
		if a.State == "" {
			a.State = StateInactive
		}
		e.byUID[a.UID] = &a
	}
}

// Put creates or replaces an alert definition; one with no State yet
// starts Inactive, a given State is kept.
func (e *Engine) Put(a Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a.State == "" {
		a.State = StateInactive
	}
	stored := a
	e.byUID[a.UID] = &stored
}

// Delete removes an alert definition.
func (e *Engine) Delete(uid string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.byUID, uid)
}

// Get returns a copy of the alert with the given UID.
func (e *Engine) Get(uid string) (Alert, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.byUID[uid]
	if !ok {
		return Alert{}, false
	}
	return *a, true
}

// All returns every defined alert, ordered by UID for deterministic
// listing.
func (e *Engine) All() []Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Alert, 0, len(e.byUID))
	for _, a := range e.byUID {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Tick evaluates every alert against resolver and returns the
// transitions that fired this tick. Transitions are also appended to
// the bounded log and published on the bus, if any.
func (e *Engine) Tick(resolver ValueResolver, now time.Time) []events.AlertLog {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fired []events.AlertLog
	for _, a := range e.byUID {
		value, ok := resolver.MetricValue(a)
		if !ok {
			continue
		}

		next := a.State
		switch a.State {
		case StateInactive:
			if value < a.Min || value > a.Max {
				next = StateActive
			}
		case StateActive:
			if value >= a.Min+a.Hysteresis && value <= a.Max-a.Hysteresis {
				next = StateInactive
			}
		default:
			next = StateInactive
		}

		if next == a.State {
			continue
		}
		a.State = next
		a.LastTransitionUnixMs = now.UnixMilli()

		entry := events.AlertLog{
			AlertUID:  a.UID,
			State:     events.AlertState(next),
			Value:     value,
			Message:   a.MessageTemplate,
			Timestamp: now,
		}
		fired = append(fired, entry)
		e.appendLog(entry)
		if e.bus != nil {
			e.bus.Publish(entry)
		}
	}
	return fired
}

func (e *Engine) appendLog(entry events.AlertLog) {
	e.log = append(e.log, entry)
	if len(e.log) > logCap {
		e.log = e.log[len(e.log)-logCap:]
	}
}

// RecentLog returns a copy of the bounded in-memory transition log,
// newest last.
func (e *Engine) RecentLog() []events.AlertLog {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]events.AlertLog, len(e.log))
	copy(out, e.log)
	return out
}
