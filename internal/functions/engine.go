package functions

import (
	"math"
	"sync"

	"github.com/asecurityteam/rolling"
)

// Key identifies one function instance bound to one target channel -
// functions are stateful per (function UID, channel), never shared
// across channels even when the same Function definition is reused
// (§4.3: "keyed by function UID + target channel").
type Key struct {
	FunctionUID string
	Channel     string
}

type state struct {
	// rawWindow is the Standard function's FIFO of raw samples, one per
	// tick, sized to response_delay_s * poll_rate. A plain slice is used
	// rather than asecurityteam/rolling here because the algorithm needs
	// indexed access to the exact oldest raw sample, not a reduced
	// aggregate - rolling.PointPolicy only exposes Reduce-style
	// aggregation (as used for the EMA warmup mean below), which can't
	// answer "what was the value N ticks ago".
	rawWindow []float32

	lastEmitted   float32
	haveEmitted   bool
	missingStreak int

	// EMA state. emaWindow accumulates the warmup samples (capped at
	// effectiveSampleWindow) and reduces them with rolling.Avg to seed
	// emaValue, the same rolling.PointPolicy idiom the teacher uses for
	// its own moving-window aggregates (internal/util/window.go).
	emaValue       float64
	emaWindow      *rolling.PointPolicy
	emaWarmupCount int
	emaStarted     bool
}

// Engine evaluates Function instances against raw temperature samples,
// maintaining per-(function, channel) state across ticks.
type Engine struct {
	mu         sync.Mutex
	states     map[Key]*state
	staleLimit int
}

// NewEngine creates a function engine. staleLimit is the
// function_stale_limit from general config (§4.3, default 10): once a
// channel's raw input has been missing for more ticks than this, the
// caller should skip profile evaluation entirely for that tick.
func NewEngine(staleLimit int) *Engine {
	if staleLimit <= 0 {
		staleLimit = 10
	}
	return &Engine{states: make(map[Key]*state), staleLimit: staleLimit}
}

// Reset clears all per-channel state for fn - called when a Profile
// referencing fn is deleted or reassigned, so stale windows from a
// previous binding never leak into a new one.
func (e *Engine) Reset(key Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, key)
}

// Result is the outcome of one tick's function evaluation.
type Result struct {
	// Value is the processed control input, valid only if Skip is
	// false.
	Value float32
	// Skip is true when the missing-sample streak exceeded the stale
	// limit; the caller must skip profile evaluation for this tick
	// (§4.3 Failure mode).
	Skip bool
}

// Evaluate runs fn against one tick's raw input (nil if absent this
// tick) for the given channel, advancing the engine's per-channel
// state. pollRate is the configured tick rate in Hz, needed to size the
// Standard function's delay window and the EMA's time constant.
func (e *Engine) Evaluate(fn *Function, channel string, raw *float32, pollRate float64) Result {
	key := Key{FunctionUID: fn.UID, Channel: channel}

	e.mu.Lock()
	st, ok := e.states[key]
	if !ok {
		st = &state{}
		e.states[key] = st
	}
	e.mu.Unlock()

	if raw == nil {
		st.missingStreak++
		if st.missingStreak > e.staleLimit {
			return Result{Skip: true}
		}
		if st.haveEmitted {
			return Result{Value: st.lastEmitted}
		}
		return Result{Skip: true}
	}
	st.missingStreak = 0

	var value float32
	switch fn.Type {
	case TypeIdentity:
		value = *raw
	case TypeStandard:
		value = evaluateStandard(st, fn, *raw, pollRate)
	case TypeEMA:
		value = float32(evaluateEMA(st, fn, float64(*raw), pollRate))
	default:
		value = *raw
	}
	// every type records its output so a later missing sample can
	// re-emit it while the streak is within the stale limit.
	st.lastEmitted = value
	st.haveEmitted = true
	return Result{Value: value}
}

func evaluateStandard(st *state, fn *Function, raw float32, pollRate float64) float32 {
	if !st.haveEmitted {
		st.lastEmitted = raw
		st.haveEmitted = true
		st.rawWindow = append(st.rawWindow, raw)
		return st.lastEmitted
	}

	if fn.OnlyDownward && raw > st.lastEmitted {
		// upward movements bypass the deadband and response delay
		// entirely.
		st.lastEmitted = raw
		st.rawWindow = st.rawWindow[:0]
		st.rawWindow = append(st.rawWindow, raw)
		return st.lastEmitted
	}

	windowSize := int(math.Ceil(float64(fn.ResponseDelaySeconds) * pollRate))
	if windowSize < 1 {
		windowSize = 1
	}

	st.rawWindow = append(st.rawWindow, raw)
	if len(st.rawWindow) > windowSize {
		st.rawWindow = st.rawWindow[len(st.rawWindow)-windowSize:]
	}

	if len(st.rawWindow) < windowSize {
		// not enough history yet to emit a delayed candidate
		return st.lastEmitted
	}

	candidate := st.rawWindow[0]
	if absF32(candidate-st.lastEmitted) >= fn.DevianceC {
		st.lastEmitted = candidate
	}
	return st.lastEmitted
}

func evaluateEMA(st *state, fn *Function, raw float64, pollRate float64) float64 {
	warmup := fn.effectiveSampleWindow()

	if st.emaWindow == nil {
		st.emaWindow = rolling.NewPointPolicy(rolling.NewWindow(warmup))
	}

	if st.emaWarmupCount < warmup {
		st.emaWindow.Append(raw)
		st.emaWarmupCount++
		st.emaValue = st.emaWindow.Reduce(rolling.Avg)
		if st.emaWarmupCount == warmup {
			st.emaStarted = true
		}
		return st.emaValue
	}

	dt := 1.0 / pollRate
	tau := float64(fn.TauSeconds)
	var alpha float64
	if tau <= 0 {
		alpha = 1
	} else {
		alpha = 1 - math.Exp(-dt/tau)
	}
	st.emaValue = alpha*raw + (1-alpha)*st.emaValue
	return st.emaValue
}

func absF32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
