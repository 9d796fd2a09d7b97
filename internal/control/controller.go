package control

import "sync"

// ChannelKey identifies one controllable channel on one device.
type ChannelKey struct {
	DeviceUID string
	Channel   string
}

// Controller is one logical per-channel state machine. The
// function→profile evaluation that produces a candidate duty for
// Profile-kind settings is computed by the caller (the tick scheduler,
// which owns the functions/profiles engines) and handed to Tick - this
// keeps Controller free of a dependency on either engine package.
type Controller struct {
	mu sync.Mutex

	key             ChannelKey
	setting         Setting
	lastAppliedDuty *int
	forceNext       bool
	// consecutiveSuppressed counts ticks in a row where write-on-change
	// suppressed a write because the candidate duty (of a Manual or
	// Profile setting) equalled the last applied duty. Supplements the
	// function engine's own staleness counter with a write-side safety
	// latch so a channel is never silently abandoned at a stale duty
	// forever.
	consecutiveSuppressed int
}

// NewController creates a controller for the given channel in the Unset
// state.
func NewController(key ChannelKey) *Controller {
	return &Controller{key: key, setting: NoneSetting()}
}

// Key returns the channel this controller owns.
func (c *Controller) Key() ChannelKey {
	return c.key
}

// Setting returns the currently active setting.
func (c *Controller) Setting() Setting {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setting
}

// LastAppliedDuty returns the last duty successfully written, or false
// if nothing has ever been applied.
func (c *Controller) LastAppliedDuty() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastAppliedDuty == nil {
		return 0, false
	}
	return *c.lastAppliedDuty, true
}

// Apply replaces the live setting atomically and forces a write on the
// next tick regardless of write-on-change - a forced re-write happens
// on every apply.
func (c *Controller) Apply(s Setting) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setting = s
	c.forceNext = true
	c.consecutiveSuppressed = 0
}

// Seed installs s as the live setting without forcing a write on the
// next tick, used only when loading persisted settings at startup:
// whether that first tick actually writes is then left to
// ordinary write-on-change against whatever LastAppliedDuty was seeded
// from the duty cache, so a restart with apply_on_boot=false and a
// duty cache that still matches hardware causes no write at all.
func (c *Controller) Seed(s Setting) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setting = s
}

// ForceReapply marks the next tick as a forced rewrite without changing
// the setting - used by the scheduler's write-staleness latch and by
// Registry.ForceReapplyAll.
func (c *Controller) ForceReapply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forceNext = true
}

// Candidate is the outcome of evaluating one tick for this controller.
type Candidate struct {
	// Duty is the value that would be written if ShouldWrite is true.
	Duty int
	// ShouldWrite is true if the controller decided a write is due this
	// tick (write-on-change, or a forced reapply).
	ShouldWrite bool
}

// Tick evaluates the controller's state machine for one tick.
// profileDuty is the output of the function→profile pipeline for this
// tick and is only consulted when the active setting is Profile-kind;
// it is ignored for Manual/None settings. A nil profileDuty means the
// pipeline produced no usable value this tick (Default/None), in
// which case the controller behaves as Unset for the tick.
func (c *Controller) Tick(profileDuty *int) Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.setting.Kind {
	case SettingKindManual:
		return c.evaluateDuty(c.setting.Duty)
	case SettingKindProfile:
		if profileDuty == nil {
			c.forceNext = false
			return Candidate{ShouldWrite: false}
		}
		return c.evaluateDuty(*profileDuty)
	default:
		return Candidate{ShouldWrite: false}
	}
}

func (c *Controller) evaluateDuty(duty int) Candidate {
	changed := c.lastAppliedDuty == nil || *c.lastAppliedDuty != duty
	if c.forceNext || changed {
		c.forceNext = false
		return Candidate{Duty: duty, ShouldWrite: true}
	}
	c.consecutiveSuppressed++
	return Candidate{Duty: duty, ShouldWrite: false}
}

// ConfirmApplied records that duty was successfully written to
// hardware. Must be called by the caller after a successful repository
// Apply - write failures must NOT call this, so the setting is retried
// on the next tick: the channel setting is retained so it can be
// reapplied automatically when the device returns.
func (c *Controller) ConfirmApplied(duty int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := duty
	c.lastAppliedDuty = &d
	c.consecutiveSuppressed = 0
}

// SuppressedStreak returns how many consecutive ticks in a row a write
// was suppressed by write-on-change for the current setting.
func (c *Controller) SuppressedStreak() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveSuppressed
}
