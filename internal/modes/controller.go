package modes

import (
	"sync"
	"time"

	"github.com/qdm12/reprint"
	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/events"
	"github.com/senses3/coolercontrol/internal/log"
)

// Applier performs an immediate, best-effort hardware write for a
// Manual setting during mode activation. Profile-kind settings are
// intentionally excluded from this interface: they need a full
// function→profile evaluation pass, which only happens on the tick
// scheduler's single-writer path - they take effect on the very
// next tick via the controller's forced-reapply flag instead.
type Applier interface {
	ApplyManual(key control.ChannelKey, duty int) error
}

// Controller owns the set of defined Modes and drives atomic activation
// against the channel-setting registry.
type Controller struct {
	mu        sync.RWMutex
	byUID     map[string]*Mode
	activeUID string
	settings  *control.Registry
	bus       *events.Topic[events.ModeActivated]
	applier   Applier
}

// NewController creates a mode controller bound to the given channel
// setting registry and mode-activation event topic. applier may be nil,
// in which case every entry's hardware application is deferred to the
// next tick.
func NewController(settings *control.Registry, bus *events.Topic[events.ModeActivated], applier Applier) *Controller {
	return &Controller{byUID: make(map[string]*Mode), settings: settings, bus: bus, applier: applier}
}

// Load replaces the set of defined modes, typically from the config
// store at startup.
func (c *Controller) Load(all []Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byUID = make(map[string]*Mode, len(all))
	for i := range all {
		m := all[i]
		c.byUID[m.UID] = &m
	}
}

// Get returns a deep copy of the mode with the given UID, so callers
// can never mutate the controller's stored snapshot through the
// returned value.
func (c *Controller) Get(uid string) (Mode, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.byUID[uid]
	if !ok {
		return Mode{}, false
	}
	var copyOut Mode
	if err := reprint.FromTo(m, &copyOut); err != nil {
		return *m, true
	}
	return copyOut, true
}

// All returns every defined mode.
func (c *Controller) All() []Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Mode, 0, len(c.byUID))
	for _, m := range c.byUID {
		out = append(out, *m)
	}
	return out
}

// Put creates or replaces a mode definition.
func (c *Controller) Put(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := m
	c.byUID[m.UID] = &stored
}

// Delete removes a mode definition.
func (c *Controller) Delete(uid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byUID, uid)
}

// ActiveUID returns the UID of the most recently successfully activated
// mode, or "" if none has been activated this run.
func (c *Controller) ActiveUID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeUID
}

// Activate applies every (channel → Setting) in the named mode
// atomically: the full batch is built first, then each entry is
// applied; a per-channel apply failure is reported but never rolls back
// the others, since idempotent re-activation is the recovery path.
func (c *Controller) Activate(uid string) ([]string, error) {
	c.mu.RLock()
	m, ok := c.byUID[uid]
	if !ok {
		c.mu.RUnlock()
		return nil, &NotFoundError{UID: uid}
	}
	var snapshot Mode
	if err := reprint.FromTo(m, &snapshot); err != nil {
		snapshot = *m
	}
	previous := c.activeUID
	c.mu.RUnlock()

	var failed []string
	for _, entry := range snapshot.Entries {
		key := control.ChannelKey{DeviceUID: entry.ChannelRef.DeviceUID, Channel: entry.ChannelRef.Channel}
		ctrl := c.settings.Ensure(key)
		ctrl.Apply(entry.Setting)

		if c.applier != nil && entry.Setting.Kind == control.SettingKindManual {
			if err := c.applier.ApplyManual(key, entry.Setting.Duty); err != nil {
				log.Warn("mode %s: immediate apply failed for %s: %v", uid, key.String(), err)
				failed = append(failed, key.String())
				continue
			}
			ctrl.ConfirmApplied(entry.Setting.Duty)
		}
	}

	c.mu.Lock()
	c.activeUID = uid
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(events.ModeActivated{
			UID:            uid,
			PreviousUID:    previous,
			Timestamp:      time.Now().UTC(),
			FailedChannels: failed,
		})
	}
	if len(failed) > 0 {
		log.Warn("mode %s activated with %d channel failures: %v", uid, len(failed), failed)
	}
	return failed, nil
}

// NotFoundError is returned by Activate/Get when a UID is unknown.
type NotFoundError struct{ UID string }

func (e *NotFoundError) Error() string {
	return "mode not found: " + e.UID
}
