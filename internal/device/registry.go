package device

import (
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Registry is the shared-mutable arena of all enumerated devices, keyed
// by UID (§9: "use an arena keyed by UID... no back-pointers; all
// relations via IDs"). It is safe for concurrent use; repositories write
// to it once during Initialize, the tick scheduler and API read it
// continuously.
type Registry struct {
	devices cmap.ConcurrentMap[string, *Device]
}

// NewRegistry creates an empty device arena.
func NewRegistry() *Registry {
	return &Registry{devices: cmap.New[*Device]()}
}

// Put registers or replaces a device.
func (r *Registry) Put(d *Device) {
	r.devices.Set(string(d.UID), d)
}

// Get looks up a device by UID.
func (r *Registry) Get(uid UID) (*Device, bool) {
	return r.devices.Get(string(uid))
}

// All returns a snapshot slice of all registered devices. The slice and
// its elements are safe to read without further locking; elements are
// never mutated in place after Initialize.
func (r *Registry) All() []*Device {
	items := r.devices.Items()
	out := make([]*Device, 0, len(items))
	for _, d := range items {
		out = append(out, d)
	}
	return out
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	return r.devices.Count()
}
