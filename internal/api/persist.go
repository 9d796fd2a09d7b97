package api

import (
	"fmt"

	"github.com/senses3/coolercontrol/internal/config"
	"github.com/senses3/coolercontrol/internal/control"
)

// persist rebuilds the config document's mutable sections from the
// live engines and writes it to disk. Every CRUD handler in this
// package calls this after mutating an engine, so the document on disk
// never drifts from what's actually running.
//
// The full cross-referential invariant set - not just the single
// entity a handler validated before mutating its engine - is checked
// again here before the write. A handler only ever sees its own
// entity in isolation (e.g. a Profile's own fields), so a mutation
// that is locally valid but breaks a cross-reference invariant, such
// as a Mix-membership cycle or a Mode entry naming a profile that was
// deleted moments earlier, must still be caught before it reaches
// disk. Without this, the bad document would be accepted with a
// successful response now and only fail at the next daemon restart,
// when Store.Load runs the same check.
func (s *Server) persist() error {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	s.cfg.Profiles = s.deps.ProfilesEng.All()
	s.cfg.Functions = s.deps.FunctionDefs.All()
	s.cfg.Modes = s.deps.ModesCtrl.All()
	s.cfg.Alerts = s.deps.AlertsEng.All()
	s.cfg.Settings = settingsSnapshot(s.deps.Settings)

	if err := config.Validate(s.cfg); err != nil {
		return fmt.Errorf("rejected: %w", err)
	}

	return s.deps.CfgStore.Save(s.cfg)
}

func settingsSnapshot(reg *control.Registry) []config.ChannelSettingEntry {
	var out []config.ChannelSettingEntry
	for _, ctrl := range reg.All() {
		setting := ctrl.Setting()
		if setting.Kind == control.SettingKindNone {
			continue
		}
		key := ctrl.Key()
		out = append(out, config.ChannelSettingEntry{
			DeviceUID:   key.DeviceUID,
			ChannelName: key.Channel,
			Setting:     setting,
		})
	}
	return out
}
