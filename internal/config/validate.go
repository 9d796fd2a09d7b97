package config

import (
	"fmt"

	"github.com/looplab/tarjan"

	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/functions"
	"github.com/senses3/coolercontrol/internal/profiles"
	"github.com/senses3/coolercontrol/internal/repositories/customsensors"
)

// Validate checks every static invariant across the whole document,
// including the Mix-membership cycle rejection that needs the full
// profile set at once ("cycles in membership are rejected at load").
// Hand-edited-but-partially-invalid configs abort the whole load rather
// than silently dropping the bad subtree.
func Validate(cfg *Configuration) error {
	if cfg.General.PollRate < 0.25 || cfg.General.PollRate > 2.0 {
		return fmt.Errorf("general.poll_rate %.3f out of [0.25, 2.0]", cfg.General.PollRate)
	}
	if cfg.General.HealthErrorGracePeriodSeconds < 0 {
		return fmt.Errorf("general.health_error_grace_period_s must be >= 0")
	}

	functionUIDs := map[string]bool{functions.IdentityUID: true}
	for i := range cfg.Functions {
		f := &cfg.Functions[i]
		if f.UID == "" {
			return fmt.Errorf("function at index %d: uid is required", i)
		}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("function %s: %w", f.UID, err)
		}
		if functionUIDs[f.UID] {
			return fmt.Errorf("function %s: duplicate uid", f.UID)
		}
		functionUIDs[f.UID] = true
	}

	profileUIDs := map[string]bool{profiles.DefaultUID: true}
	membershipGraph := make(map[interface{}][]interface{}, len(cfg.Profiles))
	for i := range cfg.Profiles {
		p := &cfg.Profiles[i]
		if p.UID == "" {
			return fmt.Errorf("profile at index %d: uid is required", i)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", p.UID, err)
		}
		if profileUIDs[p.UID] {
			return fmt.Errorf("profile %s: duplicate uid", p.UID)
		}
		if p.FunctionUID != "" && !functionUIDs[p.FunctionUID] {
			return fmt.Errorf("profile %s: unknown function_uid %q", p.UID, p.FunctionUID)
		}
		profileUIDs[p.UID] = true
		members := make([]interface{}, len(p.MemberProfileUIDs))
		for j, m := range p.MemberProfileUIDs {
			members[j] = m
		}
		membershipGraph[p.UID] = members
	}
	for i := range cfg.Profiles {
		p := &cfg.Profiles[i]
		for _, m := range p.MemberProfileUIDs {
			if !profileUIDs[m] {
				return fmt.Errorf("profile %s: unknown member profile %q", p.UID, m)
			}
		}
	}
	if err := checkMixCycles(membershipGraph); err != nil {
		return err
	}

	alertUIDs := make(map[string]bool, len(cfg.Alerts))
	for i := range cfg.Alerts {
		a := &cfg.Alerts[i]
		if a.UID == "" {
			return fmt.Errorf("alert at index %d: uid is required", i)
		}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("alert %s: %w", a.UID, err)
		}
		if alertUIDs[a.UID] {
			return fmt.Errorf("alert %s: duplicate uid", a.UID)
		}
		alertUIDs[a.UID] = true
	}

	modeUIDs := make(map[string]bool, len(cfg.Modes))
	for _, m := range cfg.Modes {
		if m.UID == "" {
			return fmt.Errorf("mode %q: uid is required", m.Name)
		}
		if modeUIDs[m.UID] {
			return fmt.Errorf("mode %s: duplicate uid", m.UID)
		}
		modeUIDs[m.UID] = true
		for _, e := range m.Entries {
			if e.Setting.Kind == control.SettingKindProfile && !profileUIDs[e.Setting.ProfileUID] {
				return fmt.Errorf("mode %s: channel %s/%s references unknown profile %q",
					m.UID, e.ChannelRef.DeviceUID, e.ChannelRef.Channel, e.Setting.ProfileUID)
			}
		}
	}

	customChannels := make(map[string]bool)
	for _, f := range cfg.CustomSensors.Files {
		if f.ChannelName == "" {
			return fmt.Errorf("custom_sensors: file entry missing channel_name")
		}
		if customChannels[f.ChannelName] {
			return fmt.Errorf("custom_sensors: duplicate channel_name %q", f.ChannelName)
		}
		customChannels[f.ChannelName] = true
	}
	for _, m := range cfg.CustomSensors.Mixes {
		if m.ChannelName == "" {
			return fmt.Errorf("custom_sensors: mix entry missing channel_name")
		}
		if customChannels[m.ChannelName] {
			return fmt.Errorf("custom_sensors: duplicate channel_name %q", m.ChannelName)
		}
		customChannels[m.ChannelName] = true
		switch m.Op {
		case customsensors.MixMin, customsensors.MixMax, customsensors.MixAvg, customsensors.MixWeightedAvg:
		default:
			return fmt.Errorf("custom_sensors: mix %s: unknown op %q", m.ChannelName, m.Op)
		}
		if len(m.Members) == 0 {
			return fmt.Errorf("custom_sensors: mix %s: requires at least one member", m.ChannelName)
		}
	}

	for i := range cfg.Settings {
		s := &cfg.Settings[i]
		if s.Setting.Kind == control.SettingKindProfile && !profileUIDs[s.Setting.ProfileUID] {
			return fmt.Errorf("setting %s/%s: references unknown profile %q", s.DeviceUID, s.ChannelName, s.Setting.ProfileUID)
		}
	}

	return nil
}

// checkMixCycles rejects any Mix-profile membership graph containing a
// cycle, including a profile that lists itself as a member.
// tarjan.Connections returns every strongly connected component of the
// graph; a component with more than one member is always a cycle, and
// a single-member component is a cycle too if that node's own
// adjacency list contains itself.
func checkMixCycles(graph map[interface{}][]interface{}) error {
	for _, scc := range tarjan.Connections(graph) {
		if len(scc) > 1 {
			return fmt.Errorf("cyclic mix profile membership detected among: %v", scc)
		}
		if len(scc) == 1 {
			node := scc[0]
			for _, neighbor := range graph[node] {
				if neighbor == node {
					return fmt.Errorf("profile %v: self-referential mix membership", node)
				}
			}
		}
	}
	return nil
}
