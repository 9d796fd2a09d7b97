package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/modes"
	"github.com/senses3/coolercontrol/internal/profiles"
)

func newValidConfig() *Configuration {
	cfg := NewDefault()
	cfg.Profiles = []profiles.Profile{
		{UID: "p1", Type: profiles.TypeFixed, SpeedFixed: 50},
	}
	return cfg
}

func TestValidateRejectsPollRateOutOfRange(t *testing.T) {
	cfg := newValidConfig()
	cfg.General.PollRate = 0.1
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsDuplicateProfileUID(t *testing.T) {
	cfg := newValidConfig()
	cfg.Profiles = append(cfg.Profiles, profiles.Profile{UID: "p1", Type: profiles.TypeFixed, SpeedFixed: 10})
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsModeReferencingUnknownProfile(t *testing.T) {
	cfg := newValidConfig()
	cfg.Modes = []modes.Mode{{UID: "m1", Entries: []modes.Entry{
		{ChannelRef: modes.ChannelRef{DeviceUID: "d1", Channel: "fan1"}, Setting: control.ProfileSetting("ghost")},
	}}}
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsSettingReferencingUnknownProfile(t *testing.T) {
	cfg := newValidConfig()
	cfg.Settings = []ChannelSettingEntry{
		{DeviceUID: "d1", ChannelName: "fan1", Setting: control.ProfileSetting("ghost")},
	}
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsSelfReferentialMixProfile(t *testing.T) {
	cfg := newValidConfig()
	cfg.Profiles = append(cfg.Profiles, profiles.Profile{
		UID: "mix1", Type: profiles.TypeMix, MixFunctionType: profiles.MixAvg,
		MemberProfileUIDs: []string{"mix1"},
	})
	assert.Error(t, Validate(cfg))
}

func TestValidateRejectsMixMembershipCycle(t *testing.T) {
	cfg := newValidConfig()
	cfg.Profiles = append(cfg.Profiles,
		profiles.Profile{UID: "mixA", Type: profiles.TypeMix, MixFunctionType: profiles.MixAvg, MemberProfileUIDs: []string{"mixB"}},
		profiles.Profile{UID: "mixB", Type: profiles.TypeMix, MixFunctionType: profiles.MixAvg, MemberProfileUIDs: []string{"mixA"}},
	)
	assert.Error(t, Validate(cfg))
}

func TestValidateAcceptsWellFormedDocument(t *testing.T) {
	cfg := newValidConfig()
	assert.NoError(t, Validate(cfg))
}
