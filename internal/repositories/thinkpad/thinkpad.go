// Package thinkpad implements the ThinkPad ACPI repository:
// full-speed mode toggle and the fan-control-enable flag exposed by the
// thinkpad_acpi kernel module.
package thinkpad

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/repositories"
)

const (
	defaultFanPath = "/proc/acpi/ibm/fan"
	channelName    = "fan1"
)

// Repository drives the single fan exposed by thinkpad_acpi.
type Repository struct {
	mu         sync.Mutex
	fanPath    string
	fullSpeed  bool
	uid        device.UID
	haveDevice bool
}

// New creates an uninitialized ThinkPad repository. fullSpeed mirrors
// General.ThinkPadFullSpeed.
func New(fullSpeed bool, fanPath string) *Repository {
	if fanPath == "" {
		fanPath = defaultFanPath
	}
	return &Repository{fanPath: fanPath, fullSpeed: fullSpeed}
}

func (r *Repository) Name() string { return "thinkpad" }

func (r *Repository) Initialize(ctx context.Context) ([]*device.Device, error) {
	if _, err := os.Stat(r.fanPath); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("thinkpad: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.uid = device.NewUID(device.DeviceTypeThinkPad, "thinkpad_acpi")
	r.haveDevice = true

	d := &device.Device{
		UID:       r.uid,
		Name:      "ThinkPad ACPI",
		Type:      device.DeviceTypeThinkPad,
		TypeIndex: 0,
		Info: map[string]*device.ChannelInfo{
			channelName: {
				Label: "fan",
				Speed: &device.SpeedOptions{MinDuty: 0, MaxDuty: 100, FixedEnabled: true, ProfilesEnabled: true, ManualProfilesEnabled: true},
			},
		},
	}
	return []*device.Device{d}, nil
}

func (r *Repository) Sample(ctx context.Context, d *device.Device) (device.DeviceStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.haveDevice || d.UID != r.uid {
		return device.DeviceStatus{}, repositories.ErrDriverError
	}

	data, err := os.ReadFile(r.fanPath)
	if err != nil {
		return device.DeviceStatus{}, nil
	}
	status := device.DeviceStatus{}
	for _, line := range strings.Split(string(data), "\n") {
		if speed, ok := parseField(line, "speed:"); ok {
			rpm := float32(speed)
			status.Channels = append(status.Channels, device.ChannelStatus{Name: channelName, Rpm: &rpm})
		}
	}
	return status, nil
}

func (r *Repository) Apply(ctx context.Context, d *device.Device, channel string, s control.Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.haveDevice || d.UID != r.uid {
		return repositories.ErrDriverError
	}
	if channel != channelName {
		return repositories.ErrUnsupportedChannel
	}

	if s.Kind == control.SettingKindNone {
		return r.writeLevel("auto")
	}
	if s.Duty < 0 || s.Duty > 100 {
		return repositories.ErrOutOfRange
	}
	if r.fullSpeed && s.Duty >= 100 {
		return r.writeLevel("full-speed")
	}
	level := s.Duty * 7 / 100
	return r.writeLevel(strconv.Itoa(level))
}

func (r *Repository) writeLevel(level string) error {
	if err := os.WriteFile(r.fanPath, []byte("level "+level), 0644); err != nil {
		return fmt.Errorf("%w: %v", repositories.ErrDriverError, err)
	}
	return nil
}

func (r *Repository) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.haveDevice {
		return nil
	}
	return os.WriteFile(r.fanPath, []byte("level auto"), 0644)
}

func parseField(line, prefix string) (int, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, prefix) {
		return 0, false
	}
	value := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}
