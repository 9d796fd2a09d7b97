// Package customsensors implements the virtual CustomSensors
// repository: File sensors that read a number from a user-named path
// each tick, and Mix sensors that combine other channels via
// Min/Max/Avg/WeightedAvg.
package customsensors

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

// MixOp selects a Mix sensor's combinator.
type MixOp string

const (
	MixMin         MixOp = "min"
	MixMax         MixOp = "max"
	MixAvg         MixOp = "avg"
	MixWeightedAvg MixOp = "weighted_avg"
)

// FileSensorConfig defines one File-kind custom channel.
type FileSensorConfig struct {
	ChannelName string `toml:"channel_name" json:"channel_name"`
	Path        string `toml:"path" json:"path"`
}

// MixMember references one channel mixed into a Mix-kind sensor, with
// an optional weight (only used by WeightedAvg).
type MixMember struct {
	ChannelName string  `toml:"channel_name" json:"channel_name"`
	Weight      float32 `toml:"weight,omitempty" json:"weight,omitempty"`
}

// MixSensorConfig defines one Mix-kind custom channel.
type MixSensorConfig struct {
	ChannelName string      `toml:"channel_name" json:"channel_name"`
	Op          MixOp       `toml:"op" json:"op"`
	Members     []MixMember `toml:"member,omitempty" json:"members,omitempty"`
}

// Config is the full set of virtual channels the repository exposes,
// user-authored (persisted alongside the rest of the config document).
type Config struct {
	Files []FileSensorConfig `toml:"file,omitempty" json:"files,omitempty"`
	Mixes []MixSensorConfig  `toml:"mix,omitempty" json:"mixes,omitempty"`
}

// Repository produces exactly one virtual device carrying every
// configured File/Mix channel.
type Repository struct {
	mu  sync.Mutex
	cfg Config
	uid device.UID
}

// New creates a repository over the given virtual-channel config.
func New(cfg Config) *Repository {
	return &Repository{cfg: cfg}
}

func (r *Repository) Name() string { return "customsensors" }

func (r *Repository) Initialize(ctx context.Context) ([]*device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cfg.Files) == 0 && len(r.cfg.Mixes) == 0 {
		return nil, nil
	}

	var names []string
	for _, f := range r.cfg.Files {
		names = append(names, f.ChannelName)
	}
	for _, m := range r.cfg.Mixes {
		names = append(names, m.ChannelName)
	}
	r.uid = device.NewUID(device.DeviceTypeCustomSensors, strings.Join(names, ","))

	info := make(map[string]*device.ChannelInfo, len(names))
	for _, n := range names {
		info[n] = &device.ChannelInfo{Label: n}
	}

	d := &device.Device{
		UID:       r.uid,
		Name:      "Custom Sensors",
		Type:      device.DeviceTypeCustomSensors,
		TypeIndex: 0,
		Info:      info,
	}
	return []*device.Device{d}, nil
}

func (r *Repository) Sample(ctx context.Context, d *device.Device) (device.DeviceStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.UID != r.uid {
		return device.DeviceStatus{}, repositories.ErrDriverError
	}

	status := device.DeviceStatus{}
	values := make(map[string]float32)
	for _, f := range r.cfg.Files {
		v, err := readFloat(f.Path)
		if err != nil {
			continue
		}
		values[f.ChannelName] = v
		status.Temps = append(status.Temps, device.TempStatus{Name: f.ChannelName, Temp: v})
	}
	for _, m := range r.cfg.Mixes {
		v, ok := combine(m, values)
		if !ok {
			continue
		}
		status.Temps = append(status.Temps, device.TempStatus{Name: m.ChannelName, Temp: v})
	}
	return status, nil
}

// Apply always fails: CustomSensors has no actuators.
func (r *Repository) Apply(ctx context.Context, d *device.Device, channel string, s control.Setting) error {
	return repositories.ErrUnsupportedChannel
}

func (r *Repository) Shutdown(ctx context.Context) error { return nil }

func combine(m MixSensorConfig, values map[string]float32) (float32, bool) {
	var present []MixMember
	for _, mem := range m.Members {
		if _, ok := values[mem.ChannelName]; ok {
			present = append(present, mem)
		}
	}
	if len(present) == 0 {
		return 0, false
	}

	switch m.Op {
	case MixMin:
		v := values[present[0].ChannelName]
		for _, mem := range present[1:] {
			if c := values[mem.ChannelName]; c < v {
				v = c
			}
		}
		return v, true
	case MixMax:
		v := values[present[0].ChannelName]
		for _, mem := range present[1:] {
			if c := values[mem.ChannelName]; c > v {
				v = c
			}
		}
		return v, true
	case MixWeightedAvg:
		var sum, weight float32
		for _, mem := range present {
			sum += values[mem.ChannelName] * mem.Weight
			weight += mem.Weight
		}
		if weight == 0 {
			return 0, false
		}
		return sum / weight, true
	default: // MixAvg
		var sum float32
		for _, mem := range present {
			sum += values[mem.ChannelName]
		}
		return sum / float32(len(present)), true
	}
}

func readFloat(path string) (float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, fmt.Errorf("empty file: %s", path)
	}
	v, err := strconv.ParseFloat(text, 32)
	if err != nil {
		return 0, err
	}
	return float32(v), nil
}
