// Package cpu implements the CPU temperature repository:
// read-only, a single virtual "CPU" channel averaging the package/core
// sensors exposed by coretemp, k10temp, or zenpower.
package cpu

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/repositories"
)

var supportedChips = map[string]bool{"coretemp": true, "k10temp": true, "zenpower": true}

var tempInputRegex = regexp.MustCompile(`^temp(\d+)_input$`)

type probedChip struct {
	name       string
	tempInputs []string
}

// Repository exposes one virtual device per supported CPU sensor chip
// found under /sys/class/hwmon.
type Repository struct {
	mu       sync.Mutex
	chips    map[device.UID]*probedChip
	basePath string
}

// New creates an uninitialized CPU repository. basePath defaults to
// /sys/class/hwmon when empty, overridable for tests.
func New(basePath string) *Repository {
	if basePath == "" {
		basePath = "/sys/class/hwmon"
	}
	return &Repository{chips: make(map[device.UID]*probedChip), basePath: basePath}
}

func (r *Repository) Name() string { return "cpu" }

func (r *Repository) Initialize(ctx context.Context) ([]*device.Device, error) {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cpu: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var devices []*device.Device
	typeIndex := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "hwmon") {
			continue
		}
		chipPath := filepath.Join(r.basePath, entry.Name())
		name := readString(filepath.Join(chipPath, "name"))
		if !supportedChips[name] {
			continue
		}
		var inputs []string
		chipEntries, err := os.ReadDir(chipPath)
		if err != nil {
			continue
		}
		for _, e := range chipEntries {
			if tempInputRegex.MatchString(e.Name()) {
				inputs = append(inputs, filepath.Join(chipPath, e.Name()))
			}
		}
		if len(inputs) == 0 {
			continue
		}

		uid := device.NewUID(device.DeviceTypeCPU, name, strconv.Itoa(typeIndex))
		r.chips[uid] = &probedChip{name: name, tempInputs: inputs}
		devices = append(devices, &device.Device{
			UID:       uid,
			Name:      name,
			Type:      device.DeviceTypeCPU,
			TypeIndex: typeIndex,
			Info:      map[string]*device.ChannelInfo{"CPU": {Label: "CPU"}},
		})
		typeIndex++
	}
	return devices, nil
}

func (r *Repository) Sample(ctx context.Context, d *device.Device) (device.DeviceStatus, error) {
	r.mu.Lock()
	c, ok := r.chips[d.UID]
	r.mu.Unlock()
	if !ok {
		return device.DeviceStatus{}, repositories.ErrDriverError
	}

	var sum float32
	var n int
	for _, path := range c.tempInputs {
		raw, err := readInt(path)
		if err != nil {
			continue
		}
		sum += float32(raw) / 1000.0
		n++
	}
	if n == 0 {
		return device.DeviceStatus{}, nil
	}
	return device.DeviceStatus{Temps: []device.TempStatus{{Name: "CPU", Temp: sum / float32(n)}}}, nil
}

// Apply always fails: the CPU repository has no actuators.
func (r *Repository) Apply(ctx context.Context, d *device.Device, channel string, s control.Setting) error {
	return repositories.ErrUnsupportedChannel
}

func (r *Repository) Shutdown(ctx context.Context) error { return nil }

func readString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, fmt.Errorf("empty file: %s", path)
	}
	return strconv.Atoi(text)
}
