package gpu

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/repositories"
)

type amdCard struct {
	hwmonPath  string
	pwmPath    string
	enablePath string
	tempPath   string
	powerPath  string
}

// AmdRepository drives AMDGPU cards exposed under
// /sys/class/drm/card*/device/hwmon/hwmon* via DRM/AMDGPU sysfs.
type AmdRepository struct {
	mu       sync.Mutex
	cards    map[device.UID]*amdCard
	basePath string
}

// NewAmd creates an uninitialized AMD GPU repository. basePath defaults
// to /sys/class/drm when empty, overridable for tests.
func NewAmd(basePath string) *AmdRepository {
	if basePath == "" {
		basePath = "/sys/class/drm"
	}
	return &AmdRepository{cards: make(map[device.UID]*amdCard), basePath: basePath}
}

func (r *AmdRepository) Name() string { return "amdgpu" }

func (r *AmdRepository) Initialize(ctx context.Context) ([]*device.Device, error) {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("amdgpu: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var devices []*device.Device
	typeIndex := 0
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), "card") || strings.Contains(entry.Name(), "-") {
			continue
		}
		hwmonBase := filepath.Join(r.basePath, entry.Name(), "device", "hwmon")
		hwmonEntries, err := os.ReadDir(hwmonBase)
		if err != nil {
			continue
		}
		for _, hm := range hwmonEntries {
			hwmonPath := filepath.Join(hwmonBase, hm.Name())
			name := readString(filepath.Join(hwmonPath, "name"))
			if name != "amdgpu" {
				continue
			}
			pciID := readString(filepath.Join(r.basePath, entry.Name(), "device", "uevent"))
			uid := device.NewUID(device.DeviceTypeGPU, "amdgpu", entry.Name(), pciID)

			c := &amdCard{
				hwmonPath:  hwmonPath,
				pwmPath:    filepath.Join(hwmonPath, "pwm1"),
				enablePath: filepath.Join(hwmonPath, "pwm1_enable"),
				tempPath:   filepath.Join(hwmonPath, "temp1_input"),
				powerPath:  filepath.Join(hwmonPath, "power1_average"),
			}
			r.cards[uid] = c

			info := map[string]*device.ChannelInfo{
				"GPU": {Label: "GPU"},
			}
			if _, err := os.Stat(c.pwmPath); err == nil {
				info["fan1"] = &device.ChannelInfo{
					Label: "fan1",
					Speed: &device.SpeedOptions{MinDuty: 0, MaxDuty: 100, FixedEnabled: true, ProfilesEnabled: true, ManualProfilesEnabled: true},
				}
			}
			devices = append(devices, &device.Device{
				UID:       uid,
				Name:      "AMDGPU",
				Type:      device.DeviceTypeGPU,
				TypeIndex: typeIndex,
				Info:      info,
			})
			typeIndex++
		}
	}
	return devices, nil
}

func (r *AmdRepository) Sample(ctx context.Context, d *device.Device) (device.DeviceStatus, error) {
	r.mu.Lock()
	c, ok := r.cards[d.UID]
	r.mu.Unlock()
	if !ok {
		return device.DeviceStatus{}, repositories.ErrDriverError
	}

	status := device.DeviceStatus{}
	if raw, err := readInt(c.tempPath); err == nil {
		status.Temps = append(status.Temps, device.TempStatus{Name: "GPU", Temp: float32(raw) / 1000.0})
	}
	ch := device.ChannelStatus{Name: "GPU"}
	if raw, err := readInt(c.powerPath); err == nil {
		w := float32(raw) / 1000000.0
		ch.Watts = &w
	}
	if raw, err := readInt(c.pwmPath); err == nil {
		duty := float32(raw) * 100.0 / 255.0
		fanCh := device.ChannelStatus{Name: "fan1", Duty: &duty}
		status.Channels = append(status.Channels, fanCh)
	}
	status.Channels = append(status.Channels, ch)
	return status, nil
}

func (r *AmdRepository) Apply(ctx context.Context, d *device.Device, channel string, s control.Setting) error {
	r.mu.Lock()
	c, ok := r.cards[d.UID]
	r.mu.Unlock()
	if !ok {
		return repositories.ErrDriverError
	}
	if channel != "fan1" {
		return repositories.ErrUnsupportedChannel
	}

	if s.Kind == control.SettingKindNone {
		if err := writeInt(c.enablePath, 2); err != nil {
			return fmt.Errorf("%w: %v", repositories.ErrDriverError, err)
		}
		return nil
	}
	if s.Duty < 0 || s.Duty > 100 {
		return repositories.ErrOutOfRange
	}
	if err := writeInt(c.enablePath, 1); err != nil {
		return fmt.Errorf("%w: %v", repositories.ErrHardwareBusy, err)
	}
	pwm := int(float64(s.Duty) * 255.0 / 100.0)
	if err := writeInt(c.pwmPath, pwm); err != nil {
		return fmt.Errorf("%w: %v", repositories.ErrDriverError, err)
	}
	return nil
}

func (r *AmdRepository) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cards {
		_ = writeInt(c.enablePath, 2)
	}
	return nil
}

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

func writeInt(path string, value int) error {
	return os.WriteFile(path, []byte(strconv.Itoa(value)), 0644)
}
