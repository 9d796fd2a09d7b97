// Package hwmon implements the Linux sysfs hwmon repository:
// motherboard super-I/O fan controllers, NVMe/SATA drive temperature
// providers, and any other chip the kernel exposes under
// /sys/class/hwmon.
package hwmon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/log"
	"github.com/senses3/coolercontrol/internal/repositories"
)

// nct6775Family requires pwm_enable=1 (manual) to be written before any
// pwmN value write takes effect.
var nct6775Family = map[string]bool{
	"nct6775": true, "nct6776": true, "nct6779": true,
	"nct6791": true, "nct6792": true, "nct6793": true,
	"nct6795": true, "nct6796": true, "nct6797": true,
	"nct6798": true,
}

var pwmFileRegex = regexp.MustCompile(`^pwm(\d+)$`)
var tempInputRegex = regexp.MustCompile(`^temp(\d+)_input$`)

type pwmChannel struct {
	index       int
	pwmPath     string
	enablePath  string
	fanInput    string
	label       string
	originalEnable int
	haveOriginal   bool
}

type tempChannel struct {
	index int
	path  string
	label string
}

type chip struct {
	path        string
	name        string
	busType     string
	pwms        map[string]*pwmChannel
	temps       map[string]*tempChannel
	isNct6775   bool
	isDrivetemp bool
}

// Repository drives every chip enumerated under /sys/class/hwmon.
type Repository struct {
	mu    sync.Mutex
	chips map[device.UID]*chip

	// drivetempSuspend pauses sampling of drivetemp-family chips while
	// the system is entering sleep (General.DrivetempSuspend).
	drivetempSuspend bool
	suspended        bool

	// restoreAuto controls whether Shutdown resets pwm_enable to 5
	// (automatic).
	restoreAuto bool

	basePath string
}

// New creates an uninitialized hwmon repository. basePath defaults to
// /sys/class/hwmon when empty, overridable for tests.
func New(drivetempSuspend, restoreAutoOnShutdown bool, basePath string) *Repository {
	if basePath == "" {
		basePath = "/sys/class/hwmon"
	}
	return &Repository{
		chips:            make(map[device.UID]*chip),
		drivetempSuspend: drivetempSuspend,
		restoreAuto:      restoreAutoOnShutdown,
		basePath:         basePath,
	}
}

func (r *Repository) Name() string { return "hwmon" }

// Suspend pauses sampling of drivetemp chips (called on a sleep-entry
// signal).
func (r *Repository) Suspend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended = true
}

// Resume reverses Suspend.
func (r *Repository) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended = false
}

func (r *Repository) Initialize(ctx context.Context) ([]*device.Device, error) {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("hwmon: %w", err)
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
		c, d, err := r.probeChip(chipPath, typeIndex)
		if err != nil {
			log.Warn("hwmon: skipping %s: %v", chipPath, err)
			continue
		}
		if d == nil {
			continue
		}
		typeIndex++
		r.chips[d.UID] = c
		devices = append(devices, d)
	}
	return devices, nil
}

func (r *Repository) probeChip(chipPath string, typeIndex int) (*chip, *device.Device, error) {
	name := readString(filepath.Join(chipPath, "name"))
	if name == "" {
		return nil, nil, fmt.Errorf("no name file")
	}
	busType := readString(filepath.Join(chipPath, "device", "type"))

	entries, err := os.ReadDir(chipPath)
	if err != nil {
		return nil, nil, err
	}

	c := &chip{
		path:        chipPath,
		name:        name,
		busType:     busType,
		pwms:        make(map[string]*pwmChannel),
		temps:       make(map[string]*tempChannel),
		isNct6775:   nct6775Family[name],
		isDrivetemp: name == "drivetemp",
	}

	var pwmLabels []string
	for _, e := range entries {
		if m := pwmFileRegex.FindStringSubmatch(e.Name()); m != nil {
			idx, _ := strconv.Atoi(m[1])
			channelName := fmt.Sprintf("fan%d", idx)
			pc := &pwmChannel{
				index:      idx,
				pwmPath:    filepath.Join(chipPath, e.Name()),
				enablePath: filepath.Join(chipPath, e.Name()+"_enable"),
				fanInput:   filepath.Join(chipPath, fmt.Sprintf("fan%d_input", idx)),
				label:      readLabel(chipPath, fmt.Sprintf("fan%d", idx)),
			}
			c.pwms[channelName] = pc
			pwmLabels = append(pwmLabels, pc.label)
		}
		if m := tempInputRegex.FindStringSubmatch(e.Name()); m != nil {
			idx, _ := strconv.Atoi(m[1])
			channelName := fmt.Sprintf("temp%d", idx)
			tc := &tempChannel{
				index: idx,
				path:  filepath.Join(chipPath, e.Name()),
				label: readLabel(chipPath, fmt.Sprintf("temp%d", idx)),
			}
			c.temps[channelName] = tc
			pwmLabels = append(pwmLabels, tc.label)
		}
	}
	if len(c.pwms) == 0 && len(c.temps) == 0 {
		return nil, nil, fmt.Errorf("no pwm or temp channels")
	}

	sort.Strings(pwmLabels)
	uid := device.NewUID(device.DeviceTypeHwmon, name, busType, strings.Join(pwmLabels, ","))

	info := make(map[string]*device.ChannelInfo, len(c.pwms)+len(c.temps))
	for chName, pc := range c.pwms {
		info[chName] = &device.ChannelInfo{
			Label: pc.label,
			Speed: &device.SpeedOptions{MinDuty: 0, MaxDuty: 100, FixedEnabled: true, ProfilesEnabled: true, ManualProfilesEnabled: true},
		}
	}
	for chName, tc := range c.temps {
		info[chName] = &device.ChannelInfo{Label: tc.label}
	}

	d := &device.Device{
		UID:       uid,
		Name:      name,
		Type:      device.DeviceTypeHwmon,
		TypeIndex: typeIndex,
		Info:      info,
	}
	return c, d, nil
}

func (r *Repository) Sample(ctx context.Context, d *device.Device) (device.DeviceStatus, error) {
	r.mu.Lock()
	c, ok := r.chips[d.UID]
	suspended := r.suspended && r.drivetempSuspend
	r.mu.Unlock()
	if !ok {
		return device.DeviceStatus{}, repositories.ErrDriverError
	}
	if suspended && c.isDrivetemp {
		return device.DeviceStatus{}, nil
	}

	status := device.DeviceStatus{}
	for name, tc := range c.temps {
		raw, err := readInt(tc.path)
		if err != nil {
			continue
		}
		celsius := float32(raw) / 1000.0
		status.Temps = append(status.Temps, device.TempStatus{Name: name, Temp: celsius})
	}
	for name, pc := range c.pwms {
		ch := device.ChannelStatus{Name: name}
		if pwm, err := readInt(pc.pwmPath); err == nil {
			duty := float32(pwm) * 100.0 / 255.0
			ch.Duty = &duty
		}
		if rpm, err := readInt(pc.fanInput); err == nil {
			r := float32(rpm)
			ch.Rpm = &r
		}
		status.Channels = append(status.Channels, ch)
	}
	return status, nil
}

func (r *Repository) Apply(ctx context.Context, d *device.Device, channel string, s control.Setting) error {
	r.mu.Lock()
	c, ok := r.chips[d.UID]
	r.mu.Unlock()
	if !ok {
		return repositories.ErrDriverError
	}
	pc, ok := c.pwms[channel]
	if !ok {
		return repositories.ErrUnsupportedChannel
	}

	if s.Kind == control.SettingKindNone {
		return r.resetToAuto(c, pc)
	}
	if s.Duty < 0 || s.Duty > 100 {
		return repositories.ErrOutOfRange
	}

	if c.isNct6775 {
		if err := r.ensureManual(c, pc); err != nil {
			return fmt.Errorf("%w: %v", repositories.ErrHardwareBusy, err)
		}
	}

	pwm := int(float64(s.Duty) * 255.0 / 100.0)
	if err := writeInt(pc.pwmPath, pwm); err != nil {
		return fmt.Errorf("%w: %v", repositories.ErrDriverError, err)
	}
	return nil
}

func (r *Repository) ensureManual(c *chip, pc *pwmChannel) error {
	current, err := readInt(pc.enablePath)
	if err != nil {
		return err
	}
	if !pc.haveOriginal {
		pc.originalEnable = current
		pc.haveOriginal = true
	}
	if current == 1 {
		return nil
	}
	return writeInt(pc.enablePath, 1)
}

func (r *Repository) resetToAuto(c *chip, pc *pwmChannel) error {
	target := 5
	if pc.haveOriginal {
		target = pc.originalEnable
	}
	if err := writeInt(pc.enablePath, target); err != nil {
		return fmt.Errorf("%w: %v", repositories.ErrDriverError, err)
	}
	return nil
}

func (r *Repository) Shutdown(ctx context.Context) error {
	if !r.restoreAuto {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chips {
		for _, pc := range c.pwms {
			_ = writeInt(pc.enablePath, 5)
		}
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

func readLabel(chipPath, prefix string) string {
	label := readString(filepath.Join(chipPath, prefix+"_label"))
	if label != "" {
		return label
	}
	return prefix
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
