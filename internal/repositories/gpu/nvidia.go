//go:build !disable_nvidia

// Package gpu implements the NVIDIA and AMD GPU repositories.
package gpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/log"
	"github.com/senses3/coolercontrol/internal/repositories"
)

func nvErr(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return fmt.Errorf("%w: %s", repositories.ErrDriverError, nvml.ErrorString(ret))
}

type nvDevice struct {
	handle       nvml.Device
	numFans      int
	touchedFans  map[int]bool
}

// NvidiaRepository drives every NVIDIA GPU visible to the management
// library.
type NvidiaRepository struct {
	mu          sync.Mutex
	devices     map[device.UID]*nvDevice
	initialized bool
}

// NewNvidia creates an uninitialized NVIDIA repository.
func NewNvidia() *NvidiaRepository {
	return &NvidiaRepository{devices: make(map[device.UID]*nvDevice)}
}

func (r *NvidiaRepository) Name() string { return "nvidia" }

func (r *NvidiaRepository) Initialize(ctx context.Context) ([]*device.Device, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		if ret == nvml.ERROR_LIBRARY_NOT_FOUND {
			return nil, nil
		}
		return nil, nvErr(ret)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = true

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, nvErr(ret)
	}

	var devices []*device.Device
	for i := 0; i < count; i++ {
		handle, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			log.Warn("nvidia: skipping index %d: %s", i, nvml.ErrorString(ret))
			continue
		}
		uuid, ret := handle.GetUUID()
		if ret != nvml.SUCCESS {
			log.Warn("nvidia: skipping index %d: no UUID", i)
			continue
		}
		name, _ := handle.GetName()

		numFans, ret := handle.GetNumFans()
		if ret != nvml.SUCCESS {
			numFans = 0
		}

		uid := device.NewUID(device.DeviceTypeGPU, "nvidia", uuid)
		info := map[string]*device.ChannelInfo{}
		for f := 0; f < numFans; f++ {
			chName := fmt.Sprintf("fan%d", f+1)
			info[chName] = &device.ChannelInfo{
				Label: chName,
				Speed: &device.SpeedOptions{MinDuty: 0, MaxDuty: 100, FixedEnabled: true, ProfilesEnabled: true, ManualProfilesEnabled: true},
			}
		}
		info["GPU"] = &device.ChannelInfo{Label: "GPU"}

		r.devices[uid] = &nvDevice{handle: handle, numFans: numFans, touchedFans: make(map[int]bool)}
		devices = append(devices, &device.Device{
			UID:       uid,
			Name:      name,
			Type:      device.DeviceTypeGPU,
			TypeIndex: i,
			Info:      info,
		})
	}
	return devices, nil
}

func (r *NvidiaRepository) Sample(ctx context.Context, d *device.Device) (device.DeviceStatus, error) {
	r.mu.Lock()
	nd, ok := r.devices[d.UID]
	r.mu.Unlock()
	if !ok {
		return device.DeviceStatus{}, repositories.ErrDriverError
	}

	status := device.DeviceStatus{}
	if temp, ret := nd.handle.GetTemperature(nvml.TEMPERATURE_GPU); ret == nvml.SUCCESS {
		status.Temps = append(status.Temps, device.TempStatus{Name: "GPU", Temp: float32(temp)})
	}
	if watts, ret := nd.handle.GetPowerUsage(); ret == nvml.SUCCESS {
		w := float32(watts) / 1000.0
		status.Channels = append(status.Channels, device.ChannelStatus{Name: "GPU", Watts: &w})
	}
	for f := 0; f < nd.numFans; f++ {
		chName := fmt.Sprintf("fan%d", f+1)
		ch := device.ChannelStatus{Name: chName}
		if speed, ret := nd.handle.GetFanSpeed_v2(f); ret == nvml.SUCCESS {
			duty := float32(speed)
			ch.Duty = &duty
		}
		status.Channels = append(status.Channels, ch)
	}
	return status, nil
}

func (r *NvidiaRepository) Apply(ctx context.Context, d *device.Device, channel string, s control.Setting) error {
	r.mu.Lock()
	nd, ok := r.devices[d.UID]
	r.mu.Unlock()
	if !ok {
		return repositories.ErrDriverError
	}
	var fanIdx int
	if _, err := fmt.Sscanf(channel, "fan%d", &fanIdx); err != nil {
		return repositories.ErrUnsupportedChannel
	}
	fanIdx--
	if fanIdx < 0 || fanIdx >= nd.numFans {
		return repositories.ErrUnsupportedChannel
	}

	if s.Kind == control.SettingKindNone {
		ret := nvml.DeviceSetDefaultFanSpeed_v2(nd.handle, fanIdx)
		return nvErr(ret)
	}
	if s.Duty < 0 || s.Duty > 100 {
		return repositories.ErrOutOfRange
	}
	if ret := nd.handle.SetFanControlPolicy(fanIdx, nvml.FAN_POLICY_MANUAL); ret != nvml.SUCCESS {
		return nvErr(ret)
	}
	nd.touchedFans[fanIdx] = true
	return nvErr(nd.handle.SetFanSpeed_v2(fanIdx, s.Duty))
}

func (r *NvidiaRepository) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, nd := range r.devices {
		for fanIdx := range nd.touchedFans {
			_ = nvml.DeviceSetDefaultFanSpeed_v2(nd.handle, fanIdx)
		}
	}
	if r.initialized {
		nvml.Shutdown()
	}
	return nil
}
