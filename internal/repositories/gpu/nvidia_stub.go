//go:build disable_nvidia

package gpu

import (
	"context"

	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
)

// NvidiaRepository is a no-op stand-in for builds with --disable-nvidia
// (cgo-free, no go-nvml linkage).
type NvidiaRepository struct{}

// NewNvidia returns a repository that reports zero devices.
func NewNvidia() *NvidiaRepository { return &NvidiaRepository{} }

func (r *NvidiaRepository) Name() string { return "nvidia" }

func (r *NvidiaRepository) Initialize(ctx context.Context) ([]*device.Device, error) {
	return nil, nil
}

func (r *NvidiaRepository) Sample(ctx context.Context, d *device.Device) (device.DeviceStatus, error) {
	return device.DeviceStatus{}, nil
}

func (r *NvidiaRepository) Apply(ctx context.Context, d *device.Device, channel string, s control.Setting) error {
	return nil
}

func (r *NvidiaRepository) Shutdown(ctx context.Context) error { return nil }
