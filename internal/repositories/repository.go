// Package repositories defines the driver contract for one hardware
// class and the sentinel errors every driver's apply() reports
// through.
package repositories

import (
	"context"
	"errors"

	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
)

// Sentinel errors returned by Repository.Apply. Callers use
// errors.Is against these, never string matching.
var (
	ErrUnsupportedChannel = errors.New("repository: unsupported channel")
	ErrOutOfRange         = errors.New("repository: value out of range")
	ErrHardwareBusy       = errors.New("repository: hardware busy")
	ErrDriverError        = errors.New("repository: driver error")
)

// Repository is a driver for one hardware class.
type Repository interface {
	// Name identifies the repository for logging and /health reporting.
	Name() string

	// Initialize discovers devices, assigns UIDs, and computes each
	// device's ChannelInfo. Partial failure is tolerated: a device that
	// fails to probe is logged and skipped, never fatal to the whole
	// repository.
	Initialize(ctx context.Context) ([]*device.Device, error)

	// Sample reads all sensors and actuator readbacks for d. Implementations
	// must bound their own work (target <= 50ms) and return a status with
	// absent fields rather than poisoned defaults on partial failure.
	Sample(ctx context.Context, d *device.Device) (device.DeviceStatus, error)

	// Apply writes an actuator. A Setting with Kind == control.SettingKindNone
	// resets the channel to its driver-defined default.
	Apply(ctx context.Context, d *device.Device, channel string, s control.Setting) error

	// Shutdown restores the channel to a safe/automatic state per the
	// repository's own policy.
	Shutdown(ctx context.Context) error
}
