// Package liquidctl implements the repository that talks to the
// sibling liquidctl helper process over a local HTTP socket. The
// daemon is authoritative for policy; the helper owns USB transport.
package liquidctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/log"
	"github.com/senses3/coolercontrol/internal/repositories"
)

// deviceDTO is the helper's JSON shape for one enumerated device.
type deviceDTO struct {
	ID              string            `json:"id"`
	Description     string            `json:"description"`
	Serial          string            `json:"serial_number,omitempty"`
	FirmwareVersion string            `json:"firmware_version,omitempty"`
	Unknown690      bool              `json:"unknown_asetek_690,omitempty"`
	Channels        map[string]bool   `json:"channels"`
}

type statusDTO struct {
	Temps    map[string]float32 `json:"temps"`
	Duties   map[string]float32 `json:"duties"`
	Rpms     map[string]float32 `json:"rpms"`
}

type applyRequest struct {
	Channel    string `json:"channel"`
	Kind       string `json:"kind"`
	Duty       int    `json:"duty,omitempty"`
}

// backoff implements the reconnection policy: connection loss retries
// with exponential backoff (min 500ms, max 30s).
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff { return &backoff{current: 500 * time.Millisecond} }

func (b *backoff) next() time.Duration {
	d := b.current
	b.current *= 2
	if b.current > 30*time.Second {
		b.current = 30 * time.Second
	}
	return d
}

func (b *backoff) reset() { b.current = 500 * time.Millisecond }

// Repository talks to the liquidctl helper over baseURL.
type Repository struct {
	mu         sync.Mutex
	client     *http.Client
	baseURL    string
	devices    map[device.UID]string // UID -> helper device id
	connected  bool
	backoff    *backoff
}

// New creates a repository bound to the helper's base URL, e.g.
// "http://127.0.0.1:8911".
func New(baseURL string) *Repository {
	return &Repository{
		client:  &http.Client{Timeout: 2 * time.Second},
		baseURL: baseURL,
		devices: make(map[device.UID]string),
		backoff: newBackoff(),
	}
}

func (r *Repository) Name() string { return "liquidctl" }

func (r *Repository) Initialize(ctx context.Context) ([]*device.Device, error) {
	var dtos []deviceDTO
	if err := r.getJSON(ctx, "/devices", &dtos); err != nil {
		log.Warn("liquidctl: helper unreachable at startup: %v", err)
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = true
	r.backoff.reset()

	var devices []*device.Device
	for i, dto := range dtos {
		uid := device.NewUID(device.DeviceTypeLiquidctl, dto.Description, dto.Serial)
		r.devices[uid] = dto.ID

		info := make(map[string]*device.ChannelInfo, len(dto.Channels))
		for ch := range dto.Channels {
			info[ch] = &device.ChannelInfo{
				Label: ch,
				Speed: &device.SpeedOptions{MinDuty: 0, MaxDuty: 100, FixedEnabled: true, ProfilesEnabled: true, ManualProfilesEnabled: true},
			}
		}

		devices = append(devices, &device.Device{
			UID:       uid,
			Name:      dto.Description,
			Type:      device.DeviceTypeLiquidctl,
			TypeIndex: i,
			Info:      info,
			LcInfo: &device.LcInfo{
				DriverType:       "liquidctl",
				FirmwareVersion:  dto.FirmwareVersion,
				Unknown690Asetek: dto.Unknown690,
				Serial:           dto.Serial,
			},
		})
	}
	return devices, nil
}

func (r *Repository) Sample(ctx context.Context, d *device.Device) (device.DeviceStatus, error) {
	r.mu.Lock()
	id, ok := r.devices[d.UID]
	r.mu.Unlock()
	if !ok {
		return device.DeviceStatus{}, repositories.ErrDriverError
	}

	var dto statusDTO
	if err := r.getJSON(ctx, "/devices/"+id+"/status", &dto); err != nil {
		r.noteDisconnect()
		return device.DeviceStatus{}, nil
	}
	r.noteConnect()

	status := device.DeviceStatus{}
	for name, v := range dto.Temps {
		status.Temps = append(status.Temps, device.TempStatus{Name: name, Temp: v})
	}
	for name, duty := range dto.Duties {
		d := duty
		ch := device.ChannelStatus{Name: name, Duty: &d}
		if rpm, ok := dto.Rpms[name]; ok {
			r := rpm
			ch.Rpm = &r
		}
		status.Channels = append(status.Channels, ch)
	}
	return status, nil
}

func (r *Repository) Apply(ctx context.Context, d *device.Device, channel string, s control.Setting) error {
	r.mu.Lock()
	id, ok := r.devices[d.UID]
	r.mu.Unlock()
	if !ok {
		return repositories.ErrDriverError
	}
	if s.Duty < 0 || s.Duty > 100 {
		return repositories.ErrOutOfRange
	}

	kind := "manual"
	if s.Kind == control.SettingKindNone {
		kind = "default"
	}
	body := applyRequest{Channel: channel, Kind: kind, Duty: s.Duty}
	if err := r.postJSON(ctx, "/devices/"+id+"/apply", body); err != nil {
		r.noteDisconnect()
		if err == errHelperBadRequest {
			return repositories.ErrUnsupportedChannel
		}
		return fmt.Errorf("%w: %v", repositories.ErrDriverError, err)
	}
	r.noteConnect()
	return nil
}

func (r *Repository) Shutdown(ctx context.Context) error { return nil }

func (r *Repository) noteDisconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected {
		log.Warn("liquidctl: helper connection lost, retrying with backoff")
	}
	r.connected = false
}

func (r *Repository) noteConnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connected {
		log.Info("liquidctl: helper connection restored")
	}
	r.connected = true
	r.backoff.reset()
}

// ReconnectDelay reports how long the scheduler should wait before
// retrying the helper after a failed call.
func (r *Repository) ReconnectDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backoff.next()
}

var errHelperBadRequest = fmt.Errorf("liquidctl: helper rejected request")

func (r *Repository) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helper returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (r *Repository) postJSON(ctx context.Context, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusBadRequest {
		return errHelperBadRequest
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helper returned status %d", resp.StatusCode)
	}
	return nil
}
