package statistics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/history"
)

func float32ptr(v float32) *float32 { return &v }

func TestDeviceCollectorCollectsNothingWhenStoreEmpty(t *testing.T) {
	// GIVEN
	store := history.NewStore(8)
	c := NewDeviceCollector(store)

	// THEN
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}

func TestDeviceCollectorExposesLatestTempsAndChannelReadbacks(t *testing.T) {
	// GIVEN
	store := history.NewStore(8)
	uid := device.UID("dev-1")
	store.Append(uid, device.DeviceStatus{
		Timestamp: time.Now(),
		Temps: []device.TempStatus{
			{Name: "core", Temp: 42},
			{Name: "ambient", Temp: 30},
		},
		Channels: []device.ChannelStatus{
			{Name: "fan1", Duty: float32ptr(50), Rpm: float32ptr(1200)},
		},
	})
	c := NewDeviceCollector(store)

	// THEN: 2 temps + duty + rpm = 4 metrics, no freq/watts since absent
	assert.Equal(t, 4, testutil.CollectAndCount(c))
}

func TestDeviceCollectorSkipsUnknownDevices(t *testing.T) {
	// GIVEN: a store that has never had Append called for any UID
	store := history.NewStore(8)
	c := NewDeviceCollector(store)

	// THEN
	assert.Empty(t, store.Known())
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}
