package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewUIDIsStableForTheSameInputs(t *testing.T) {
	a := NewUID(DeviceTypeHwmon, "nct6775", "platform", "0")
	b := NewUID(DeviceTypeHwmon, "nct6775", "platform", "0")
	assert.Equal(t, a, b)
}

func TestNewUIDDiffersWhenAnyPartDiffers(t *testing.T) {
	a := NewUID(DeviceTypeHwmon, "nct6775", "platform", "0")
	b := NewUID(DeviceTypeHwmon, "nct6775", "platform", "1")
	assert.NotEqual(t, a, b)
}

func TestNewUIDDiffersAcrossDeviceTypesWithIdenticalParts(t *testing.T) {
	a := NewUID(DeviceTypeHwmon, "x")
	b := NewUID(DeviceTypeCPU, "x")
	assert.NotEqual(t, a, b)
}

func TestChannelNamesReturnsEveryKey(t *testing.T) {
	d := &Device{Info: map[string]*ChannelInfo{
		"fan1":  {Label: "Fan 1"},
		"temp1": {Label: "Temp 1"},
	}}
	names := d.ChannelNames()
	assert.ElementsMatch(t, []string{"fan1", "temp1"}, names)
}

func TestStringIncludesNameTypeAndIndex(t *testing.T) {
	d := &Device{Name: "NZXT Kraken", Type: DeviceTypeLiquidctl, TypeIndex: 2}
	assert.Equal(t, "NZXT Kraken(Liquidctl)[2]", d.String())
}
