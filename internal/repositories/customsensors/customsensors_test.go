package customsensors

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senses3/coolercontrol/internal/control"
)

func TestInitializeReturnsNoDevicesWhenUnconfigured(t *testing.T) {
	r := New(Config{})
	devices, err := r.Initialize(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestInitializeProducesOneDeviceCarryingEveryChannel(t *testing.T) {
	// GIVEN
	cfg := Config{
		Files: []FileSensorConfig{{ChannelName: "ambient", Path: "/tmp/ambient"}},
		Mixes: []MixSensorConfig{{ChannelName: "combined", Op: MixAvg, Members: []MixMember{{ChannelName: "ambient"}}}},
	}
	r := New(cfg)

	// WHEN
	devices, err := r.Initialize(context.Background())

	// THEN
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Contains(t, devices[0].Info, "ambient")
	assert.Contains(t, devices[0].Info, "combined")
}

func writeTemp(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "sensor")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestSampleReadsFileSensorValue(t *testing.T) {
	// GIVEN
	path := writeTemp(t, "42.5\n")
	cfg := Config{Files: []FileSensorConfig{{ChannelName: "ambient", Path: path}}}
	r := New(cfg)
	devices, err := r.Initialize(context.Background())
	require.NoError(t, err)

	// WHEN
	status, err := r.Sample(context.Background(), devices[0])

	// THEN
	require.NoError(t, err)
	temp, ok := status.TempByName("ambient")
	require.True(t, ok)
	assert.Equal(t, float32(42.5), temp)
}

func TestSampleSkipsFileSensorOnReadError(t *testing.T) {
	// GIVEN
	cfg := Config{Files: []FileSensorConfig{{ChannelName: "ambient", Path: "/nonexistent/path"}}}
	r := New(cfg)
	devices, err := r.Initialize(context.Background())
	require.NoError(t, err)

	// WHEN
	status, err := r.Sample(context.Background(), devices[0])

	// THEN
	require.NoError(t, err)
	_, ok := status.TempByName("ambient")
	assert.False(t, ok)
}

func TestSampleComputesMixAverageOfPresentMembers(t *testing.T) {
	// GIVEN
	path1 := writeTemp(t, "20")
	path2 := writeTemp(t, "40")
	cfg := Config{
		Files: []FileSensorConfig{{ChannelName: "a", Path: path1}, {ChannelName: "b", Path: path2}},
		Mixes: []MixSensorConfig{{ChannelName: "mix", Op: MixAvg, Members: []MixMember{{ChannelName: "a"}, {ChannelName: "b"}}}},
	}
	r := New(cfg)
	devices, err := r.Initialize(context.Background())
	require.NoError(t, err)

	// WHEN
	status, err := r.Sample(context.Background(), devices[0])

	// THEN
	require.NoError(t, err)
	mix, ok := status.TempByName("mix")
	require.True(t, ok)
	assert.Equal(t, float32(30), mix)
}

func TestSampleMixSkipsWhenNoMembersPresent(t *testing.T) {
	// GIVEN
	cfg := Config{
		Mixes: []MixSensorConfig{{ChannelName: "mix", Op: MixAvg, Members: []MixMember{{ChannelName: "missing"}}}},
	}
	r := New(cfg)
	devices, err := r.Initialize(context.Background())
	require.NoError(t, err)

	// WHEN
	status, err := r.Sample(context.Background(), devices[0])

	// THEN
	require.NoError(t, err)
	_, ok := status.TempByName("mix")
	assert.False(t, ok)
}

func TestSampleComputesWeightedAverage(t *testing.T) {
	// GIVEN
	path1 := writeTemp(t, "10")
	path2 := writeTemp(t, "30")
	cfg := Config{
		Files: []FileSensorConfig{{ChannelName: "a", Path: path1}, {ChannelName: "b", Path: path2}},
		Mixes: []MixSensorConfig{{ChannelName: "mix", Op: MixWeightedAvg, Members: []MixMember{
			{ChannelName: "a", Weight: 3},
			{ChannelName: "b", Weight: 1},
		}}},
	}
	r := New(cfg)
	devices, err := r.Initialize(context.Background())
	require.NoError(t, err)

	// WHEN
	status, err := r.Sample(context.Background(), devices[0])

	// THEN: (10*3 + 30*1) / 4 = 15
	require.NoError(t, err)
	mix, ok := status.TempByName("mix")
	require.True(t, ok)
	assert.Equal(t, float32(15), mix)
}

func TestApplyAlwaysFails(t *testing.T) {
	r := New(Config{Files: []FileSensorConfig{{ChannelName: "a", Path: "/tmp/a"}}})
	devices, err := r.Initialize(context.Background())
	require.NoError(t, err)
	err = r.Apply(context.Background(), devices[0], "a", control.NoneSetting())
	assert.Error(t, err)
}
