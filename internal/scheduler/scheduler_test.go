package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/senses3/coolercontrol/internal/alerts"
	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/functions"
	"github.com/senses3/coolercontrol/internal/history"
	"github.com/senses3/coolercontrol/internal/profiles"
)

type fakeRepo struct {
	name    string
	devices []*device.Device
	temps   map[device.UID]float32

	mu      sync.Mutex
	applied []appliedWrite
}

type appliedWrite struct {
	uid     device.UID
	channel string
	duty    int
}

func (r *fakeRepo) Name() string { return r.name }

func (r *fakeRepo) Initialize(ctx context.Context) ([]*device.Device, error) {
	return r.devices, nil
}

func (r *fakeRepo) Sample(ctx context.Context, d *device.Device) (device.DeviceStatus, error) {
	temp := r.temps[d.UID]
	return device.DeviceStatus{Temps: []device.TempStatus{{Name: "core", Temp: temp}}}, nil
}

func (r *fakeRepo) Apply(ctx context.Context, d *device.Device, channel string, s control.Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, appliedWrite{uid: d.UID, channel: channel, duty: s.Duty})
	return nil
}

func (r *fakeRepo) Shutdown(ctx context.Context) error { return nil }

func (r *fakeRepo) appliedWrites() []appliedWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]appliedWrite(nil), r.applied...)
}

// fakeBackoffRepo additionally implements reconnectBackoff, so sampleAll
// gates retries on ReconnectDelay() instead of sampling every tick.
type fakeBackoffRepo struct {
	fakeRepo

	bmu       sync.Mutex
	delay     time.Duration
	failNext  bool
	sampleLog []time.Time
}

func (r *fakeBackoffRepo) Sample(ctx context.Context, d *device.Device) (device.DeviceStatus, error) {
	r.bmu.Lock()
	r.sampleLog = append(r.sampleLog, time.Now())
	fail := r.failNext
	r.bmu.Unlock()
	if fail {
		return device.DeviceStatus{}, errors.New("disconnected")
	}
	return r.fakeRepo.Sample(ctx, d)
}

func (r *fakeBackoffRepo) ReconnectDelay() time.Duration { return r.delay }

func (r *fakeBackoffRepo) sampleCount() int {
	r.bmu.Lock()
	defer r.bmu.Unlock()
	return len(r.sampleLog)
}

func newTestScheduler() (*Scheduler, *fakeRepo) {
	return newTestSchedulerWithPollInterval(time.Second)
}

func newTestSchedulerWithPollInterval(interval time.Duration) (*Scheduler, *fakeRepo) {
	repo := &fakeRepo{
		name: "fake",
		devices: []*device.Device{
			{UID: device.UID("d1"), Name: "Fake Device", Type: device.DeviceTypeHwmon,
				Info: map[string]*device.ChannelInfo{"fan1": {}}},
		},
		temps: map[device.UID]float32{"d1": 50},
	}

	registry := device.NewRegistry()
	hist := history.NewStore(100)
	functionsEng := functions.NewEngine(10)
	profilesEng := profiles.NewEngine([]profiles.Profile{
		{UID: "graph1", Type: profiles.TypeGraph,
			TempSource:  &profiles.TempSource{DeviceUID: "d1", TempName: "core"},
			FunctionUID: functions.IdentityUID,
			SpeedProfile: []profiles.GraphPoint{{TempC: 30, Duty: 20}, {TempC: 70, Duty: 100}}},
	})
	settings := control.NewRegistry()
	alertsEng := alerts.NewEngine(nil)

	cfg := Config{PollInterval: interval, StaleLimit: 10, ShutdownGracePeriod: time.Second}
	sched := New(cfg, registry, hist, functionsEng, profilesEng, settings, alertsEng, nil, nil, nil, nil)
	return sched, repo
}

func TestRegisterRepositorySkipsBlacklistedDevices(t *testing.T) {
	// GIVEN
	sched, repo := newTestScheduler()
	blacklisted := func(uid device.UID) bool { return uid == device.UID("d1") }

	// WHEN
	err := sched.RegisterRepository(context.Background(), repo, blacklisted)

	// THEN
	require.NoError(t, err)
	_, ok := sched.registry.Get(device.UID("d1"))
	assert.False(t, ok)
}

func TestRegisterRepositoryRegistersNonBlacklistedDevices(t *testing.T) {
	// GIVEN
	sched, repo := newTestScheduler()

	// WHEN
	err := sched.RegisterRepository(context.Background(), repo, nil)

	// THEN
	require.NoError(t, err)
	_, ok := sched.registry.Get(device.UID("d1"))
	assert.True(t, ok)
}

func TestApplyManualWritesImmediatelyThroughOwningRepository(t *testing.T) {
	// GIVEN
	sched, repo := newTestScheduler()
	require.NoError(t, sched.RegisterRepository(context.Background(), repo, nil))

	// WHEN
	err := sched.ApplyManual(control.ChannelKey{DeviceUID: "d1", Channel: "fan1"}, 77)

	// THEN
	require.NoError(t, err)
	writes := repo.appliedWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, 77, writes[0].duty)
}

func TestApplyManualReturnsErrorForUnknownChannel(t *testing.T) {
	sched, _ := newTestScheduler()
	err := sched.ApplyManual(control.ChannelKey{DeviceUID: "ghost", Channel: "fan1"}, 50)
	assert.Error(t, err)
}

func TestTickWritesManualSettingOnFirstTick(t *testing.T) {
	// GIVEN
	sched, repo := newTestScheduler()
	require.NoError(t, sched.RegisterRepository(context.Background(), repo, nil))
	key := control.ChannelKey{DeviceUID: "d1", Channel: "fan1"}
	sched.settings.Ensure(key).Apply(control.ManualSetting(42))

	// WHEN
	err := sched.Tick(context.Background(), time.Now())

	// THEN
	require.NoError(t, err)
	writes := repo.appliedWrites()
	require.Len(t, writes, 1)
	assert.Equal(t, 42, writes[0].duty)
}

func TestTickEvaluatesProfileAndWritesInterpolatedDuty(t *testing.T) {
	// GIVEN
	sched, repo := newTestScheduler()
	require.NoError(t, sched.RegisterRepository(context.Background(), repo, nil))
	key := control.ChannelKey{DeviceUID: "d1", Channel: "fan1"}
	sched.settings.Ensure(key).Apply(control.ProfileSetting("graph1"))

	// WHEN: the first tick samples the 50C reading into history and
	// evaluates the profile against it in the same pass
	require.NoError(t, sched.Tick(context.Background(), time.Now()))
	// a second tick reaches the same duty, which write-on-change suppresses
	require.NoError(t, sched.Tick(context.Background(), time.Now()))

	// THEN: graph midpoint of 30->20, 70->100 at 50C is 60
	writes := repo.appliedWrites()
	require.NotEmpty(t, writes)
	assert.Equal(t, 60, writes[len(writes)-1].duty)
}

func TestTickSuppressesRepeatWriteOfUnchangedManualDuty(t *testing.T) {
	// GIVEN
	sched, repo := newTestScheduler()
	require.NoError(t, sched.RegisterRepository(context.Background(), repo, nil))
	key := control.ChannelKey{DeviceUID: "d1", Channel: "fan1"}
	sched.settings.Ensure(key).Apply(control.ManualSetting(42))
	require.NoError(t, sched.Tick(context.Background(), time.Now()))

	// WHEN
	require.NoError(t, sched.Tick(context.Background(), time.Now()))

	// THEN: still only the one write from the first tick
	assert.Len(t, repo.appliedWrites(), 1)
}

func TestTickForceReappliesAfterSuppressedStreakReachesThreshold(t *testing.T) {
	// GIVEN: a 30s poll interval sizes the safety latch's threshold at
	// exactly one suppressed tick (minStaleWriteWindow / 30s == 1).
	sched, repo := newTestSchedulerWithPollInterval(30 * time.Second)
	require.NoError(t, sched.RegisterRepository(context.Background(), repo, nil))
	key := control.ChannelKey{DeviceUID: "d1", Channel: "fan1"}
	sched.settings.Ensure(key).Apply(control.ManualSetting(42))

	require.NoError(t, sched.Tick(context.Background(), time.Now())) // writes (first apply)
	require.NoError(t, sched.Tick(context.Background(), time.Now())) // suppressed, streak -> 1

	// WHEN: the streak has now reached the threshold, so this tick must
	// force a reapply even though the duty hasn't changed.
	require.NoError(t, sched.Tick(context.Background(), time.Now()))

	// THEN
	writes := repo.appliedWrites()
	require.Len(t, writes, 2)
	assert.Equal(t, 42, writes[1].duty)
}

func TestSampleAllSkipsRepositoryWhileReconnectBackoffWindowIsOpen(t *testing.T) {
	// GIVEN: a repository that fails its first sample and reports a long
	// reconnection backoff window.
	repo := &fakeBackoffRepo{
		fakeRepo: fakeRepo{
			name: "backoff",
			devices: []*device.Device{
				{UID: device.UID("d1"), Name: "Backoff Device", Type: device.DeviceTypeHwmon,
					Info: map[string]*device.ChannelInfo{"fan1": {}}},
			},
		},
		failNext: true,
		delay:    time.Hour,
	}
	sched, _ := newTestScheduler()
	require.NoError(t, sched.RegisterRepository(context.Background(), repo, nil))

	start := time.Now()

	// WHEN: the first tick samples (and fails, opening the backoff window)
	require.NoError(t, sched.Tick(context.Background(), start))
	// a second tick, still inside the backoff window, must not sample again
	require.NoError(t, sched.Tick(context.Background(), start.Add(time.Second)))

	// THEN
	assert.Equal(t, 1, repo.sampleCount())

	// AND: once the window has elapsed and the device is reachable again,
	// sampling resumes.
	repo.bmu.Lock()
	repo.failNext = false
	repo.bmu.Unlock()
	require.NoError(t, sched.Tick(context.Background(), start.Add(2*time.Hour)))
	assert.Equal(t, 2, repo.sampleCount())
}
