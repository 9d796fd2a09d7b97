// Package scheduler drives the tick pipeline: sample every
// repository, append to history, run function->profile evaluation for
// every live Profile setting, apply actuator writes, evaluate alerts,
// and publish the composite status plus any alert/mode events.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/run"
	"golang.org/x/sync/errgroup"

	"github.com/senses3/coolercontrol/internal/alerts"
	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/events"
	"github.com/senses3/coolercontrol/internal/functions"
	"github.com/senses3/coolercontrol/internal/health"
	"github.com/senses3/coolercontrol/internal/history"
	"github.com/senses3/coolercontrol/internal/log"
	"github.com/senses3/coolercontrol/internal/profiles"
	"github.com/senses3/coolercontrol/internal/repositories"
	"github.com/senses3/coolercontrol/internal/statistics"
)

const (
	// sampleTimeout bounds one repository's Sample call.
	sampleTimeout = 500 * time.Millisecond
	// sampleConcurrency / applyConcurrency bound the worker pool used
	// for per-device sampling and actuator writes - a small pool so
	// slow sysfs reads don't block the tick deadline.
	sampleConcurrency = 8
	applyConcurrency  = 8
	// sampleWarnLogInterval throttles the sample-failure log line to
	// once per device per minute, independent of the health tracker's
	// own grace window.
	sampleWarnLogInterval = time.Minute
	// minStaleWriteWindow is the floor used to size the write-staleness
	// safety latch: a channel whose candidate duty keeps equalling the
	// last applied duty is force-reapplied at least this often even
	// though write-on-change would otherwise suppress it forever.
	minStaleWriteWindow = 30 * time.Second
)

// Config bundles the scheduler's tunables, sourced from General config.
type Config struct {
	PollInterval        time.Duration
	StaleLimit          int
	ApplyOnBoot         bool
	StartupDelay        time.Duration
	ShutdownGracePeriod time.Duration
}

// boundRepository pairs a Repository with the devices it produced, so
// Apply/Shutdown calls can be routed back to the owning driver without
// the Device record itself carrying a back-pointer - no back-pointers;
// all relations via IDs.
type boundRepository struct {
	repo    repositories.Repository
	devices []device.UID
}

// Scheduler is the tick pipeline's owner.
type Scheduler struct {
	cfg Config

	registry  *device.Registry
	history   *history.Store
	functions *functions.Engine
	profiles  *profiles.Engine
	settings  *control.Registry
	alertsEng *alerts.Engine

	statusBus *events.Topic[events.StatusResponse]
	alertBus  *events.Topic[events.AlertLog]
	metrics   *statistics.TickMetrics
	health    *health.Tracker

	// staleWriteTicks is the consecutive-suppressed-writes threshold
	// past which Tick force-reapplies a channel's candidate duty.
	staleWriteTicks int

	mu             sync.RWMutex
	repoByUID      map[device.UID]repositories.Repository
	boundRepos     []*boundRepository
	functionsByUID map[string]*functions.Function
	lastSampleWarn map[device.UID]time.Time

	retryMu   sync.Mutex
	nextRetry map[repositories.Repository]time.Time
}

// reconnectBackoff is implemented by repositories that maintain their own
// exponential reconnection policy rather than relying on the
// per-call sample timeout every other repository gets. After a Sample
// error sampleAll consults it to skip that repository until the
// reported delay has elapsed.
type reconnectBackoff interface {
	ReconnectDelay() time.Duration
}

// New creates a scheduler over the given component wiring. profilesEng
// must already have been constructed with the full set of defined
// Profiles (profiles.NewEngine); functionsEng similarly owns Function
// state across ticks. tracker and alertBus may be nil, in which case
// health reporting and synthetic alert publishing are skipped.
func New(cfg Config, registry *device.Registry, hist *history.Store, functionsEng *functions.Engine, profilesEng *profiles.Engine, settings *control.Registry, alertsEng *alerts.Engine, statusBus *events.Topic[events.StatusResponse], alertBus *events.Topic[events.AlertLog], metrics *statistics.TickMetrics, tracker *health.Tracker) *Scheduler {
	return &Scheduler{
		cfg:             cfg,
		registry:        registry,
		history:         hist,
		functions:       functionsEng,
		profiles:        profilesEng,
		settings:        settings,
		alertsEng:       alertsEng,
		statusBus:       statusBus,
		alertBus:        alertBus,
		metrics:         metrics,
		health:          tracker,
		staleWriteTicks: staleWriteThreshold(cfg.PollInterval),
		repoByUID:       make(map[device.UID]repositories.Repository),
		functionsByUID:  map[string]*functions.Function{functions.IdentityUID: {UID: functions.IdentityUID, Type: functions.TypeIdentity}},
		lastSampleWarn:  make(map[device.UID]time.Time),
		nextRetry:       make(map[repositories.Repository]time.Time),
	}
}

// staleWriteThreshold converts minStaleWriteWindow into a tick count for
// the configured poll interval, floored at one tick.
func staleWriteThreshold(pollInterval time.Duration) int {
	if pollInterval <= 0 {
		return 30
	}
	ticks := int(minStaleWriteWindow / pollInterval)
	if ticks < 1 {
		ticks = 1
	}
	return ticks
}

// LoadFunctions replaces the set of defined functions the scheduler
// can bind a Profile's FunctionUID to, typically from the config store
// at startup. The built-in Identity function ("0") is always present.
func (s *Scheduler) LoadFunctions(all []functions.Function) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functionsByUID = map[string]*functions.Function{functions.IdentityUID: {UID: functions.IdentityUID, Type: functions.TypeIdentity}}
	for i := range all {
		fn := all[i]
		s.functionsByUID[fn.UID] = &fn
	}
}

// ApplyManual performs an immediate actuator write for key, bypassing
// the tick pipeline. It implements modes.Applier and is also used by
// the API's settings endpoint to give a manual duty change visible
// effect before the next tick rather than only on it.
func (s *Scheduler) ApplyManual(key control.ChannelKey, duty int) error {
	uid := device.UID(key.DeviceUID)
	s.mu.RLock()
	repo, ok := s.repoByUID[uid]
	d, devOk := s.registry.Get(uid)
	s.mu.RUnlock()
	if !ok || !devOk {
		return fmt.Errorf("scheduler: unknown channel %s", key.String())
	}
	ctx, cancel := context.WithTimeout(context.Background(), sampleTimeout)
	defer cancel()
	return repo.Apply(ctx, d, key.Channel, control.ManualSetting(duty))
}

// RegisterRepository initializes repo, registers its devices in the
// shared registry, and records which repository owns which UIDs for
// later Apply/Shutdown routing. blacklisted, if non-nil, is consulted
// per device UID against the device blacklist; a blacklisted device
// is left out of the registry entirely; it is never sampled, applied
// to, or exposed over the API.
func (s *Scheduler) RegisterRepository(ctx context.Context, repo repositories.Repository, blacklisted func(device.UID) bool) error {
	devices, err := repo.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", repo.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bound := &boundRepository{repo: repo}
	skipped := 0
	for _, d := range devices {
		if blacklisted != nil && blacklisted(d.UID) {
			skipped++
			continue
		}
		s.registry.Put(d)
		s.repoByUID[d.UID] = repo
		bound.devices = append(bound.devices, d.UID)
	}
	s.boundRepos = append(s.boundRepos, bound)
	log.Info("scheduler: %s registered %d device(s), %d blacklisted", repo.Name(), len(bound.devices), skipped)
	return nil
}

// Run starts the cooperative tick loop and blocks until ctx is
// cancelled, at which point in-flight work completes and every bound
// repository's Shutdown runs with the configured grace period.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.ApplyOnBoot {
		time.Sleep(s.cfg.StartupDelay)
		s.settings.ForceReapplyAll()
	}

	var g run.Group
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			ticker := time.NewTicker(s.cfg.PollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case now := <-ticker.C:
					if err := s.Tick(ctx, now); err != nil {
						log.Error("scheduler: tick failed: %v", err)
					}
				}
			}
		}, func(error) { cancel() })
	}
	{
		stop := make(chan struct{})
		g.Add(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-stop:
				return nil
			}
		}, func(error) { close(stop) })
	}

	err := g.Run()
	s.shutdown()
	return err
}

func (s *Scheduler) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
	defer cancel()

	s.mu.RLock()
	repos := append([]*boundRepository(nil), s.boundRepos...)
	s.mu.RUnlock()

	for _, b := range repos {
		if err := b.repo.Shutdown(ctx); err != nil {
			log.Warn("scheduler: %s shutdown error: %v", b.repo.Name(), err)
		}
	}
}

// Tick runs one full iteration of the pipeline.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	start := time.Now()
	if s.metrics != nil {
		defer func() { s.metrics.ObserveTick(time.Since(start)) }()
	}

	devices := s.registry.All()

	statuses := s.sampleAll(ctx, devices, now)

	for uid, status := range statuses {
		s.history.Append(uid, status)
	}

	var writes []pendingWrite

	for _, c := range s.settings.All() {
		key := c.Key()
		setting := c.Setting()

		if c.SuppressedStreak() >= s.staleWriteTicks {
			c.ForceReapply()
		}

		var candidate control.Candidate
		if setting.Kind == control.SettingKindProfile {
			profileUID := setting.ProfileUID
			duty, skip := s.evaluateProfile(key, profileUID)
			if skip {
				continue
			}
			candidate = c.Tick(duty)
		} else {
			candidate = c.Tick(nil)
		}

		if candidate.ShouldWrite {
			writes = append(writes, pendingWrite{uid: device.UID(key.DeviceUID), channel: key.Channel, duty: candidate.Duty})
		}
	}

	s.applyAll(ctx, writes)

	if s.alertsEng != nil {
		s.alertsEng.Tick(alertResolver{s}, now)
	}

	if s.statusBus != nil {
		resp := events.StatusResponse{}
		for _, d := range devices {
			status, ok := s.history.Latest(d.UID)
			if !ok {
				continue
			}
			resp.Devices = append(resp.Devices, events.DeviceStatusDTO{UID: string(d.UID), Status: status})
		}
		s.statusBus.Publish(resp)
	}
	return nil
}

func (s *Scheduler) sampleAll(ctx context.Context, devices []*device.Device, now time.Time) map[device.UID]device.DeviceStatus {
	results := make(map[device.UID]device.DeviceStatus, len(devices))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sampleConcurrency)

	for _, d := range devices {
		d := d
		s.mu.RLock()
		repo, ok := s.repoByUID[d.UID]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		if _, ok := repo.(reconnectBackoff); ok && !s.readyToRetry(repo, now) {
			continue
		}
		g.Go(func() error {
			sampleCtx, cancel := context.WithTimeout(gctx, sampleTimeout)
			defer cancel()
			status, err := repo.Sample(sampleCtx, d)
			if err != nil {
				s.logSampleFailure(d.UID, err)
				if s.metrics != nil {
					s.metrics.RecordSampleFailure(string(d.UID))
				}
				if s.health != nil {
					s.health.RecordWarning(healthSourceSample(d.UID), err.Error(), now)
				}
				if rb, ok := repo.(reconnectBackoff); ok {
					s.scheduleRetry(repo, now.Add(rb.ReconnectDelay()))
				}
				return nil
			}
			if _, ok := repo.(reconnectBackoff); ok {
				s.clearRetry(repo)
			}
			if s.health != nil {
				s.health.Clear(healthSourceSample(d.UID))
			}
			status.Timestamp = now
			mu.Lock()
			results[d.UID] = status
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// readyToRetry reports whether repo's reconnection backoff has elapsed
// as of now. A repository never marked as backing off is always ready.
func (s *Scheduler) readyToRetry(repo repositories.Repository, now time.Time) bool {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	until, pending := s.nextRetry[repo]
	return !pending || !now.Before(until)
}

func (s *Scheduler) scheduleRetry(repo repositories.Repository, until time.Time) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	s.nextRetry[repo] = until
}

func (s *Scheduler) clearRetry(repo repositories.Repository) {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()
	delete(s.nextRetry, repo)
}

func healthSourceSample(uid device.UID) string { return "sample:" + string(uid) }
func healthSourceApply(uid device.UID, channel string) string {
	return "apply:" + string(uid) + "/" + channel
}

// logSampleFailure rate-limits the sample-failure log line to once per
// device per minute, independent of how often the tick itself
// runs or how many ticks in a row the device keeps failing.
func (s *Scheduler) logSampleFailure(uid device.UID, err error) {
	now := time.Now()
	s.mu.Lock()
	last, logged := s.lastSampleWarn[uid]
	due := !logged || now.Sub(last) >= sampleWarnLogInterval
	if due {
		s.lastSampleWarn[uid] = now
	}
	s.mu.Unlock()
	if due {
		log.Warn("scheduler: sample %s failed: %v", uid, err)
	}
}

// pendingWrite is one actuator write decided by the setting controllers
// during a tick, queued for bounded-concurrency application.
type pendingWrite struct {
	uid     device.UID
	channel string
	duty    int
}

func (s *Scheduler) applyAll(ctx context.Context, writes []pendingWrite) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(applyConcurrency)

	for _, w := range writes {
		w := w
		s.mu.RLock()
		repo, ok := s.repoByUID[w.uid]
		d, devOk := s.registry.Get(w.uid)
		s.mu.RUnlock()
		if !ok || !devOk {
			continue
		}
		g.Go(func() error {
			setting := control.ManualSetting(w.duty)
			err := repo.Apply(gctx, d, w.channel, setting)
			if err != nil {
				// one immediate retry before treating this as a failed
				// tick for the channel.
				err = repo.Apply(gctx, d, w.channel, setting)
			}
			if err != nil {
				log.Error("scheduler: apply %s/%s failed: %v", w.uid, w.channel, err)
				if s.metrics != nil {
					s.metrics.RecordApplyFailure(string(w.uid), w.channel)
				}
				now := time.Now()
				source := healthSourceApply(w.uid, w.channel)
				if s.health != nil {
					s.health.RecordError(source, err.Error(), now)
				}
				if s.alertBus != nil {
					s.alertBus.Publish(events.AlertLog{
						AlertUID:  "system:" + source,
						State:     events.AlertActive,
						Message:   fmt.Sprintf("apply failed for %s/%s: %v", w.uid, w.channel, err),
						Timestamp: now,
					})
				}
				return nil
			}
			if s.health != nil {
				s.health.Clear(healthSourceApply(w.uid, w.channel))
			}
			key := control.ChannelKey{DeviceUID: string(w.uid), Channel: w.channel}
			if c, ok := s.settings.Get(key); ok {
				c.ConfirmApplied(w.duty)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// evaluateProfile runs the function->profile pipeline for a
// Profile-kind setting on key, returning (nil, false) when the result
// should be treated as Unset for this tick (if None, act as Unset).
func (s *Scheduler) evaluateProfile(key control.ChannelKey, profileUID string) (*int, bool) {
	resolver := &channelTempResolver{sched: s, channel: key.Channel}
	p, ok := s.profiles.Lookup(profileUID)
	if !ok {
		return nil, true
	}
	duty, err := s.profiles.Evaluate(p, resolver)
	if err != nil {
		log.Error("scheduler: profile %s evaluation failed: %v", profileUID, err)
		return nil, true
	}
	if duty == nil {
		return nil, false
	}
	return duty, false
}

// channelTempResolver adapts the function engine to profiles.TempResolver
// for one target channel, so function state stays correctly keyed by
// (function UID, channel) even when several channels share a Profile.
type channelTempResolver struct {
	sched   *Scheduler
	channel string
}

func (r *channelTempResolver) ProcessedTemp(p *profiles.Profile) (float32, bool) {
	if p.TempSource == nil {
		return 0, false
	}
	raw, ok := r.sched.history.TempByName(device.UID(p.TempSource.DeviceUID), p.TempSource.TempName)
	var rawPtr *float32
	if ok {
		rawPtr = &raw
	}

	r.sched.mu.RLock()
	fn, fnOK := r.sched.functionsByUID[p.FunctionUID]
	r.sched.mu.RUnlock()
	if !fnOK {
		if !ok {
			return 0, false
		}
		return raw, true
	}

	result := r.sched.functions.Evaluate(fn, r.channel, rawPtr, r.sched.pollRateHz())
	if result.Skip {
		return 0, false
	}
	return result.Value, true
}

func (s *Scheduler) pollRateHz() float64 {
	if s.cfg.PollInterval <= 0 {
		return 1.0
	}
	return float64(time.Second) / float64(s.cfg.PollInterval)
}

// alertResolver adapts the history store to alerts.ValueResolver.
type alertResolver struct{ sched *Scheduler }

func (r alertResolver) MetricValue(a *alerts.Alert) (float32, bool) {
	uid := device.UID(a.DeviceUID)
	switch a.Metric {
	case alerts.MetricTemp:
		return r.sched.history.TempByName(uid, a.ChannelName)
	case alerts.MetricDuty, alerts.MetricRpm, alerts.MetricFreq, alerts.MetricWatts:
		ch, ok := r.sched.history.ChannelByName(uid, a.ChannelName)
		if !ok {
			return 0, false
		}
		switch a.Metric {
		case alerts.MetricDuty:
			if ch.Duty == nil {
				return 0, false
			}
			return *ch.Duty, true
		case alerts.MetricRpm:
			if ch.Rpm == nil {
				return 0, false
			}
			return *ch.Rpm, true
		case alerts.MetricFreq:
			if ch.Freq == nil {
				return 0, false
			}
			return *ch.Freq, true
		default:
			if ch.Watts == nil {
				return 0, false
			}
			return *ch.Watts, true
		}
	default:
		return 0, false
	}
}
