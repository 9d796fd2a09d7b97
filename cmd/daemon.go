package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/spf13/cobra"

	"github.com/senses3/coolercontrol/internal/alerts"
	"github.com/senses3/coolercontrol/internal/api"
	"github.com/senses3/coolercontrol/internal/buildinfo"
	"github.com/senses3/coolercontrol/internal/config"
	"github.com/senses3/coolercontrol/internal/control"
	"github.com/senses3/coolercontrol/internal/device"
	"github.com/senses3/coolercontrol/internal/events"
	"github.com/senses3/coolercontrol/internal/functions"
	"github.com/senses3/coolercontrol/internal/health"
	"github.com/senses3/coolercontrol/internal/history"
	"github.com/senses3/coolercontrol/internal/log"
	"github.com/senses3/coolercontrol/internal/modes"
	"github.com/senses3/coolercontrol/internal/persistence"
	"github.com/senses3/coolercontrol/internal/pidfile"
	"github.com/senses3/coolercontrol/internal/profiles"
	"github.com/senses3/coolercontrol/internal/repositories"
	"github.com/senses3/coolercontrol/internal/repositories/cpu"
	"github.com/senses3/coolercontrol/internal/repositories/customsensors"
	"github.com/senses3/coolercontrol/internal/repositories/gpu"
	"github.com/senses3/coolercontrol/internal/repositories/hwmon"
	"github.com/senses3/coolercontrol/internal/repositories/liquidctl"
	"github.com/senses3/coolercontrol/internal/repositories/thinkpad"
	"github.com/senses3/coolercontrol/internal/scheduler"
	"github.com/senses3/coolercontrol/internal/statistics"
)

const (
	credentialsPath              = "/etc/coolercontrol/passwd"
	pidfilePath                  = "/run/coolercontrold.pid"
	cacheDBPath                  = "/var/lib/coolercontrol/cache.db"
	defaultHTTPPort              = 11987
	defaultHTTPHost              = "127.0.0.1"
	liquidctlHelperURL           = "http://127.0.0.1:11988"
	shutdownTimeout              = 5 * time.Second
	longestHistoryWindowSeconds  = 3600
)

// runDaemon wires every component built under internal/ into one
// running process: acquire the single-instance lock, load
// config/credentials, build the component graph, register hardware
// repositories, then hand a tick scheduler, an HTTP server, and a
// signal handler to one oklog/run.Group.
func runDaemon(cmd *cobra.Command) error {
	pf, err := pidfile.Acquire(pidfilePath)
	if err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	cfgStore := config.NewStore(flags.configPath)
	cfg, err := cfgStore.Load()
	if err != nil {
		log.Fatal("daemon: loading config: %v", err)
	}

	logSink := events.NewTopic[events.LogEntry]()
	log.SetSink(logSink)
	if err := log.Init(log.Level(flags.logLevel), flags.logLevel == "debug"); err != nil {
		return err
	}
	defer log.Sync()

	build := buildinfo.Get()
	log.Info("coolercontrold %s starting", build.String())

	overlay, err := config.LoadOverlay(cmd.PersistentFlags())
	if err != nil {
		log.Warn("daemon: loading env/flag overlay: %v", err)
	}
	host, port := resolveBindAddress(overlay)

	credStore := config.NewCredentialStore(credentialsPath)
	creds, bootstrapPassword, err := credStore.LoadOrBootstrap()
	if err != nil {
		log.Fatal("daemon: loading credentials: %v", err)
	}
	if bootstrapPassword != "" {
		log.Info("daemon: bootstrapped admin password (change it via POST /passwd): %s", bootstrapPassword)
	}

	cache := persistence.New(cacheDBPath)
	if err := cache.Init(); err != nil {
		log.Fatal("daemon: initializing cache: %v", err)
	}
	dutyCache, err := cache.LoadDutyCache()
	if err != nil {
		log.Warn("daemon: loading duty cache: %v", err)
		dutyCache = map[control.ChannelKey]int{}
	}

	registry := device.NewRegistry()
	hist := history.NewStore(history.Capacity(cfg.General.PollRate, longestHistoryWindowSeconds))
	settings := control.NewRegistry()
	functionsEng := functions.NewEngine(cfg.General.FunctionStaleLimit)
	functionDefs := functions.NewDefs()
	functionDefs.Load(cfg.Functions)
	profilesEng := profiles.NewEngine(cfg.Profiles)

	statusBus := events.NewTopic[events.StatusResponse]()
	modeBus := events.NewTopic[events.ModeActivated]()
	alertBus := events.NewTopic[events.AlertLog]()

	alertsEng := alerts.NewEngine(alertBus)
	alertsEng.Load(cfg.Alerts)

	healthTracker := health.NewTracker(time.Duration(cfg.General.HealthErrorGracePeriodSeconds) * time.Second)

	metrics := statistics.NewTickMetrics()
	statistics.Register(statistics.NewDeviceCollector(hist))

	schedCfg := scheduler.Config{
		PollInterval:        cfg.General.PollInterval(),
		StaleLimit:          cfg.General.FunctionStaleLimit,
		ApplyOnBoot:         cfg.General.ApplyOnBoot && !flags.noInit,
		StartupDelay:        time.Duration(cfg.General.StartupDelaySeconds) * time.Second,
		ShutdownGracePeriod: shutdownTimeout,
	}
	sched := scheduler.New(schedCfg, registry, hist, functionsEng, profilesEng, settings, alertsEng, statusBus, alertBus, metrics, healthTracker)
	sched.LoadFunctions(cfg.Functions)

	modesCtrl := modes.NewController(settings, modeBus, sched)
	modesCtrl.Load(cfg.Modes)

	registerRepositories(sched, cfg)

	if !flags.noInit {
		seedSettings(settings, cfg, dutyCache)
	}

	ctx, cancel := context.WithCancel(context.Background())

	deps := api.Deps{
		Registry:     registry,
		History:      hist,
		Settings:     settings,
		ProfilesEng:  profilesEng,
		FunctionDefs: functionDefs,
		ModesCtrl:    modesCtrl,
		AlertsEng:    alertsEng,
		Scheduler:    sched,
		Applier:      sched,
		CfgStore:     cfgStore,
		CredStore:    credStore,
		StatusBus:    statusBus,
		LogBus:       logSink,
		ModeBus:      modeBus,
		AlertBus:     alertBus,
		Health:       healthTracker,
		Build:        build,
		Shutdown:     cancel,
	}
	e := api.New(deps, cfg, creds)

	var g run.Group
	{
		g.Add(func() error {
			return sched.Run(ctx)
		}, func(error) { cancel() })
	}
	{
		addr := host + ":" + strconv.Itoa(port)
		g.Add(func() error {
			log.Info("daemon: HTTP API listening on %s", addr)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			<-ctx.Done()
			return nil
		}, func(error) {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			_ = e.Shutdown(shutdownCtx)
			cancel()
		})
	}
	{
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		g.Add(func() error {
			select {
			case s := <-sig:
				log.Info("daemon: received %v, shutting down...", s)
				return nil
			case <-ctx.Done():
				return nil
			}
		}, func(error) {
			signal.Stop(sig)
			cancel()
		})
	}

	err = g.Run()

	if persisted := snapshotDutyCache(settings); len(persisted) > 0 {
		if saveErr := cache.SaveDutyCache(persisted); saveErr != nil {
			log.Warn("daemon: saving duty cache on shutdown: %v", saveErr)
		}
	}
	if snapshot := snapshotStatuses(registry, hist); len(snapshot) > 0 {
		if saveErr := cache.SaveStatusSnapshot(snapshot); saveErr != nil {
			log.Warn("daemon: saving status snapshot on shutdown: %v", saveErr)
		}
	}

	log.Info("daemon: shutdown complete")
	return err
}

func resolveBindAddress(overlay config.Overlay) (string, int) {
	host := defaultHTTPHost
	port := defaultHTTPPort
	if overlay.HostIP4 != "" {
		host = overlay.HostIP4
	}
	if overlay.Port != 0 {
		port = overlay.Port
	}
	return host, port
}

// registerRepositories initializes and registers every hardware
// repository enabled by config and CLI feature toggles.
// A repository that fails to initialize is logged and skipped rather
// than treated as fatal - the daemon still serves every other
// successfully enumerated device.
func registerRepositories(sched *scheduler.Scheduler, cfg *config.Configuration) {
	ctx := context.Background()
	blacklisted := func(uid device.UID) bool { return cfg.IsDisabled(string(uid)) }

	reps := []repositories.Repository{
		cpu.New(""),
		gpu.NewAmd(""),
		hwmon.New(cfg.General.DrivetempSuspend, true, ""),
	}
	if !flags.disableNvidia {
		reps = append(reps, gpu.NewNvidia())
	}
	if !flags.disableLiquidctl && cfg.General.LiquidctlIntegration {
		reps = append(reps, liquidctl.New(liquidctlHelperURL))
	}
	if !flags.disableThinkpad {
		reps = append(reps, thinkpad.New(cfg.General.ThinkPadFullSpeed, ""))
	}
	if len(cfg.CustomSensors.Files) > 0 || len(cfg.CustomSensors.Mixes) > 0 {
		reps = append(reps, customsensors.New(cfg.CustomSensors))
	}

	for _, repo := range reps {
		if err := sched.RegisterRepository(ctx, repo, blacklisted); err != nil {
			log.Warn("daemon: %s failed to initialize: %v", repo.Name(), err)
		}
	}
}

// seedSettings restores persisted channel settings and the last
// confirmed-applied duty from the crash-recovery cache, without
// itself forcing a write - see control.Controller.Seed. A forced
// reapply of everything then happens only if apply_on_boot is set,
// inside scheduler.Run's startup sequence.
func seedSettings(settings *control.Registry, cfg *config.Configuration, dutyCache map[control.ChannelKey]int) {
	for _, entry := range cfg.Settings {
		if cfg.IsDisabled(entry.DeviceUID) || cfg.IsChannelDisabled(entry.DeviceUID, entry.ChannelName) {
			continue
		}
		key := control.ChannelKey{DeviceUID: entry.DeviceUID, Channel: entry.ChannelName}
		ctrl := settings.Ensure(key)
		ctrl.Seed(entry.Setting)
		if duty, ok := dutyCache[key]; ok {
			ctrl.ConfirmApplied(duty)
		}
	}
}

func snapshotDutyCache(settings *control.Registry) map[control.ChannelKey]int {
	out := make(map[control.ChannelKey]int)
	for _, c := range settings.All() {
		if duty, ok := c.LastAppliedDuty(); ok {
			out[c.Key()] = duty
		}
	}
	return out
}

func snapshotStatuses(registry *device.Registry, hist *history.Store) map[device.UID]device.DeviceStatus {
	out := make(map[device.UID]device.DeviceStatus)
	for _, d := range registry.All() {
		if status, ok := hist.Latest(d.UID); ok {
			out[d.UID] = status
		}
	}
	return out
}
