// Package app wires the bridge together: config, logging, history, the
// device session, the serial actuation queue, and the Discord adapter.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"plugbridge/internal/actuator"
	"plugbridge/internal/config"
	"plugbridge/internal/device"
	"plugbridge/internal/discord"
	"plugbridge/internal/pprofsrv"
	"plugbridge/internal/storage"
	"plugbridge/internal/trigger"
	logx "plugbridge/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store   storage.Store
	session *device.Session
	monitor *device.Monitor
	sink    *actuator.Sink
	exec    *actuator.Executor
	queue   *actuator.Queue
	matcher *trigger.Matcher
	adapter *discord.Adapter
	sched   *cron.Cron
	pprof   *pprofsrv.Server

	events chan discord.Event

	// Focus overrides set at runtime via the focus command. They win over
	// the configured home channel/guild until the next focus or restart.
	focusMu        sync.Mutex
	focusChannelID string
	focusGuildID   string

	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	a := &App{
		cfgMgr: config.NewManager(cfgPath),
		events: make(chan discord.Event, 64),
	}

	cfg, err := a.cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a.logSvc, a.log = logx.New(logxConfig(cfg))
	a.cfgMgr.SetLogger(a.log.With(logx.String("comp", "config")))

	a.store, err = storage.Open(storageConfig(cfg), a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	a.session = device.NewSession(device.DialButtplug, a.log.With(logx.String("comp", "device")))
	a.session.SetDropHandler(func(url string) {
		// Pending actuation calls during playback fail silently; the user
		// still gets one visible notice per drop.
		a.log.Error("lost connection to device server", logx.String("url", url))
	})
	a.monitor = device.NewMonitor(a.session.Devices)

	a.sink = actuator.NewSink(a.session.Devices, a.log.With(logx.String("comp", "sink")))
	a.exec = actuator.NewExecutor(a.sink, a.rampSettings, a.log.With(logx.String("comp", "exec")))
	a.queue = actuator.NewQueue(a.runRequest, a.log.With(logx.String("comp", "queue")))

	a.matcher = trigger.New(a.triggerConfig(cfg))

	a.adapter, err = discord.New(discordConfig(cfg), a.log.With(logx.String("comp", "discord")))
	if err != nil {
		return nil, fmt.Errorf("discord adapter: %w", err)
	}

	a.pprof = pprofsrv.New(a.log)
	a.sched = cron.New()

	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgMgr.Get()

	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	a.queue.Start(rctx)
	a.pprof.Apply(rctx, pprofConfig(cfg))

	if err := a.adapter.Start(rctx, a.events); err != nil {
		cancel()
		return fmt.Errorf("discord start: %w", err)
	}

	if cfg.Logging.Relay.Enabled && cfg.Discord.RelayChannelID != "" {
		a.logSvc.SetRelay(&relaySender{app: a})
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.eventLoop(rctx)
	}()
	go func() {
		defer a.wg.Done()
		a.reloadLoop(rctx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(rctx)
	}()

	if _, err := a.sched.AddFunc(cfg.Monitor.PollSchedule, a.pollDevices); err != nil {
		a.log.Warn("device poll schedule rejected", logx.String("spec", cfg.Monitor.PollSchedule), logx.Err(err))
	}
	if a.store != nil {
		if _, err := a.sched.AddFunc(cfg.Monitor.PruneSchedule, a.pruneHistory); err != nil {
			a.log.Warn("history prune schedule rejected", logx.String("spec", cfg.Monitor.PruneSchedule), logx.Err(err))
		}
	}
	a.sched.Start()

	if cfg.Device.AutoConnect && cfg.Device.ServerURL != "" {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.autoConnect(rctx, cfg)
		}()
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("plugbridge started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.runCancel != nil {
		a.runCancel()
	}

	stopCtx := a.sched.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}

	_ = a.adapter.Stop(ctx)

	// Let the in-flight request finish its trailing stop.
	select {
	case <-a.queue.Done():
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}

	if err := a.session.Disconnect(); err != nil && !errors.Is(err, device.ErrNotConnected) {
		a.log.Warn("device disconnect failed", logx.Err(err))
	}

	a.wg.Wait()

	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logSvc.Close()
	return nil
}

// eventLoop routes inbound Discord events: operator commands execute
// directly, everything else goes through the matcher.
func (a *App) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.events:
			switch {
			case ev.Command != nil:
				reply := a.execCommand(ctx, *ev.Command)
				if reply != "" {
					if err := a.adapter.SendText(ctx, ev.Command.ChannelID, reply); err != nil {
						a.log.Warn("command reply failed", logx.Err(err))
					}
				}
			case ev.Message != nil:
				if req, ok := a.matcher.Match(*ev.Message); ok {
					a.queue.Enqueue(req)
				}
			}
		}
	}
}

// reloadLoop applies committed config changes to the live components.
// Cron schedules and the storage driver stay fixed until restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(4)
	defer a.cfgMgr.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.logSvc.Apply(logxConfig(cfg))
			a.matcher.Update(a.triggerConfig(cfg))
			a.adapter.Update(discordConfig(cfg))
			a.pprof.Apply(ctx, pprofConfig(cfg))
			if cfg.Logging.Relay.Enabled && cfg.Discord.RelayChannelID != "" {
				a.logSvc.SetRelay(&relaySender{app: a})
			} else {
				a.logSvc.SetRelay(nil)
			}
		}
	}
}

// runRequest is the queue's executor: play the request, then record it.
func (a *App) runRequest(ctx context.Context, req actuator.Request) {
	devices := len(a.session.Devices())
	start := time.Now()

	a.exec.Run(ctx, req)

	if a.store == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := a.store.AppendEvent(sctx, storage.Event{
		At:         start,
		Origin:     req.Origin,
		AuthorID:   req.AuthorID,
		Intensity:  req.Intensity,
		DurationMS: req.Duration.Milliseconds(),
		Devices:    devices,
	})
	if err != nil {
		a.log.Debug("history append failed", logx.Err(err))
	}
}

func (a *App) rampSettings() actuator.RampSettings {
	cfg := a.cfgMgr.Get()
	if cfg == nil {
		return actuator.RampSettings{}
	}
	return actuator.RampSettings{Enabled: cfg.Ramp.Enabled, Steps: cfg.Ramp.Steps}
}

func (a *App) autoConnect(ctx context.Context, cfg *config.Config) {
	timeout := config.ParseDurationOrDefault(cfg.Device.ConnectTimeout, 10*time.Second)
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := a.session.Connect(cctx, cfg.Device.ServerURL); err != nil {
		a.log.Error("device server connect failed",
			logx.String("url", cfg.Device.ServerURL),
			logx.Err(err),
		)
	}
}

func (a *App) pollDevices() {
	added, removed := a.monitor.Poll()
	for _, name := range added {
		a.log.Info("device connected", logx.String("device", name))
	}
	for _, name := range removed {
		a.log.Info("device removed", logx.String("device", name))
	}
}

func (a *App) pruneHistory() {
	cfg := a.cfgMgr.Get()
	keep := config.DefaultKeepDays
	if cfg != nil && cfg.Storage != nil && cfg.Storage.KeepDays > 0 {
		keep = cfg.Storage.KeepDays
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := a.store.Prune(ctx, time.Now().AddDate(0, 0, -keep))
	if err != nil {
		a.log.Warn("history prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		a.log.Info("history pruned", logx.Int("removed", n))
	}
}

// relaySender posts relayed log lines to the configured Discord channel.
type relaySender struct{ app *App }

func (r *relaySender) SendLog(ctx context.Context, text string) error {
	cfg := r.app.cfgMgr.Get()
	if cfg == nil {
		return nil
	}
	return r.app.adapter.SendText(ctx, cfg.Discord.RelayChannelID, text)
}

// ---- config mapping ----

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Relay: logx.RelayConfig{
			Enabled:    cfg.Logging.Relay.Enabled,
			MinLevel:   cfg.Logging.Relay.MinLevel,
			RatePerSec: cfg.Logging.Relay.RatePerSec,
		},
	}
}

func discordConfig(cfg *config.Config) discord.Config {
	return discord.Config{
		Token:         cfg.Discord.Token,
		CommandPrefix: cfg.Discord.CommandPrefix,
		Operators:     cfg.Discord.OperatorUserIDs,
	}
}

func storageConfig(cfg *config.Config) storage.Config {
	if cfg.Storage == nil {
		return storage.Config{}
	}
	busy, _ := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
		KeepDays:    cfg.Storage.KeepDays,
	}
}

func pprofConfig(cfg *config.Config) pprofsrv.Config {
	return pprofsrv.Config{
		Enabled:              cfg.Pprof.Enabled,
		Address:              cfg.Pprof.Address,
		Token:                cfg.Pprof.Token,
		BlockProfileRate:     cfg.Pprof.BlockProfileRate,
		MutexProfileFraction: cfg.Pprof.MutexProfileFraction,
	}
}

// triggerConfig folds runtime focus overrides into the configured scope.
func (a *App) triggerConfig(cfg *config.Config) trigger.Config {
	a.focusMu.Lock()
	focusCh, focusGuild := a.focusChannelID, a.focusGuildID
	a.focusMu.Unlock()

	tc := trigger.Config{
		TriggerWords:   cfg.Triggers.TriggerWords,
		AddOnWords:     cfg.Triggers.AddOnWords,
		TargetWords:    cfg.Triggers.TargetWords,
		LocalUsername:  cfg.Triggers.LocalUsername,
		ScopeMode:      cfg.Triggers.ScopeMode,
		HomeChannelID:  cfg.Triggers.HomeChannelID,
		HomeGuildID:    cfg.Triggers.HomeGuildID,
		ListMode:       cfg.Triggers.ListMode,
		ListedUsers:    cfg.Triggers.ListedUsers,
		ListedChannels: cfg.Triggers.ListedChannels,
		ListedGuilds:   cfg.Triggers.ListedGuilds,
		MaxIntensity:   cfg.Triggers.MaxIntensity,
		RampEnabled:    cfg.Ramp.Enabled,
	}
	if focusCh != "" {
		tc.HomeChannelID = focusCh
	}
	if focusGuild != "" {
		tc.HomeGuildID = focusGuild
	}
	return tc
}

func (a *App) currentConfig() *config.Config {
	if cfg := a.cfgMgr.Get(); cfg != nil {
		return cfg
	}
	cfg := &config.Config{}
	cfg.Normalize()
	return cfg
}
