package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"plugbridge/internal/actuator"
	"plugbridge/internal/config"
	"plugbridge/internal/device"
	"plugbridge/internal/discord"
	logx "plugbridge/pkg/logx"
)

const (
	historyDefaultLimit = 10
	historyMaxLimit     = 25

	testDefaultDuration = 2 * time.Second
)

// execCommand runs one operator command and returns the reply text.
// An empty reply means nothing is posted back.
func (a *App) execCommand(ctx context.Context, cmd discord.Command) string {
	switch cmd.Name {
	case discord.CmdConnect:
		return a.cmdConnect(ctx, cmd.Args)
	case discord.CmdDisconnect:
		return a.cmdDisconnect()
	case discord.CmdTest:
		return a.cmdTest(cmd)
	case discord.CmdStop:
		return a.cmdStop()
	case discord.CmdDevices:
		return a.cmdDevices()
	case discord.CmdHistory:
		return a.cmdHistory(ctx, cmd.Args)
	case discord.CmdFocus:
		return a.cmdFocus(cmd)
	case discord.CmdStatus:
		return a.cmdStatus()
	default:
		return "unknown command: " + cmd.Name
	}
}

func (a *App) cmdConnect(ctx context.Context, args []string) string {
	// Connected wins over argument validation: a bare "connect" while a
	// session is live is a friendly no-op, not a usage error.
	if a.session.Connected() {
		return "already connected to " + a.session.URL()
	}

	cfg := a.currentConfig()
	url := cfg.Device.ServerURL
	if len(args) > 0 {
		url = args[0]
	}
	if strings.TrimSpace(url) == "" {
		return "no server url configured; usage: connect <ws://host:port>"
	}

	cctx, cancel := context.WithTimeout(ctx, config.ParseDurationOrDefault(cfg.Device.ConnectTimeout, 10*time.Second))
	defer cancel()

	switch err := a.session.Connect(cctx, url); {
	case errors.Is(err, device.ErrAlreadyConnected):
		return "already connected to " + a.session.URL()
	case err != nil:
		a.log.Warn("connect command failed", logx.String("url", url), logx.Err(err))
		return "connect failed: " + err.Error()
	default:
		return fmt.Sprintf("connected to %s (%d devices)", url, len(a.session.Devices()))
	}
}

func (a *App) cmdDisconnect() string {
	if err := a.session.Disconnect(); err != nil {
		return "not connected"
	}
	return "disconnected"
}

// cmdTest enqueues a manual pulse: "test <intensity%> [duration] [device]".
// It goes through the same serial queue as trigger matches.
func (a *App) cmdTest(cmd discord.Command) string {
	if len(cmd.Args) == 0 {
		return "usage: test <intensity%> [duration] [device]"
	}
	pct, err := parsePercent(cmd.Args[0])
	if err != nil {
		return "bad intensity: " + err.Error()
	}
	dur := testDefaultDuration
	if len(cmd.Args) > 1 {
		dur, err = parseDurationArg(cmd.Args[1])
		if err != nil {
			return "bad duration: " + err.Error()
		}
	}
	idx := actuator.AllDevices
	if len(cmd.Args) > 2 {
		idx, err = strconv.Atoi(cmd.Args[2])
		if err != nil {
			return "bad device index: " + cmd.Args[2]
		}
	}

	a.queue.Enqueue(actuator.Request{
		Intensity: pct / 100,
		Duration:  dur,
		Device:    idx,
		Origin:    "command",
		AuthorID:  cmd.AuthorID,
	})
	return fmt.Sprintf("queued: %.0f%% for %s", pct, dur)
}

func (a *App) cmdStop() string {
	if err := a.session.StopAll(); err != nil {
		return "not connected"
	}
	return "stop sent to all devices"
}

func (a *App) cmdDevices() string {
	devs := a.session.Devices()
	if len(devs) == 0 {
		if !a.session.Connected() {
			return "not connected"
		}
		return "no devices"
	}
	var b strings.Builder
	for i, d := range devs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d: %s", i, d.Name())
		if !d.CanVibrate() {
			b.WriteString(" (no vibration)")
		}
	}
	return b.String()
}

func (a *App) cmdHistory(ctx context.Context, args []string) string {
	if a.store == nil {
		return "history is disabled"
	}
	limit := historyDefaultLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return "bad limit: " + args[0]
		}
		limit = n
	}
	if limit > historyMaxLimit {
		limit = historyMaxLimit
	}

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	events, err := a.store.RecentEvents(sctx, limit)
	if err != nil {
		a.log.Warn("history query failed", logx.Err(err))
		return "history query failed"
	}
	if len(events) == 0 {
		return "no recorded actuations"
	}

	var b strings.Builder
	for i, e := range events {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s %.0f%% %s (%d devices)",
			e.At.Format("2006-01-02 15:04:05"),
			e.Origin,
			e.Intensity*100,
			time.Duration(e.DurationMS)*time.Millisecond,
			e.Devices,
		)
	}
	return b.String()
}

// cmdFocus binds the home channel/guild to wherever the command was issued.
func (a *App) cmdFocus(cmd discord.Command) string {
	a.focusMu.Lock()
	a.focusChannelID = cmd.ChannelID
	a.focusGuildID = cmd.GuildID
	a.focusMu.Unlock()

	cfg := a.currentConfig()
	a.matcher.Update(a.triggerConfig(cfg))

	switch cfg.Triggers.ScopeMode {
	case config.ScopeChannel:
		return "focused: triggers now match this channel only"
	case config.ScopeGuild:
		if cmd.GuildID == "" {
			return "focus noted, but this is a DM; guild scope unchanged"
		}
		return "focused: triggers now match this guild only"
	default:
		return fmt.Sprintf("focus noted (scope_mode is %q; set it to channel or guild for focus to apply)", cfg.Triggers.ScopeMode)
	}
}

func (a *App) cmdStatus() string {
	cfg := a.currentConfig()

	var b strings.Builder
	if a.session.Connected() {
		fmt.Fprintf(&b, "connected to %s, %d devices", a.session.URL(), len(a.session.Devices()))
	} else {
		b.WriteString("not connected")
	}
	fmt.Fprintf(&b, "\nqueue: %d pending", a.queue.Len())
	fmt.Fprintf(&b, "\ntriggers: %d words, scope %s, max intensity %.0f%%",
		len(cfg.Triggers.TriggerWords), cfg.Triggers.ScopeMode, cfg.Triggers.MaxIntensity)
	if cfg.Ramp.Enabled {
		fmt.Fprintf(&b, "\nramp: on (%d steps)", cfg.Ramp.Steps)
	} else {
		b.WriteString("\nramp: off")
	}
	if a.store == nil {
		b.WriteString("\nhistory: off")
	} else {
		b.WriteString("\nhistory: on")
	}
	return b.String()
}

// parsePercent accepts "50", "50%", "12.5" in [0,100].
func parsePercent(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("%v out of range [0,100]", v)
	}
	return v, nil
}

// parseDurationArg accepts Go durations ("3s", "500ms") or a bare integer
// meaning milliseconds.
func parseDurationArg(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.Atoi(s); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative duration")
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("not a duration: %q", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration")
	}
	return d, nil
}
