package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"plugbridge/internal/actuator"
	"plugbridge/internal/config"
	"plugbridge/internal/device"
	"plugbridge/internal/discord"
	"plugbridge/internal/trigger"
	logx "plugbridge/pkg/logx"
)

type fakeDevice struct {
	name    string
	vibrate bool
}

func (d *fakeDevice) Name() string                { return d.name }
func (d *fakeDevice) CanVibrate() bool            { return d.vibrate }
func (d *fakeDevice) Vibrate(level float64) error { return nil }
func (d *fakeDevice) Stop() error                 { return nil }

type fakeController struct {
	devices []device.Device
	dropped chan struct{}
}

func newFakeController(devs ...device.Device) *fakeController {
	return &fakeController{devices: devs, dropped: make(chan struct{})}
}

func (c *fakeController) Devices() []device.Device      { return c.devices }
func (c *fakeController) StopAll() error                { return nil }
func (c *fakeController) Disconnected() <-chan struct{} { return c.dropped }
func (c *fakeController) Close()                        {}

// testApp builds a minimal App wired with fakes. runs receives every request
// the queue executes.
func testApp(t *testing.T, ctl device.Controller, runs chan actuator.Request) *App {
	t.Helper()

	dial := func(ctx context.Context, url string) (device.Controller, error) {
		return ctl, nil
	}

	a := &App{
		cfgMgr:  config.NewManager(filepath.Join(t.TempDir(), "config.yaml")),
		log:     logx.Nop(),
		session: device.NewSession(dial, logx.Nop()),
		matcher: trigger.New(trigger.Config{}),
	}
	a.queue = actuator.NewQueue(func(ctx context.Context, req actuator.Request) {
		if runs != nil {
			runs <- req
		}
	}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a.queue.Start(ctx)
	return a
}

func TestCmdTestEnqueuesRequest(t *testing.T) {
	runs := make(chan actuator.Request, 1)
	a := testApp(t, newFakeController(), runs)

	reply := a.execCommand(context.Background(), discord.Command{
		Name:     discord.CmdTest,
		Args:     []string{"50", "3s"},
		AuthorID: "op1",
	})
	if !strings.Contains(reply, "queued") {
		t.Fatalf("reply = %q, want queued confirmation", reply)
	}

	select {
	case req := <-runs:
		if req.Intensity != 0.5 {
			t.Fatalf("Intensity = %v, want 0.5", req.Intensity)
		}
		if req.Duration != 3*time.Second {
			t.Fatalf("Duration = %v, want 3s", req.Duration)
		}
		if req.Device != actuator.AllDevices {
			t.Fatalf("Device = %d, want AllDevices", req.Device)
		}
		if req.Origin != "command" || req.AuthorID != "op1" {
			t.Fatalf("Origin/AuthorID = %q/%q", req.Origin, req.AuthorID)
		}
	case <-time.After(time.Second):
		t.Fatal("request never reached the queue consumer")
	}
}

func TestCmdTestRejectsBadArgs(t *testing.T) {
	a := testApp(t, newFakeController(), nil)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no args", args: nil},
		{name: "intensity over range", args: []string{"150"}},
		{name: "garbage intensity", args: []string{"loud"}},
		{name: "garbage duration", args: []string{"50", "soon"}},
		{name: "garbage index", args: []string{"50", "3s", "first"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := a.execCommand(context.Background(), discord.Command{Name: discord.CmdTest, Args: tt.args})
			if strings.Contains(reply, "queued") {
				t.Fatalf("args %v accepted: %q", tt.args, reply)
			}
		})
	}
}

func TestCmdConnectAndDevices(t *testing.T) {
	ctl := newFakeController(
		&fakeDevice{name: "Hush", vibrate: true},
		&fakeDevice{name: "Estim", vibrate: false},
	)
	a := testApp(t, ctl, nil)

	if got := a.cmdDevices(); got != "not connected" {
		t.Fatalf("devices before connect = %q", got)
	}

	// Disconnected with no argument and no configured url: usage error.
	if got := a.cmdConnect(context.Background(), nil); !strings.Contains(got, "no server url configured") {
		t.Fatalf("bare connect while disconnected = %q", got)
	}

	reply := a.execCommand(context.Background(), discord.Command{
		Name: discord.CmdConnect,
		Args: []string{"ws://127.0.0.1:12345"},
	})
	if !strings.Contains(reply, "connected to ws://127.0.0.1:12345") {
		t.Fatalf("connect reply = %q", reply)
	}

	// Second connect is a friendly no-op, even bare with no configured url:
	// the live session wins over argument validation.
	reply = a.cmdConnect(context.Background(), nil)
	if !strings.Contains(reply, "already connected") {
		t.Fatalf("re-connect reply = %q", reply)
	}

	listing := a.cmdDevices()
	if !strings.Contains(listing, "0: Hush") {
		t.Fatalf("listing missing indexed name: %q", listing)
	}
	if !strings.Contains(listing, "1: Estim (no vibration)") {
		t.Fatalf("listing missing non-vibrating marker: %q", listing)
	}

	if got := a.cmdDisconnect(); got != "disconnected" {
		t.Fatalf("disconnect reply = %q", got)
	}
	if got := a.cmdDisconnect(); got != "not connected" {
		t.Fatalf("second disconnect reply = %q", got)
	}
}

func TestCmdFocusUpdatesScope(t *testing.T) {
	a := testApp(t, newFakeController(), nil)

	reply := a.execCommand(context.Background(), discord.Command{
		Name:      discord.CmdFocus,
		ChannelID: "chan1",
		GuildID:   "guild1",
	})
	if reply == "" {
		t.Fatal("expected focus reply")
	}

	a.focusMu.Lock()
	ch, g := a.focusChannelID, a.focusGuildID
	a.focusMu.Unlock()
	if ch != "chan1" || g != "guild1" {
		t.Fatalf("focus = %q/%q, want chan1/guild1", ch, g)
	}

	tc := a.triggerConfig(a.currentConfig())
	if tc.HomeChannelID != "chan1" || tc.HomeGuildID != "guild1" {
		t.Fatalf("trigger config home = %q/%q", tc.HomeChannelID, tc.HomeGuildID)
	}
}

func TestCmdStatusAndHistoryDisabled(t *testing.T) {
	a := testApp(t, newFakeController(), nil)

	status := a.execCommand(context.Background(), discord.Command{Name: discord.CmdStatus})
	if !strings.Contains(status, "not connected") || !strings.Contains(status, "queue: 0 pending") {
		t.Fatalf("status = %q", status)
	}

	if got := a.execCommand(context.Background(), discord.Command{Name: discord.CmdHistory}); got != "history is disabled" {
		t.Fatalf("history reply = %q", got)
	}

	if got := a.execCommand(context.Background(), discord.Command{Name: "bogus"}); !strings.Contains(got, "unknown command") {
		t.Fatalf("unknown command reply = %q", got)
	}
}

func TestParsePercent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{in: "50", want: 50},
		{in: "50%", want: 50},
		{in: "12.5", want: 12.5},
		{in: "0", want: 0},
		{in: "100", want: 100},
		{in: "101", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "high", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parsePercent(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parsePercent(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Fatalf("parsePercent(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseDurationArg(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "3s", want: 3 * time.Second},
		{in: "500ms", want: 500 * time.Millisecond},
		{in: "1500", want: 1500 * time.Millisecond},
		{in: "-3s", wantErr: true},
		{in: "-10", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseDurationArg(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseDurationArg(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err == nil && got != tt.want {
			t.Fatalf("parseDurationArg(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
