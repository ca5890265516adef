package device

import (
	"context"

	"github.com/funjack/golibbuttplug"
)

// clientName is announced to the server during the protocol handshake.
const clientName = "plugbridge"

const vibrateCmd = "VibrateCmd"

// DialButtplug connects to a buttplug.io/intiface websocket server.
//
// Scanning is kicked off right away so devices paired after connect still
// show up; a scan failure is not fatal (some servers scan on their own).
func DialButtplug(ctx context.Context, url string) (Controller, error) {
	c, err := golibbuttplug.NewClient(ctx, url, clientName, nil)
	if err != nil {
		return nil, err
	}
	_ = c.StartScanning()
	return &buttplugController{c: c}, nil
}

type buttplugController struct {
	c *golibbuttplug.Client
}

func (b *buttplugController) Devices() []Device {
	ds := b.c.Devices()
	out := make([]Device, 0, len(ds))
	for _, d := range ds {
		out = append(out, &buttplugDevice{d: d})
	}
	return out
}

func (b *buttplugController) StopAll() error { return b.c.StopAllDevices() }

func (b *buttplugController) Disconnected() <-chan struct{} { return b.c.Disconnected() }

func (b *buttplugController) Close() {
	_ = b.c.StopScanning()
	b.c.Close()
}

type buttplugDevice struct {
	d *golibbuttplug.Device
}

func (d *buttplugDevice) Name() string { return d.d.Name() }

func (d *buttplugDevice) CanVibrate() bool { return d.d.IsSupported(vibrateCmd) }

func (d *buttplugDevice) Vibrate(level float64) error {
	// One speed drives all motors the device has.
	return d.d.VibrateCmd([]float64{level})
}

func (d *buttplugDevice) Stop() error { return d.d.StopDeviceCmd() }
