package actuator

import (
	"math"

	"plugbridge/internal/device"
	logx "plugbridge/pkg/logx"
)

// Sink fans one actuation step out to the targeted devices.
//
// Per-device failures are independent results: a rejected command on one
// device never blocks its siblings and never crosses the component boundary
// as an error. During a server disconnect mid-playback every call simply
// fails; callers keep going.
type Sink struct {
	devices func() []device.Device
	log     logx.Logger
}

func NewSink(devices func() []device.Device, log logx.Logger) *Sink {
	return &Sink{devices: devices, log: log}
}

// DeviceResult is the outcome of one per-device command.
type DeviceResult struct {
	Name string
	Err  error
}

// Vibrate sets the given level on the targeted devices.
// level is re-clamped here regardless of upstream clamping.
func (s *Sink) Vibrate(level float64, idx int) []DeviceResult {
	level = Clamp(level)
	targets := s.targets(idx)
	results := make([]DeviceResult, 0, len(targets))
	for _, d := range targets {
		if !d.CanVibrate() {
			continue
		}
		err := d.Vibrate(level)
		if err != nil {
			s.log.Debug("vibrate command failed",
				logx.String("device", d.Name()),
				logx.Float64("level", level),
				logx.Err(err),
			)
		}
		results = append(results, DeviceResult{Name: d.Name(), Err: err})
	}
	return results
}

// Stop forces intensity 0 on the targeted devices.
func (s *Sink) Stop(idx int) []DeviceResult {
	targets := s.targets(idx)
	results := make([]DeviceResult, 0, len(targets))
	for _, d := range targets {
		err := d.Stop()
		if err != nil {
			s.log.Debug("stop command failed", logx.String("device", d.Name()), logx.Err(err))
		}
		results = append(results, DeviceResult{Name: d.Name(), Err: err})
	}
	return results
}

// targets resolves a device index against the current snapshot.
// An index is valid iff 0 <= idx < len(devices); anything else means all.
func (s *Sink) targets(idx int) []device.Device {
	all := s.devices()
	if idx >= 0 && idx < len(all) {
		return all[idx : idx+1]
	}
	return all
}

// Clamp maps any float to [0,1]. Total: NaN clamps to 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
