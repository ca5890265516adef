package actuator

import (
	"errors"
	"math"
	"sync"
	"testing"

	"plugbridge/internal/device"
	logx "plugbridge/pkg/logx"
)

// fakeDevice implements device.Device for tests across this package.
type fakeDevice struct {
	mu      sync.Mutex
	name    string
	noVib   bool
	vibErr  error
	stopErr error
	levels  []float64
	stops   int
}

func (d *fakeDevice) Name() string     { return d.name }
func (d *fakeDevice) CanVibrate() bool { return !d.noVib }

func (d *fakeDevice) Vibrate(level float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.levels = append(d.levels, level)
	return d.vibErr
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stops++
	return d.stopErr
}

func (d *fakeDevice) recorded() ([]float64, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.levels...), d.stops
}

func sinkOver(devs ...device.Device) *Sink {
	return NewSink(func() []device.Device { return devs }, logx.Nop())
}

func TestClamp(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{2.35, 1},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Fatalf("Clamp(%v) = %v, want %v", tt.in, got, tt.want)
		}
		// Idempotent.
		if got := Clamp(Clamp(tt.in)); got != tt.want {
			t.Fatalf("Clamp(Clamp(%v)) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSinkFanOutIndependentFailures(t *testing.T) {
	t.Parallel()
	bad := &fakeDevice{name: "bad", vibErr: errors.New("device rejected command")}
	good := &fakeDevice{name: "good"}
	s := sinkOver(bad, good)

	results := s.Vibrate(0.5, AllDevices)
	if len(results) != 2 {
		t.Fatalf("results len = %d, want 2", len(results))
	}
	var gotErr, gotOK bool
	for _, r := range results {
		if r.Name == "bad" && r.Err != nil {
			gotErr = true
		}
		if r.Name == "good" && r.Err == nil {
			gotOK = true
		}
	}
	if !gotErr || !gotOK {
		t.Fatalf("want independent per-device results, got %+v", results)
	}
	if levels, _ := good.recorded(); len(levels) != 1 || levels[0] != 0.5 {
		t.Fatalf("sibling device not actuated: %v", levels)
	}
}

func TestSinkClampsOutOfRangeLevels(t *testing.T) {
	t.Parallel()
	d := &fakeDevice{name: "toy"}
	s := sinkOver(d)

	s.Vibrate(3.7, AllDevices)
	s.Vibrate(-2, AllDevices)

	levels, _ := d.recorded()
	for _, l := range levels {
		if l < 0 || l > 1 {
			t.Fatalf("level %v escaped [0,1]", l)
		}
	}
}

func TestSinkDeviceIndexTargeting(t *testing.T) {
	t.Parallel()
	a := &fakeDevice{name: "a"}
	b := &fakeDevice{name: "b"}
	s := sinkOver(a, b)

	s.Vibrate(0.4, 1)
	if la, _ := a.recorded(); len(la) != 0 {
		t.Fatalf("device 0 actuated for index 1: %v", la)
	}
	if lb, _ := b.recorded(); len(lb) != 1 {
		t.Fatalf("device 1 not actuated: %v", lb)
	}

	// Out-of-range index falls back to all devices.
	s.Vibrate(0.4, 7)
	if la, _ := a.recorded(); len(la) != 1 {
		t.Fatal("out-of-range index should fan out to all devices")
	}
}

func TestSinkSkipsNonVibratingDevices(t *testing.T) {
	t.Parallel()
	novib := &fakeDevice{name: "launch", noVib: true}
	s := sinkOver(novib)

	if results := s.Vibrate(0.9, AllDevices); len(results) != 0 {
		t.Fatalf("expected no vibrate attempts, got %+v", results)
	}
	// Stop still reaches it.
	if results := s.Stop(AllDevices); len(results) != 1 {
		t.Fatalf("stop should reach all devices, got %+v", results)
	}
}
