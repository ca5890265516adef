package actuator

import (
	"context"
	"time"

	logx "plugbridge/pkg/logx"
)

// Ramp timing: each ramp leg takes 20% of the total duration, the hold takes
// 54%. The remainder is headroom for per-step command latency and is not
// slept.
const (
	rampLegFraction = 0.20
	holdFraction    = 0.54

	defaultRampSteps = 20
)

// Step is one discrete ramp increment: set Level, then wait Wait.
type Step struct {
	Level float64
	Wait  time.Duration
}

// Plan is the derived, ephemeral ramp profile for a single request.
type Plan struct {
	Up   []Step
	Hold time.Duration
	Down []Step
}

// BuildPlan computes the piecewise-linear profile for a target level and
// total duration. Each leg has steps+1 entries: up hits level*i/steps for
// i=0..steps, down mirrors it ending at exactly 0.
func BuildPlan(level float64, total time.Duration, steps int) Plan {
	if steps <= 0 {
		steps = defaultRampSteps
	}

	leg := time.Duration(float64(total) * rampLegFraction)
	wait := leg / time.Duration(steps+1)

	up := make([]Step, 0, steps+1)
	down := make([]Step, 0, steps+1)
	for i := 0; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		up = append(up, Step{Level: level * frac, Wait: wait})
		down = append(down, Step{Level: level * (1 - frac), Wait: wait})
	}

	return Plan{
		Up:   up,
		Hold: time.Duration(float64(total) * holdFraction),
		Down: down,
	}
}

// RampSettings is read live per request so config reloads apply to the next
// execution without restarting anything.
type RampSettings struct {
	Enabled bool
	Steps   int
}

// Executor plays one request to completion against the sink.
//
// There is no cancellation primitive: once a ramp sequence begins it runs to
// its trailing stop. The one exception is ctx cancellation (process
// shutdown), which short-circuits the waits but still issues the stop.
type Executor struct {
	sink     *Sink
	settings func() RampSettings
	log      logx.Logger
}

func NewExecutor(sink *Sink, settings func() RampSettings, log logx.Logger) *Executor {
	return &Executor{sink: sink, settings: settings, log: log}
}

func (e *Executor) Run(ctx context.Context, req Request) {
	level := Clamp(req.Intensity)
	st := e.settings()

	e.log.Debug("actuation started",
		logx.String("origin", req.Origin),
		logx.Float64("intensity", level),
		logx.Duration("duration", req.Duration),
		logx.Bool("ramp", st.Enabled),
	)

	// The trailing stop is unconditional: rounding in the last ramp step or
	// an aborted wait must never leave a device running.
	defer e.sink.Stop(req.Device)

	if !st.Enabled {
		e.sink.Vibrate(level, req.Device)
		e.wait(ctx, req.Duration)
		return
	}

	plan := BuildPlan(level, req.Duration, st.Steps)
	for _, s := range plan.Up {
		e.sink.Vibrate(s.Level, req.Device)
		if !e.wait(ctx, s.Wait) {
			return
		}
	}
	if !e.wait(ctx, plan.Hold) {
		return
	}
	for _, s := range plan.Down {
		e.sink.Vibrate(s.Level, req.Device)
		if !e.wait(ctx, s.Wait) {
			return
		}
	}
}

// wait sleeps for d, reporting false if ctx fired first.
func (e *Executor) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
