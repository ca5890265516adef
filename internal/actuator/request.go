// Package actuator turns matched triggers into timed device commands:
// a strictly serial queue feeding a ramp-profile executor that fans out
// through the device sink.
package actuator

import "time"

// AllDevices targets every connected device.
const AllDevices = -1

// Request is a single actuation order. Immutable once enqueued.
type Request struct {
	// Intensity is the target level in [0,1].
	Intensity float64
	Duration  time.Duration

	// Device is an index into the current device list, or AllDevices.
	// An out-of-range index falls back to all devices.
	Device int

	// Origin labels where the request came from ("trigger", "command", ...).
	Origin string
	// AuthorID is the chat user that caused it, when known.
	AuthorID string
}
