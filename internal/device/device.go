// Package device is the boundary to the device-control server.
//
// The wire protocol lives entirely in the external client library; this
// package only exposes abstract intensity/stop commands and connection
// lifecycle.
package device

import "context"

// Device is a single connected actuator.
type Device interface {
	Name() string
	CanVibrate() bool
	// Vibrate sets the vibration speed. level must already be in [0,1].
	Vibrate(level float64) error
	Stop() error
}

// Controller is one live connection to a device-control server.
type Controller interface {
	// Devices returns a snapshot of currently known devices.
	Devices() []Device
	StopAll() error
	// Disconnected is closed when the server drops the connection.
	Disconnected() <-chan struct{}
	Close()
}

// Dialer opens a Controller. Swappable in tests.
type Dialer func(ctx context.Context, url string) (Controller, error)
