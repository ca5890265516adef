// Package storage keeps the optional actuation history.
//
// It records one row per executed request so operators can audit what fired,
// when, and why. All writes are best-effort: a broken store never blocks the
// queue.
package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free jsonl backend
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	KeepDays    int           // prune horizon; 0 means default (90)
}

// Event records one executed actuation request.
// Keep it compact and schema-stable.
type Event struct {
	At         time.Time
	Origin     string
	AuthorID   string
	Intensity  float64
	DurationMS int64
	Devices    int
	Error      string
}
