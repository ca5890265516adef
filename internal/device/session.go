package device

import (
	"context"
	"errors"
	"strings"
	"sync"

	logx "plugbridge/pkg/logx"
)

var (
	ErrAlreadyConnected = errors.New("already connected to a device server")
	ErrNotConnected     = errors.New("not connected to a device server")
)

// Session owns at most one Controller at a time.
//
// It replaces the original's ambient module-level connection state with an
// explicit object whose lifecycle is tied to connect/disconnect calls.
type Session struct {
	dial Dialer
	log  logx.Logger

	// onDrop is invoked (outside the lock) when the server drops us.
	onDrop func(url string)

	mu  sync.Mutex
	ctl Controller
	url string
	gen uint64
}

func NewSession(dial Dialer, log logx.Logger) *Session {
	return &Session{dial: dial, log: log}
}

// SetDropHandler installs a callback for server-initiated disconnects.
// Must be called before Connect.
func (s *Session) SetDropHandler(fn func(url string)) { s.onDrop = fn }

func (s *Session) Connect(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("device server url is empty")
	}

	s.mu.Lock()
	if s.ctl != nil {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.mu.Unlock()

	ctl, err := s.dial(ctx, url)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.ctl != nil {
		// Lost a connect race; keep the first connection.
		s.mu.Unlock()
		ctl.Close()
		return ErrAlreadyConnected
	}
	s.ctl = ctl
	s.url = url
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	s.log.Info("device server connected", logx.String("url", url))

	go s.watchDrop(ctl, url, gen)
	return nil
}

// watchDrop clears the session when the server closes the connection.
// The generation counter makes a stale watcher for a previous connection
// a no-op after a reconnect.
func (s *Session) watchDrop(ctl Controller, url string, gen uint64) {
	<-ctl.Disconnected()

	s.mu.Lock()
	if s.gen != gen || s.ctl != ctl {
		s.mu.Unlock()
		return
	}
	s.ctl = nil
	s.url = ""
	s.mu.Unlock()

	s.log.Warn("device server connection lost", logx.String("url", url))
	if s.onDrop != nil {
		s.onDrop(url)
	}
}

// Disconnect stops all devices best-effort and tears the connection down.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	ctl := s.ctl
	url := s.url
	s.ctl = nil
	s.url = ""
	s.gen++
	s.mu.Unlock()

	if ctl == nil {
		return ErrNotConnected
	}
	_ = ctl.StopAll()
	ctl.Close()
	s.log.Info("device server disconnected", logx.String("url", url))
	return nil
}

// Devices returns the current device snapshot; empty when disconnected.
func (s *Session) Devices() []Device {
	s.mu.Lock()
	ctl := s.ctl
	s.mu.Unlock()
	if ctl == nil {
		return nil
	}
	return ctl.Devices()
}

// StopAll issues a stop to every device on the current connection.
func (s *Session) StopAll() error {
	s.mu.Lock()
	ctl := s.ctl
	s.mu.Unlock()
	if ctl == nil {
		return ErrNotConnected
	}
	return ctl.StopAll()
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctl != nil
}

func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}
