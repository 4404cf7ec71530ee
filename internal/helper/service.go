// Package helper implements the privileged side of the bridge: it owns one
// virtual touch device per pointer and executes injection requests.
package helper

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/protocol"
)

// ErrServiceClosed is returned when operating on a closed service
var ErrServiceClosed = errors.New("service is closed")

// Device is a single-contact absolute touch device
type Device interface {
	MoveTo(x, y int32) error
	TouchDown() error
	TouchUp() error
	Close() error
}

// Loader produces a fresh shared configuration, usually by re-reading the config file
type Loader func() (protocol.SharedConfig, error)

// Service executes the injection protocol against local devices
type Service struct {
	mu      sync.Mutex
	devices map[protocol.PointerID]Device
	width   int32
	height  int32
	shared  protocol.SharedConfig
	paused  bool
	closed  bool
	loader  Loader
	onLoad  []func(protocol.SharedConfig)
	never   chan struct{}
}

var _ protocol.Handle = (*Service)(nil)

// NewService builds a service over already created devices. width and height
// bound the coordinates accepted by the devices.
func NewService(devices map[protocol.PointerID]Device, width, height int32, shared protocol.SharedConfig, loader Loader) *Service {
	return &Service{
		devices: devices,
		width:   width,
		height:  height,
		shared:  shared,
		loader:  loader,
		never:   make(chan struct{}),
	}
}

// OnReload registers a hook run after every successful Reload
func (s *Service) OnReload(fn func(protocol.SharedConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLoad = append(s.onLoad, fn)
}

// InjectEvent places, moves or lifts the contact of pointer
func (s *Service) InjectEvent(x, y float64, action protocol.Action, pointer protocol.PointerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServiceClosed
	}

	dev, ok := s.devices[pointer]
	if !ok {
		return fmt.Errorf("%w: %s", protocol.ErrUnknownPointer, pointer)
	}

	if !action.Valid() {
		return fmt.Errorf("%w: %d", protocol.ErrInvalidAction, action)
	}

	if s.paused {
		logger.Debugf("Paused, dropping %s on %s pointer", action, pointer)
		return nil
	}

	px := clamp(x, s.width)
	py := clamp(y, s.height)

	if err := dev.MoveTo(px, py); err != nil {
		return fmt.Errorf("failed to move %s pointer: %w", pointer, err)
	}

	switch action {
	case protocol.ActionDown:
		if err := dev.TouchDown(); err != nil {
			return fmt.Errorf("failed to press %s pointer: %w", pointer, err)
		}
	case protocol.ActionUp:
		if err := dev.TouchUp(); err != nil {
			return fmt.Errorf("failed to lift %s pointer: %w", pointer, err)
		}
	}

	return nil
}

// Pause drops injected events until Resume. Contacts stay where they are.
func (s *Service) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.paused {
		logger.Info("Injection paused")
	}
	s.paused = true
	return nil
}

// Resume continues injection
func (s *Service) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		logger.Info("Injection resumed")
	}
	s.paused = false
	return nil
}

// Reload re-reads the shared configuration through the loader
func (s *Service) Reload() error {
	if s.loader == nil {
		return nil
	}

	shared, err := s.loader()
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	s.mu.Lock()
	s.shared = shared
	hooks := append([]func(protocol.SharedConfig){}, s.onLoad...)
	s.mu.Unlock()

	logger.Info("Configuration reloaded", "swipe_delay_ms", shared.SwipeDelayMs)

	for _, hook := range hooks {
		hook(shared)
	}
	return nil
}

// SharedConfig returns the current shared configuration
func (s *Service) SharedConfig() (protocol.SharedConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shared := s.shared
	shared.Paused = s.paused
	return shared, nil
}

// Done never fires: the service lives in the caller's process
func (s *Service) Done() <-chan struct{} {
	return s.never
}

// Close lifts every contact and releases the devices
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for pointer, dev := range s.devices {
		if err := dev.TouchUp(); err != nil {
			errs = append(errs, fmt.Errorf("lift %s: %w", pointer, err))
		}
		if err := dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", pointer, err))
		}
	}
	return errors.Join(errs...)
}

// clamp rounds v into [0, limit]
func clamp(v float64, limit int32) int32 {
	r := math.Round(v)
	if r < 0 || math.IsNaN(r) {
		return 0
	}
	if limit > 0 && r > float64(limit) {
		return limit
	}
	return int32(r)
}
