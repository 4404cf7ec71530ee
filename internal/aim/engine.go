// Package aim translates relative mouse motion into absolute touch placement
// for "mouse aim" sessions: the aim pointer is dragged around a center point and
// lifted back to the center whenever it leaves the bounded area.
package aim

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bnema/touchbridge/internal/config"
	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/protocol"
)

// Linux input event codes the engine reacts to
const (
	CodeRelX      uint16 = 0x00
	CodeRelY      uint16 = 0x01
	CodeBtnLeft   uint16 = 0x110
	CodeBtnRight  uint16 = 0x111
	CodeBtnMiddle uint16 = 0x112
	CodeBtnSide   uint16 = 0x113
	CodeBtnExtra  uint16 = 0x114
)

// ErrStopped is returned by HandleEvent after Stop
var ErrStopped = errors.New("aim session stopped")

// Config is the immutable description of one aim session
type Config struct {
	XCenter, YCenter           float64
	XSensitivity, YSensitivity float64
	NonLinear                  bool
	LimitedBounds              bool
	// Half extents of the bounded area. Zero uses the display rectangle.
	Width, Height          float64
	XLeftClick, YLeftClick float64
}

// FromConfig converts the file configuration of a session
func FromConfig(c config.AimConfig) Config {
	return Config{
		XCenter:       c.XCenter,
		YCenter:       c.YCenter,
		XSensitivity:  c.XSensitivity,
		YSensitivity:  c.YSensitivity,
		NonLinear:     c.NonLinear,
		LimitedBounds: c.LimitedBounds,
		Width:         c.Width,
		Height:        c.Height,
		XLeftClick:    c.XLeftClick,
		YLeftClick:    c.YLeftClick,
	}
}

// bounded reports whether leaving the area triggers a recenter
func (c Config) bounded() bool {
	return c.LimitedBounds || (c.Width != 0 && c.Height != 0)
}

// Area is the rectangle the aim pointer may roam in
type Area struct {
	Left, Top, Right, Bottom float64
}

// Width of the area
func (a Area) Width() float64 {
	return a.Right - a.Left
}

// Empty reports an area that cannot bound anything (display size unknown)
func (a Area) Empty() bool {
	return a.Right <= a.Left || a.Bottom <= a.Top
}

// ButtonListener receives secondary buttons the engine does not inject itself
type ButtonListener func(code uint16, value int32)

// Timer is a scheduled callback that can be cancelled
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d on another goroutine
type Scheduler func(d time.Duration, fn func()) Timer

func afterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Option configures an Engine
type Option func(*Engine)

// WithScheduler replaces time.AfterFunc for the delayed recenter
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.schedule = s }
}

// Engine keeps the pointer state of one aim session.
//
// HandleEvent must be called from a single goroutine. The delayed half of a
// recenter runs on a timer goroutine; both take mu, so a recenter never
// interleaves with an accumulation in progress.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	handle   protocol.Injector
	schedule Scheduler

	currentX, currentY float64
	displayW, displayH float64
	area               Area

	pending     Timer
	deferredErr error
	stopped     bool
}

// New starts an active session with the pointer at the configured center
func New(cfg Config, handle protocol.Injector, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		handle:   handle,
		schedule: afterFunc,
		currentX: cfg.XCenter,
		currentY: cfg.YCenter,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.area = e.deriveArea()
	return e
}

// SetInterface rebinds the session to a freshly acquired handle
func (e *Engine) SetInterface(handle protocol.Injector) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.handle = handle
	e.deferredErr = nil
}

// SetDimensions records the display size and derives the bounded area again.
// A configured area is centered on the current position, not on the config center.
func (e *Engine) SetDimensions(width, height int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.displayW = float64(width)
	e.displayH = float64(height)
	e.area = e.deriveArea()
}

// Position returns the current pointer position
func (e *Engine) Position() (x, y float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentX, e.currentY
}

// Area returns the current bounded area
func (e *Engine) Area() Area {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.area
}

// Active reports whether the session still accepts events
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.stopped
}

// HandleEvent applies one relative motion or button code.
// A PeerUnavailable error means the handle must be replaced with SetInterface.
func (e *Engine) HandleEvent(code uint16, value int32, listener ButtonListener) error {
	forward, err := e.handleLocked(code, value)
	if err != nil {
		return err
	}
	if forward && listener != nil {
		listener(code, value)
	}
	return nil
}

func (e *Engine) handleLocked(code uint16, value int32) (forward bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return false, ErrStopped
	}
	if err := e.deferredErr; err != nil {
		e.deferredErr = nil
		return false, fmt.Errorf("delayed recenter failed: %w", err)
	}

	switch code {
	case CodeRelX:
		e.currentX += e.scaledX(value)
		if e.outside(e.currentX, e.area.Left, e.area.Right) {
			if err := e.resetPointer(); err != nil {
				return false, err
			}
		}
		return false, e.inject(e.currentX, e.currentY, protocol.ActionMove, protocol.PointerAim)

	case CodeRelY:
		// Y has no non-linear response
		e.currentY += float64(value) * e.cfg.YSensitivity
		if e.outside(e.currentY, e.area.Top, e.area.Bottom) {
			if err := e.resetPointer(); err != nil {
				return false, err
			}
		}
		return false, e.inject(e.currentX, e.currentY, protocol.ActionMove, protocol.PointerAim)

	case CodeBtnLeft:
		action, err := protocol.ParseAction(value)
		if err != nil || action == protocol.ActionMove {
			// key repeat
			return false, nil
		}
		return false, e.inject(e.cfg.XLeftClick, e.cfg.YLeftClick, action, protocol.PointerClick)

	case CodeBtnSide, CodeBtnMiddle, CodeBtnExtra, CodeBtnRight:
		return true, nil
	}

	return false, nil
}

// ScaledX returns the X displacement produced by a relative motion of value
func (e *Engine) ScaledX(value int32) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scaledX(value)
}

// scaledX attenuates motion with the distance from the config center. Without
// non-linear scaling the motion is multiplied by XSensitivity rather than passed
// through raw, so X tracks center + sensitivity*sum like Y does. Caller holds mu.
func (e *Engine) scaledX(value int32) float64 {
	v := float64(value)

	if !e.cfg.NonLinear || e.area.Width() <= 0 {
		return v * e.cfg.XSensitivity
	}

	distance := math.Hypot(e.cfg.XCenter-e.currentX, e.cfg.YCenter-e.currentY)
	threshold := e.area.Width() / 20
	if distance > threshold {
		return e.cfg.XSensitivity * v * math.Sqrt(threshold/distance)
	}
	return v
}

// ResetPointer lifts the aim pointer and puts it back on the center after the
// helper's swipe delay
func (e *Engine) ResetPointer() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return ErrStopped
	}
	return e.resetPointer()
}

// resetPointer does the immediate half of a recenter. Caller holds mu.
func (e *Engine) resetPointer() error {
	if e.pending != nil {
		// Already lifted, the Down at the center is on its way
		return nil
	}

	if err := e.inject(e.currentX, e.currentY, protocol.ActionUp, protocol.PointerAim); err != nil {
		return err
	}

	shared, err := e.sharedConfig()
	if err != nil {
		return err
	}

	delay := time.Duration(shared.SwipeDelayMs) * time.Millisecond
	e.pending = e.schedule(delay, e.recenter)
	return nil
}

// recenter is the delayed half of a recenter
func (e *Engine) recenter() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = nil
	if e.stopped {
		return
	}

	e.currentX = e.cfg.XCenter
	e.currentY = e.cfg.YCenter
	if err := e.inject(e.currentX, e.currentY, protocol.ActionDown, protocol.PointerAim); err != nil {
		logger.Warn("Recenter failed", "err", err)
		e.deferredErr = err
	}
}

// Stop lifts the aim pointer and ends the session
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return nil
	}
	e.stopped = true

	if e.pending != nil {
		e.pending.Stop()
		e.pending = nil
	}

	err := e.inject(e.currentX, e.currentY, protocol.ActionUp, protocol.PointerAim)
	if e.deferredErr != nil {
		err = errors.Join(fmt.Errorf("delayed recenter failed: %w", e.deferredErr), err)
		e.deferredErr = nil
	}
	return err
}

// outside reports a bound violation on one axis. Caller holds mu.
func (e *Engine) outside(v, low, high float64) bool {
	if !e.cfg.bounded() || e.area.Empty() {
		return false
	}
	return v > high || v < low
}

// deriveArea computes the bounded area from the display size and current position. Caller holds mu.
func (e *Engine) deriveArea() Area {
	if e.cfg.Width == 0 || e.cfg.Height == 0 {
		// Reset when leaving the screen
		return Area{Left: 0, Top: 0, Right: e.displayW, Bottom: e.displayH}
	}

	return Area{
		Left:   e.currentX - e.cfg.Width,
		Top:    e.currentY - e.cfg.Height,
		Right:  e.currentX + e.cfg.Width,
		Bottom: e.currentY + e.cfg.Height,
	}
}

func (e *Engine) inject(x, y float64, action protocol.Action, pointer protocol.PointerID) error {
	if e.handle == nil {
		return fmt.Errorf("no injection handle: %w", protocol.ErrPeerUnavailable)
	}
	if err := e.handle.InjectEvent(x, y, action, pointer); err != nil {
		return fmt.Errorf("inject %s on %s pointer: %w", action, pointer, err)
	}
	return nil
}

func (e *Engine) sharedConfig() (protocol.SharedConfig, error) {
	if e.handle == nil {
		return protocol.SharedConfig{}, fmt.Errorf("no injection handle: %w", protocol.ErrPeerUnavailable)
	}
	shared, err := e.handle.SharedConfig()
	if err != nil {
		return protocol.SharedConfig{}, fmt.Errorf("fetch shared config: %w", err)
	}
	return shared, nil
}
