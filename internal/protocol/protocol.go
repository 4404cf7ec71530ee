// Package protocol defines the contract a privileged injection helper satisfies,
// whatever transport carries it (in-process, unix socket or SSH).
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrPeerUnavailable is returned when the helper process behind a handle is gone.
	// Callers drop the handle and acquire a new one.
	ErrPeerUnavailable = errors.New("injection peer unavailable")
	// ErrAuthorizationDenied is reported when the alternate broker has no grant for us
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrAcquisitionAbandoned marks a resolution where no tier produced a handle
	ErrAcquisitionAbandoned = errors.New("acquisition abandoned")
	// ErrInvalidAction is returned for action codes other than Up, Down and Move
	ErrInvalidAction = errors.New("invalid action")
	// ErrUnknownPointer is returned for pointer ids the helper has no contact for
	ErrUnknownPointer = errors.New("unknown pointer")
)

// Action is the phase of a simulated contact
type Action int32

const (
	ActionUp   Action = 0
	ActionDown Action = 1
	ActionMove Action = 2
)

func (a Action) String() string {
	switch a {
	case ActionUp:
		return "up"
	case ActionDown:
		return "down"
	case ActionMove:
		return "move"
	default:
		return fmt.Sprintf("action(%d)", int32(a))
	}
}

// Valid reports whether a is one of the known actions
func (a Action) Valid() bool {
	return a == ActionUp || a == ActionDown || a == ActionMove
}

// ParseAction converts a key value (0 release, 1 press) into an action.
// Key repeat and other values are rejected.
func ParseAction(value int32) (Action, error) {
	switch value {
	case 0:
		return ActionUp, nil
	case 1:
		return ActionDown, nil
	default:
		return 0, fmt.Errorf("%w: key value %d", ErrInvalidAction, value)
	}
}

// PointerID identifies one simulated contact
type PointerID int32

const (
	// PointerClick carries the fixed-position primary click
	PointerClick PointerID = 1
	// PointerAim carries look movement
	PointerAim PointerID = 2
)

func (p PointerID) String() string {
	switch p {
	case PointerClick:
		return "click"
	case PointerAim:
		return "aim"
	default:
		return fmt.Sprintf("pointer(%d)", int32(p))
	}
}

// Pointers lists every pointer role a helper provides
var Pointers = []PointerID{PointerClick, PointerAim}

// SharedConfig is the runtime configuration a helper hands out to its consumers
type SharedConfig struct {
	SwipeDelayMs int
	Paused       bool
}

// Injector is the injection protocol. Every call may block on the peer.
type Injector interface {
	// InjectEvent places, moves or lifts a simulated contact
	InjectEvent(x, y float64, action Action, pointer PointerID) error
	// Pause suspends translation without lifting active contacts
	Pause() error
	// Resume continues translation
	Resume() error
	// Reload asks the helper to re-read its on-disk configuration
	Reload() error
	// SharedConfig returns the helper's current shared runtime configuration
	SharedConfig() (SharedConfig, error)
}

// Handle is a live connection to a helper. Done is closed when the peer dies;
// in-process handles never close it.
type Handle interface {
	Injector
	Done() <-chan struct{}
	Close() error
}

// IsPeerUnavailable reports whether err means the handle must be dropped
func IsPeerUnavailable(err error) bool {
	return errors.Is(err, ErrPeerUnavailable)
}
