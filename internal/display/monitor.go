// Package display detects the size of the screen the helper injects into
package display

import (
	"context"
	"fmt"

	"github.com/bnema/touchbridge/internal/logger"
)

// Monitor is one enabled output
type Monitor struct {
	Name    string
	X       int32 // Position in global coordinate space
	Y       int32
	Width   int32
	Height  int32
	Primary bool
	Scale   float64
}

// Contains checks if a point is within this monitor
func (m *Monitor) Contains(x, y int32) bool {
	return x >= m.X && x < m.X+m.Width && y >= m.Y && y < m.Y+m.Height
}

// Lister returns the enabled monitors
type Lister interface {
	Monitors(ctx context.Context) ([]*Monitor, error)
}

// Primary returns the primary monitor, or the first one when none is marked
func Primary(monitors []*Monitor) *Monitor {
	for _, m := range monitors {
		if m.Primary {
			return m
		}
	}
	if len(monitors) > 0 {
		return monitors[0]
	}
	return nil
}

// Size returns the primary monitor size reported by l
func Size(ctx context.Context, l Lister) (width, height int, err error) {
	monitors, err := l.Monitors(ctx)
	if err != nil {
		return 0, 0, err
	}
	m := Primary(monitors)
	if m == nil {
		return 0, 0, fmt.Errorf("no active monitors found")
	}
	return int(m.Width), int(m.Height), nil
}

// Resolve returns the detected primary monitor size, or the given fallback
// when detection fails
func Resolve(ctx context.Context, l Lister, fallbackW, fallbackH int) (int, int) {
	w, h, err := Size(ctx, l)
	if err != nil {
		logger.Warnf("Display detection failed, using %dx%d: %v", fallbackW, fallbackH, err)
		return fallbackW, fallbackH
	}
	logger.Debugf("Detected display %dx%d", w, h)
	return w, h
}
