// Package input reads relative motion and buttons from an evdev pointer device
package input

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bnema/touchbridge/internal/logger"
	evdev "github.com/gvalkov/golang-evdev"
)

// ErrStop can be returned by a Sink to end Run without an error
var ErrStop = errors.New("stop reading")

// Sink receives the (code, value) pair of each relative motion or key event.
// Returning an error stops the reader.
type Sink func(code uint16, value int32) error

// Reader delivers the events of one device to a Sink from a single goroutine
type Reader struct {
	device  *evdev.InputDevice
	grabbed bool

	closeOnce sync.Once
	closeErr  error
}

// Open opens the device at path and optionally grabs it so that the desktop
// stops seeing its events
func Open(path string, grab bool) (*Reader, error) {
	device, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input device %s: %w", path, err)
	}

	r := &Reader{device: device}
	if grab {
		if err := device.Grab(); err != nil {
			_ = device.File.Close()
			return nil, fmt.Errorf("failed to grab %s: %w", path, err)
		}
		r.grabbed = true
		logger.Debugf("Grabbed exclusive access to %s", path)
	}

	logger.Infof("Reading input from %s (%s)", device.Name, device.Fn)
	return r, nil
}

// Name returns the device name
func (r *Reader) Name() string {
	return r.device.Name
}

// Run reads until ctx is done, the device fails or sink returns an error
func (r *Reader) Run(ctx context.Context, sink Sink) error {
	stop := make(chan struct{})
	defer close(stop)

	// Closing the device unblocks the pending read
	go func() {
		select {
		case <-ctx.Done():
			_ = r.Close()
		case <-stop:
		}
	}()

	for {
		events, err := r.device.Read()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read input events: %w", err)
		}

		if err := Dispatch(events, sink); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
}

// Close releases the grab and closes the device
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		if r.grabbed {
			if err := r.device.Release(); err != nil {
				logger.Warnf("Failed to release input device: %v", err)
			}
		}
		r.closeErr = r.device.File.Close()
	})
	return r.closeErr
}

// Dispatch forwards the EV_REL and EV_KEY events of a batch to sink in order
func Dispatch(events []evdev.InputEvent, sink Sink) error {
	for _, ev := range events {
		switch ev.Type {
		case evdev.EV_REL, evdev.EV_KEY:
			if err := sink(ev.Code, ev.Value); err != nil {
				return err
			}
		}
	}
	return nil
}
