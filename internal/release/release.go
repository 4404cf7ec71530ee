// Package release ends a grabbed aim session when the user can no longer
// reach the terminal
package release

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bnema/touchbridge/internal/logger"
)

// Reasons passed to the release callback
const (
	ReasonSignal = "signal"
	ReasonFile   = "file"
)

// Watcher fires once on SIGUSR1 or when File appears
type Watcher struct {
	File     string
	Interval time.Duration

	once      sync.Once
	onRelease func(reason string)
}

// New creates a watcher for the given trigger file. An empty path only
// listens for the signal.
func New(file string, onRelease func(reason string)) *Watcher {
	return &Watcher{
		File:      file,
		Interval:  time.Second,
		onRelease: onRelease,
	}
}

// Start watches until ctx is done
func (w *Watcher) Start(ctx context.Context) {
	// A stale trigger from an earlier session would end this one at once
	if w.File != "" {
		os.Remove(w.File)
		go w.watchFile(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	go w.watchSignal(ctx, sigChan)

	logger.Debug("Release triggers armed", "file", w.File, "signal", "SIGUSR1")
}

func (w *Watcher) watchSignal(ctx context.Context, sigChan chan os.Signal) {
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		w.trigger(ReasonSignal)
	case <-ctx.Done():
	}
}

func (w *Watcher) watchFile(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := os.Stat(w.File); err == nil {
				os.Remove(w.File)
				w.trigger(ReasonFile)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) trigger(reason string) {
	w.once.Do(func() {
		logger.Warnf("Releasing aim session (reason: %s)", reason)
		if w.onRelease != nil {
			w.onRelease(reason)
		}
	})
}
