package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bnema/touchbridge/internal/broker"
	"github.com/bnema/touchbridge/internal/input"
	"github.com/bnema/touchbridge/internal/protocol"
)

type injection struct {
	x, y    float64
	action  protocol.Action
	pointer protocol.PointerID
}

// recordingHandle is a helper connection that records injections and can die
type recordingHandle struct {
	mu       sync.Mutex
	injected []injection
	ops      []string
	dead     atomic.Bool
	shared   protocol.SharedConfig
	done     chan struct{}
}

func newRecordingHandle() *recordingHandle {
	return &recordingHandle{done: make(chan struct{})}
}

func (h *recordingHandle) InjectEvent(x, y float64, action protocol.Action, pointer protocol.PointerID) error {
	if h.dead.Load() {
		return fmt.Errorf("inject: %w", protocol.ErrPeerUnavailable)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.injected = append(h.injected, injection{x, y, action, pointer})
	return nil
}

func (h *recordingHandle) op(name string) error {
	if h.dead.Load() {
		return fmt.Errorf("%s: %w", name, protocol.ErrPeerUnavailable)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ops = append(h.ops, name)
	return nil
}

func (h *recordingHandle) Pause() error  { return h.op("pause") }
func (h *recordingHandle) Resume() error { return h.op("resume") }
func (h *recordingHandle) Reload() error { return h.op("reload") }

func (h *recordingHandle) SharedConfig() (protocol.SharedConfig, error) {
	if h.dead.Load() {
		return protocol.SharedConfig{}, protocol.ErrPeerUnavailable
	}
	return h.shared, nil
}

func (h *recordingHandle) Done() <-chan struct{} { return h.done }
func (h *recordingHandle) Close() error          { return nil }

func (h *recordingHandle) injections() []injection {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]injection(nil), h.injected...)
}

func (h *recordingHandle) last() (injection, bool) {
	all := h.injections()
	if len(all) == 0 {
		return injection{}, false
	}
	return all[len(all)-1], true
}

// queueBroker hands out its handles in order
type queueBroker struct {
	mu      sync.Mutex
	handles []protocol.Handle
	calls   int
}

func (b *queueBroker) AcquireWait(ctx context.Context) (protocol.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if len(b.handles) == 0 {
		return nil, protocol.ErrAcquisitionAbandoned
	}
	h := b.handles[0]
	b.handles = b.handles[1:]
	return h, nil
}

func (b *queueBroker) Tier() broker.Tier { return broker.TierCachedHandle }

// fixedAcquirer delivers h, or nothing when h is nil
type fixedAcquirer struct {
	h protocol.Handle
}

func (a fixedAcquirer) Acquire(ctx context.Context, exec broker.Executor, cb broker.Callback) {
	if a.h == nil {
		return
	}
	exec.Execute(func() { cb(a.h) })
}

type event struct {
	code  uint16
	value int32
}

// scriptedSource replays events, calling before(i) ahead of event i
type scriptedSource struct {
	events []event
	before func(i int)
}

func (s scriptedSource) Run(ctx context.Context, sink input.Sink) error {
	for i, ev := range s.events {
		if s.before != nil {
			s.before(i)
		}
		if err := sink(ev.code, ev.value); err != nil {
			if errors.Is(err, input.ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}
