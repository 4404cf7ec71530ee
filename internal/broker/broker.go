// Package broker finds, starts or binds to a privileged helper and keeps one
// live injection handle for the whole process.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/protocol"
	"golang.org/x/sync/singleflight"
)

// ErrElevationDenied is returned by a spawner when the user refused root
var ErrElevationDenied = errors.New("elevation denied")

// Callback receives an acquired handle. It must not close it.
type Callback func(protocol.Handle)

// Tiers are the escalation paths a broker can walk. Nil functions are skipped.
type Tiers struct {
	// Elevated reports whether this process may run the helper itself
	Elevated func() bool
	// InProcess builds the helper in this process
	InProcess func() (protocol.Handle, error)
	// Probe connects to a helper that is already running
	Probe func(ctx context.Context) (protocol.Handle, error)
	// Alternate binds through the SSH endpoint with a granted key
	Alternate func(ctx context.Context) (protocol.Handle, error)
	// Spawn starts a root helper. A refusal wraps ErrElevationDenied.
	Spawn func(ctx context.Context) error
}

// Options configures a Broker
type Options struct {
	Tiers Tiers
	// UseAlternate prefers the SSH tier over spawning a root helper
	UseAlternate bool
	// SpawnTimeout bounds waiting for a spawned helper to show up
	SpawnTimeout time.Duration
	// PollInterval is the delay between probes after a spawn
	PollInterval time.Duration
}

// Broker resolves injection handles. It is safe for concurrent use.
type Broker struct {
	opts     Options
	registry *Registry
	group    singleflight.Group

	mu        sync.Mutex
	elevation Elevation
}

// New creates a broker with its own registry
func New(opts Options) *Broker {
	if opts.SpawnTimeout == 0 {
		opts.SpawnTimeout = 5 * time.Second
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = 50 * time.Millisecond
	}
	return &Broker{
		opts:     opts,
		registry: NewRegistry(),
	}
}

// Registry returns the registry backing the broker
func (b *Broker) Registry() *Registry {
	return b.registry
}

// Acquire delivers a live handle to cb on exec, exactly once, or never when
// every tier fails. It does not block. Failures are logged, not returned;
// callers that need a deadline use AcquireWait or their own timer.
// A ctx that is done by the time the handle is ready suppresses the callback.
func (b *Broker) Acquire(ctx context.Context, exec Executor, cb Callback) {
	b.acquire(ctx, exec, cb, nil)
}

// acquire is Acquire with an optional failure hook, called off the caller's goroutine
func (b *Broker) acquire(ctx context.Context, exec Executor, cb Callback, failed func(error)) {
	if h, _ := b.registry.Get(); h != nil {
		b.deliver(ctx, exec, cb, h)
		return
	}

	go func() {
		v, err, shared := b.group.Do("acquire", func() (interface{}, error) {
			return b.registry.GetOrResolve(func() (protocol.Handle, Tier, error) {
				return b.resolve(context.WithoutCancel(ctx))
			})
		})
		if err != nil {
			logger.Info("Helper acquisition abandoned", "err", err)
			if failed != nil {
				failed(err)
			}
			return
		}
		if shared {
			logger.Debug("Joined an acquisition already in flight")
		}
		b.deliver(ctx, exec, cb, v.(protocol.Handle))
	}()
}

func (b *Broker) deliver(ctx context.Context, exec Executor, cb Callback, h protocol.Handle) {
	if ctx.Err() != nil {
		logger.Debug("Acquisition no longer wanted, dropping callback")
		return
	}
	exec.Execute(func() { cb(h) })
}

// AcquireWait blocks until a handle is acquired, every tier failed or ctx is done
func (b *Broker) AcquireWait(ctx context.Context) (protocol.Handle, error) {
	ch := make(chan protocol.Handle, 1)
	errCh := make(chan error, 1)
	b.acquire(ctx, Inline, func(h protocol.Handle) { ch <- h }, func(err error) { errCh <- err })

	select {
	case h := <-ch:
		return h, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", protocol.ErrAcquisitionAbandoned, ctx.Err())
	}
}

// Tier reports the tier of the cached handle
func (b *Broker) Tier() Tier {
	h, tier := b.registry.Get()
	if h == nil {
		return TierNone
	}
	return tier
}

// Elevation reports the outcome of the last root request
func (b *Broker) Elevation() Elevation {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.elevation
}

func (b *Broker) setElevation(e Elevation) {
	b.mu.Lock()
	b.elevation = e
	b.mu.Unlock()
}

// Pause asks the helper to stop injecting, without waiting
func (b *Broker) Pause(ctx context.Context) {
	b.control(ctx, "pause", protocol.Injector.Pause)
}

// Resume asks the helper to inject again, without waiting
func (b *Broker) Resume(ctx context.Context) {
	b.control(ctx, "resume", protocol.Injector.Resume)
}

// Reload asks the helper to re-read its configuration, without waiting
func (b *Broker) Reload(ctx context.Context) {
	b.control(ctx, "reload", protocol.Injector.Reload)
}

func (b *Broker) control(ctx context.Context, name string, op func(protocol.Injector) error) {
	b.Acquire(ctx, Goroutine, func(h protocol.Handle) {
		if err := op(h); err != nil {
			logger.Warn("Helper control failed", "op", name, "err", err)
		}
	})
}

// resolve walks the tiers in order
func (b *Broker) resolve(ctx context.Context) (protocol.Handle, Tier, error) {
	t := b.opts.Tiers

	if t.Elevated != nil && t.Elevated() {
		if t.InProcess == nil {
			return nil, TierNone, fmt.Errorf("%w: no in-process helper", protocol.ErrAcquisitionAbandoned)
		}
		h, err := t.InProcess()
		if err != nil {
			return nil, TierNone, fmt.Errorf("%w: in-process helper: %v", protocol.ErrAcquisitionAbandoned, err)
		}
		logger.Info("Running the helper in-process")
		return h, TierInProcessElevated, nil
	}

	if t.Probe != nil {
		h, err := t.Probe(ctx)
		if err == nil {
			logger.Debug("Found a running helper")
			return h, TierCachedHandle, nil
		}
		logger.Debug("No running helper", "err", err)
	}

	if b.opts.UseAlternate {
		return b.bindAlternate(ctx)
	}
	return b.spawnRoot(ctx)
}

func (b *Broker) bindAlternate(ctx context.Context) (protocol.Handle, Tier, error) {
	if b.opts.Tiers.Alternate == nil {
		return nil, TierNone, fmt.Errorf("%w: no alternate broker", protocol.ErrAcquisitionAbandoned)
	}

	h, err := b.opts.Tiers.Alternate(ctx)
	if err != nil {
		if errors.Is(err, protocol.ErrAuthorizationDenied) {
			logger.Info("Alternate broker has no grant for this key")
		}
		return nil, TierNone, fmt.Errorf("%w: alternate broker: %v", protocol.ErrAcquisitionAbandoned, err)
	}

	logger.Info("Bound to the helper through the alternate broker")
	return h, TierAlternateBroker, nil
}

func (b *Broker) spawnRoot(ctx context.Context) (protocol.Handle, Tier, error) {
	t := b.opts.Tiers
	if t.Spawn == nil || t.Probe == nil {
		return nil, TierNone, fmt.Errorf("%w: root spawn unavailable", protocol.ErrAcquisitionAbandoned)
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.SpawnTimeout)
	defer cancel()

	if err := t.Spawn(ctx); err != nil {
		if errors.Is(err, ErrElevationDenied) {
			b.setElevation(ElevationDenied)
		}
		return nil, TierNone, fmt.Errorf("%w: spawn helper: %v", protocol.ErrAcquisitionAbandoned, err)
	}
	b.setElevation(ElevationGranted)

	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	for {
		h, err := t.Probe(ctx)
		if err == nil {
			logger.Info("Bound to the spawned helper")
			return h, TierRootSpawned, nil
		}

		select {
		case <-ctx.Done():
			return nil, TierNone, fmt.Errorf("%w: spawned helper never answered: %v", protocol.ErrAcquisitionAbandoned, err)
		case <-ticker.C:
		}
	}
}
