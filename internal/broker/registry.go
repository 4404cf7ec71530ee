package broker

import (
	"sync"

	"github.com/bnema/touchbridge/internal/logger"
	"github.com/bnema/touchbridge/internal/protocol"
)

// Registry holds the one live handle of the process. A stored handle stays
// until its death notification fires.
type Registry struct {
	mu     sync.Mutex
	handle protocol.Handle
	tier   Tier
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Get returns the cached handle and the tier that produced it. A handle whose
// death notification already fired is dropped here rather than returned.
func (r *Registry) Get() (protocol.Handle, Tier) {
	r.mu.Lock()
	h := r.handle
	if h == nil {
		r.mu.Unlock()
		return nil, TierNone
	}

	if dead(h) {
		r.mu.Unlock()
		r.Invalidate(h)
		return nil, TierNone
	}

	defer r.mu.Unlock()
	return r.handle, r.tier
}

// GetOrResolve returns the cached handle, or stores the result of resolve
func (r *Registry) GetOrResolve(resolve func() (protocol.Handle, Tier, error)) (protocol.Handle, error) {
	if h, _ := r.Get(); h != nil {
		return h, nil
	}

	h, tier, err := resolve()
	if err != nil {
		return nil, err
	}
	return r.Store(h, tier), nil
}

// Store caches h and watches it for death. If another live handle got there
// first, h is closed and the cached one is returned.
func (r *Registry) Store(h protocol.Handle, tier Tier) protocol.Handle {
	r.mu.Lock()
	if r.handle != nil && r.handle != h && !dead(r.handle) {
		current := r.handle
		r.mu.Unlock()
		_ = h.Close()
		return current
	}
	stale := r.handle
	alreadyStored := stale == h
	r.handle = h
	r.tier = tier
	r.mu.Unlock()

	if stale != nil && !alreadyStored {
		_ = stale.Close()
	}

	if !alreadyStored {
		go r.watch(h)
	}
	return h
}

// Invalidate drops h if it is still the cached handle
func (r *Registry) Invalidate(h protocol.Handle) bool {
	r.mu.Lock()
	if r.handle != h || h == nil {
		r.mu.Unlock()
		return false
	}
	tier := r.tier
	r.handle = nil
	r.tier = TierNone
	r.mu.Unlock()

	logger.Info("Helper connection lost, cached handle dropped", "tier", tier)
	_ = h.Close()
	return true
}

func (r *Registry) watch(h protocol.Handle) {
	<-h.Done()
	r.Invalidate(h)
}

func dead(h protocol.Handle) bool {
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}
