package pool

import (
	"fmt"
	"sort"
	"sync"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/errors"
)

// Registry maps keys to their handlers and enforces one handler per
// key. Locators share a registry to share handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[resourcepool.Key]*Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[resourcepool.Key]*Handler),
	}
}

// TryGet returns the registered handler for key.
func (r *Registry) TryGet(key resourcepool.Key) (*Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[key]
	return h, ok
}

// Register adds a handler under key. Registering over an existing
// entry is a conflict and leaves it untouched.
func (r *Registry) Register(key resourcepool.Key, h *Handler) error {
	if !key.IsValid() {
		return misuse(errors.PhaseRegister, key, "empty key")
	}
	if h == nil {
		return misuse(errors.PhaseRegister, key, "nil handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[key]; ok {
		return errors.AlreadyRegistered(string(key))
	}
	r.handlers[key] = h
	return nil
}

// Evict removes the mapping for key so the next find-or-create builds
// a fresh handler. Busy while the handler still has holders or live
// instances.
func (r *Registry) Evict(key resourcepool.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handlers[key]
	if !ok {
		return errors.NotFound(errors.PhaseRegister, string(key))
	}
	st := h.Stats()
	if st.Retains > 0 || st.Live > 0 {
		return errors.Busy(string(key), fmt.Sprintf("%d retains, %d live instances", st.Retains, st.Live))
	}
	delete(r.handlers, key)
	return nil
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []resourcepool.Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]resourcepool.Key, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Stats snapshots every registered handler, sorted by key.
func (r *Registry) Stats() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Stats, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
