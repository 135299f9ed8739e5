package pool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/errors"
)

// Reference is a typed claim on a keyed resource. T is the capability
// the loaded asset and its instances must satisfy; by default it is
// checked with a plain type assertion.
//
// A reference resolves its handler lazily on the first retain and
// forwards exactly one handler hold per retain. Its typed view of the
// asset is validated once per load and cached until the reference's
// own count returns to zero.
type Reference[T any] struct {
	mu       sync.Mutex
	loc      *Locator
	key      resourcepool.Key
	validate func(any) (T, bool)

	h       *Handler
	retains int
	view    T
	hasView bool

	leak *leakState
}

// leakState outlives its reference so the cleanup can inspect the
// books after the reference itself becomes unreachable.
type leakState struct {
	key resourcepool.Key // written when holds go 0 -> 1
	n   atomic.Int32
}

func reportLeak(ls *leakState) {
	if n := ls.n.Load(); n > 0 {
		Logger().Error("reference leaked",
			zap.String("key", string(ls.key)),
			zap.Error(errors.Leak(string(ls.key), int(n))))
	}
}

// NewReference creates a reference resolved through loc. The
// capability check is a type assertion to T.
func NewReference[T any](loc *Locator, key resourcepool.Key) *Reference[T] {
	return NewReferenceFunc(loc, key, func(asset any) (T, bool) {
		v, ok := asset.(T)
		return v, ok
	})
}

// NewReferenceFunc creates a reference with an explicit capability
// predicate mapping a raw asset or instance to its typed view.
func NewReferenceFunc[T any](loc *Locator, key resourcepool.Key, validate func(any) (T, bool)) *Reference[T] {
	r := &Reference[T]{
		loc:      loc,
		key:      key,
		validate: validate,
		leak:     &leakState{},
	}
	runtime.AddCleanup(r, reportLeak, r.leak)
	return r
}

// Key returns the bound key.
func (r *Reference[T]) Key() resourcepool.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.key
}

// IsValid reports whether the reference is bound to a key.
func (r *Reference[T]) IsValid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.key.IsValid()
}

// SetKey rebinds the reference and forgets the previously resolved
// handler. Misuse while any retain is held.
func (r *Reference[T]) SetKey(key resourcepool.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.retains > 0 {
		return misuse(errors.PhaseRetain, r.key, "SetKey while retained")
	}
	r.key = key
	r.h = nil
	return nil
}

// Retain claims the resource, resolving the handler on first use and
// forwarding one handler hold.
func (r *Reference[T]) Retain() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.key.IsValid() {
		return misuse(errors.PhaseRetain, r.key, "retain on an unbound reference")
	}
	if r.h == nil {
		h, err := r.loc.Handler(r.key)
		if err != nil {
			return err
		}
		r.h = h
	}

	r.h.Retain()
	r.retains++
	if r.retains == 1 {
		r.leak.key = r.key
	}
	r.leak.n.Add(1)
	return nil
}

// RetainAndWait retains, blocks until the asset is ready, then runs
// the capability predicate and caches the typed view. The hold is
// kept on every failure path; release it explicitly.
func (r *Reference[T]) RetainAndWait(ctx context.Context) error {
	if err := r.Retain(); err != nil {
		return err
	}

	r.mu.Lock()
	h := r.h
	r.mu.Unlock()

	if err := h.WaitLoaded(ctx); err != nil {
		return err
	}
	return r.resolveView(h)
}

// resolveView validates the loaded asset and caches the typed view.
func (r *Reference[T]) resolveView(h *Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasView {
		return nil
	}

	asset, err := h.Asset()
	if err != nil {
		return err
	}
	view, ok := r.validate(asset)
	if !ok {
		verr := errors.Validation(errors.PhaseValidate, string(r.key), "asset does not satisfy the required capability")
		Logger().Warn("asset failed capability check",
			zap.String("key", string(r.key)))
		return verr
	}
	r.view = view
	r.hasView = true
	return nil
}

// Loaded reports whether the asset is ready and passed the capability
// check for this reference.
func (r *Reference[T]) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasView && r.h != nil && r.h.Status() == StatusLoaded
}

// Asset returns the cached typed view of the loaded asset.
func (r *Reference[T]) Asset() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasView {
		var zero T
		return zero, errors.NotLoaded(errors.PhaseValidate, string(r.key))
	}
	return r.view, nil
}

// Spawn checks an instance out through the handler and validates the
// capability on it. On a validation failure the lease is still
// returned live; the caller owns its despawn either way.
func (r *Reference[T]) Spawn(ctx context.Context, params resourcepool.SpawnParams) (T, *Lease, error) {
	var zero T

	r.mu.Lock()
	if r.retains == 0 {
		r.mu.Unlock()
		return zero, nil, misuse(errors.PhaseSpawn, r.key, "spawn without a hold")
	}
	h := r.h
	r.mu.Unlock()

	l, err := h.Spawn(ctx, params)
	if err != nil {
		return zero, nil, err
	}

	view, ok := r.validate(l.Instance())
	if !ok {
		verr := errors.Validation(errors.PhaseSpawn, string(r.key), "instance does not satisfy the required capability")
		Logger().Warn("spawned instance failed capability check",
			zap.String("key", string(r.key)))
		return zero, l, verr
	}
	return view, l, nil
}

// Release drops one claim and forwards one handler release. At zero
// the cached view is forgotten; the handler may stay alive through
// other holders.
func (r *Reference[T]) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.retains == 0 {
		return misuse(errors.PhaseRelease, r.key, "release without a matching retain")
	}
	r.retains--
	r.leak.n.Add(-1)
	if r.retains == 0 {
		var zero T
		r.view = zero
		r.hasView = false
	}
	return r.h.Release()
}

// Retains returns the reference's own hold count.
func (r *Reference[T]) Retains() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retains
}
