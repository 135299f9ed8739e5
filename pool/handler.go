package pool

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/errors"
)

// Status is the lifecycle state of a Handler.
type Status uint8

const (
	StatusNotLoaded Status = iota
	StatusLoading
	StatusLoaded
	StatusFailed
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusNotLoaded:
		return "not_loaded"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// KindDefault tags handlers created without an explicit kind.
const KindDefault = "default"

// Spec configures a handler: how its asset loads, how instances are
// built, and what the loaded asset must look like.
type Spec struct {
	// Kind discriminates handler variants sharing a registry. Two
	// requests for the same key must agree on it. Empty means default.
	Kind string

	// Loader starts asset loads. Required.
	Loader resourcepool.Loader

	// Factory builds instances from the loaded asset. Handlers that
	// only retain may leave it nil.
	Factory resourcepool.Factory

	// Validate, when set, checks the loaded asset before the handler
	// reports Loaded. A validation error fails the load and frees the
	// asset.
	Validate func(asset any) error

	// Context is handed to the loader and to instance destruction.
	// Defaults to context.Background().
	Context context.Context
}

// Handler owns the lifecycle of one keyed resource: its load, the
// holders keeping it alive, and the pool of instances spawned from it.
//
// A handler tears down, destroying idle instances and releasing the
// load ticket, exactly when it has no holders and no live instances
// and the load had settled. A Failed handler in the same position
// resets to NotLoaded so a later retain can try again.
//
// Handlers are safe for concurrent use.
type Handler struct {
	key  resourcepool.Key
	spec Spec

	mu      sync.Mutex
	status  Status
	retains int
	live    int
	free    []*Lease
	ticket  resourcepool.Ticket
	asset   any
	loadErr error
	done    chan struct{} // closed when the current load attempt settles
	gen     uint64        // load attempt generation

	constructed uint64
	reused      uint64
}

// Stats is a point-in-time snapshot of a handler's books.
type Stats struct {
	Key         resourcepool.Key
	Kind        string
	Status      Status
	Retains     int
	Live        int
	Idle        int
	Constructed uint64
	Reused      uint64
}

// NewHandler creates a handler for key. It starts NotLoaded and begins
// loading on the first retain.
func NewHandler(key resourcepool.Key, spec Spec) *Handler {
	if spec.Kind == "" {
		spec.Kind = KindDefault
	}
	if spec.Context == nil {
		spec.Context = context.Background()
	}
	return &Handler{key: key, spec: spec}
}

// Key returns the resource key.
func (h *Handler) Key() resourcepool.Key {
	return h.key
}

// Kind returns the handler's kind discriminator.
func (h *Handler) Kind() string {
	return h.spec.Kind
}

// Status reports the current lifecycle state.
func (h *Handler) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Stats snapshots the handler's counters.
func (h *Handler) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Key:         h.key,
		Kind:        h.spec.Kind,
		Status:      h.status,
		Retains:     h.retains,
		Live:        h.live,
		Idle:        len(h.free),
		Constructed: h.constructed,
		Reused:      h.reused,
	}
}

// Asset returns the loaded asset, the load error after a failure, or a
// not-loaded error otherwise.
func (h *Handler) Asset() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.status {
	case StatusLoaded:
		return h.asset, nil
	case StatusFailed:
		return nil, h.loadErr
	default:
		return nil, errors.NotLoaded(errors.PhaseLoad, string(h.key))
	}
}

// Retain adds one hold and starts the load if nothing is in flight.
// It never blocks; pair it with WaitLoaded to await readiness.
func (h *Handler) Retain() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.retains++
	if h.status == StatusNotLoaded {
		h.startLoadLocked()
	}
}

// RetainAndWait retains and blocks until the resource is ready. The
// hold is kept on every failure path; callers own exactly one release
// either way.
func (h *Handler) RetainAndWait(ctx context.Context) error {
	h.Retain()
	return h.WaitLoaded(ctx)
}

// WaitLoaded blocks until the in-flight load settles or ctx is done.
// It returns nil once Loaded, the load error once Failed, and a misuse
// error when no load was ever started.
func (h *Handler) WaitLoaded(ctx context.Context) error {
	for {
		h.mu.Lock()
		switch h.status {
		case StatusLoaded:
			h.mu.Unlock()
			return nil
		case StatusFailed:
			err := h.loadErr
			h.mu.Unlock()
			return err
		case StatusNotLoaded:
			h.mu.Unlock()
			return misuse(errors.PhaseRetain, h.key, "wait without a hold; retain first")
		}
		done := h.done
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
		}
	}
}

// Release drops one hold. Releasing below zero is a logged no-op.
func (h *Handler) Release() error {
	h.mu.Lock()
	if h.retains == 0 {
		h.mu.Unlock()
		return misuse(errors.PhaseRelease, h.key, "release without a matching retain")
	}
	h.retains--
	h.maybeTeardownLocked()
	h.mu.Unlock()
	return nil
}

// Spawn checks an instance out, reusing an idle one when available.
// During Loading it blocks until the load settles, then re-evaluates.
func (h *Handler) Spawn(ctx context.Context, params resourcepool.SpawnParams) (*Lease, error) {
	for {
		h.mu.Lock()
		switch h.status {
		case StatusNotLoaded:
			h.mu.Unlock()
			return nil, misuse(errors.PhaseSpawn, h.key, "spawn before retain")
		case StatusFailed:
			err := h.loadErr
			h.mu.Unlock()
			return nil, err
		case StatusLoading:
			done := h.done
			h.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-done:
			}
			continue
		}

		if h.retains == 0 {
			h.mu.Unlock()
			return nil, misuse(errors.PhaseSpawn, h.key, "spawn requires a current hold")
		}

		if n := len(h.free); n > 0 {
			l := h.free[n-1]
			h.free = h.free[:n-1]
			l.state = leaseSpawned
			h.live++
			h.reused++
			h.mu.Unlock()
			return l, nil
		}

		if h.spec.Factory == nil {
			h.mu.Unlock()
			return nil, misuse(errors.PhaseSpawn, h.key, "handler has no factory")
		}

		asset := h.asset
		h.live++ // keeps teardown off while the factory runs
		h.mu.Unlock()

		inst, err := h.spec.Factory.New(ctx, h.key, asset, params)
		if err != nil {
			h.mu.Lock()
			h.live--
			h.maybeTeardownLocked()
			h.mu.Unlock()
			return nil, errors.Instantiation(string(h.key), err)
		}

		l := &Lease{
			id:       params.InstanceID,
			handler:  h,
			instance: inst,
			state:    leaseSpawned,
		}
		if l.id == "" {
			l.id = uuid.NewString()
		}

		h.mu.Lock()
		h.constructed++
		h.mu.Unlock()
		return l, nil
	}
}

// Despawn returns a spawned instance to the free-list. The instance
// stays alive for reuse and is only destroyed at teardown.
func (h *Handler) Despawn(l *Lease) error {
	if l == nil {
		return misuse(errors.PhaseDespawn, h.key, "nil lease")
	}

	h.mu.Lock()
	if l.handler != h {
		h.mu.Unlock()
		return misuse(errors.PhaseDespawn, h.key, "lease belongs to a different handler")
	}
	if l.state != leaseSpawned {
		h.mu.Unlock()
		return misuse(errors.PhaseDespawn, h.key, "lease is not spawned")
	}
	if h.live == 0 {
		h.mu.Unlock()
		return misuse(errors.PhaseDespawn, h.key, "no live instances")
	}

	l.state = leaseIdle
	h.live--
	h.free = append(h.free, l)

	if r, ok := l.instance.(resourcepool.Resetter); ok {
		r.Reset()
	}

	h.maybeTeardownLocked()
	h.mu.Unlock()
	return nil
}

// RemoveIdle drops an idle instance from the free-list without
// destroying it. For callers that tore an instance down out of band
// and only then told the pool.
func (h *Handler) RemoveIdle(inst resourcepool.Instance) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, l := range h.free {
		if l.instance == inst {
			h.free = append(h.free[:i], h.free[i+1:]...)
			l.state = leaseDestroyed
			return true
		}
	}
	return false
}

// startLoadLocked begins a fresh load attempt.
func (h *Handler) startLoadLocked() {
	if h.spec.Loader == nil {
		h.status = StatusFailed
		h.loadErr = misuse(errors.PhaseLoad, h.key, "handler has no loader")
		return
	}

	h.status = StatusLoading
	h.loadErr = nil
	h.gen++
	h.done = make(chan struct{})
	h.ticket = h.spec.Loader.Load(h.spec.Context, h.key)

	go h.watch(h.ticket, h.gen)
}

// watch applies the ticket's resolution. It runs once per load attempt
// so completion lands even when every caller already walked away.
func (h *Handler) watch(t resourcepool.Ticket, gen uint64) {
	<-t.Done()
	h.finishLoad(gen)
}

// finishLoad applies one load attempt's resolution. It is idempotent:
// stale generations and repeated completions are no-ops.
func (h *Handler) finishLoad(gen uint64) {
	h.mu.Lock()
	if h.gen != gen || h.status != StatusLoading {
		h.mu.Unlock()
		return
	}

	t := h.ticket
	asset, err := t.Result()
	if err == nil && h.spec.Validate != nil {
		if verr := h.spec.Validate(asset); verr != nil {
			err = errors.ValidationCause(errors.PhaseLoad, string(h.key), verr)
		}
	}

	done := h.done
	if err != nil {
		h.status = StatusFailed
		h.loadErr = errors.LoadFailed(string(h.key), err)
		h.ticket = nil
		t.Release()
		Logger().Warn("load failed",
			zap.String("key", string(h.key)),
			zap.Error(err))
	} else {
		h.status = StatusLoaded
		h.asset = asset
	}

	h.maybeTeardownLocked()
	h.mu.Unlock()

	close(done)
}

// maybeTeardownLocked runs teardown when nothing keeps the resource
// alive: no holders, no live instances, and the load has settled.
func (h *Handler) maybeTeardownLocked() {
	if h.retains != 0 || h.live != 0 {
		return
	}
	switch h.status {
	case StatusLoaded:
		h.teardownLocked()
	case StatusFailed:
		// The ticket was already released when the failure landed.
		h.status = StatusNotLoaded
		h.loadErr = nil
		h.done = nil
	}
}

// teardownLocked destroys idle instances, releases the load ticket and
// returns the handler to NotLoaded.
func (h *Handler) teardownLocked() {
	for _, l := range h.free {
		l.state = leaseDestroyed
		if err := l.instance.Close(h.spec.Context); err != nil {
			Logger().Warn("instance close failed during teardown",
				zap.String("key", string(h.key)),
				zap.Error(err))
		}
	}
	h.free = nil

	if h.ticket != nil {
		h.ticket.Release()
		h.ticket = nil
	}
	h.asset = nil
	h.loadErr = nil
	h.status = StatusNotLoaded
	h.done = nil
}

// closeLease destroys a lease's instance out of band and settles the
// books: a spawned lease is despawned implicitly, an idle one leaves
// the free-list.
func (h *Handler) closeLease(ctx context.Context, l *Lease) error {
	h.mu.Lock()
	switch l.state {
	case leaseDestroyed:
		h.mu.Unlock()
		return nil
	case leaseSpawned:
		l.state = leaseDestroyed
		h.live--
		h.maybeTeardownLocked()
	case leaseIdle:
		l.state = leaseDestroyed
		for i, f := range h.free {
			if f == l {
				h.free = append(h.free[:i], h.free[i+1:]...)
				break
			}
		}
	}
	h.mu.Unlock()

	return l.instance.Close(ctx)
}

// misuse logs a contract violation and returns it as an error. The
// operation that raised it left all state unchanged.
func misuse(phase errors.Phase, key resourcepool.Key, detail string) *errors.Error {
	err := errors.Misuse(phase, string(key), detail)
	Logger().Warn("contract misuse",
		zap.String("phase", string(phase)),
		zap.String("key", string(key)),
		zap.String("detail", detail))
	return err
}
