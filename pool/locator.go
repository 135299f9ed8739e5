package pool

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/errors"
)

// Config wires a locator's collaborators. Everything the locator and
// the handlers it creates depend on is injected here.
type Config struct {
	// Loader fetches assets. Required.
	Loader resourcepool.Loader

	// Factory builds instances for handlers created by this locator.
	Factory resourcepool.Factory

	// Validate is the default asset check for created handlers.
	Validate func(asset any) error

	// Kind tags handlers created with the default spec.
	Kind string

	// Registry shares handlers between locators. A fresh one is
	// created when nil.
	Registry *Registry

	// Context is the lifecycle context for loads and teardown.
	Context context.Context
}

// Locator resolves keys to handlers and offers one-shot spawns with
// guaranteed cleanup of their transient holds.
type Locator struct {
	cfg Config
	reg *Registry
}

// NewLocator creates a locator from cfg.
func NewLocator(cfg Config) *Locator {
	if cfg.Kind == "" {
		cfg.Kind = KindDefault
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = NewRegistry()
	}
	return &Locator{cfg: cfg, reg: reg}
}

// Registry returns the backing registry.
func (loc *Locator) Registry() *Registry {
	return loc.reg
}

// Handler finds or creates the handler for key using the locator's
// default spec.
func (loc *Locator) Handler(key resourcepool.Key) (*Handler, error) {
	return loc.HandlerWithSpec(key, Spec{
		Kind:     loc.cfg.Kind,
		Loader:   loc.cfg.Loader,
		Factory:  loc.cfg.Factory,
		Validate: loc.cfg.Validate,
		Context:  loc.cfg.Context,
	})
}

// HandlerWithSpec finds or creates the handler for key. Finding an
// existing handler of a different kind is a conflict that leaves the
// entry untouched.
func (loc *Locator) HandlerWithSpec(key resourcepool.Key, spec Spec) (*Handler, error) {
	if !key.IsValid() {
		return nil, misuse(errors.PhaseLocate, key, "empty key")
	}
	if spec.Kind == "" {
		spec.Kind = KindDefault
	}

	for {
		if h, ok := loc.reg.TryGet(key); ok {
			if h.Kind() != spec.Kind {
				err := errors.HandlerMismatch(string(key), spec.Kind, h.Kind())
				Logger().Warn("handler kind mismatch",
					zap.String("key", string(key)),
					zap.String("want", spec.Kind),
					zap.String("have", h.Kind()))
				return nil, err
			}
			return h, nil
		}

		h := NewHandler(key, spec)
		if err := loc.reg.Register(key, h); err == nil {
			return h, nil
		}
		// Lost a create race; pick up the winner on the next pass.
	}
}

// SpawnOne loads key if needed, spawns one instance, and drops its
// transient hold before returning. The lease alone then keeps the
// resource alive; the handler may tear down as soon as it is closed.
func (loc *Locator) SpawnOne(ctx context.Context, key resourcepool.Key, params resourcepool.SpawnParams) (*Lease, error) {
	h, err := loc.Handler(key)
	if err != nil {
		return nil, err
	}

	h.Retain()
	defer h.Release()

	if err := h.WaitLoaded(ctx); err != nil {
		return nil, err
	}
	return h.Spawn(ctx, params)
}

// SpawnAs is SpawnOne with a typed capability check on the instance.
// On a validation failure the live lease is returned alongside the
// error; the caller still owns its despawn.
func SpawnAs[T any](ctx context.Context, loc *Locator, key resourcepool.Key, params resourcepool.SpawnParams) (T, *Lease, error) {
	var zero T

	l, err := loc.SpawnOne(ctx, key, params)
	if err != nil {
		return zero, nil, err
	}

	v, ok := l.Instance().(T)
	if !ok {
		verr := errors.Validation(errors.PhaseSpawn, string(key), "instance does not satisfy the required capability")
		Logger().Warn("spawned instance failed capability check",
			zap.String("key", string(key)))
		return zero, l, verr
	}
	return v, l, nil
}

// Preload warms handlers for keys concurrently, taking one hold per
// key. The returned release drops those holds. On error every hold
// already taken is dropped before returning.
func (loc *Locator) Preload(ctx context.Context, keys ...resourcepool.Key) (func(), error) {
	handlers := make([]*Handler, len(keys))

	g, ctx := errgroup.WithContext(ctx)
	for i, key := range keys {
		g.Go(func() error {
			h, err := loc.Handler(key)
			if err != nil {
				return err
			}
			handlers[i] = h
			return h.RetainAndWait(ctx)
		})
	}

	release := func() {
		for _, h := range handlers {
			if h != nil {
				h.Release()
			}
		}
	}

	if err := g.Wait(); err != nil {
		release()
		return nil, err
	}
	return release, nil
}
