// Package pool implements the keyed resource lifecycle: handlers that
// load an asset once and pool its instances, typed references over
// those handlers, and a locator that deduplicates handlers per key.
//
// # Handler Lifecycle
//
// A Handler owns one key and walks a four state machine:
//
//	NotLoaded -> Loading -> Loaded
//	                     -> Failed
//
// The first Retain starts the load through the configured Loader. The
// asset and its pooled instances are torn down only when the retain
// count and the live instance count are both zero and the asset is
// Loaded. A Failed handler resets to NotLoaded once fully released,
// so the next retain tries again.
//
// # Locator
//
// The Locator hands out one Handler per key, shared by every caller:
//
//	loc := pool.NewLocator(pool.Config{
//	    Loader:  loader,
//	    Factory: factory,
//	})
//
//	h, err := loc.Handler("model/crate")
//
// One-shot helpers retain, wait, spawn, and always pair the retain
// with a release:
//
//	lease, err := loc.SpawnOne(ctx, "model/crate", resourcepool.SpawnParams{})
//	if err != nil {
//	    return err
//	}
//	defer lease.Despawn()
//
// # References
//
// A Reference[T] binds a key to a capability type. The asset is
// checked against T once per load and the typed view is cached:
//
//	ref := pool.NewReference[*Model](loc, "model/crate")
//	if err := ref.RetainAndWait(ctx); err != nil {
//	    return err
//	}
//	defer ref.Release()
//
//	model, _ := ref.Asset()
//
// A reference that becomes unreachable while still holding retains is
// reported as a leak through the package logger.
//
// # Leases
//
// Spawn returns a Lease owning one instance. Despawn returns the
// instance to the handler's free list for reuse; Close destroys it
// instead. A lease is single-owner and not safe for concurrent use,
// everything else in the package is.
package pool
