package pool

import (
	"context"

	resourcepool "github.com/wippyai/resource-pool"
)

// leaseState tracks where a lease's instance currently lives.
// Guarded by the owning handler's mutex.
type leaseState uint8

const (
	leaseSpawned leaseState = iota
	leaseIdle
	leaseDestroyed
)

// Lease is the owned handle to one instance checked out of a handler.
// Despawn hands the instance back for reuse; Close destroys it
// outright and settles the handler's books either way. A lease that
// went through teardown while idle is already destroyed.
type Lease struct {
	id       string
	handler  *Handler
	instance resourcepool.Instance
	state    leaseState
}

// ID returns the lease identity: the InstanceID pinned in SpawnParams,
// or a generated UUID. Reused instances keep their identity.
func (l *Lease) ID() string {
	return l.id
}

// Key returns the key of the handler this lease came from.
func (l *Lease) Key() resourcepool.Key {
	return l.handler.key
}

// Instance returns the live instance. It is only valid to use while
// Spawned reports true.
func (l *Lease) Instance() resourcepool.Instance {
	return l.instance
}

// Spawned reports whether the instance is currently checked out.
func (l *Lease) Spawned() bool {
	l.handler.mu.Lock()
	defer l.handler.mu.Unlock()
	return l.state == leaseSpawned
}

// Despawn returns the instance to the handler's free-list.
func (l *Lease) Despawn() error {
	return l.handler.Despawn(l)
}

// Close destroys the instance out of band: a spawned instance is
// despawned implicitly without joining the free-list, an idle one is
// removed from it. Closing a destroyed lease is a no-op.
func (l *Lease) Close(ctx context.Context) error {
	return l.handler.closeLease(ctx, l)
}
