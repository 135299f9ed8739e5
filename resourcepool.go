package resourcepool

import "context"

// Key addresses a loadable resource: a content path, a GUID, or any
// stable identifier the configured Loader understands.
// The zero value is invalid.
type Key string

// IsValid reports whether the key addresses anything at all.
func (k Key) IsValid() bool {
	return k != ""
}

// TicketStatus describes the resolution state of a load ticket.
type TicketStatus uint8

const (
	TicketPending TicketStatus = iota
	TicketSucceeded
	TicketFailed
)

// String returns the lower-case name of the status.
func (s TicketStatus) String() string {
	switch s {
	case TicketPending:
		return "pending"
	case TicketSucceeded:
		return "succeeded"
	case TicketFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Ticket tracks one asynchronous load issued by a Loader.
type Ticket interface {
	// Done returns a channel closed when the load resolves.
	Done() <-chan struct{}

	// Status reports the current resolution state.
	Status() TicketStatus

	// Result returns the loaded asset after success or the load error
	// after failure. Before resolution it returns ErrPending.
	Result() (any, error)

	// Release frees loader-side resources held for this load.
	// Safe to call more than once; only the first call acts.
	Release()
}

// Loader starts asynchronous loads.
type Loader interface {
	// Load begins loading the resource addressed by key and returns
	// immediately with a ticket tracking the attempt.
	Load(ctx context.Context, key Key) Ticket
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, key Key) Ticket

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, key Key) Ticket {
	return f(ctx, key)
}

// Instance is one live object produced from a loaded asset.
type Instance interface {
	// Close destroys the instance and releases everything it holds.
	Close(ctx context.Context) error
}

// Resetter is optionally implemented by instances that want to be
// scrubbed when they return to a handler's free-list.
type Resetter interface {
	Reset()
}

// Factory constructs instances from a loaded asset.
type Factory interface {
	// New builds one instance of the asset loaded under key.
	// params arrives verbatim from the spawn call.
	New(ctx context.Context, key Key, asset any, params SpawnParams) (Instance, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(ctx context.Context, key Key, asset any, params SpawnParams) (Instance, error)

// New implements Factory.
func (f FactoryFunc) New(ctx context.Context, key Key, asset any, params SpawnParams) (Instance, error) {
	return f(ctx, key, asset, params)
}

// SpawnParams carries placement hints for a spawned instance. The pool
// forwards it to the factory untouched; no field affects lifecycle
// bookkeeping.
type SpawnParams struct {
	// Position and Rotation place the instance in whatever space the
	// factory models. Rotation is a quaternion (x, y, z, w).
	Position [3]float64
	Rotation [4]float64

	// Parent optionally attaches the instance to an owning object.
	Parent any

	// WorldSpace keeps Position in world coordinates even when Parent
	// is set.
	WorldSpace bool

	// InstanceID pins the identity of a persisted instance. When empty
	// the pool assigns a fresh UUID to the lease.
	InstanceID string

	// Scene names the target scene or partition for the instance.
	Scene string
}
