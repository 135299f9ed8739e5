package resourcepool

import (
	"context"
	"errors"
	"sync"
)

// ErrPending is returned by Result before a load resolves.
var ErrPending = errors.New("load pending")

// LoadFunc performs the fetch-and-decode work for one key.
type LoadFunc func(ctx context.Context, key Key) (any, error)

// LoadTicket is the reference Ticket implementation used by the loaders
// in this repository. Resolution is one-shot: the first Resolve or Fail
// wins and later calls are no-ops.
type LoadTicket struct {
	// ReleaseFunc, when set, is invoked exactly once after a successful
	// load to free the asset: by Release, or on resolution if the
	// ticket was already abandoned. Set it before the ticket is shared.
	ReleaseFunc func(asset any)

	done     chan struct{}
	mu       sync.Mutex
	status   TicketStatus
	asset    any
	err      error
	released bool
}

// NewTicket returns a pending ticket.
func NewTicket() *LoadTicket {
	return &LoadTicket{done: make(chan struct{})}
}

// Resolved returns a ticket already resolved with asset.
func Resolved(asset any) *LoadTicket {
	t := NewTicket()
	t.Resolve(asset)
	return t
}

// Failed returns a ticket already failed with err.
func Failed(err error) *LoadTicket {
	t := NewTicket()
	t.Fail(err)
	return t
}

// Start runs fn in a new goroutine and returns the ticket tracking it.
func Start(ctx context.Context, key Key, fn LoadFunc) *LoadTicket {
	t := NewTicket()
	go func() {
		asset, err := fn(ctx, key)
		if err != nil {
			t.Fail(err)
			return
		}
		t.Resolve(asset)
	}()
	return t
}

// Resolve marks the load as succeeded. No-op once resolved.
// If the ticket was released while pending, the asset is freed
// immediately instead of being stored.
func (t *LoadTicket) Resolve(asset any) {
	t.mu.Lock()
	if t.status != TicketPending {
		t.mu.Unlock()
		return
	}
	t.status = TicketSucceeded
	if t.released {
		fn := t.ReleaseFunc
		close(t.done)
		t.mu.Unlock()
		if fn != nil {
			fn(asset)
		}
		return
	}
	t.asset = asset
	close(t.done)
	t.mu.Unlock()
}

// Fail marks the load as failed. No-op once resolved.
func (t *LoadTicket) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TicketPending {
		return
	}
	t.status = TicketFailed
	t.err = err
	close(t.done)
}

// Done returns a channel closed when the load resolves.
func (t *LoadTicket) Done() <-chan struct{} {
	return t.done
}

// Status reports the current resolution state.
func (t *LoadTicket) Status() TicketStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Result returns the loaded asset or the load error. Before resolution
// it returns ErrPending.
func (t *LoadTicket) Result() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.status {
	case TicketSucceeded:
		return t.asset, nil
	case TicketFailed:
		return nil, t.err
	default:
		return nil, ErrPending
	}
}

// Release frees the loaded asset via ReleaseFunc. Only the first call
// acts. Releasing a pending ticket discards the asset when it arrives.
func (t *LoadTicket) Release() {
	t.mu.Lock()
	if t.released {
		t.mu.Unlock()
		return
	}
	t.released = true
	asset := t.asset
	status := t.status
	fn := t.ReleaseFunc
	t.asset = nil
	t.mu.Unlock()

	if status == TicketSucceeded && fn != nil {
		fn(asset)
	}
}

var _ Ticket = (*LoadTicket)(nil)
