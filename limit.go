package resourcepool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// LimitLoader wraps next so that at most max loads run concurrently.
// Callers still receive tickets immediately; queued loads stay pending
// until a slot frees up. A max of zero or less returns next unchanged.
func LimitLoader(next Loader, max int64) Loader {
	if max <= 0 {
		return next
	}
	sem := semaphore.NewWeighted(max)

	return LoaderFunc(func(ctx context.Context, key Key) Ticket {
		t := NewTicket()

		// The inner ticket owns the asset; releasing the outer ticket
		// forwards to it. inner is written before t resolves, so the
		// ticket mutex orders the accesses.
		var inner Ticket
		t.ReleaseFunc = func(any) {
			if inner != nil {
				inner.Release()
			}
		}

		go func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				t.Fail(err)
				return
			}
			defer sem.Release(1)

			inner = next.Load(ctx, key)
			select {
			case <-ctx.Done():
				inner.Release()
				t.Fail(ctx.Err())
				return
			case <-inner.Done():
			}

			asset, err := inner.Result()
			if err != nil {
				inner.Release()
				t.Fail(err)
				return
			}
			t.Resolve(asset)
		}()
		return t
	})
}
