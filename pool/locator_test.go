package pool

import (
	"context"
	"errors"
	"strings"
	"testing"

	resourcepool "github.com/wippyai/resource-pool"
)

func TestLocator_HandlerIdentity(t *testing.T) {
	loc := NewLocator(Config{Loader: modelLoader(), Kind: "model"})

	h1, err := loc.Handler("model/crate")
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	h2, err := loc.Handler("model/crate")
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if h1 != h2 {
		t.Fatal("same key produced two handlers")
	}

	// A mismatched kind must not disturb the existing entry.
	_, err = loc.HandlerWithSpec("model/crate", Spec{Kind: "texture", Loader: modelLoader()})
	if err == nil || !strings.Contains(err.Error(), "conflict") {
		t.Fatalf("err = %v, want conflict", err)
	}
	got, ok := loc.Registry().TryGet("model/crate")
	if !ok || got != h1 {
		t.Fatal("kind mismatch mutated the registry entry")
	}
	if got.Kind() != "model" {
		t.Fatalf("kind = %q, want model", got.Kind())
	}
}

func TestLocator_InvalidKey(t *testing.T) {
	loc := NewLocator(Config{Loader: modelLoader()})
	h, err := loc.Handler("")
	if err == nil || !strings.Contains(err.Error(), "misuse") {
		t.Fatalf("err = %v, want misuse", err)
	}
	if h != nil {
		t.Fatal("misuse returned a handler")
	}
}

func TestLocator_SharedRegistry(t *testing.T) {
	reg := NewRegistry()
	loc1 := NewLocator(Config{Loader: modelLoader(), Registry: reg})
	loc2 := NewLocator(Config{Loader: modelLoader(), Registry: reg})

	h1, err := loc1.Handler("model/crate")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := loc2.Handler("model/crate")
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatal("shared registry did not share the handler")
	}
}

func TestLocator_CubeScenario(t *testing.T) {
	loader := &manualLoader{}
	factory := &countingFactory{}
	loc := NewLocator(Config{Loader: loader, Factory: factory})

	h, err := loc.Handler("cube")
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	if h.Status() != StatusNotLoaded {
		t.Fatalf("initial status = %v", h.Status())
	}

	h.Retain()
	if h.Status() != StatusLoading {
		t.Fatalf("status after retain = %v", h.Status())
	}

	loader.ticket(0).Resolve("cube-mesh")
	if err := h.WaitLoaded(context.Background()); err != nil {
		t.Fatalf("WaitLoaded: %v", err)
	}

	l1, err := h.Spawn(context.Background(), resourcepool.SpawnParams{})
	if err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	l2, err := h.Spawn(context.Background(), resourcepool.SpawnParams{})
	if err != nil {
		t.Fatalf("second spawn: %v", err)
	}
	if st := h.Stats(); st.Live != 2 {
		t.Fatalf("live = %d, want 2", st.Live)
	}

	if err := l1.Despawn(); err != nil {
		t.Fatalf("despawn: %v", err)
	}
	if st := h.Stats(); st.Live != 1 || st.Idle != 1 {
		t.Fatalf("live/idle = %d/%d, want 1/1", st.Live, st.Idle)
	}

	// Zero holders, one live instance: no teardown yet.
	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if st := h.Stats(); st.Retains != 0 || st.Status != StatusLoaded {
		t.Fatalf("retains/status = %d/%v, want 0/loaded", st.Retains, st.Status)
	}
	if loader.freedCount() != 0 {
		t.Fatal("asset freed early")
	}

	// The last despawn flips both counts to zero and tears down.
	if err := l2.Despawn(); err != nil {
		t.Fatalf("final despawn: %v", err)
	}
	if h.Status() != StatusNotLoaded {
		t.Fatalf("status = %v, want not_loaded", h.Status())
	}
	if loader.freedCount() != 1 {
		t.Fatalf("freed = %d, want 1", loader.freedCount())
	}
	if st := h.Stats(); st.Idle != 0 {
		t.Fatalf("idle = %d after teardown", st.Idle)
	}
	for i, inst := range factory.built {
		if got := inst.closes.Load(); got != 1 {
			t.Fatalf("instance %d closes = %d, want 1", i, got)
		}
	}
}

func TestLocator_SpawnOne(t *testing.T) {
	t.Run("lease keeps resource alive", func(t *testing.T) {
		loc := NewLocator(Config{Loader: modelLoader(), Factory: renderFactory{}})

		lease, err := loc.SpawnOne(context.Background(), "model/crate", resourcepool.SpawnParams{})
		if err != nil {
			t.Fatalf("SpawnOne: %v", err)
		}

		h, _ := loc.Handler("model/crate")
		st := h.Stats()
		if st.Retains != 0 {
			t.Fatalf("transient hold leaked, retains = %d", st.Retains)
		}
		if st.Live != 1 || st.Status != StatusLoaded {
			t.Fatalf("live/status = %d/%v", st.Live, st.Status)
		}

		// Closing the lone lease releases everything.
		if err := lease.Close(context.Background()); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if h.Status() != StatusNotLoaded {
			t.Fatalf("status = %v after lease close", h.Status())
		}
	})

	t.Run("load failure releases the transient hold", func(t *testing.T) {
		boom := errors.New("no such mesh")
		loader := resourcepool.LoaderFunc(func(ctx context.Context, key resourcepool.Key) resourcepool.Ticket {
			return resourcepool.Failed(boom)
		})
		loc := NewLocator(Config{Loader: loader, Factory: renderFactory{}})

		_, err := loc.SpawnOne(context.Background(), "model/missing", resourcepool.SpawnParams{})
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want load failure", err)
		}

		h, _ := loc.Handler("model/missing")
		waitStatus(t, h, StatusNotLoaded)
		if got := h.Stats().Retains; got != 0 {
			t.Fatalf("retains = %d after failed one-shot", got)
		}
	})
}

func TestLocator_SpawnAs(t *testing.T) {
	t.Run("typed", func(t *testing.T) {
		loc := NewLocator(Config{Loader: modelLoader(), Factory: renderFactory{}})

		view, lease, err := SpawnAs[renderable](context.Background(), loc, "model/crate", resourcepool.SpawnParams{})
		if err != nil {
			t.Fatalf("SpawnAs: %v", err)
		}
		if view.MeshName() != "model/crate" {
			t.Fatalf("view = %q", view.MeshName())
		}
		lease.Close(context.Background())
	})

	t.Run("wrong capability", func(t *testing.T) {
		// countingFactory instances do not satisfy renderable.
		loc := NewLocator(Config{Loader: modelLoader(), Factory: &countingFactory{}})

		_, lease, err := SpawnAs[renderable](context.Background(), loc, "model/crate", resourcepool.SpawnParams{})
		if err == nil || !strings.Contains(err.Error(), "validation") {
			t.Fatalf("err = %v, want validation failure", err)
		}
		if lease == nil || !lease.Spawned() {
			t.Fatal("lease must come back live for the caller to settle")
		}

		h, _ := loc.Handler("model/crate")
		if got := h.Stats().Live; got != 1 {
			t.Fatalf("live = %d, want 1", got)
		}
		if err := lease.Despawn(); err != nil {
			t.Fatalf("Despawn: %v", err)
		}
		if h.Status() != StatusNotLoaded {
			t.Fatalf("status = %v, want torn down", h.Status())
		}
	})
}

func TestLocator_Preload(t *testing.T) {
	t.Run("warm and release", func(t *testing.T) {
		loc := NewLocator(Config{Loader: modelLoader(), Factory: renderFactory{}})

		release, err := loc.Preload(context.Background(), "model/a", "model/b", "model/c")
		if err != nil {
			t.Fatalf("Preload: %v", err)
		}

		for _, key := range []resourcepool.Key{"model/a", "model/b", "model/c"} {
			h, _ := loc.Handler(key)
			st := h.Stats()
			if st.Status != StatusLoaded || st.Retains != 1 {
				t.Fatalf("%s status/retains = %v/%d", key, st.Status, st.Retains)
			}
		}

		release()
		for _, key := range []resourcepool.Key{"model/a", "model/b", "model/c"} {
			h, _ := loc.Handler(key)
			if h.Status() != StatusNotLoaded {
				t.Fatalf("%s status = %v after release", key, h.Status())
			}
		}
	})

	t.Run("failure drops taken holds", func(t *testing.T) {
		boom := errors.New("corrupt archive")
		loader := resourcepool.LoaderFunc(func(ctx context.Context, key resourcepool.Key) resourcepool.Ticket {
			if key == "model/bad" {
				return resourcepool.Failed(boom)
			}
			return resourcepool.Resolved(&fakeModel{name: string(key)})
		})
		loc := NewLocator(Config{Loader: loader})

		_, err := loc.Preload(context.Background(), "model/good", "model/bad")
		if err == nil {
			t.Fatal("Preload should report the failed key")
		}

		for _, key := range []resourcepool.Key{"model/good", "model/bad"} {
			h, _ := loc.Handler(key)
			waitStatus(t, h, StatusNotLoaded)
			if got := h.Stats().Retains; got != 0 {
				t.Fatalf("%s retains = %d after failed preload", key, got)
			}
		}
	})
}
