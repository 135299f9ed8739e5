package pool

import (
	"context"
	"strings"
	"testing"

	resourcepool "github.com/wippyai/resource-pool"
)

func TestRegistry_RegisterAndTryGet(t *testing.T) {
	reg := NewRegistry()
	h := NewHandler("model/crate", Spec{Loader: &manualLoader{}})

	if _, ok := reg.TryGet("model/crate"); ok {
		t.Fatal("empty registry returned a handler")
	}

	if err := reg.Register("model/crate", h); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok := reg.TryGet("model/crate")
	if !ok || got != h {
		t.Fatal("TryGet did not return the registered handler")
	}

	// Duplicate registration leaves the first entry in place.
	other := NewHandler("model/crate", Spec{Loader: &manualLoader{}})
	err := reg.Register("model/crate", other)
	if err == nil || !strings.Contains(err.Error(), "conflict") {
		t.Fatalf("err = %v, want conflict", err)
	}
	got, _ = reg.TryGet("model/crate")
	if got != h {
		t.Fatal("conflicting registration replaced the entry")
	}
}

func TestRegistry_RegisterMisuse(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register("", NewHandler("x", Spec{})); err == nil || !strings.Contains(err.Error(), "misuse") {
		t.Fatalf("empty key err = %v, want misuse", err)
	}
	if err := reg.Register("model/crate", nil); err == nil || !strings.Contains(err.Error(), "misuse") {
		t.Fatalf("nil handler err = %v, want misuse", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("len = %d after misuse", reg.Len())
	}
}

func TestRegistry_Evict(t *testing.T) {
	reg := NewRegistry()
	loader := &manualLoader{}
	h := NewHandler("model/crate", Spec{Loader: loader})
	if err := reg.Register("model/crate", h); err != nil {
		t.Fatal(err)
	}

	if err := reg.Evict("model/missing"); err == nil || !strings.Contains(err.Error(), "not_found") {
		t.Fatalf("err = %v, want not_found", err)
	}

	// A handler with holders refuses eviction.
	h.Retain()
	loader.ticket(0).Resolve("asset")
	if err := h.WaitLoaded(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := reg.Evict("model/crate"); err == nil || !strings.Contains(err.Error(), "busy") {
		t.Fatalf("err = %v, want busy", err)
	}
	if _, ok := reg.TryGet("model/crate"); !ok {
		t.Fatal("failed evict removed the entry")
	}

	h.Release()
	if err := reg.Evict("model/crate"); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("len = %d after evict", reg.Len())
	}
}

func TestRegistry_KeysAndStats(t *testing.T) {
	reg := NewRegistry()
	for _, key := range []string{"model/c", "model/a", "model/b"} {
		k := resourcepool.Key(key)
		if err := reg.Register(k, NewHandler(k, Spec{Loader: &manualLoader{}})); err != nil {
			t.Fatal(err)
		}
	}

	keys := reg.Keys()
	want := []string{"model/a", "model/b", "model/c"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v", keys)
	}
	for i, k := range keys {
		if string(k) != want[i] {
			t.Fatalf("keys[%d] = %q, want %q", i, k, want[i])
		}
	}

	stats := reg.Stats()
	if len(stats) != 3 {
		t.Fatalf("stats len = %d", len(stats))
	}
	for i, st := range stats {
		if string(st.Key) != want[i] {
			t.Fatalf("stats[%d].Key = %q, want %q", i, st.Key, want[i])
		}
		if st.Status != StatusNotLoaded {
			t.Fatalf("stats[%d].Status = %v", i, st.Status)
		}
	}
}
