package wasmloader

import (
	"context"
	"os"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/errors"
)

// SourceFunc fetches the raw module bytes for a key.
type SourceFunc func(ctx context.Context, key resourcepool.Key) ([]byte, error)

// Config holds configuration for loader creation.
type Config struct {
	// Runtime is the wazero runtime to compile against. When nil the
	// loader creates and owns one.
	Runtime wazero.Runtime

	// Source fetches module bytes. Defaults to reading the key as a
	// file path.
	Source SourceFunc

	// MemoryLimitPages caps memory per instance in 64KB pages. 0 means
	// the wazero default. Only applied to a loader-owned runtime.
	MemoryLimitPages uint32
}

// Loader compiles WebAssembly modules as poolable assets. Compilation
// is the slow part worth sharing; instantiation stays per-instance in
// the Factory.
type Loader struct {
	runtime    wazero.Runtime
	source     SourceFunc
	ownRuntime bool
}

// New creates a loader with a runtime of its own.
func New(ctx context.Context) (*Loader, error) {
	return NewWithConfig(ctx, Config{})
}

// NewWithConfig creates a loader with custom configuration.
func NewWithConfig(ctx context.Context, cfg Config) (*Loader, error) {
	l := &Loader{
		runtime: cfg.Runtime,
		source:  cfg.Source,
	}
	if l.runtime == nil {
		runtimeCfg := wazero.NewRuntimeConfig()
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		l.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
		l.ownRuntime = true
	}
	if l.source == nil {
		l.source = func(ctx context.Context, key resourcepool.Key) ([]byte, error) {
			return os.ReadFile(string(key))
		}
	}
	return l, nil
}

// Runtime returns the underlying wazero runtime, shared with the
// Factory so instances run against the compiled code.
func (l *Loader) Runtime() wazero.Runtime {
	return l.runtime
}

// Close releases the loader-owned runtime. All instances must be
// closed before calling this. A no-op for injected runtimes.
func (l *Loader) Close(ctx context.Context) error {
	if !l.ownRuntime {
		return nil
	}
	return l.runtime.Close(ctx)
}

// Load fetches and compiles the module addressed by key. The ticket's
// release closes the compiled module, so the pool frees native
// compilation state exactly when the handler tears down.
func (l *Loader) Load(ctx context.Context, key resourcepool.Key) resourcepool.Ticket {
	t := resourcepool.NewTicket()
	t.ReleaseFunc = func(asset any) {
		m := asset.(*Module)
		if err := m.compiled.Close(context.Background()); err != nil {
			Logger().Warn("close compiled module failed",
				zap.String("key", string(key)),
				zap.Error(err))
		}
	}

	go func() {
		raw, err := l.source(ctx, key)
		if err != nil {
			t.Fail(errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "fetch module bytes"))
			return
		}

		compiled, err := l.runtime.CompileModule(ctx, raw)
		if err != nil {
			t.Fail(errors.Wrap(errors.PhaseLoad, errors.KindLoadFailed, err, "compile module"))
			return
		}

		t.Resolve(newModule(key, compiled))
	}()

	return t
}

var _ resourcepool.Loader = (*Loader)(nil)
