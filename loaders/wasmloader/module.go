package wasmloader

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	resourcepool "github.com/wippyai/resource-pool"
	"github.com/wippyai/resource-pool/errors"
)

// Module is the compiled asset shared by every instance of one key.
type Module struct {
	key      resourcepool.Key
	compiled wazero.CompiledModule
	exports  map[string]api.FunctionDefinition
}

func newModule(key resourcepool.Key, compiled wazero.CompiledModule) *Module {
	return &Module{
		key:      key,
		compiled: compiled,
		exports:  compiled.ExportedFunctions(),
	}
}

// Key returns the key the module was loaded under.
func (m *Module) Key() resourcepool.Key {
	return m.key
}

// Exports returns the exported function names in sorted order.
func (m *Module) Exports() []string {
	names := make([]string, 0, len(m.exports))
	for name := range m.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasExport reports whether the module exports a function by name.
func (m *Module) HasExport(name string) bool {
	_, ok := m.exports[name]
	return ok
}

// Factory instantiates compiled modules into callable instances.
type Factory struct {
	runtime wazero.Runtime
}

// NewFactory creates a factory instantiating against the loader's
// runtime.
func NewFactory(l *Loader) *Factory {
	return &Factory{runtime: l.Runtime()}
}

// New instantiates the compiled module. Instances are anonymous by
// default so many can live in parallel; a pinned InstanceID becomes
// the wazero module name.
func (f *Factory) New(ctx context.Context, key resourcepool.Key, asset any, params resourcepool.SpawnParams) (resourcepool.Instance, error) {
	m, ok := asset.(*Module)
	if !ok {
		return nil, errors.New(errors.PhaseSpawn, errors.KindValidation).
			Key(string(key)).
			Detail("asset is not a compiled module").
			Build()
	}

	cfg := wazero.NewModuleConfig().WithName(params.InstanceID)

	inst, err := f.runtime.InstantiateModule(ctx, m.compiled, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseSpawn, errors.KindInstantiation, err, "instantiate module")
	}

	return &ModuleInstance{
		key:    key,
		module: inst,
		funcs:  make(map[string]api.Function),
	}, nil
}

var _ resourcepool.Factory = (*Factory)(nil)

// ModuleInstance is one live instantiation of a compiled module.
// Instances are single-owner and not safe for concurrent use.
type ModuleInstance struct {
	key    resourcepool.Key
	module api.Module
	funcs  map[string]api.Function
}

// Call invokes an exported function with raw stack values.
func (i *ModuleInstance) Call(ctx context.Context, fn string, params ...uint64) ([]uint64, error) {
	f, ok := i.funcs[fn]
	if !ok {
		f = i.module.ExportedFunction(fn)
		if f == nil {
			return nil, errors.New(errors.PhaseExec, errors.KindNotFound).
				Key(string(i.key)).
				Detail("function %q not exported", fn).
				Build()
		}
		i.funcs[fn] = f
	}

	results, err := f.Call(ctx, params...)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseExec, errors.KindTrap, err, "call "+fn)
	}
	return results, nil
}

// Memory returns the instance's exported memory, or nil when the
// module has none.
func (i *ModuleInstance) Memory() api.Memory {
	return i.module.Memory()
}

// Close destroys the instantiation. The compiled module stays valid
// for future spawns.
func (i *ModuleInstance) Close(ctx context.Context) error {
	return i.module.Close(ctx)
}

var _ resourcepool.Instance = (*ModuleInstance)(nil)
