// Package resourcepool manages asynchronously loaded resources whose
// instances are poolable.
//
// A resource is addressed by a Key, loaded once through a Loader, and
// instantiated many times through a Factory. Instances returned by the
// pool are recycled through a per-resource free-list instead of being
// destroyed, which matters for workloads where construction is
// expensive: compiled WebAssembly modules, decoded archives, remote
// blobs.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	resourcepool/        Root package with Loader, Ticket, Instance and Factory contracts
//	├── pool/            Handlers, typed references, locator and registry
//	├── errors/          Structured error types for lifecycle failures
//	├── catalog/         Logical name to key resolution with version matching
//	├── loaders/
//	│   ├── wasmloader/  WebAssembly modules via wazero: compile once, instantiate many
//	│   ├── fileloader/  Local files with transparent lz4 decompression
//	│   └── s3loader/    Objects fetched from S3-compatible stores
//	└── cmd/pooltop/     Terminal inspector for live handler tables
//
// # Quick Start
//
// Wire a loader and a factory into a locator, then spawn:
//
//	loc := pool.NewLocator(pool.Config{
//	    Loader:  wl,
//	    Factory: wasmloader.NewFactory(wl),
//	})
//
//	lease, err := loc.SpawnOne(ctx, "modules/greeter.wasm", resourcepool.SpawnParams{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer lease.Despawn()
//
//	inst := lease.Instance().(*wasmloader.ModuleInstance)
//	results, err := inst.Call(ctx, "greet")
//
// # Lifecycle
//
// Each key gets one handler with four states: NotLoaded, Loading,
// Loaded, Failed. A handler counts two things separately: holders
// (retains) and live instances (spawns). It tears down, destroying
// idle instances and releasing the load ticket, exactly when both
// counts are zero and the load had completed. Holding instances alone
// keeps the resource alive; so does holding retains alone.
//
// Loading is started by the first retain and resolved by the loader's
// ticket. Waiters block until resolution; a load that completes after
// every holder has already released is torn down on arrival.
//
// # Thread Safety
//
// All types in resourcepool and pool are safe for concurrent use.
// Loaded assets and spawned instances are only as safe as the loader
// and factory that produced them.
package resourcepool
