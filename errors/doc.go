// Package errors provides structured error types for the resource-pool library.
//
// Errors are categorized by Phase (which lifecycle operation failed) and Kind
// (error category). The Error type includes the resource key and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseSpawn, errors.KindMisuse).
//		Key("assets/cube.wasm").
//		Detail("spawn before retain").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotLoaded(errors.PhaseSpawn, "assets/cube.wasm")
//	err := errors.LoadFailed("assets/cube.wasm", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
// Misuse errors are also logged at the call site; the operation that raised
// one is always a state-preserving no-op.
package errors
