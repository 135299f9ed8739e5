package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which lifecycle operation the error occurred in
type Phase string

const (
	PhaseLoad     Phase = "load"     // asynchronous loading
	PhaseRetain   Phase = "retain"   // acquiring holds
	PhaseRelease  Phase = "release"  // dropping holds
	PhaseSpawn    Phase = "spawn"    // instance checkout
	PhaseDespawn  Phase = "despawn"  // instance return
	PhaseValidate Phase = "validate" // capability validation
	PhaseLocate   Phase = "locate"   // handler resolution
	PhaseRegister Phase = "register" // registry bookkeeping
	PhaseCleanup  Phase = "cleanup"  // teardown and leak checks
	PhaseExec     Phase = "exec"     // instance invocation
)

// Kind categorizes the error
type Kind string

const (
	KindMisuse        Kind = "misuse"
	KindNotLoaded     Kind = "not_loaded"
	KindLoadFailed    Kind = "load_failed"
	KindValidation    Kind = "validation"
	KindConflict      Kind = "conflict"
	KindBusy          Kind = "busy"
	KindNotFound      Kind = "not_found"
	KindLeak          Kind = "leak"
	KindInstantiation Kind = "instantiation"
	KindTrap          Kind = "trap"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Key    string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Key != "" {
		b.WriteString(" at ")
		b.WriteString(e.Key)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Key sets the resource key the error concerns
func (b *Builder) Key(key string) *Builder {
	b.err.Key = key
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Misuse creates a contract-violation error. The operation that raised
// it left all state unchanged.
func Misuse(phase Phase, key, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMisuse,
		Key:    key,
		Detail: detail,
	}
}

// NotLoaded creates an error for operations that need a loaded handler
func NotLoaded(phase Phase, key string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotLoaded,
		Key:    key,
		Detail: "resource not loaded",
	}
}

// LoadFailed wraps the loader's failure for a key
func LoadFailed(key string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLoadFailed,
		Key:    key,
		Detail: "load failed",
		Cause:  cause,
	}
}

// Validation creates a capability-validation error
func Validation(phase Phase, key, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindValidation,
		Key:    key,
		Detail: detail,
	}
}

// ValidationCause wraps a validator's own error
func ValidationCause(phase Phase, key string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindValidation,
		Key:    key,
		Detail: "capability validation failed",
		Cause:  cause,
	}
}

// AlreadyRegistered creates a duplicate-registration error
func AlreadyRegistered(key string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindConflict,
		Key:    key,
		Detail: "handler already registered",
	}
}

// HandlerMismatch reports a find-or-create hitting a handler of a
// different kind under the same key
func HandlerMismatch(key, want, have string) *Error {
	return &Error{
		Phase:  PhaseLocate,
		Kind:   KindConflict,
		Key:    key,
		Detail: fmt.Sprintf("handler kind %q requested but %q is registered", want, have),
		Value:  have,
	}
}

// Busy creates an error for removing a handler that still has holders
// or live instances
func Busy(key, detail string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindBusy,
		Key:    key,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, key string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Key:    key,
		Detail: "no handler registered",
	}
}

// Instantiation wraps a factory failure while spawning an instance
func Instantiation(key string, cause error) *Error {
	return &Error{
		Phase:  PhaseSpawn,
		Kind:   KindInstantiation,
		Key:    key,
		Detail: "instantiate from asset",
		Cause:  cause,
	}
}

// Leak reports a reference that went unreachable with holds outstanding
func Leak(key string, retains int) *Error {
	return &Error{
		Phase:  PhaseCleanup,
		Kind:   KindLeak,
		Key:    key,
		Detail: fmt.Sprintf("reference dropped with %d retains outstanding", retains),
		Value:  retains,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
