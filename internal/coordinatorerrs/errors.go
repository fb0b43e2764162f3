// Package coordinatorerrs classifies the error kinds that cross component
// boundaries in the coordinator, per the propagation policy: components
// return rich errors locally, and boundaries wrap them into one of a small
// closed set of kinds so the HTTP layer (out of scope here) can flatten them
// into its 400/401/500/503 taxonomy without needing to know about any
// particular subsystem's sentinel errors.
package coordinatorerrs

import (
	"errors"
	"fmt"
)

// Kind is the coarse classification of an error as it crosses a component
// boundary.
type Kind uint8

const (
	// KindValidation means the caller supplied bad input; no internal
	// state was mutated.
	KindValidation Kind = iota

	// KindAuthentication means a signature did not verify under the
	// asserted public key.
	KindAuthentication

	// KindProtocol means a DLC state machine rejected a message as
	// inconsistent with its current state.
	KindProtocol

	// KindTransport means the peer was unreachable or timed out; the
	// message is retained for replay.
	KindTransport

	// KindStorage means a persistence layer failure that is not one of
	// the documented idempotent-success cases.
	KindStorage

	// KindBackup means a remote backup push/pull failure; never fatal.
	KindBackup

	// KindFatal means the process cannot continue (persister
	// unreachable, funding key unavailable, signing failure during
	// co-sign).
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindStorage:
		return "storage"
	case KindBackup:
		return "backup"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps a lower-level error with a Kind so callers at a component
// boundary can decide how to react (retry, surface to the HTTP caller,
// crash) without inspecting subsystem-specific sentinel values.
type Error struct {
	Kind    Kind
	Context string
	Err     error
}

func (e *Error) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap attaches kind and context to err. Wrap(nil, ...) returns nil so it
// can be used directly on a function's named error return.
func Wrap(kind Kind, context string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Context: context, Err: err}
}

// Validation is a convenience constructor for KindValidation errors.
func Validation(context string, err error) error {
	return Wrap(KindValidation, context, err)
}

// Authentication is a convenience constructor for KindAuthentication errors.
func Authentication(context string, err error) error {
	return Wrap(KindAuthentication, context, err)
}

// Protocol is a convenience constructor for KindProtocol errors.
func Protocol(context string, err error) error {
	return Wrap(KindProtocol, context, err)
}

// Transport is a convenience constructor for KindTransport errors.
func Transport(context string, err error) error {
	return Wrap(KindTransport, context, err)
}

// Storage is a convenience constructor for KindStorage errors.
func Storage(context string, err error) error {
	return Wrap(KindStorage, context, err)
}

// Backup is a convenience constructor for KindBackup errors.
func Backup(context string, err error) error {
	return Wrap(KindBackup, context, err)
}

// Fatal is a convenience constructor for KindFatal errors.
func Fatal(context string, err error) error {
	return Wrap(KindFatal, context, err)
}

// As reports whether err (or any error it wraps) is a *Error, and if so
// returns it.
func As(err error) (*Error, bool) {
	var target *Error
	ok := errors.As(err, &target)
	return target, ok
}
