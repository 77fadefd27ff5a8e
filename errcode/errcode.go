// Package errcode groups the four error kinds the chain state processor
// surfaces (spec.md §7): Invalid, Rejected, Unreachable, Corrupted.
// Grounded on the teacher's errcode package (errcode/error.go,
// errcode/chainerror.go): a typed code plus a ProjectError wrapper,
// narrowed from the teacher's many per-subsystem code families down to
// the four the spec names.
package errcode

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is one of the four error kinds spec.md §7 defines.
type Kind int

const (
	// Invalid means the header or body fails consensus: reject, blame
	// the peer, never retry the same bytes.
	Invalid Kind = iota
	// Rejected means structurally valid but not useful now (already
	// known, duplicate body): silently drop.
	Rejected
	// Unreachable means below loHorizon: drop without blaming the peer.
	Unreachable
	// Corrupted means an invariant violation that should be impossible:
	// OnCorrupted must be invoked and the process halted.
	Corrupted
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case Rejected:
		return "rejected"
	case Unreachable:
		return "unreachable"
	case Corrupted:
		return "corrupted"
	default:
		return fmt.Sprintf("errcode.Kind(%d)", int(k))
	}
}

// ProjectError is the error value returned across processor boundaries.
// Modeled on the teacher's errcode.ProjectError{Module, Code, Desc}.
type ProjectError struct {
	Kind   Kind
	Module string
	Desc   string
	cause  error
}

func (e *ProjectError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: [%s] %s: %v", e.Module, e.Kind, e.Desc, e.cause)
	}
	return fmt.Sprintf("%s: [%s] %s", e.Module, e.Kind, e.Desc)
}

// Cause implements the github.com/pkg/errors causer interface so
// errors.Cause(err) unwraps to whatever underlying failure was wrapped.
func (e *ProjectError) Cause() error { return e.cause }

// New builds a ProjectError with no wrapped cause.
func New(kind Kind, module, desc string) error {
	return &ProjectError{Kind: kind, Module: module, Desc: desc}
}

// Wrap attaches kind/module/desc context to a lower-level failure,
// mirroring the pkg/errors.Wrap idiom the teacher uses throughout
// blockchain/Validation.go and the other 55 files importing pkg/errors.
func Wrap(cause error, kind Kind, module, desc string) error {
	if cause == nil {
		return nil
	}
	return &ProjectError{Kind: kind, Module: module, Desc: desc, cause: errors.WithStack(cause)}
}

// Is reports whether err is a ProjectError of the given kind.
func Is(err error, kind Kind) bool {
	pe, ok := err.(*ProjectError)
	return ok && pe.Kind == kind
}

// KindOf extracts the Kind of a ProjectError, defaulting to Corrupted
// for errors the processor did not classify itself -- an unclassified
// failure reaching a caller is itself the kind of invariant break §7
// calls Corrupted.
func KindOf(err error) Kind {
	if pe, ok := err.(*ProjectError); ok {
		return pe.Kind
	}
	return Corrupted
}
