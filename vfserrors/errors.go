// Package vfserrors provides the single error type shared by every layer of
// the composable filesystem: a tagged kind plus an optional cause, never a
// type hierarchy per layer.
package vfserrors

import "fmt"

// Kind enumerates the error taxonomy every filesystem layer reports through.
// External callers (the control plane, a mount adapter) map a Kind to their
// own wire or OS status code; the core never does that mapping itself.
type Kind int

const (
	// Other is the escape hatch for causes that do not fit the taxonomy.
	Other Kind = iota
	ObjectPathNotFound
	ObjectNameNotFound
	ObjectNameCollision
	ObjectNameInvalid
	FileIsADirectory
	NotADirectory
	DirectoryNotEmpty
	AccessDenied
	NoSuchFile
	CannotDelete
	InvalidParameter
	FileCorrupt
	EndOfFile
	NotImplemented
	CyclicDependency
	StillInUse
)

func (k Kind) String() string {
	switch k {
	case ObjectPathNotFound:
		return "ObjectPathNotFound"
	case ObjectNameNotFound:
		return "ObjectNameNotFound"
	case ObjectNameCollision:
		return "ObjectNameCollision"
	case ObjectNameInvalid:
		return "ObjectNameInvalid"
	case FileIsADirectory:
		return "FileIsADirectory"
	case NotADirectory:
		return "NotADirectory"
	case DirectoryNotEmpty:
		return "DirectoryNotEmpty"
	case AccessDenied:
		return "AccessDenied"
	case NoSuchFile:
		return "NoSuchFile"
	case CannotDelete:
		return "CannotDelete"
	case InvalidParameter:
		return "InvalidParameter"
	case FileCorrupt:
		return "FileCorruptError"
	case EndOfFile:
		return "EndOfFile"
	case NotImplemented:
		return "NotImplemented"
	case CyclicDependency:
		return "CyclicDependency"
	case StillInUse:
		return "StillInUse"
	default:
		return "Other"
	}
}

// Error is the tagged-variant error every core package returns. It carries a
// Kind, a human message and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a kind-tagged error without a cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a kind-tagged error around an existing cause, downgrading the
// underlying failure to a single taxonomy member. This is how archive
// construction failures are turned into FileCorrupt per §7's propagation
// policy: the cause is preserved for logging, the Kind is what callers see.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ve, ok := err.(*Error); ok {
			e = ve
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
