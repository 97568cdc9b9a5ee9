package vfs

import "github.com/winmount/winmount/vfserrors"

// DispositionOutcome is what Resolve reports for the disposition table from
// §4.B for a filesystem handler's CreateFile. Callers pass whether the target already
// exists and get back whether to truncate, whether this is a fresh create,
// and whether new_file_created should be reported true — or an error for
// the cells that must fail.
type DispositionOutcome struct {
	Create         bool
	Truncate       bool
	NewFileCreated bool
}

// Resolve implements the §4.B disposition table for a single target whose
// existence is already known to the caller.
func Resolve(d Disposition, exists bool) (DispositionOutcome, error) {
	switch d {
	case CreateNew:
		if exists {
			return DispositionOutcome{}, vfserrors.New(vfserrors.ObjectNameCollision, "CreateNew: object already exists")
		}
		return DispositionOutcome{Create: true, NewFileCreated: true}, nil
	case CreateAlways:
		if exists {
			return DispositionOutcome{Truncate: true}, nil
		}
		return DispositionOutcome{Create: true, NewFileCreated: true}, nil
	case OpenExisting:
		if exists {
			return DispositionOutcome{}, nil
		}
		return DispositionOutcome{}, vfserrors.New(vfserrors.ObjectNameNotFound, "OpenExisting: object does not exist")
	case OpenAlways:
		if exists {
			return DispositionOutcome{}, nil
		}
		return DispositionOutcome{Create: true, NewFileCreated: true}, nil
	case TruncateExisting:
		if exists {
			return DispositionOutcome{Truncate: true}, nil
		}
		return DispositionOutcome{}, vfserrors.New(vfserrors.ObjectNameNotFound, "TruncateExisting: object does not exist")
	default:
		return DispositionOutcome{}, vfserrors.New(vfserrors.InvalidParameter, "unknown disposition")
	}
}
