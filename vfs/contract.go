// Package vfs defines the filesystem contract every layer of the composable
// filesystem both implements and consumes: §4.B of the specification. It is
// deliberately small and interface-only — every concrete behavior (memfs,
// the archive overlay, the local-disk adapter) lives in its own package and
// depends on this one, never the other way around.
package vfs

import (
	"context"
	"time"

	"github.com/winmount/winmount/vfserrors"
)

// Disposition mirrors the Win32 CreateFile disposition semantics, per
// §4.B's table.
type Disposition int

const (
	CreateNew Disposition = iota
	CreateAlways
	OpenExisting
	OpenAlways
	TruncateExisting
)

// CreateOptions is a bitmask of the create_file options named in §4.B.
type CreateOptions uint32

const (
	DirectoryFile CreateOptions = 1 << iota
	NonDirectoryFile
	DeleteOnClose
)

// DesiredAccess is a bitmask describing what the caller intends to do with
// the handle; archive overlays reject Write|Full per §4.D's read-only
// semantics.
type DesiredAccess uint32

const (
	Read DesiredAccess = 1 << iota
	Write
	Delete
	Full = Read | Write | Delete
)

// Characteristics describes filesystem-level properties. ReadOnly is
// monotonic as layers stack (§3 invariant 5): an overlay may only add it,
// never clear a ReadOnly bit its inner filesystem already set.
type Characteristics uint32

const (
	ReadOnly Characteristics = 1 << iota
	CaseSensitive
)

// FileAttributes mirrors the small subset of Win32 FILE_ATTRIBUTE_* bits the
// contract needs: directory-ness and the synthetic "promoted to directory"
// marker the archive overlay's readdir rewrite sets (§4.D "readdir
// rewrite").
type FileAttributes uint32

const (
	AttrDirectory FileAttributes = 1 << iota
	AttrReadOnly
	AttrArchive
)

// FileStatInfo is the metadata surface returned by Stat, GetStat and
// directory enumeration. Index is a per-filesystem stable identifier —
// for archive-synthesized entries it is the hash of (root index, local
// index), per §3.
type FileStatInfo struct {
	Index          uint64
	Size           uint64
	IsDir          bool
	Attributes     FileAttributes
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
}

// CreateFileInfo is returned by CreateFile.
type CreateFileInfo struct {
	File           File
	IsDir          bool
	NewFileCreated bool
}

// FillFunc receives one directory entry at a time from FindFilesWithPattern;
// returning false stops enumeration early.
type FillFunc func(name string, stat FileStatInfo) bool

// FileSystemHandler is the opaque, thread-safe, shareable contract every
// filesystem layer implements: local disk, memfs, the archive overlay, and
// any future format-specific plug-in. Many holders may share one handler;
// see the registry package for the reference-counted lifecycle that
// enforces §3 invariant 2.
type FileSystemHandler interface {
	// CreateFile opens or creates path according to disposition, matching
	// the table in §4.B.
	CreateFile(ctx context.Context, path string, desired DesiredAccess, attrs FileAttributes, shareAccess uint32, disposition Disposition, options CreateOptions) (CreateFileInfo, error)

	// GetFreeSpace reports (total, free, available) bytes.
	GetFreeSpace(ctx context.Context) (total, free, available uint64, err error)

	// GetCharacteristics reports filesystem-level flags.
	GetCharacteristics(ctx context.Context) Characteristics
}

// File is an owned handle whose lifetime is bound to the handler that
// produced it; Close releases it. Every method may block on I/O.
type File interface {
	// ReadAt reads len(b) bytes starting at offset off. A read that starts
	// at or past EOF returns (0, nil): EOF is not an error for ReadAt,
	// matching §4.B ("A read past EOF returns zero bytes").
	ReadAt(b []byte, off int64) (n int, err error)

	// WriteAt writes b starting at offset. A nil off means append. If
	// constrainSize is true the file is never grown: the write is
	// truncated at the current end of file.
	WriteAt(b []byte, off *int64, constrainSize bool) (n int, err error)

	FlushBuffers() error

	GetStat() (FileStatInfo, error)

	SetEndOfFile(size uint64) error

	SetFileTimes(creation, lastAccess, lastWrite *time.Time) error

	// SetDelete marks (or unmarks) the file for delete-on-close.
	SetDelete(marked bool) error

	// MoveTo renames/moves the file to newPath, replacing any existing
	// file there only if replace is true.
	MoveTo(newPath string, replace bool) error

	// FindFilesWithPattern enumerates directory children matching pattern
	// (an OS-style glob, not a regex), invoking filler for each.
	FindFilesWithPattern(pattern string, filler FillFunc) error

	Close() error
}

// ReadAtExact reads exactly len(b) bytes via f.ReadAt, failing with EOF
// (via the caller's error taxonomy) if the read comes up short — the
// "read_at_exact" convenience named in §4.B.
func ReadAtExact(f File, b []byte, off int64) (int, error) {
	n, err := f.ReadAt(b, off)
	if err != nil {
		return n, err
	}
	if n < len(b) {
		return n, vfserrors.New(vfserrors.EndOfFile, "short read: fewer bytes available than requested")
	}
	return n, nil
}
