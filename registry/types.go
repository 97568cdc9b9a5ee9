// Package registry is the composition registry of §4.C: it tracks
// filesystem and server instances by UUID, resolves provider×config→handler
// lazily, detects dependency cycles, and refuses teardown while a handler
// is still shared.
package registry

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/winmount/winmount/vfs"
)

// UUID is the identity type for filesystem entries, server entries and kind
// IDs (§3 invariant 7).
type UUID = uuid.UUID

// State is the lifecycle state of a filesystem or server entry (§3
// "Lifecycle").
type State int

const (
	Declared State = iota
	Started
)

// FilesystemProvider constructs a FileSystemHandler from its declared
// config. Providers may recursively call CreationContext.GetOrRunFS to
// realize dependencies elsewhere in the composition graph.
type FilesystemProvider interface {
	Construct(ctx context.Context, cctx *CreationContext, config json.RawMessage) (vfs.FileSystemHandler, error)
}

// ServerProvider constructs a Server over an input filesystem handler, the
// server-side counterpart of FilesystemProvider.
type ServerProvider interface {
	Construct(ctx context.Context, input vfs.FileSystemHandler, config json.RawMessage) (Server, error)
}

// Server is the mount-adapter contract a server provider constructs; the
// adapter itself (translating OS requests to the filesystem contract) is
// out of core scope per spec.md §1, so this is intentionally minimal.
type Server interface {
	Close() error
}

// FilesystemInfo is the read-only view of a filesystem entry returned by
// list/get operations.
type FilesystemInfo struct {
	ID      UUID
	KindID  UUID
	Name    string
	Config  json.RawMessage
	Started bool
}

// ServerInfo is the read-only view of a server entry.
type ServerInfo struct {
	ID       UUID
	KindID   UUID
	Name     string
	InputID  UUID
	Config   json.RawMessage
	Started  bool
}

// handlerRef reference-counts a constructed handler. The registry itself
// always holds one implicit reference (the "sole owner" state StopFS
// checks for); every AcquireHandler call or realized dependency adds one
// more, per §3 invariant 2.
type handlerRef struct {
	handler vfs.FileSystemHandler
	count   int32
}

type fsEntry struct {
	id       UUID
	kindID   UUID
	name     string
	config   json.RawMessage
	ref      *handlerRef
	cleanups []func()
}

type serverEntry struct {
	id       UUID
	kindID   UUID
	name     string
	inputID  UUID
	config   json.RawMessage
	server   Server
	cleanups []func()
}
