package registry

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/winmount/winmount/internal/wlog"
	"github.com/winmount/winmount/vfs"
	"github.com/winmount/winmount/vfserrors"
)

// Registry holds filesystem and server entries keyed by UUID and is guarded
// by a single mutex (§5 "Thread-safety"). Long-running calls (a provider's
// Construct) never run while the mutex is held: handler references are
// cloned out first.
type Registry struct {
	mu sync.Mutex

	filesystems map[UUID]*fsEntry
	servers     map[UUID]*serverEntry

	fsProviders     map[UUID]FilesystemProvider
	serverProviders map[UUID]ServerProvider

	startGroup singleflight.Group
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		filesystems:     make(map[UUID]*fsEntry),
		servers:         make(map[UUID]*serverEntry),
		fsProviders:     make(map[UUID]FilesystemProvider),
		serverProviders: make(map[UUID]ServerProvider),
	}
}

// RegisterFilesystemKind associates a kind ID (e.g. ArchiveFS, LocalFS,
// MemFS) with the provider that constructs handlers of that kind.
func (r *Registry) RegisterFilesystemKind(kindID UUID, provider FilesystemProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fsProviders[kindID] = provider
}

// RegisterServerKind associates a server kind ID with its provider.
func (r *Registry) RegisterServerKind(kindID UUID, provider ServerProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serverProviders[kindID] = provider
}

// CreateFS declares a new filesystem entry (stored config, handler absent)
// and returns its freshly minted ID.
func (r *Registry) CreateFS(name string, kindID UUID, config json.RawMessage) UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.filesystems[id] = &fsEntry{id: id, kindID: kindID, name: name, config: config}
	return id
}

// StartFS constructs the handler for id if it is not already started.
// Returns started=false with a nil error if the entry was already running
// ("no change"), per §4.C.
func (r *Registry) StartFS(ctx context.Context, id UUID) (started bool, err error) {
	cctx := &CreationContext{reg: r, building: make(map[UUID]struct{})}
	before := r.isStarted(id)
	cctx.building[id] = struct{}{}
	defer delete(cctx.building, id)
	if err := r.startFS(id, cctx); err != nil {
		return false, err
	}
	return !before, nil
}

// startFS is the recursive worker shared by StartFS and
// CreationContext.GetOrRunFS. The caller is responsible for having already
// inserted id into cctx.building (and for removing it afterwards) so that
// cycle detection spans the whole recursive resolution of one top-level
// request; startFS itself only tracks which entry is "current" for the
// duration of its own Construct call, so nested GetOrRunFS calls attach
// their cleanup to the right entry.
func (r *Registry) startFS(id UUID, cctx *CreationContext) error {
	r.mu.Lock()
	entry, ok := r.filesystems[id]
	if !ok {
		r.mu.Unlock()
		return vfserrors.New(vfserrors.ObjectNameNotFound, "no such filesystem: "+id.String())
	}
	if entry.ref != nil {
		r.mu.Unlock()
		return nil
	}
	provider, ok := r.fsProviders[entry.kindID]
	config := entry.config
	r.mu.Unlock()
	if !ok {
		return vfserrors.New(vfserrors.InvalidParameter, "no provider registered for kind "+entry.kindID.String())
	}

	prevCurrent := cctx.current
	cctx.current = id
	defer func() { cctx.current = prevCurrent }()

	v, err, _ := r.startGroup.Do(id.String(), func() (interface{}, error) {
		return provider.Construct(context.Background(), cctx, config)
	})
	if err != nil {
		wlog.L().WithField("fs", id).WithError(err).Warn("failed to start filesystem")
		return err
	}
	handler := v.(vfs.FileSystemHandler)

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.ref == nil {
		entry.ref = &handlerRef{handler: handler, count: 1}
	}
	return nil
}

func (r *Registry) isStarted(id UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.filesystems[id]
	return ok && e.ref != nil
}

// StopFS tears down the handler for id. It fails with StillInUse unless the
// registry is the sole holder of the handler (refcount exactly 1), per §4.C
// and §5 "Teardown".
func (r *Registry) StopFS(id UUID) error {
	r.mu.Lock()
	entry, ok := r.filesystems[id]
	if !ok {
		r.mu.Unlock()
		return vfserrors.New(vfserrors.ObjectNameNotFound, "no such filesystem: "+id.String())
	}
	if entry.ref == nil {
		r.mu.Unlock()
		return nil
	}
	if entry.ref.count != 1 {
		r.mu.Unlock()
		return vfserrors.New(vfserrors.StillInUse, "filesystem still in use")
	}
	cleanups := entry.cleanups
	entry.cleanups = nil
	entry.ref = nil
	r.mu.Unlock()

	for _, c := range cleanups {
		c()
	}
	return nil
}

// RemoveFS deletes a stopped filesystem entry.
func (r *Registry) RemoveFS(id UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.filesystems[id]
	if !ok {
		return vfserrors.New(vfserrors.ObjectNameNotFound, "no such filesystem: "+id.String())
	}
	if entry.ref != nil {
		return vfserrors.New(vfserrors.StillInUse, "cannot remove a running filesystem")
	}
	delete(r.filesystems, id)
	return nil
}

// AcquireHandler returns the running handler for id with one additional
// reference held, plus a release function the caller must invoke exactly
// once when done. It fails if the filesystem is not started.
func (r *Registry) AcquireHandler(id UUID) (vfs.FileSystemHandler, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.filesystems[id]
	if !ok || entry.ref == nil {
		return nil, nil, vfserrors.New(vfserrors.ObjectNameNotFound, "filesystem not started: "+id.String())
	}
	entry.ref.count++
	ref := entry.ref
	released := int32(0)
	release := func() {
		if !atomic.CompareAndSwapInt32(&released, 0, 1) {
			return
		}
		r.mu.Lock()
		ref.count--
		r.mu.Unlock()
	}
	return ref.handler, release, nil
}

// GetFSInfo returns the current declared/started view of a filesystem
// entry.
func (r *Registry) GetFSInfo(id UUID) (FilesystemInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.filesystems[id]
	if !ok {
		return FilesystemInfo{}, vfserrors.New(vfserrors.ObjectNameNotFound, "no such filesystem: "+id.String())
	}
	return FilesystemInfo{ID: entry.id, KindID: entry.kindID, Name: entry.name, Config: entry.config, Started: entry.ref != nil}, nil
}

// ListFS returns every declared filesystem entry.
func (r *Registry) ListFS() []FilesystemInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FilesystemInfo, 0, len(r.filesystems))
	for _, e := range r.filesystems {
		out = append(out, FilesystemInfo{ID: e.id, KindID: e.kindID, Name: e.name, Config: e.config, Started: e.ref != nil})
	}
	return out
}

// UpdateFSInfo renames and/or reconfigures a stopped filesystem entry. A
// running entry rejects the update with InvalidParameter — the source's
// silent-accept-while-running behavior is a documented Open Question this
// spec resolves explicitly (see DESIGN.md).
func (r *Registry) UpdateFSInfo(id UUID, name string, config json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.filesystems[id]
	if !ok {
		return vfserrors.New(vfserrors.ObjectNameNotFound, "no such filesystem: "+id.String())
	}
	if entry.ref != nil {
		return vfserrors.New(vfserrors.InvalidParameter, "cannot update a running filesystem")
	}
	if name != "" {
		entry.name = name
	}
	if config != nil {
		entry.config = config
	}
	return nil
}
