package registry

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/winmount/winmount/vfserrors"
)

// CreateFsrv declares a new server entry bound to inputID, not yet started.
func (r *Registry) CreateFsrv(name string, kindID UUID, inputID UUID, config json.RawMessage) UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.servers[id] = &serverEntry{id: id, kindID: kindID, name: name, inputID: inputID, config: config}
	return id
}

// StartFsrv starts the server's input filesystem first (§4.C "start_fsrv
// additionally asserts the input filesystem is started"), acquires a
// reference on it for the lifetime of the server, then constructs the
// server itself.
func (r *Registry) StartFsrv(ctx context.Context, id UUID) (started bool, err error) {
	r.mu.Lock()
	entry, ok := r.servers[id]
	if !ok {
		r.mu.Unlock()
		return false, vfserrors.New(vfserrors.ObjectNameNotFound, "no such server: "+id.String())
	}
	if entry.server != nil {
		r.mu.Unlock()
		return false, nil
	}
	provider, ok := r.serverProviders[entry.kindID]
	config := entry.config
	inputID := entry.inputID
	r.mu.Unlock()
	if !ok {
		return false, vfserrors.New(vfserrors.InvalidParameter, "no provider registered for server kind "+entry.kindID.String())
	}

	if err := r.startFS(inputID, &CreationContext{reg: r, building: make(map[UUID]struct{})}); err != nil {
		return false, err
	}
	handler, release, err := r.AcquireHandler(inputID)
	if err != nil {
		return false, err
	}

	srv, err := provider.Construct(ctx, handler, config)
	if err != nil {
		release()
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.server != nil {
		// another goroutine raced us: keep theirs, tear down ours.
		release()
		srv.Close()
		return false, nil
	}
	entry.server = srv
	entry.cleanups = append(entry.cleanups, release)
	return true, nil
}

// StopFsrv stops the server and releases its hold on the input filesystem.
func (r *Registry) StopFsrv(id UUID) error {
	r.mu.Lock()
	entry, ok := r.servers[id]
	if !ok {
		r.mu.Unlock()
		return vfserrors.New(vfserrors.ObjectNameNotFound, "no such server: "+id.String())
	}
	if entry.server == nil {
		r.mu.Unlock()
		return nil
	}
	srv := entry.server
	cleanups := entry.cleanups
	entry.server = nil
	entry.cleanups = nil
	r.mu.Unlock()

	err := srv.Close()
	for _, c := range cleanups {
		c()
	}
	return err
}

// RemoveFsrv deletes a stopped server entry.
func (r *Registry) RemoveFsrv(id UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.servers[id]
	if !ok {
		return vfserrors.New(vfserrors.ObjectNameNotFound, "no such server: "+id.String())
	}
	if entry.server != nil {
		return vfserrors.New(vfserrors.StillInUse, "cannot remove a running server")
	}
	delete(r.servers, id)
	return nil
}

// ListFsrv returns every declared server entry.
func (r *Registry) ListFsrv() []ServerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ServerInfo, 0, len(r.servers))
	for _, e := range r.servers {
		out = append(out, ServerInfo{ID: e.id, KindID: e.kindID, Name: e.name, InputID: e.inputID, Config: e.config, Started: e.server != nil})
	}
	return out
}

// GetFsrvInfo returns the current view of a server entry.
func (r *Registry) GetFsrvInfo(id UUID) (ServerInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.servers[id]
	if !ok {
		return ServerInfo{}, vfserrors.New(vfserrors.ObjectNameNotFound, "no such server: "+id.String())
	}
	return ServerInfo{ID: entry.id, KindID: entry.kindID, Name: entry.name, InputID: entry.inputID, Config: entry.config, Started: entry.server != nil}, nil
}

// UpdateFsrvInfo renames/reconfigures a stopped server entry.
func (r *Registry) UpdateFsrvInfo(id UUID, name string, config json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.servers[id]
	if !ok {
		return vfserrors.New(vfserrors.ObjectNameNotFound, "no such server: "+id.String())
	}
	if entry.server != nil {
		return vfserrors.New(vfserrors.InvalidParameter, "cannot update a running server")
	}
	if name != "" {
		entry.name = name
	}
	if config != nil {
		entry.config = config
	}
	return nil
}
