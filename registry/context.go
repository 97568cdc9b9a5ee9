package registry

import (
	"github.com/winmount/winmount/vfs"
	"github.com/winmount/winmount/vfserrors"
)

// CreationContext is handed to a FilesystemProvider's Construct call. It
// carries the set of filesystem IDs currently under construction so that a
// dependency cycle is detected the moment it would re-enter an ID already
// being built, per §4.C "Cycle detection" and the design note on passing an
// explicit set-of-UUIDs construction context rather than a call-stack
// visited-set.
//
// The building set is owned by a single top-level StartFS call and is not
// shared across concurrent callers: per §5 "The set is single-threaded
// (held by the control plane)".
type CreationContext struct {
	reg      *Registry
	building map[UUID]struct{}
	current  UUID
}

// GetOrRunFS realizes another filesystem in the graph, recursively starting
// it if necessary, and returns its handler with one reference held on
// behalf of the calling filesystem. The reference is released automatically
// when the calling filesystem is stopped (registered as a cleanup), so
// providers do not need to track it themselves.
func (c *CreationContext) GetOrRunFS(id UUID) (vfs.FileSystemHandler, error) {
	if _, building := c.building[id]; building {
		return nil, vfserrors.New(vfserrors.CyclicDependency, "filesystem "+id.String()+" depends on itself")
	}
	c.building[id] = struct{}{}
	defer delete(c.building, id)

	if err := c.reg.startFS(id, c); err != nil {
		return nil, err
	}

	handler, release, err := c.reg.AcquireHandler(id)
	if err != nil {
		return nil, err
	}
	c.reg.mu.Lock()
	if entry, ok := c.reg.filesystems[c.current]; ok {
		entry.cleanups = append(entry.cleanups, release)
	} else {
		c.reg.mu.Unlock()
		release()
		return nil, vfserrors.New(vfserrors.InvalidParameter, "construction context has no current filesystem")
	}
	c.reg.mu.Unlock()
	return handler, nil
}
