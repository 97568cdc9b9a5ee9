package archive

import (
	"context"

	"github.com/winmount/winmount/vfs"
	"github.com/winmount/winmount/vfspath"
)

// Handler is the format-specific archive reader contract (the ZIP backend
// in archive/zipfmt is the reference implementation). The overlay caches
// exactly one Handler per distinct archive front path.
type Handler interface {
	// OpenFile opens rel (relative to the archive root) and reports
	// whether it is a directory.
	OpenFile(rel vfspath.SegPath) (vfs.File, bool, error)

	// Stat returns metadata for rel without opening it.
	Stat(rel vfspath.SegPath) (vfs.FileStatInfo, error)

	// ReadDir enumerates the children of rel (a directory), invoking
	// filler for each.
	ReadDir(rel vfspath.SegPath, filler vfs.FillFunc) error

	// Close releases any resources the handler itself allocated beyond
	// the dep files it opened through OpenContext (e.g. decompression
	// buffers). The overlay calls this once, when the archive entry is
	// evicted from the cache.
	Close() error
}

// Constructor builds a Handler for a newly discovered archive, given
// capabilities to read more of the lower filesystem through ctx.
type Constructor func(ctx *OpenContext, cfg NonUnicodeConfig) (Handler, error)

// OpenContext is the capability set handed to a format Constructor, per
// §4.D "OpenContext".
type OpenContext struct {
	entry     *archiveEntry
	inner     vfs.FileSystemHandler
	basePath  string
	rootIsDir bool
	rootName  string
}

// GetFile returns the already-opened archive root file.
func (c *OpenContext) GetFile() vfs.File {
	c.entry.mu.Lock()
	defer c.entry.mu.Unlock()
	return c.entry.depFiles[""].file
}

// GetIsDir reports whether the archive root itself is a directory (rare,
// but some formats can be "exploded" directories rather than a single blob).
func (c *OpenContext) GetIsDir() bool { return c.rootIsDir }

// GetFileName returns the last path segment of the archive root.
func (c *OpenContext) GetFileName() string { return c.rootName }

// OpenFile opens another file under the archive's base path on the lower
// filesystem and registers it as a dependent file of the archive, per §4.D
// "open_file(relative_name)". The returned release func decrements the
// dep-file reference count; callers should invoke it when the format
// handler no longer needs the dependent file (usually on its own Close).
func (c *OpenContext) OpenFile(relativeName string) (vfs.File, func(), error) {
	full := c.basePath + "/" + relativeName
	info, err := c.inner.CreateFile(context.Background(), full, vfs.Read, 0, 0, vfs.OpenExisting, 0)
	if err != nil {
		return nil, nil, err
	}

	c.entry.mu.Lock()
	if existing, ok := c.entry.depFiles[relativeName]; ok {
		existing.count++
		c.entry.mu.Unlock()
		info.File.Close()
		return existing.file, c.releaseFunc(relativeName), nil
	}
	c.entry.depFiles[relativeName] = &refCounted{file: info.File, isDir: info.IsDir, count: 1}
	c.entry.mu.Unlock()
	return info.File, c.releaseFunc(relativeName), nil
}

func (c *OpenContext) releaseFunc(name string) func() {
	return func() {
		c.entry.mu.Lock()
		defer c.entry.mu.Unlock()
		ref, ok := c.entry.depFiles[name]
		if !ok {
			return
		}
		ref.count--
		if ref.count <= 0 {
			ref.file.Close()
			delete(c.entry.depFiles, name)
		}
	}
}
