// Package memfs is the in-memory backing filesystem of §4.E: a tree of
// folder and file nodes used as the lower filesystem in tests and as a
// lightweight scratch handler. It implements the vfs.FileSystemHandler
// contract the same way the archive overlay's inner filesystem does, so it
// doubles as the reference "leaf" filesystem the overlay is built against.
package memfs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/winmount/winmount/vfs"
	"github.com/winmount/winmount/vfserrors"
)

// node is either a folder (children != nil) or a file (data holds bytes).
// Parent pointers are plain pointers, not weak references: unlike the
// source's reference-counted-cell design, Go's garbage collector reclaims
// cycles on its own, so modeling a weak back-reference would only add
// ceremony without changing behavior (documented in DESIGN.md).
type node struct {
	mu       sync.Mutex
	name     string
	parent   *node
	children map[string]*node // nil for files
	data     []byte
	index    uint64

	creation   time.Time
	lastAccess time.Time
	lastWrite  time.Time

	deleteOnClose bool
}

func (n *node) isDir() bool { return n.children != nil }

// FS is an in-memory FileSystemHandler.
type FS struct {
	mu       sync.Mutex
	root     *node
	nextIdx  uint64
	readOnly bool
}

// New returns an empty, writable MemFS.
func New() *FS {
	now := time.Now()
	fs := &FS{}
	fs.root = &node{name: "", children: make(map[string]*node), creation: now, lastAccess: now, lastWrite: now}
	fs.nextIdx = 1
	return fs
}

func (f *FS) allocIndex() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextIdx++
	return f.nextIdx
}

func segments(path string) []string {
	path = strings.Trim(path, "/\\")
	if path == "" {
		return nil
	}
	raw := strings.ReplaceAll(path, "\\", "/")
	parts := strings.Split(raw, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// lookup walks from root and returns the node at path, or nil.
func (f *FS) lookup(path string) *node {
	n := f.root
	for _, seg := range segments(path) {
		n.mu.Lock()
		if !n.isDir() {
			n.mu.Unlock()
			return nil
		}
		child := n.children[seg]
		n.mu.Unlock()
		if child == nil {
			return nil
		}
		n = child
	}
	return n
}

// GetCharacteristics reports CaseSensitive: MemFS is a leaf filesystem with
// no ReadOnly bit of its own unless WithReadOnly was used.
func (f *FS) GetCharacteristics(ctx context.Context) vfs.Characteristics {
	if f.readOnly {
		return vfs.ReadOnly | vfs.CaseSensitive
	}
	return vfs.CaseSensitive
}

// WithReadOnly marks the filesystem read-only, useful for exercising the
// monotonicity invariant (§3 invariant 5) from overlay tests.
func (f *FS) WithReadOnly() *FS {
	f.readOnly = true
	return f
}

func (f *FS) GetFreeSpace(ctx context.Context) (uint64, uint64, uint64, error) {
	return 1 << 40, 1 << 39, 1 << 39, nil
}

// CreateFile implements the §4.B disposition table against the in-memory
// tree.
func (f *FS) CreateFile(ctx context.Context, path string, desired vfs.DesiredAccess, attrs vfs.FileAttributes, shareAccess uint32, disposition vfs.Disposition, options vfs.CreateOptions) (vfs.CreateFileInfo, error) {
	if f.readOnly && (desired&(vfs.Write|vfs.Delete) != 0) {
		return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.AccessDenied, "memfs is read-only")
	}

	segs := segments(path)
	if len(segs) == 0 {
		return vfs.CreateFileInfo{File: &file{node: f.root}, IsDir: true}, nil
	}

	parent := f.root
	for _, seg := range segs[:len(segs)-1] {
		parent.mu.Lock()
		if !parent.isDir() {
			parent.mu.Unlock()
			return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.NotADirectory, "path component is a file: "+seg)
		}
		child, ok := parent.children[seg]
		parent.mu.Unlock()
		if !ok || !child.isDir() {
			return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.ObjectPathNotFound, "intermediate path component not found: "+seg)
		}
		parent = child
	}

	name := segs[len(segs)-1]
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if !parent.isDir() {
		return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.NotADirectory, "parent is a file")
	}
	existing, exists := parent.children[name]

	outcome, err := vfs.Resolve(disposition, exists)
	if err != nil {
		return vfs.CreateFileInfo{}, err
	}

	var target *node
	if outcome.Create {
		target = &node{name: name, parent: parent}
		now := time.Now()
		target.creation, target.lastAccess, target.lastWrite = now, now, now
		if options&vfs.DirectoryFile != 0 {
			target.children = make(map[string]*node)
		}
		target.index = f.allocIndex()
		parent.children[name] = target
	} else {
		target = existing
		if options&vfs.DirectoryFile != 0 && !target.isDir() {
			return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.NotADirectory, name)
		}
		if options&vfs.NonDirectoryFile != 0 && target.isDir() {
			return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.FileIsADirectory, name)
		}
		if outcome.Truncate && !target.isDir() {
			target.data = nil
			target.lastWrite = time.Now()
		}
	}

	if options&vfs.DeleteOnClose != 0 {
		target.deleteOnClose = true
	}

	return vfs.CreateFileInfo{File: &file{node: target, fs: f}, IsDir: target.isDir(), NewFileCreated: outcome.NewFileCreated}, nil
}
