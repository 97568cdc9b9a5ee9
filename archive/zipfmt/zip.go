package zipfmt

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/winmount/winmount/archive"
	"github.com/winmount/winmount/vfs"
	"github.com/winmount/winmount/vfserrors"
	"github.com/winmount/winmount/vfspath"
)

// handler is the archive.Handler implementation for ZIP archives: the
// central directory is parsed once at construction time and held as an
// in-memory tree; every OpenFile/Stat/ReadDir call works against that tree,
// never re-parsing the archive.
type handler struct {
	root     *treeNode
	archive  readerAt
	bufCache *cache.Cache
}

// Construct implements archive.Constructor for the ZIP format. It reads the
// EOCD, the central directory, and materializes the entry tree, per
// §4.D.ZIP.
func Construct(ctx *archive.OpenContext, cfg archive.NonUnicodeConfig) (archive.Handler, error) {
	root := ctx.GetFile()
	stat, err := root.GetStat()
	if err != nil {
		return nil, err
	}

	eocd, err := findEOCD(root, int64(stat.Size))
	if err != nil {
		return nil, err
	}
	if err := rejectMultiDiskOrZip64(eocd); err != nil {
		return nil, err
	}

	records, err := readCentralDirectory(root, eocd)
	if err != nil {
		return nil, err
	}

	tree, err := buildTree(records, cfg, stat.Index)
	if err != nil {
		return nil, err
	}

	return &handler{
		root:     tree,
		archive:  root,
		bufCache: cache.New(cache.NoExpiration, 0),
	}, nil
}

func (h *handler) lookup(rel vfspath.SegPath) *treeNode {
	n := h.root
	found := true
	rel.ForEachSegment(func(seg string) bool {
		child, ok := n.children[foldKey(seg)]
		if !ok {
			found = false
			return false
		}
		n = child
		return true
	})
	if !found {
		return nil
	}
	return n
}

func (h *handler) OpenFile(rel vfspath.SegPath) (vfs.File, bool, error) {
	n := h.lookup(rel)
	if n == nil {
		return nil, false, vfserrors.New(vfserrors.ObjectNameNotFound, "no such entry in archive: "+rel.String())
	}
	if n.isDir {
		return &dirHandle{node: n}, true, nil
	}

	dataStart, _, err := readLocalHeader(h.archive, n.record.localHeaderOffset)
	if err != nil {
		return nil, false, err
	}
	cacheKey := fmt.Sprintf("%d", n.index)
	reader, err := newEntryReader(h.archive, int64(dataStart), n.record, cacheKey, h.bufCache)
	if err != nil {
		return nil, false, err
	}
	return &fileHandle{node: n, reader: reader}, false, nil
}

func (h *handler) Stat(rel vfspath.SegPath) (vfs.FileStatInfo, error) {
	n := h.lookup(rel)
	if n == nil {
		return vfs.FileStatInfo{}, vfserrors.New(vfserrors.ObjectNameNotFound, "no such entry in archive: "+rel.String())
	}
	return statOf(n), nil
}

func (h *handler) ReadDir(rel vfspath.SegPath, filler vfs.FillFunc) error {
	n := h.lookup(rel)
	if n == nil {
		return vfserrors.New(vfserrors.ObjectNameNotFound, "no such entry in archive: "+rel.String())
	}
	if !n.isDir {
		return vfserrors.New(vfserrors.NotADirectory, "not a directory: "+rel.String())
	}
	for _, child := range n.children {
		if !filler(child.name, statOf(child)) {
			break
		}
	}
	return nil
}

func (h *handler) Close() error {
	h.bufCache.Flush()
	return nil
}

func statOf(n *treeNode) vfs.FileStatInfo {
	if n.isDir {
		return vfs.FileStatInfo{Index: n.index, IsDir: true, Attributes: vfs.AttrDirectory}
	}

	modTime := decodeDOSTime(n.record.lastModDate, n.record.lastModTime)
	creation, access, write := modTime, modTime, modTime
	if ntfs := parseNTFSExtra(n.record.extra); ntfs.present {
		creation, access, write = ntfs.created, ntfs.accessed, ntfs.modified
	}

	return vfs.FileStatInfo{
		Index:          n.index,
		Size:           n.record.uncompressedSize,
		IsDir:          false,
		CreationTime:   creation,
		LastAccessTime: access,
		LastWriteTime:  write,
	}
}

// dirHandle is the vfs.File view of a synthesized or archive-rooted
// directory node: enumerable, but immutable like every archive handle.
type dirHandle struct {
	node *treeNode
}

func (d *dirHandle) ReadAt(b []byte, off int64) (int, error) {
	return 0, vfserrors.New(vfserrors.FileIsADirectory, "cannot read a directory")
}
func (d *dirHandle) WriteAt(b []byte, off *int64, constrainSize bool) (int, error) {
	return 0, vfserrors.New(vfserrors.AccessDenied, "archive entries are read-only")
}
func (d *dirHandle) FlushBuffers() error { return vfserrors.New(vfserrors.AccessDenied, "archive entries are read-only") }
func (d *dirHandle) GetStat() (vfs.FileStatInfo, error) { return statOf(d.node), nil }
func (d *dirHandle) SetEndOfFile(size uint64) error {
	return vfserrors.New(vfserrors.AccessDenied, "archive entries are read-only")
}
func (d *dirHandle) SetFileTimes(creation, lastAccess, lastWrite *time.Time) error {
	return vfserrors.New(vfserrors.AccessDenied, "archive entries are read-only")
}
func (d *dirHandle) SetDelete(marked bool) error {
	return vfserrors.New(vfserrors.AccessDenied, "archive entries are read-only")
}
func (d *dirHandle) MoveTo(newPath string, replace bool) error {
	return vfserrors.New(vfserrors.AccessDenied, "archive entries are read-only")
}
func (d *dirHandle) FindFilesWithPattern(pattern string, filler vfs.FillFunc) error {
	for _, child := range d.node.children {
		matched := true
		if pattern != "" && pattern != "*" {
			var err error
			matched, err = filepath.Match(pattern, child.name)
			if err != nil {
				return vfserrors.New(vfserrors.InvalidParameter, "bad pattern: "+pattern)
			}
		}
		if matched && !filler(child.name, statOf(child)) {
			break
		}
	}
	return nil
}
func (d *dirHandle) Close() error { return nil }

// fileHandle is the vfs.File view of a leaf archive entry.
type fileHandle struct {
	node   *treeNode
	reader *entryReader
}

func (f *fileHandle) ReadAt(b []byte, off int64) (int, error) { return f.reader.ReadAt(b, off) }
func (f *fileHandle) WriteAt(b []byte, off *int64, constrainSize bool) (int, error) {
	return 0, vfserrors.New(vfserrors.AccessDenied, "archive entries are read-only")
}
func (f *fileHandle) FlushBuffers() error {
	return vfserrors.New(vfserrors.AccessDenied, "archive entries are read-only")
}
func (f *fileHandle) GetStat() (vfs.FileStatInfo, error) { return statOf(f.node), nil }
func (f *fileHandle) SetEndOfFile(size uint64) error {
	return vfserrors.New(vfserrors.AccessDenied, "archive entries are read-only")
}
func (f *fileHandle) SetFileTimes(creation, lastAccess, lastWrite *time.Time) error {
	return vfserrors.New(vfserrors.AccessDenied, "archive entries are read-only")
}
func (f *fileHandle) SetDelete(marked bool) error {
	return vfserrors.New(vfserrors.AccessDenied, "archive entries are read-only")
}
func (f *fileHandle) MoveTo(newPath string, replace bool) error {
	return vfserrors.New(vfserrors.AccessDenied, "archive entries are read-only")
}
func (f *fileHandle) FindFilesWithPattern(pattern string, filler vfs.FillFunc) error {
	return vfserrors.New(vfserrors.NotADirectory, "not a directory")
}
func (f *fileHandle) Close() error { return nil }
