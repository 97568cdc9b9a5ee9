package archive

import (
	"context"
	"strings"
	"sync"

	"github.com/winmount/winmount/internal/wlog"
	"github.com/winmount/winmount/vfs"
	"github.com/winmount/winmount/vfserrors"
	"github.com/winmount/winmount/vfspath"
)

// refCounted is a single cached handle, either a dep file opened against
// the lower filesystem or a child file opened against the format handler.
type refCounted struct {
	file  vfs.File
	isDir bool
	count int
}

// archiveEntry is the ArchiveHandlerWithFiles of §4.D: one cached archive,
// its format handler, and every handle currently open against it.
//
// Lock order (per §5): overlay-top → this entry's mutex. The entry's own
// mutex covers both depFiles and files; the spec allows per-collection
// mutexes but a single per-entry lock is simpler and the two maps are
// always touched together (eviction checks both).
type archiveEntry struct {
	mu       sync.Mutex
	handler  Handler
	depFiles map[string]*refCounted
	files    map[string]*refCounted
	basePath string
}

// OverlayFS is the archive overlay FileSystemHandler of §4.D.
type OverlayFS struct {
	mu           sync.Mutex
	inner        vfs.FileSystemHandler
	rules        []Rule
	constructors map[string]Constructor
	nonUnicode   NonUnicodeCompat
	cache        map[string]*archiveEntry
}

// New builds an overlay over inner using rules to recognize archives and
// constructors to build format-specific handlers for each rule's
// HandlerKind.
func New(inner vfs.FileSystemHandler, rules []Rule, constructors map[string]Constructor, nonUnicode NonUnicodeCompat) *OverlayFS {
	return &OverlayFS{
		inner:        inner,
		rules:        rules,
		constructors: constructors,
		nonUnicode:   nonUnicode,
		cache:        make(map[string]*archiveEntry),
	}
}

// GetCharacteristics always adds ReadOnly to whatever the lower filesystem
// reports, per §4.D "Read-only semantics" and the monotonicity invariant
// (§3 invariant 5): archive-backed trees are read-only by design (Non-goals),
// so the overlay's entire namespace is reported read-only regardless of
// whether a given path is actually inside an archive.
func (o *OverlayFS) GetCharacteristics(ctx context.Context) vfs.Characteristics {
	return o.inner.GetCharacteristics(ctx) | vfs.ReadOnly
}

func (o *OverlayFS) GetFreeSpace(ctx context.Context) (uint64, uint64, uint64, error) {
	return o.inner.GetFreeSpace(ctx)
}

// CreateFile implements the open algorithm of §4.D.
func (o *OverlayFS) CreateFile(ctx context.Context, path string, desired vfs.DesiredAccess, attrs vfs.FileAttributes, shareAccess uint32, disposition vfs.Disposition, options vfs.CreateOptions) (vfs.CreateFileInfo, error) {
	if desired&(vfs.Write|vfs.Delete) != 0 {
		return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.AccessDenied, "archive overlay is read-only")
	}

	split := splitPath(path, o.rules)
	if !split.Matched {
		return o.openRaw(ctx, path, desired, attrs, shareAccess, disposition, options)
	}

	key := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, split.Front)

	o.mu.Lock()
	entry, exists := o.cache[key]
	o.mu.Unlock()
	if exists {
		return o.openChild(entry, split, options)
	}

	frontInfo, err := o.inner.CreateFile(ctx, split.Front, vfs.Read, 0, shareAccess, vfs.OpenExisting, 0)
	if err != nil {
		return vfs.CreateFileInfo{}, err
	}

	if (frontInfo.IsDir && !split.Rule.HandlesFolder) || (!frontInfo.IsDir && !split.Rule.HandlesFile) {
		frontInfo.File.Close()
		return o.openRaw(ctx, path, desired, attrs, shareAccess, disposition, options)
	}

	entry = &archiveEntry{
		basePath: split.Front,
		depFiles: map[string]*refCounted{"": {file: frontInfo.File, isDir: frontInfo.IsDir, count: 1}},
		files:    map[string]*refCounted{},
	}

	cfg := o.nonUnicode.resolve(split.Front)
	octx := &OpenContext{entry: entry, inner: o.inner, basePath: split.Front, rootIsDir: frontInfo.IsDir, rootName: lastSegment(split.Front)}

	constructor, ok := o.constructors[split.Rule.HandlerKind]
	if !ok {
		o.discardEntry(entry)
		return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.InvalidParameter, "no archive handler registered for kind "+split.Rule.HandlerKind)
	}

	handler, err := constructor(octx, cfg)
	if err != nil {
		o.discardEntry(entry)
		wlog.L().WithField("path", split.Front).WithError(err).Warn("archive open failed")
		return vfs.CreateFileInfo{}, vfserrors.Wrap(vfserrors.FileCorrupt, err, "failed to open archive "+split.Front)
	}
	entry.handler = handler

	o.mu.Lock()
	if raced, ok := o.cache[key]; ok {
		o.mu.Unlock()
		handler.Close()
		o.discardEntry(entry)
		return o.openChild(raced, split, options)
	}
	o.cache[key] = entry
	o.mu.Unlock()

	return o.openChild(entry, split, options)
}

// discardEntry tears down an entry that never made it into the cache
// (construction failed or lost a race), releasing its dep files.
func (o *OverlayFS) discardEntry(entry *archiveEntry) {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	for _, ref := range entry.depFiles {
		ref.file.Close()
	}
}

func (o *OverlayFS) openRaw(ctx context.Context, path string, desired vfs.DesiredAccess, attrs vfs.FileAttributes, shareAccess uint32, disposition vfs.Disposition, options vfs.CreateOptions) (vfs.CreateFileInfo, error) {
	info, err := o.inner.CreateFile(ctx, path, desired, attrs, shareAccess, disposition, options)
	if err != nil {
		return vfs.CreateFileInfo{}, err
	}
	return vfs.CreateFileInfo{
		File:           &rawFile{inner: info.File, overlay: o},
		IsDir:          info.IsDir,
		NewFileCreated: info.NewFileCreated,
	}, nil
}

// openChild resolves split.Back within an already-cached archive entry,
// incrementing the existing reference or opening it fresh through the
// format handler, per §4.D steps 3–4.
func (o *OverlayFS) openChild(entry *archiveEntry, split splitResult, options vfs.CreateOptions) (vfs.CreateFileInfo, error) {
	entry.mu.Lock()
	if ref, ok := entry.files[split.Back]; ok {
		ref.count++
		entry.mu.Unlock()
		if err := enforceKindOptions(options, ref.isDir); err != nil {
			o.releaseChild(entry, split.Back)
			return vfs.CreateFileInfo{}, err
		}
		return vfs.CreateFileInfo{File: &childFile{entry: entry, overlay: o, key: split.Back, inner: ref.file}, IsDir: ref.isDir}, nil
	}
	entry.mu.Unlock()

	relPath, _ := vfspath.New(split.Back, vfspath.Slash)
	f, isDir, err := entry.handler.OpenFile(relPath)
	if err != nil {
		return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.ObjectNameNotFound, "no such archive entry: "+split.Back)
	}
	if err := enforceKindOptions(options, isDir); err != nil {
		f.Close()
		return vfs.CreateFileInfo{}, err
	}

	entry.mu.Lock()
	if raced, ok := entry.files[split.Back]; ok {
		raced.count++
		entry.mu.Unlock()
		f.Close()
		return vfs.CreateFileInfo{File: &childFile{entry: entry, overlay: o, key: split.Back, inner: raced.file}, IsDir: raced.isDir}, nil
	}
	entry.files[split.Back] = &refCounted{file: f, isDir: isDir, count: 1}
	entry.mu.Unlock()

	return vfs.CreateFileInfo{File: &childFile{entry: entry, overlay: o, key: split.Back, inner: f}, IsDir: isDir}, nil
}

func enforceKindOptions(options vfs.CreateOptions, isDir bool) error {
	if options&vfs.DirectoryFile != 0 && !isDir {
		return vfserrors.New(vfserrors.NotADirectory, "expected a directory")
	}
	if options&vfs.NonDirectoryFile != 0 && isDir {
		return vfserrors.New(vfserrors.FileIsADirectory, "expected a file")
	}
	return nil
}

// releaseChild decrements the refcount for key within entry and evicts the
// child — and, if files becomes empty, the whole entry — per §3 invariant 3.
func (o *OverlayFS) releaseChild(entry *archiveEntry, key string) {
	entry.mu.Lock()
	ref, ok := entry.files[key]
	if !ok {
		entry.mu.Unlock()
		return
	}
	ref.count--
	evictEntry := false
	if ref.count <= 0 {
		ref.file.Close()
		delete(entry.files, key)
		evictEntry = len(entry.files) == 0
	}
	entry.mu.Unlock()

	if !evictEntry {
		return
	}

	o.mu.Lock()
	for k, v := range o.cache {
		if v == entry {
			delete(o.cache, k)
			break
		}
	}
	o.mu.Unlock()

	entry.mu.Lock()
	handler := entry.handler
	for name, dep := range entry.depFiles {
		dep.file.Close()
		delete(entry.depFiles, name)
	}
	entry.mu.Unlock()
	if handler != nil {
		handler.Close()
	}
}

// entryCount reports how many archive entries are currently cached.
func (o *OverlayFS) entryCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.cache)
}
