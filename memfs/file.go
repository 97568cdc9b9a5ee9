package memfs

import (
	"time"

	"github.com/winmount/winmount/vfs"
	"github.com/winmount/winmount/vfserrors"
)

type file struct {
	node *node
	fs   *FS
}

func (h *file) ReadAt(b []byte, off int64) (int, error) {
	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	if h.node.isDir() {
		return 0, vfserrors.New(vfserrors.FileIsADirectory, h.node.name)
	}
	if off < 0 || off >= int64(len(h.node.data)) {
		return 0, nil
	}
	n := copy(b, h.node.data[off:])
	h.node.lastAccess = time.Now()
	return n, nil
}

func (h *file) WriteAt(b []byte, off *int64, constrainSize bool) (int, error) {
	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	if h.node.isDir() {
		return 0, vfserrors.New(vfserrors.FileIsADirectory, h.node.name)
	}
	if h.fs != nil && h.fs.readOnly {
		return 0, vfserrors.New(vfserrors.AccessDenied, "memfs is read-only")
	}

	var o int64
	if off == nil {
		o = int64(len(h.node.data))
	} else {
		o = *off
	}

	end := o + int64(len(b))
	if constrainSize {
		if o >= int64(len(h.node.data)) {
			return 0, nil
		}
		if end > int64(len(h.node.data)) {
			end = int64(len(h.node.data))
		}
	} else if end > int64(len(h.node.data)) {
		grown := make([]byte, end)
		copy(grown, h.node.data)
		h.node.data = grown
	}

	n := copy(h.node.data[o:end], b)
	h.node.lastWrite = time.Now()
	return n, nil
}

func (h *file) FlushBuffers() error { return nil }

func (h *file) GetStat() (vfs.FileStatInfo, error) {
	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	attrs := vfs.FileAttributes(0)
	if h.node.isDir() {
		attrs |= vfs.AttrDirectory
	}
	return vfs.FileStatInfo{
		Index:          h.node.index,
		Size:           uint64(len(h.node.data)),
		IsDir:          h.node.isDir(),
		Attributes:     attrs,
		CreationTime:   h.node.creation,
		LastAccessTime: h.node.lastAccess,
		LastWriteTime:  h.node.lastWrite,
	}, nil
}

func (h *file) SetEndOfFile(size uint64) error {
	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	if h.node.isDir() {
		return vfserrors.New(vfserrors.FileIsADirectory, h.node.name)
	}
	if uint64(len(h.node.data)) == size {
		return nil
	}
	grown := make([]byte, size)
	copy(grown, h.node.data)
	h.node.data = grown
	h.node.lastWrite = time.Now()
	return nil
}

func (h *file) SetFileTimes(creation, lastAccess, lastWrite *time.Time) error {
	h.node.mu.Lock()
	defer h.node.mu.Unlock()
	if creation != nil {
		h.node.creation = *creation
	}
	if lastAccess != nil {
		h.node.lastAccess = *lastAccess
	}
	if lastWrite != nil {
		h.node.lastWrite = *lastWrite
	}
	return nil
}

func (h *file) SetDelete(marked bool) error {
	h.node.mu.Lock()
	h.node.deleteOnClose = marked
	h.node.mu.Unlock()
	return nil
}

func (h *file) MoveTo(newPath string, replace bool) error {
	if h.fs == nil {
		return vfserrors.New(vfserrors.AccessDenied, "cannot move the root")
	}
	return h.fs.rename(h.node, newPath, replace)
}

func (h *file) FindFilesWithPattern(pattern string, filler vfs.FillFunc) error {
	h.node.mu.Lock()
	if !h.node.isDir() {
		h.node.mu.Unlock()
		return vfserrors.New(vfserrors.NotADirectory, h.node.name)
	}
	children := make([]*node, 0, len(h.node.children))
	for _, c := range h.node.children {
		children = append(children, c)
	}
	h.node.mu.Unlock()

	for _, c := range children {
		if pattern != "" && pattern != "*" {
			if ok, err := matchPattern(pattern, c.name); err != nil || !ok {
				continue
			}
		}
		c.mu.Lock()
		attrs := vfs.FileAttributes(0)
		if c.isDir() {
			attrs |= vfs.AttrDirectory
		}
		stat := vfs.FileStatInfo{
			Index: c.index, Size: uint64(len(c.data)), IsDir: c.isDir(), Attributes: attrs,
			CreationTime: c.creation, LastAccessTime: c.lastAccess, LastWriteTime: c.lastWrite,
		}
		name := c.name
		c.mu.Unlock()
		if !filler(name, stat) {
			break
		}
	}
	return nil
}

func (h *file) Close() error {
	h.node.mu.Lock()
	marked := h.node.deleteOnClose
	parent := h.node.parent
	name := h.node.name
	h.node.mu.Unlock()
	if marked && parent != nil {
		parent.mu.Lock()
		delete(parent.children, name)
		parent.mu.Unlock()
	}
	return nil
}
