package localfs

import (
	"io"
	"os"
	"time"

	"github.com/winmount/winmount/vfs"
	"github.com/winmount/winmount/vfserrors"
)

// file is a vfs.File backed directly by an *os.File.
type file struct {
	osFile        *os.File
	path          string
	deleteOnClose bool
}

func (f *file) ReadAt(b []byte, off int64) (int, error) {
	n, err := f.osFile.ReadAt(b, off)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (f *file) WriteAt(b []byte, off *int64, constrainSize bool) (int, error) {
	if off == nil {
		n, err := f.osFile.Write(b)
		return n, err
	}
	if constrainSize {
		info, err := f.osFile.Stat()
		if err == nil && *off+int64(len(b)) > info.Size() {
			max := info.Size() - *off
			if max < 0 {
				max = 0
			}
			b = b[:max]
		}
	}
	return f.osFile.WriteAt(b, *off)
}

func (f *file) FlushBuffers() error { return f.osFile.Sync() }

func (f *file) GetStat() (vfs.FileStatInfo, error) {
	info, err := f.osFile.Stat()
	if err != nil {
		return vfs.FileStatInfo{}, translateOSError(err)
	}
	return vfs.FileStatInfo{
		Size:          uint64(info.Size()),
		IsDir:         info.IsDir(),
		LastWriteTime: info.ModTime(),
	}, nil
}

func (f *file) SetEndOfFile(size uint64) error {
	return f.osFile.Truncate(int64(size))
}

func (f *file) SetFileTimes(creation, lastAccess, lastWrite *time.Time) error {
	access, write := time.Now(), time.Now()
	if lastAccess != nil {
		access = *lastAccess
	}
	if lastWrite != nil {
		write = *lastWrite
	}
	return os.Chtimes(f.path, access, write)
}

func (f *file) SetDelete(marked bool) error {
	f.deleteOnClose = marked
	return nil
}

func (f *file) MoveTo(newPath string, replace bool) error {
	if !replace {
		if _, err := os.Stat(newPath); err == nil {
			return vfserrors.New(vfserrors.ObjectNameCollision, "destination already exists")
		}
	}
	return os.Rename(f.path, newPath)
}

func (f *file) FindFilesWithPattern(pattern string, filler vfs.FillFunc) error {
	return vfserrors.New(vfserrors.NotADirectory, "not a directory")
}

func (f *file) Close() error {
	err := f.osFile.Close()
	if f.deleteOnClose {
		os.Remove(f.path)
	}
	return err
}

// dirFile is a vfs.File view of a directory; reads/writes are rejected,
// enumeration lists the host directory entries directly.
type dirFile struct {
	path          string
	deleteOnClose bool
}

func (d *dirFile) ReadAt(b []byte, off int64) (int, error) {
	return 0, vfserrors.New(vfserrors.FileIsADirectory, "cannot read a directory")
}

func (d *dirFile) WriteAt(b []byte, off *int64, constrainSize bool) (int, error) {
	return 0, vfserrors.New(vfserrors.FileIsADirectory, "cannot write a directory")
}

func (d *dirFile) FlushBuffers() error { return nil }

func (d *dirFile) GetStat() (vfs.FileStatInfo, error) {
	info, err := os.Stat(d.path)
	if err != nil {
		return vfs.FileStatInfo{}, translateOSError(err)
	}
	return vfs.FileStatInfo{IsDir: true, Attributes: vfs.AttrDirectory, LastWriteTime: info.ModTime()}, nil
}

func (d *dirFile) SetEndOfFile(size uint64) error {
	return vfserrors.New(vfserrors.FileIsADirectory, "cannot truncate a directory")
}

func (d *dirFile) SetFileTimes(creation, lastAccess, lastWrite *time.Time) error {
	access, write := time.Now(), time.Now()
	if lastAccess != nil {
		access = *lastAccess
	}
	if lastWrite != nil {
		write = *lastWrite
	}
	return os.Chtimes(d.path, access, write)
}

func (d *dirFile) SetDelete(marked bool) error {
	d.deleteOnClose = marked
	return nil
}

func (d *dirFile) MoveTo(newPath string, replace bool) error {
	if !replace {
		if _, err := os.Stat(newPath); err == nil {
			return vfserrors.New(vfserrors.ObjectNameCollision, "destination already exists")
		}
	}
	return os.Rename(d.path, newPath)
}

// FindFilesWithPattern enumerates directory children, matching the
// teacher's ReadDir via a direct os.ReadDir call per entry.
func (d *dirFile) FindFilesWithPattern(pattern string, filler vfs.FillFunc) error {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return translateOSError(err)
	}
	for _, e := range entries {
		if pattern != "" && pattern != "*" {
			matched, err := matchGlob(pattern, e.Name())
			if err != nil {
				return vfserrors.New(vfserrors.InvalidParameter, "bad pattern: "+pattern)
			}
			if !matched {
				continue
			}
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stat := vfs.FileStatInfo{Size: uint64(info.Size()), IsDir: info.IsDir(), LastWriteTime: info.ModTime()}
		if info.IsDir() {
			stat.Attributes |= vfs.AttrDirectory
		}
		if !filler(e.Name(), stat) {
			break
		}
	}
	return nil
}

func (d *dirFile) Close() error {
	if d.deleteOnClose {
		os.RemoveAll(d.path)
	}
	return nil
}
