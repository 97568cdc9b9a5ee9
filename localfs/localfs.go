// Package localfs adapts the host's real filesystem to the vfs.FileSystemHandler
// contract, the same os.* passthrough the teacher's LocalFileSystem/
// createLocalVFS wired directly to package os, with CreateFile resolving
// through the shared disposition table instead of raw os.O_* flags.
package localfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/winmount/winmount/vfs"
	"github.com/winmount/winmount/vfserrors"
)

// FS roots every path at Root, joining with filepath.Join the way the
// teacher's Resolve did (".." components are collapsed away by Join/Clean
// rather than rejected, matching the teacher's "silently ignored" comment).
type FS struct {
	Root     string
	readOnly bool
}

// New returns a writable FS rooted at root.
func New(root string) *FS {
	return &FS{Root: root}
}

// WithReadOnly marks the filesystem read-only.
func (f *FS) WithReadOnly() *FS {
	f.readOnly = true
	return f
}

func (f *FS) resolve(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	return filepath.Join(f.Root, filepath.FromSlash(path))
}

func (f *FS) GetCharacteristics(ctx context.Context) vfs.Characteristics {
	if f.readOnly {
		return vfs.ReadOnly
	}
	return 0
}

func (f *FS) GetFreeSpace(ctx context.Context) (uint64, uint64, uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(f.Root, &stat); err != nil {
		return 0, 0, 0, vfserrors.Wrap(vfserrors.Other, err, "statfs failed")
	}
	blockSize := uint64(stat.Bsize)
	total := stat.Blocks * blockSize
	free := stat.Bfree * blockSize
	avail := stat.Bavail * blockSize
	return total, free, avail, nil
}

// CreateFile resolves disposition against the host filesystem's actual
// existence check, then opens with the os.O_* flags that disposition
// implies, mirroring the teacher's Open's mkdir-then-retry fallback for a
// missing parent directory — but, like the teacher's own
// `if flag == os.O_RDONLY { return os.OpenFile(...) }` guard, only when the
// disposition is actually creating something (outcome.Create); a read-style
// open (OpenExisting, TruncateExisting) against a missing parent must fail,
// not mkdir it into existence.
func (f *FS) CreateFile(ctx context.Context, path string, desired vfs.DesiredAccess, attrs vfs.FileAttributes, shareAccess uint32, disposition vfs.Disposition, options vfs.CreateOptions) (vfs.CreateFileInfo, error) {
	if f.readOnly && desired&(vfs.Write|vfs.Delete) != 0 {
		return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.AccessDenied, "localfs is read-only")
	}

	full := f.resolve(path)
	stat, statErr := os.Stat(full)
	exists := statErr == nil

	outcome, err := vfs.Resolve(disposition, exists)
	if err != nil {
		return vfs.CreateFileInfo{}, err
	}

	if options&vfs.DirectoryFile != 0 {
		if outcome.Create {
			if err := os.MkdirAll(full, 0o755); err != nil {
				return vfs.CreateFileInfo{}, vfserrors.Wrap(vfserrors.Other, err, "mkdir failed")
			}
		} else if exists && !stat.IsDir() {
			return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.NotADirectory, path)
		}
		return vfs.CreateFileInfo{File: &dirFile{path: full}, IsDir: true, NewFileCreated: outcome.NewFileCreated}, nil
	}

	if exists && stat.IsDir() {
		if options&vfs.NonDirectoryFile != 0 {
			return vfs.CreateFileInfo{}, vfserrors.New(vfserrors.FileIsADirectory, path)
		}
		return vfs.CreateFileInfo{File: &dirFile{path: full}, IsDir: true}, nil
	}

	flag := os.O_RDONLY
	switch {
	case desired&vfs.Write != 0 && outcome.Truncate:
		flag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case desired&vfs.Write != 0:
		flag = os.O_RDWR | os.O_CREATE
	}

	osFile, err := os.OpenFile(full, flag, 0o644)
	if os.IsNotExist(err) && outcome.Create {
		if mkErr := os.MkdirAll(filepath.Dir(full), 0o755); mkErr == nil {
			osFile, err = os.OpenFile(full, flag, 0o644)
		}
	}
	if err != nil {
		return vfs.CreateFileInfo{}, translateOSError(err)
	}

	target := &file{osFile: osFile, path: full}
	if options&vfs.DeleteOnClose != 0 {
		target.deleteOnClose = true
	}
	return vfs.CreateFileInfo{File: target, NewFileCreated: outcome.NewFileCreated}, nil
}

func translateOSError(err error) error {
	switch {
	case os.IsNotExist(err):
		return vfserrors.Wrap(vfserrors.ObjectNameNotFound, err, "no such file")
	case os.IsPermission(err):
		return vfserrors.Wrap(vfserrors.AccessDenied, err, "permission denied")
	case os.IsExist(err):
		return vfserrors.Wrap(vfserrors.ObjectNameCollision, err, "already exists")
	default:
		return vfserrors.Wrap(vfserrors.Other, err, "filesystem error")
	}
}
