package localfs

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winmount/winmount/vfs"
)

func TestCreateWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := New(dir)
	ctx := context.Background()

	info, err := fs.CreateFile(ctx, "a.txt", vfs.Read|vfs.Write, 0, 0, vfs.CreateAlways, 0)
	require.NoError(t, err)
	_, err = info.File.WriteAt([]byte("hello"), nil, false)
	require.NoError(t, err)
	require.NoError(t, info.File.Close())

	info2, err := fs.CreateFile(ctx, "a.txt", vfs.Read, 0, 0, vfs.OpenExisting, 0)
	require.NoError(t, err)
	buf := make([]byte, 5)
	n, err := info2.File.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
	require.NoError(t, info2.File.Close())
}

func TestCreateNewFailsWhenExists(t *testing.T) {
	dir := t.TempDir()
	fs := New(dir)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(dir+"/x.txt", []byte("x"), 0o644))

	_, err := fs.CreateFile(ctx, "x.txt", vfs.Read, 0, 0, vfs.CreateNew, 0)
	assert.Error(t, err)
}

func TestDirectoryEnumeration(t *testing.T) {
	dir := t.TempDir()
	fs := New(dir)
	ctx := context.Background()
	require.NoError(t, os.WriteFile(dir+"/one.txt", []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(dir+"/two.txt", []byte("2"), 0o644))

	info, err := fs.CreateFile(ctx, "", vfs.Read, 0, 0, vfs.OpenExisting, vfs.DirectoryFile)
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	var names []string
	err = info.File.FindFilesWithPattern("*", func(name string, stat vfs.FileStatInfo) bool {
		names = append(names, name)
		return true
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"one.txt", "two.txt"}, names)
}

func TestOpenExistingDoesNotCreateMissingParent(t *testing.T) {
	dir := t.TempDir()
	fs := New(dir)
	ctx := context.Background()

	_, err := fs.CreateFile(ctx, "missing/a.txt", vfs.Read, 0, 0, vfs.OpenExisting, 0)
	assert.Error(t, err)
	_, statErr := os.Stat(dir + "/missing")
	assert.True(t, os.IsNotExist(statErr), "a read-style open must not mkdir a missing parent into existence")
}

func TestReadOnlyRejectsWrite(t *testing.T) {
	dir := t.TempDir()
	fs := New(dir).WithReadOnly()
	ctx := context.Background()

	_, err := fs.CreateFile(ctx, "a.txt", vfs.Read|vfs.Write, 0, 0, vfs.CreateAlways, 0)
	assert.Error(t, err)
}
