package archive_test

import (
	"archive/zip"
	"bytes"
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winmount/winmount/archive"
	"github.com/winmount/winmount/archive/zipfmt"
	"github.com/winmount/winmount/memfs"
	"github.com/winmount/winmount/vfs"
)

// writeZip builds a zip in memory (via the standard library, strictly as a
// test fixture generator) and stores it into fs at path.
func writeZip(t *testing.T, fs *memfs.FS, path string, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	info, err := fs.CreateFile(context.Background(), path, vfs.Write, 0, 0, vfs.CreateAlways, 0)
	require.NoError(t, err)
	defer info.File.Close()
	n, err := info.File.WriteAt(buf.Bytes(), nil, false)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)
}

func newOverlay(fs *memfs.FS) *archive.OverlayFS {
	rules := []archive.Rule{
		{PathPattern: regexp.MustCompile(`(?i)\.zip$`), HandlerKind: "zip", HandlesFile: true},
	}
	constructors := map[string]archive.Constructor{"zip": zipfmt.Construct}
	return archive.New(fs, rules, constructors, archive.NonUnicodeCompat{})
}

// TestOpenRawPassesThrough exercises opening a file that never matches an
// archive rule: it should pass straight through to the lower filesystem.
func TestOpenRawPassesThrough(t *testing.T) {
	fs := memfs.New()
	info, err := fs.CreateFile(context.Background(), "plain.txt", vfs.Write, 0, 0, vfs.CreateAlways, 0)
	require.NoError(t, err)
	_, err = info.File.WriteAt([]byte("hello"), nil, false)
	require.NoError(t, err)
	require.NoError(t, info.File.Close())

	overlay := newOverlay(fs)
	opened, err := overlay.CreateFile(context.Background(), "plain.txt", vfs.Read, 0, 0, vfs.OpenExisting, 0)
	require.NoError(t, err)
	defer opened.File.Close()

	buf := make([]byte, 5)
	n, err := opened.File.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

// TestOpenArchivedFileAndReaddirPromotion covers opening a file inside a
// ZIP through the overlay and the readdir rewrite promoting the archive
// file itself to a synthetic directory.
func TestOpenArchivedFileAndReaddirPromotion(t *testing.T) {
	fs := memfs.New()
	writeZip(t, fs, "data.zip", map[string]string{
		"readme.txt":    "hello from inside the archive",
		"sub/nested.txt": "nested content",
	})

	overlay := newOverlay(fs)

	opened, err := overlay.CreateFile(context.Background(), "data.zip/readme.txt", vfs.Read, 0, 0, vfs.OpenExisting, 0)
	require.NoError(t, err)
	defer opened.File.Close()
	assert.False(t, opened.IsDir)

	stat, err := opened.File.GetStat()
	require.NoError(t, err)
	buf := make([]byte, stat.Size)
	n, err := opened.File.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello from inside the archive", string(buf[:n]))

	root, err := overlay.CreateFile(context.Background(), "", vfs.Read, 0, 0, vfs.OpenExisting, vfs.DirectoryFile)
	require.NoError(t, err)
	defer root.File.Close()

	promoted := false
	err = root.File.FindFilesWithPattern("*", func(name string, stat vfs.FileStatInfo) bool {
		if name == "data.zip" {
			promoted = true
			assert.True(t, stat.IsDir, "an archive file must be promoted to a directory in readdir output")
		}
		return true
	})
	require.NoError(t, err)
	assert.True(t, promoted, "data.zip should have appeared in the root listing")
}

// TestArchiveOverlayRejectsWrites checks the overlay's read-only semantics
// span both raw passthrough paths and archive children.
func TestArchiveOverlayRejectsWrites(t *testing.T) {
	fs := memfs.New()
	writeZip(t, fs, "data.zip", map[string]string{"a.txt": "x"})
	overlay := newOverlay(fs)

	assert.True(t, overlay.GetCharacteristics(context.Background())&vfs.ReadOnly != 0)

	_, err := overlay.CreateFile(context.Background(), "data.zip/a.txt", vfs.Write, 0, 0, vfs.OpenExisting, 0)
	assert.Error(t, err)

	info, err := fs.CreateFile(context.Background(), "plain.txt", vfs.Write, 0, 0, vfs.CreateAlways, 0)
	require.NoError(t, err)
	require.NoError(t, info.File.Close())
	_, err = overlay.CreateFile(context.Background(), "plain.txt", vfs.Write, 0, 0, vfs.OpenExisting, 0)
	assert.Error(t, err, "raw passthrough paths are read-only too, not just archive children")
}

// TestArchiveReopensAfterLastClose closes every handle into an archive and
// checks that a later open of the same archive still serves the entry's
// contents. The overlay's cache is not inspected from this package.
func TestArchiveReopensAfterLastClose(t *testing.T) {
	fs := memfs.New()
	writeZip(t, fs, "data.zip", map[string]string{"a.txt": "one", "b.txt": "two"})
	overlay := newOverlay(fs)

	first, err := overlay.CreateFile(context.Background(), "data.zip/a.txt", vfs.Read, 0, 0, vfs.OpenExisting, 0)
	require.NoError(t, err)
	second, err := overlay.CreateFile(context.Background(), "data.zip/b.txt", vfs.Read, 0, 0, vfs.OpenExisting, 0)
	require.NoError(t, err)

	require.NoError(t, first.File.Close())
	require.NoError(t, second.File.Close())

	reopened, err := overlay.CreateFile(context.Background(), "data.zip/a.txt", vfs.Read, 0, 0, vfs.OpenExisting, 0)
	require.NoError(t, err)
	defer reopened.File.Close()
	buf := make([]byte, 3)
	n, err := reopened.File.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "one", string(buf[:n]))
}
