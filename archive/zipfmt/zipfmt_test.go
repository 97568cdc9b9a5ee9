package zipfmt

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winmount/winmount/archive"
	"github.com/winmount/winmount/textenc"
	"github.com/winmount/winmount/vfspath"
)

// buildZip writes a ZIP archive with the given (name, content, deflate)
// entries using the standard library's writer, purely as a test fixture —
// the package under test never imports archive/zip itself.
func buildZip(t *testing.T, entries []struct {
	name    string
	content string
	deflate bool
}) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		method := zip.Store
		if e.deflate {
			method = zip.Deflate
		}
		hdr := &zip.FileHeader{Name: e.name, Method: method}
		hdr.SetModTime(time.Date(2020, 6, 15, 12, 30, 0, 0, time.UTC))
		fw, err := w.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = fw.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFindEOCDNoComment(t *testing.T) {
	data := buildZip(t, []struct {
		name    string
		content string
		deflate bool
	}{{"a.txt", "hello", false}})
	rec, err := findEOCD(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.entriesTotal)
}

func TestFindEOCDTooShort(t *testing.T) {
	_, err := findEOCD(bytes.NewReader([]byte("short")), 5)
	assert.Error(t, err)
}

func TestFindEOCDWithTrailingComment(t *testing.T) {
	data := buildZip(t, []struct {
		name    string
		content string
		deflate bool
	}{{"a.txt", "hi", false}})

	// Append a comment by patching the EOCD comment-length field and
	// appending bytes, exercising the right-to-left scan path.
	comment := strings.Repeat("x", 1000)
	commentLen := uint16(len(comment))
	patched := append([]byte(nil), data...)
	patched[len(patched)-2] = byte(commentLen)
	patched[len(patched)-1] = byte(commentLen >> 8)
	patched = append(patched, []byte(comment)...)

	rec, err := findEOCD(bytes.NewReader(patched), int64(len(patched)))
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.entriesTotal)
}

func TestDOSTimeRoundTrip(t *testing.T) {
	times := []time.Time{
		time.Date(2020, 6, 15, 12, 30, 0, 0, time.Local),
		time.Date(1980, 1, 1, 0, 0, 0, 0, time.Local),
		time.Date(2107, 12, 31, 23, 59, 58, 0, time.Local),
	}
	for _, tm := range times {
		date, tt := encodeDOSTime(tm)
		got := decodeDOSTime(date, tt)
		assert.Equal(t, tm.Year(), got.Year())
		assert.Equal(t, tm.Month(), got.Month())
		assert.Equal(t, tm.Day(), got.Day())
		assert.Equal(t, tm.Hour(), got.Hour())
		assert.Equal(t, tm.Minute(), got.Minute())
	}
}

func TestDecodeDOSTimeInvalidFallsBackToEpoch(t *testing.T) {
	got := decodeDOSTime(0x0000, 0xFFFF) // month=0, invalid
	assert.Equal(t, time.Unix(0, 0).UTC(), got)
}

func centralRecordsFromZip(t *testing.T, data []byte) []centralDirRecord {
	t.Helper()
	eocd, err := findEOCD(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	recs, err := readCentralDirectory(bytes.NewReader(data), eocd)
	require.NoError(t, err)
	return recs
}

func TestBuildTreeRejectsTraversal(t *testing.T) {
	data := buildZip(t, []struct {
		name    string
		content string
		deflate bool
	}{{"../evil.txt", "x", false}})
	recs := centralRecordsFromZip(t, data)
	_, err := buildTree(recs, archive.NonUnicodeConfig{}, 1)
	assert.Error(t, err)
}

func TestBuildTreeRejectsDuplicateNames(t *testing.T) {
	recs := []centralDirRecord{
		{rawName: []byte("a.txt")},
		{rawName: []byte("a.txt")},
	}
	_, err := buildTree(recs, archive.NonUnicodeConfig{}, 1)
	assert.Error(t, err)
}

func TestBuildTreeMaterializesDirectories(t *testing.T) {
	data := buildZip(t, []struct {
		name    string
		content string
		deflate bool
	}{{"dir/sub/file.txt", "hi", false}})
	recs := centralRecordsFromZip(t, data)
	root, err := buildTree(recs, archive.NonUnicodeConfig{}, 1)
	require.NoError(t, err)

	dir, ok := root.children["dir"]
	require.True(t, ok)
	assert.True(t, dir.isDir)
	sub, ok := dir.children["sub"]
	require.True(t, ok)
	assert.True(t, sub.isDir)
	file, ok := sub.children["file.txt"]
	require.True(t, ok)
	assert.False(t, file.isDir)
}

func TestHandlerEndToEndStoreAndDeflate(t *testing.T) {
	data := buildZip(t, []struct {
		name    string
		content string
		deflate bool
	}{
		{"store.txt", "stored content", false},
		{"deflate.txt", strings.Repeat("compressible data ", 50), true},
	})

	h := &handler{bufCache: nil}
	eocd, err := findEOCD(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	recs, err := readCentralDirectory(bytes.NewReader(data), eocd)
	require.NoError(t, err)
	tree, err := buildTree(recs, archive.NonUnicodeConfig{}, 1)
	require.NoError(t, err)
	h.root = tree
	h.archive = bytes.NewReader(data)
	h.bufCache = cache.New(cache.NoExpiration, 0)

	storePath, err := vfspath.New("store.txt", vfspath.Backslash)
	require.NoError(t, err)
	f, isDir, err := h.OpenFile(storePath)
	require.NoError(t, err)
	assert.False(t, isDir)
	buf := make([]byte, len("stored content"))
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "stored content", string(buf[:n]))

	deflatePath, err := vfspath.New("deflate.txt", vfspath.Backslash)
	require.NoError(t, err)
	df, _, err := h.OpenFile(deflatePath)
	require.NoError(t, err)
	want := strings.Repeat("compressible data ", 50)
	dbuf := make([]byte, len(want))
	n, err = df.ReadAt(dbuf, 0)
	require.NoError(t, err)
	assert.Equal(t, want, string(dbuf[:n]))
}

func TestDecodeNameEFSInvalidUTF8IsReplacedNotRawCast(t *testing.T) {
	// Bytes that are not valid UTF-8 (a lone continuation byte), but
	// flagged EFS as if the writer had claimed them to be UTF-8 — an
	// adversarial/malformed archive. Decoding must still produce valid
	// UTF-8 (replacement characters), never a raw byte-to-string cast.
	rec := &centralDirRecord{rawName: []byte{'a', 0xFF, 'b'}, gpFlags: gpflagEFS}
	conv, err := textenc.NewConverter(textenc.Encoding{Kind: textenc.System})
	require.NoError(t, err)

	name, err := decodeName(rec, archive.NonUnicodeConfig{}, conv)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(name))
	assert.Equal(t, "a�b", name)
}

func TestResolveConverterAutoDetectNamesASCII(t *testing.T) {
	recs := []centralDirRecord{{rawName: []byte("plain.txt")}}
	conv, err := resolveConverter(recs, archive.NonUnicodeConfig{EncodingOverride: textenc.Encoding{Kind: textenc.AutoDetect}})
	require.NoError(t, err)
	assert.NotNil(t, conv)
}
