package zipfmt

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/patrickmn/go-cache"

	"github.com/winmount/winmount/vfserrors"
)

const (
	methodStore   = 0
	methodDeflate = 8
)

// entryReader is a decompressed-on-demand view of one archive entry. STORE
// entries read directly from the archive file; DEFLATE entries decompress
// the whole entry into memory on first read and keep the buffer in a
// shared cache (the "Lazy decompression buffer" of §5), so a second reader
// of the same entry doesn't pay the inflate cost twice while the archive
// stays open.
type entryReader struct {
	mu         sync.Mutex
	archive    readerAt
	dataStart  int64
	compressed uint64
	size       uint64
	method     uint16
	cacheKey   string
	bufCache   *cache.Cache
}

func newEntryReader(archive readerAt, dataStart int64, rec *centralDirRecord, cacheKey string, bufCache *cache.Cache) (*entryReader, error) {
	if rec.gpFlags&gpflagEncrypted != 0 {
		return nil, vfserrors.New(vfserrors.NotImplemented, "encrypted archive entries are not supported")
	}
	if rec.compression != methodStore && rec.compression != methodDeflate {
		return nil, vfserrors.New(vfserrors.FileCorrupt, fmt.Sprintf("unsupported compression method %d", rec.compression))
	}
	return &entryReader{
		archive:    archive,
		dataStart:  dataStart,
		compressed: rec.compressedSize,
		size:       rec.uncompressedSize,
		method:     rec.compression,
		cacheKey:   cacheKey,
		bufCache:   bufCache,
	}, nil
}

// ReadAt implements vfs.File.ReadAt's "past EOF returns zero bytes"
// contract against this single entry's decompressed byte range.
func (r *entryReader) ReadAt(b []byte, off int64) (int, error) {
	if off < 0 {
		return 0, vfserrors.New(vfserrors.InvalidParameter, "negative offset")
	}
	if uint64(off) >= r.size {
		return 0, nil
	}

	if r.method == methodStore {
		n := int64(len(b))
		if off+n > int64(r.size) {
			n = int64(r.size) - off
		}
		return r.archive.ReadAt(b[:n], r.dataStart+off)
	}

	buf, err := r.decompressed()
	if err != nil {
		return 0, err
	}
	n := copy(b, buf[off:])
	return n, nil
}

// decompressed returns the fully-inflated entry, populating bufCache on
// first call and reusing it on every subsequent call while the archive
// entry stays cached, per the lazy decompression buffer design note.
func (r *entryReader) decompressed() ([]byte, error) {
	if cached, ok := r.bufCache.Get(r.cacheKey); ok {
		return cached.([]byte), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.bufCache.Get(r.cacheKey); ok {
		return cached.([]byte), nil
	}

	compressed := make([]byte, r.compressed)
	if _, err := r.archive.ReadAt(compressed, r.dataStart); err != nil {
		return nil, vfserrors.Wrap(vfserrors.FileCorrupt, err, "reading compressed entry data")
	}

	fr := flate.NewReader(bytes.NewReader(compressed))
	defer fr.Close()
	out, err := io.ReadAll(io.LimitReader(fr, int64(r.size)))
	if err != nil {
		return nil, vfserrors.Wrap(vfserrors.FileCorrupt, err, "inflating archive entry")
	}

	r.bufCache.Set(r.cacheKey, out, cache.DefaultExpiration)
	return out, nil
}

// Size returns the entry's uncompressed size.
func (r *entryReader) Size() uint64 { return r.size }
