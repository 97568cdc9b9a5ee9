// Package zipfmt is the ZIP archive backend of §4.D.ZIP: EOCD discovery,
// central directory parsing, per-entry DEFLATE/STORE decoding, DOS
// date/time decoding and NTFS timestamp extraction.
package zipfmt

import (
	"encoding/binary"

	"github.com/winmount/winmount/vfserrors"
)

const (
	eocdSignature       = 0x06054B50
	eocdMinSize         = 22
	maxCommentLength    = 65535
	centralDirSignature = 0x02014B50
	localHeaderSignature = 0x04034B50
)

// eocdRecord is a bit-exact mirror of the ZIP End-of-Central-Directory
// record (§3 ZipEndOfCentralDirRecord).
type eocdRecord struct {
	diskNumber         uint16
	diskWithCentralDir uint16
	entriesThisDisk    uint16
	entriesTotal       uint16
	centralDirSize     uint32
	centralDirOffset   uint32
	commentLength      uint16
}

// readerAt is the minimal capability eocd search and central-directory
// parsing need from the archive root file.
type readerAt interface {
	ReadAt(b []byte, off int64) (int, error)
}

// findEOCD implements §8's EOCD discovery algorithm: read the last 22
// bytes; if the signature matches, parse directly. Otherwise scan up to
// 22+65535 bytes from the tail, right to left, for the signature, accepting
// the first candidate whose disk-count fields are internally consistent.
func findEOCD(r readerAt, size int64) (eocdRecord, error) {
	if size < eocdMinSize {
		return eocdRecord{}, vfserrors.New(vfserrors.FileCorrupt, "file too small to contain an EOCD record")
	}

	tail := int64(eocdMinSize + maxCommentLength)
	if tail > size {
		tail = size
	}
	buf := make([]byte, tail)
	if _, err := r.ReadAt(buf, size-tail); err != nil {
		return eocdRecord{}, vfserrors.Wrap(vfserrors.FileCorrupt, err, "reading EOCD tail")
	}

	// Fast path: signature sits exactly at the last 22 bytes (no comment).
	if rec, ok := tryParseEOCD(buf, len(buf)-eocdMinSize, tail); ok {
		return rec, nil
	}

	for i := len(buf) - eocdMinSize - 1; i >= 0; i-- {
		if binary.LittleEndian.Uint32(buf[i:]) != eocdSignature {
			continue
		}
		if rec, ok := tryParseEOCD(buf, i, tail); ok {
			return rec, nil
		}
	}

	return eocdRecord{}, vfserrors.New(vfserrors.FileCorrupt, "no End-of-Central-Directory record found")
}

// tryParseEOCD parses a candidate EOCD at offset i in buf (whose length is
// tailLen) and validates it structurally: the comment length must fit the
// remaining bytes, and single-disk archives must have consistent disk
// fields. Trailing garbage after the comment is allowed (§8).
func tryParseEOCD(buf []byte, i int, tailLen int64) (eocdRecord, bool) {
	if i < 0 || i+eocdMinSize > len(buf) {
		return eocdRecord{}, false
	}
	if binary.LittleEndian.Uint32(buf[i:]) != eocdSignature {
		return eocdRecord{}, false
	}
	rec := eocdRecord{
		diskNumber:         binary.LittleEndian.Uint16(buf[i+4:]),
		diskWithCentralDir: binary.LittleEndian.Uint16(buf[i+6:]),
		entriesThisDisk:    binary.LittleEndian.Uint16(buf[i+8:]),
		entriesTotal:       binary.LittleEndian.Uint16(buf[i+10:]),
		centralDirSize:     binary.LittleEndian.Uint32(buf[i+12:]),
		centralDirOffset:   binary.LittleEndian.Uint32(buf[i+16:]),
		commentLength:      binary.LittleEndian.Uint16(buf[i+20:]),
	}

	remaining := len(buf) - (i + eocdMinSize)
	if int(rec.commentLength) > remaining {
		return eocdRecord{}, false
	}
	if rec.diskNumber != rec.diskWithCentralDir {
		return eocdRecord{}, false
	}
	if rec.entriesThisDisk != rec.entriesTotal {
		return eocdRecord{}, false
	}
	return rec, true
}

// rejectMultiDiskOrZip64 implements §8's "Rejections": multi-disk and
// Zip64 archives are out of scope.
func rejectMultiDiskOrZip64(rec eocdRecord) error {
	if rec.diskNumber == 0xFFFF || rec.diskWithCentralDir == 0xFFFF {
		return vfserrors.New(vfserrors.NotImplemented, "Zip64 archives are not supported")
	}
	if rec.diskNumber != 0 || rec.diskWithCentralDir != 0 {
		return vfserrors.New(vfserrors.NotImplemented, "multi-disk archives are not supported")
	}
	return nil
}
