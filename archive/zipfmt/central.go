package zipfmt

import (
	"encoding/binary"

	"github.com/winmount/winmount/vfserrors"
)

const (
	gpflagEncrypted = 1 << 0
	gpflagEFS       = 1 << 11 // UTF-8 flag, bit 11
)

// centralDirRecord is a bit-exact mirror of one ZIP central directory file
// header (§3 ZipCentralDirRecord).
type centralDirRecord struct {
	gpFlags           uint16
	compression       uint16
	lastModTime       uint16
	lastModDate       uint16
	crc32             uint32
	compressedSize    uint64
	uncompressedSize  uint64
	localHeaderOffset uint64
	rawName           []byte
	extra             []byte
	comment           []byte
}

const centralDirFixedSize = 46

// readCentralDirectory seeks to eocd.centralDirOffset and parses
// eocd.entriesTotal central directory records, per §4.D.ZIP "Central
// directory".
func readCentralDirectory(r readerAt, eocd eocdRecord) ([]centralDirRecord, error) {
	buf := make([]byte, eocd.centralDirSize)
	if _, err := r.ReadAt(buf, int64(eocd.centralDirOffset)); err != nil {
		return nil, vfserrors.Wrap(vfserrors.FileCorrupt, err, "reading central directory")
	}

	out := make([]centralDirRecord, 0, eocd.entriesTotal)
	pos := 0
	for i := 0; i < int(eocd.entriesTotal); i++ {
		if pos+centralDirFixedSize > len(buf) {
			return nil, vfserrors.New(vfserrors.FileCorrupt, "central directory truncated")
		}
		if binary.LittleEndian.Uint32(buf[pos:]) != centralDirSignature {
			return nil, vfserrors.New(vfserrors.FileCorrupt, "bad central directory signature")
		}

		gpFlags := binary.LittleEndian.Uint16(buf[pos+8:])
		compression := binary.LittleEndian.Uint16(buf[pos+10:])
		modTime := binary.LittleEndian.Uint16(buf[pos+12:])
		modDate := binary.LittleEndian.Uint16(buf[pos+14:])
		crc := binary.LittleEndian.Uint32(buf[pos+16:])
		compSize := binary.LittleEndian.Uint32(buf[pos+20:])
		uncompSize := binary.LittleEndian.Uint32(buf[pos+24:])
		nameLen := int(binary.LittleEndian.Uint16(buf[pos+28:]))
		extraLen := int(binary.LittleEndian.Uint16(buf[pos+30:]))
		commentLen := int(binary.LittleEndian.Uint16(buf[pos+32:]))
		localOffset := binary.LittleEndian.Uint32(buf[pos+42:])

		pos += centralDirFixedSize
		if pos+nameLen+extraLen+commentLen > len(buf) {
			return nil, vfserrors.New(vfserrors.FileCorrupt, "central directory entry truncated")
		}

		name := buf[pos : pos+nameLen]
		pos += nameLen
		extra := buf[pos : pos+extraLen]
		pos += extraLen
		comment := buf[pos : pos+commentLen]
		pos += commentLen

		out = append(out, centralDirRecord{
			gpFlags:           gpFlags,
			compression:       compression,
			lastModTime:       modTime,
			lastModDate:       modDate,
			crc32:             crc,
			compressedSize:    uint64(compSize),
			uncompressedSize:  uint64(uncompSize),
			localHeaderOffset: uint64(localOffset),
			rawName:           append([]byte(nil), name...),
			extra:             append([]byte(nil), extra...),
			comment:           append([]byte(nil), comment...),
		})
	}
	return out, nil
}

// localFileHeader is a bit-exact mirror of a ZIP local file header
// (§3 ZipLocalFileRecord), parsed just enough to locate the start of entry
// data — the authoritative metadata comes from the central directory.
type localFileHeader struct {
	nameLen  int
	extraLen int
}

// readLocalHeader parses the local header at off and returns the byte
// offset where entry data begins.
func readLocalHeader(r readerAt, off uint64) (dataStart uint64, extra []byte, err error) {
	buf := make([]byte, 30)
	if _, err := r.ReadAt(buf, int64(off)); err != nil {
		return 0, nil, vfserrors.Wrap(vfserrors.FileCorrupt, err, "reading local file header")
	}
	if binary.LittleEndian.Uint32(buf) != localHeaderSignature {
		return 0, nil, vfserrors.New(vfserrors.FileCorrupt, "bad local file header signature")
	}
	nameLen := int(binary.LittleEndian.Uint16(buf[26:]))
	extraLen := int(binary.LittleEndian.Uint16(buf[28:]))

	if extraLen > 0 {
		extra = make([]byte, extraLen)
		if _, err := r.ReadAt(extra, int64(off)+30+int64(nameLen)); err != nil {
			return 0, nil, vfserrors.Wrap(vfserrors.FileCorrupt, err, "reading local extra field")
		}
	}
	return off + 30 + uint64(nameLen) + uint64(extraLen), extra, nil
}
