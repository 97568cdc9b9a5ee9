// Package textenc resolves and applies the byte-sequence-to-UTF-8 transcoding
// used when an archive's file names are not already UTF-8, per spec §4.A.
package textenc

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
)

// Kind selects how an Encoding value should be resolved.
type Kind int

const (
	// System uses the host's default code page. The core has no notion of
	// "the host code page" (that's a mount-adapter concern), so System
	// resolves to ISO-8859-1 (Latin-1), which decodes every byte, as a
	// deterministic, dependency-free stand-in.
	System Kind = iota
	// AutoDetect must be resolved to Named before a Converter can be built.
	AutoDetect
	// Named is a concrete IANA/Windows code page name, e.g. "shift_jis".
	Named
)

// Encoding is the unresolved configuration value: either System, AutoDetect,
// or a Named code page.
type Encoding struct {
	Kind Kind
	Name string
}

// Converter decodes bytes in one fixed encoding to UTF-8. It is immutable
// and safe for concurrent use once constructed, matching §5's "Encoding
// detectors and converters are per-archive and read-only after construction."
type Converter struct {
	name string
	enc  encoding.Encoding
}

// NewConverter builds a Converter from a resolved (System|Named) encoding.
// AutoDetect must be resolved to a concrete Named encoding by a Detector
// first; passing AutoDetect here is a programming error and returns an
// error rather than silently falling back, since resolution failures are
// fatal to archive creation (§4.A "Failure").
func NewConverter(e Encoding) (*Converter, error) {
	switch e.Kind {
	case System:
		return &Converter{name: "system(latin1)", enc: charmap.ISO8859_1}, nil
	case Named:
		enc, err := lookupNamed(e.Name)
		if err != nil {
			return nil, err
		}
		return &Converter{name: e.Name, enc: enc}, nil
	default:
		return nil, fmt.Errorf("textenc: AutoDetect must be resolved before constructing a Converter")
	}
}

func lookupNamed(name string) (encoding.Encoding, error) {
	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc, nil
	}
	return nil, fmt.Errorf("textenc: unknown encoding %q", name)
}

// Name returns the resolved encoding's canonical name, for logging.
func (c *Converter) Name() string { return c.name }

// Decode converts raw bytes in the converter's encoding to a UTF-8 string.
// A Named encoding decodes without BOM handling, matching a plain code-page
// transcode rather than a text-file reader.
func (c *Converter) Decode(raw []byte) (string, error) {
	out, err := c.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// DecodeLossy decodes raw bytes, substituting the replacement character for
// any byte sequence the encoding cannot represent instead of failing.
// Detection (and transcoding generally) never fails outright per §4.D
// "Encoding detection never fails; worst case all names become replacement
// characters."
func (c *Converter) DecodeLossy(raw []byte) string {
	s, err := c.Decode(raw)
	if err == nil {
		return s
	}
	return string(utf8.RuneError)
}

// japaneseEncodings lists the Japanese tables; CJK archives are the common
// case non-UTF-8 ZIP names show up in the wild. The Detector does not read
// this list: it tries the same encodings by name (see candidates).
var japaneseEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"shift_jis", japanese.ShiftJIS},
	{"euc-jp", japanese.EUCJP},
}
