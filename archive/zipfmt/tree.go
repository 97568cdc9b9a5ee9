package zipfmt

import (
	"strings"
	"unicode/utf8"

	"github.com/winmount/winmount/archive"
	"github.com/winmount/winmount/textenc"
	"github.com/winmount/winmount/vfserrors"
)

// treeNode is one entry of the materialized archive tree: either a
// directory synthesized from intermediate path segments, or a leaf backed
// by a central directory record.
type treeNode struct {
	name     string
	index    uint64
	isDir    bool
	children map[string]*treeNode // keyed by foldKey(name)
	record   *centralDirRecord    // nil for synthesized directories
}

func foldKey(name string) string {
	return strings.ToLower(name)
}

// hashIndex synthesizes a stable per-entry index from the archive root's
// own index and a monotonic counter, per §3 ("a hash of (root index, local
// index)") — this keeps archive-synthesized indices distinct from indices
// any other loaded filesystem might hand out.
func hashIndex(rootIndex uint64, counter uint64) uint64 {
	h := rootIndex*1099511628211 + counter
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return h
}

// buildTree resolves names (encoding per record, per §4.D.ZIP step 2),
// validates them, and materializes the directory tree described by
// records. rootIndex seeds the synthesized index sequence.
func buildTree(records []centralDirRecord, cfg archive.NonUnicodeConfig, rootIndex uint64) (*treeNode, error) {
	root := &treeNode{name: "", isDir: true, children: map[string]*treeNode{}, index: rootIndex}

	converter, err := resolveConverter(records, cfg)
	if err != nil {
		return nil, err
	}

	var counter uint64
	for i := range records {
		rec := &records[i]
		name, err := decodeName(rec, cfg, converter)
		if err != nil {
			return nil, err
		}

		if name == "" {
			continue
		}
		isDirMarker := strings.HasSuffix(name, "/")
		name = strings.TrimSuffix(name, "/")

		segs, err := splitAndValidate(name)
		if err != nil {
			return nil, err
		}
		if len(segs) == 0 {
			continue
		}

		parent := root
		for _, seg := range segs[:len(segs)-1] {
			counter++
			parent = getOrMakeDir(parent, seg, rootIndex, &counter)
			if !parent.isDir {
				break
			}
		}
		if !parent.isDir {
			// A file record already claimed an intermediate segment; this
			// entry sits under a file and is left out of the tree.
			continue
		}

		leaf := segs[len(segs)-1]
		key := foldKey(leaf)
		if isDirMarker {
			getOrMakeDir(parent, leaf, rootIndex, &counter)
			continue
		}

		if existing, ok := parent.children[key]; ok {
			if existing.record != nil {
				return nil, vfserrors.New(vfserrors.ObjectNameCollision, "duplicate archive entry: "+name)
			}
			// A directory was synthesized from a deeper entry before this
			// file record was seen; a ZIP cannot sensibly have both, but be
			// lenient and let the file record lose to the directory rather
			// than panicking on a malformed archive.
			continue
		}

		counter++
		parent.children[key] = &treeNode{
			name:   leaf,
			index:  hashIndex(rootIndex, counter),
			isDir:  false,
			record: rec,
		}
	}

	return root, nil
}

func getOrMakeDir(parent *treeNode, name string, rootIndex uint64, counter *uint64) *treeNode {
	key := foldKey(name)
	if existing, ok := parent.children[key]; ok {
		if existing.isDir {
			return existing
		}
		// A file record already claimed this name; promote it to a
		// directory is unsafe, so keep the file and let later lookups under
		// it fail naturally.
		return existing
	}
	*counter++
	n := &treeNode{name: name, isDir: true, children: map[string]*treeNode{}, index: hashIndex(rootIndex, *counter)}
	parent.children[key] = n
	return n
}

// splitAndValidate splits a decoded entry name on '/' and rejects NUL
// bytes, absolute roots and '.'/'..' traversal segments, per §4.D.ZIP
// "Name validation".
func splitAndValidate(name string) ([]string, error) {
	if strings.IndexByte(name, 0) >= 0 {
		return nil, vfserrors.New(vfserrors.ObjectNameInvalid, "archive entry name contains a NUL byte")
	}
	if strings.HasPrefix(name, "/") {
		return nil, vfserrors.New(vfserrors.ObjectNameInvalid, "archive entry name is absolute: "+name)
	}
	if name == "" {
		return nil, nil
	}
	raw := strings.Split(name, "/")
	out := make([]string, 0, len(raw))
	for _, seg := range raw {
		switch seg {
		case "":
			continue
		case ".", "..":
			return nil, vfserrors.New(vfserrors.ObjectNameInvalid, "archive entry name contains a traversal segment: "+name)
		}
		out = append(out, seg)
	}
	return out, nil
}

// resolveConverter builds the Converter used for every non-EFS-flagged
// entry when cfg.EncodingOverride.Kind is AutoDetect: the detector is fed
// only the names that are not already marked UTF-8 per §4.D.ZIP step 2.
func resolveConverter(records []centralDirRecord, cfg archive.NonUnicodeConfig) (*textenc.Converter, error) {
	if cfg.EncodingOverride.Kind != textenc.AutoDetect {
		if cfg.EncodingOverride.Kind == 0 && cfg.EncodingOverride.Name == "" {
			cfg.EncodingOverride = textenc.Encoding{Kind: textenc.System}
		}
		return textenc.NewConverter(cfg.EncodingOverride)
	}

	det := textenc.NewDetector()
	for _, rec := range records {
		if rec.gpFlags&gpflagEFS == 0 {
			det.Add(rec.rawName)
		}
	}
	return textenc.NewConverter(det.Detect())
}

// decodeName implements §4.D.ZIP step 2's three-way branch: EFS-flagged
// names are always UTF-8; non-flagged names use the resolved converter,
// unless ignore_utf8_flags is set (then every name goes through the
// converter) or allow_utf8_mix lets a non-flagged name that happens to be
// valid UTF-8 be treated as such instead of mistranscoded.
func decodeName(rec *centralDirRecord, cfg archive.NonUnicodeConfig, converter *textenc.Converter) (string, error) {
	isEFS := rec.gpFlags&gpflagEFS != 0 && !cfg.IgnoreUTF8Flags

	if isEFS {
		return strings.ToValidUTF8(string(rec.rawName), string(utf8.RuneError)), nil
	}

	if cfg.AllowUTF8Mix && utf8.Valid(rec.rawName) {
		return string(rec.rawName), nil
	}

	return converter.DecodeLossy(rec.rawName), nil
}
