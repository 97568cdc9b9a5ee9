// Package vfspath provides zero-copy segmented paths and case-insensitive
// string keys shared by every layer of the composable filesystem.
//
// Design decisions
//
// There are the following opinionated decisions:
//
//   - A SegPath borrows its backing string instead of copying segments into
//     a []string up front. Most callers only ever walk a path once (split at
//     the first archive boundary, or join for a lookup), so paying an
//     allocation for a slice of segments that is immediately discarded is
//     wasted work on the hot path of every filesystem call.
//
//   - Two delimiter conventions are modeled explicitly ('/' and '\\') because
//     the host OS, the archive tree and the registry's stored paths do not
//     agree on one. Concat always normalizes to '\\', matching the Win32
//     surface the filesystem contract is modeled after.
package vfspath

import "strings"

// PathDelimiter is the separator a SegPath was built with.
type PathDelimiter byte

const (
	Slash     PathDelimiter = '/'
	Backslash PathDelimiter = '\\'
)

// SegPath is a borrowed (raw string, delimiter) pair. The invariant is: no
// NUL bytes, and any leading delimiter has been stripped.
type SegPath struct {
	raw   string
	delim PathDelimiter
}

// New validates raw and returns a SegPath, or an error if raw contains a NUL
// byte.
func New(raw string, delim PathDelimiter) (SegPath, error) {
	if strings.IndexByte(raw, 0) >= 0 {
		return SegPath{}, errNul
	}
	return newUnchecked(raw, delim), nil
}

// NewTruncate behaves like New but truncates raw at the first NUL byte
// instead of failing.
func NewTruncate(raw string, delim PathDelimiter) SegPath {
	if idx := strings.IndexByte(raw, 0); idx >= 0 {
		raw = raw[:idx]
	}
	return newUnchecked(raw, delim)
}

// newUnchecked re-wraps an already-validated string without copying. Used
// internally wherever a SegPath is derived from another SegPath (e.g.
// slicing off a prefix) and the NUL invariant is already known to hold.
func newUnchecked(raw string, delim PathDelimiter) SegPath {
	for len(raw) > 0 && raw[0] == byte(delim) {
		raw = raw[1:]
	}
	return SegPath{raw: raw, delim: delim}
}

var errNul = &nulError{}

type nulError struct{}

func (*nulError) Error() string { return "path contains a NUL byte" }

// Delimiter returns the delimiter this path was constructed with.
func (p SegPath) Delimiter() PathDelimiter { return p.delim }

// Raw returns the underlying string, leading delimiter already stripped.
func (p SegPath) Raw() string { return p.raw }

// IsEmpty reports whether the path has no segments.
func (p SegPath) IsEmpty() bool { return p.raw == "" }

// Segments splits the path on its delimiter, skipping empty segments
// produced by repeated or trailing delimiters.
func (p SegPath) Segments() []string {
	if p.raw == "" {
		return nil
	}
	parts := strings.Split(p.raw, string(rune(p.delim)))
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ForEachSegment calls fn for every non-empty segment, stopping early if fn
// returns false. It avoids allocating the []string that Segments produces
// for callers that only need to walk the segments once (the ZIP handler's
// tree lookup uses it).
func (p SegPath) ForEachSegment(fn func(seg string) bool) {
	raw := p.raw
	d := byte(p.delim)
	for len(raw) > 0 {
		idx := strings.IndexByte(raw, d)
		var seg string
		if idx < 0 {
			seg, raw = raw, ""
		} else {
			seg, raw = raw[:idx], raw[idx+1:]
		}
		if seg == "" {
			continue
		}
		if !fn(seg) {
			return
		}
	}
}

// Concat joins base and tail, normalizing either's '/' to the canonical '\\'
// delimiter and guaranteeing a single-delimiter result.
func Concat(base, tail SegPath) SegPath {
	var b strings.Builder
	writeSeg := func(s string) {
		s = strings.ReplaceAll(s, "/", string(rune(Backslash)))
		if b.Len() > 0 && s != "" {
			b.WriteByte(byte(Backslash))
		}
		b.WriteString(s)
	}
	base.ForEachSegment(func(seg string) bool { writeSeg(seg); return true })
	tail.ForEachSegment(func(seg string) bool { writeSeg(seg); return true })
	return newUnchecked(b.String(), Backslash)
}

// String renders the path using its own delimiter with a leading delimiter,
// the canonical textual form used for map keys and logging.
func (p SegPath) String() string {
	if p.raw == "" {
		return string(rune(p.delim))
	}
	return string(rune(p.delim)) + p.raw
}
