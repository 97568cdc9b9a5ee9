// Package archive implements the archive overlay engine of §4.D: it turns
// an archive file inside a lower filesystem into a browsable subdirectory,
// lazily opening format-specific handlers, caching decompressed blocks,
// reference-counting inner handles, and transcoding entry names.
package archive

import (
	"regexp"
	"strings"
)

// Rule is an ArchiveOpenRule (§3): a path-segment pattern paired with the
// format handler kind that should be constructed when a segment matches,
// and which of file/folder targets it covers.
type Rule struct {
	PathPattern   *regexp.Regexp
	HandlerKind   string
	HandlesFile   bool
	HandlesFolder bool
}

// splitResult is the outcome of matching a path against the rule set.
type splitResult struct {
	Front   string
	Back    string
	Rule    Rule
	Matched bool
}

// splitPath scans segment boundaries left to right and returns the first
// prefix whose last-added segment matches a rule's PathPattern, per §4.D
// "Path splitting": the pattern is matched against the current path
// segment, not the full path, and the first match wins, not the last.
func splitPath(path string, rules []Rule) splitResult {
	segs := pathSegments(path)
	var prefix []string
	for i, seg := range segs {
		prefix = append(prefix, seg)
		for _, r := range rules {
			if r.PathPattern == nil || !r.PathPattern.MatchString(seg) {
				continue
			}
			return splitResult{
				Front:   strings.Join(prefix, "/"),
				Back:    strings.Join(segs[i+1:], "/"),
				Rule:    r,
				Matched: true,
			}
		}
	}
	return splitResult{}
}

func pathSegments(path string) []string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lastSegment(path string) string {
	segs := pathSegments(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}
