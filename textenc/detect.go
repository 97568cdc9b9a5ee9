package textenc

import "unicode/utf8"

// Detector runs a simple, dependency-free heuristic over a corpus of
// non-UTF-8-flagged names and guesses the most likely single encoding. No
// charset-detection library is wired here, so detection is built on the
// same encoding tables textenc already uses for named lookup.
//
// The heuristic: try each candidate encoding's decoder against the full
// corpus; the first encoding that round-trips every sample without
// introducing replacement characters wins. If none are clean, the
// candidate with the fewest replacement characters wins; ties fall back to
// Latin-1, which can decode any byte sequence.
type Detector struct {
	samples [][]byte
}

// NewDetector returns an empty detector; feed it with Add.
func NewDetector() *Detector {
	return &Detector{}
}

// Add appends another raw name to the corpus used for detection.
func (d *Detector) Add(raw []byte) {
	if len(raw) == 0 {
		return
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	d.samples = append(d.samples, cp)
}

// candidates returns the fixed search order: UTF-8 first (names that
// merely lack the EFS flag but are already valid UTF-8 are common), then
// the Japanese tables, then windows-1252, then System (Latin-1) as the
// always-succeeds fallback.
func (d *Detector) candidates() []Encoding {
	return []Encoding{
		{Kind: Named, Name: "utf-8"},
		{Kind: Named, Name: "shift_jis"},
		{Kind: Named, Name: "euc-jp"},
		{Kind: Named, Name: "windows-1252"},
		{Kind: System},
	}
}

// Detect returns the best-guess Encoding for the accumulated corpus. It
// never fails: with no samples, or with every candidate equally bad, it
// returns the System encoding.
func (d *Detector) Detect() Encoding {
	if len(d.samples) == 0 {
		return Encoding{Kind: System}
	}

	type scored struct {
		enc   Encoding
		repl  int
		clean bool
	}
	var best *scored

	for _, cand := range d.candidates() {
		if cand.Kind == Named && cand.Name == "utf-8" {
			ok := true
			for _, s := range d.samples {
				if !utf8.Valid(s) {
					ok = false
					break
				}
			}
			if ok {
				return cand
			}
			continue
		}

		conv, err := NewConverter(cand)
		if err != nil {
			continue
		}
		repl := 0
		for _, s := range d.samples {
			decoded := conv.DecodeLossy(s)
			for _, r := range decoded {
				if r == utf8.RuneError {
					repl++
				}
			}
		}
		clean := repl == 0
		if best == nil || (clean && !best.clean) || (clean == best.clean && repl < best.repl) {
			best = &scored{enc: cand, repl: repl, clean: clean}
		}
		if clean {
			return cand
		}
	}

	if best != nil {
		return best.enc
	}
	return Encoding{Kind: System}
}
