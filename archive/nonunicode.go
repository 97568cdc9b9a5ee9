package archive

import (
	"regexp"

	"github.com/winmount/winmount/textenc"
)

// NonUnicodeConfig is the NonUnicodeCompatConfig of §3: how a format
// handler should resolve a non-UTF-8 entry name.
type NonUnicodeConfig struct {
	EncodingOverride textenc.Encoding
	AllowUTF8Mix     bool
	IgnoreUTF8Flags  bool
}

// NonUnicodeOverride pairs a path pattern with the config to use for
// archives whose front path matches it.
type NonUnicodeOverride struct {
	PathPattern *regexp.Regexp
	Config      NonUnicodeConfig
}

// NonUnicodeCompat is the global default plus a list of per-path overrides,
// per §3's NonUnicodeCompatConfig.
type NonUnicodeCompat struct {
	Default   NonUnicodeConfig
	Overrides []NonUnicodeOverride
}

// resolve scans the overrides for the first path_pattern match on front;
// falls back to Default, per §4.D step 4.3 "Select a non-Unicode compat
// config by scanning the global entries for the first path_pattern match;
// else use a default".
func (c NonUnicodeCompat) resolve(front string) NonUnicodeConfig {
	for _, o := range c.Overrides {
		if o.PathPattern != nil && o.PathPattern.MatchString(front) {
			return o.Config
		}
	}
	return c.Default
}
