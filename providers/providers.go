// Package providers registers the concrete FilesystemProvider kinds the
// daemon ships with against a registry.Registry: an in-memory scratch
// filesystem, a local-disk adapter, and the ZIP-backed archive overlay.
// Kind IDs are fixed constants (§3 invariant 7: "kind IDs are fixed per
// provider") rather than generated at registration time, so a persisted
// config.FilesystemDecl.KindID from a previous run always resolves to the
// same provider after a restart.
package providers

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/google/uuid"

	"github.com/winmount/winmount/archive"
	"github.com/winmount/winmount/archive/zipfmt"
	"github.com/winmount/winmount/localfs"
	"github.com/winmount/winmount/memfs"
	"github.com/winmount/winmount/registry"
	"github.com/winmount/winmount/textenc"
	"github.com/winmount/winmount/vfs"
	"github.com/winmount/winmount/vfserrors"
)

// Fixed kind IDs, minted once and never reused for a different provider.
var (
	MemFSKind    = uuid.MustParse("5e9a0f1a-1c1a-4f0a-9b0e-9a3b6e9a0001")
	LocalFSKind  = uuid.MustParse("5e9a0f1a-1c1a-4f0a-9b0e-9a3b6e9a0002")
	ArchiveFSKind = uuid.MustParse("5e9a0f1a-1c1a-4f0a-9b0e-9a3b6e9a0003")
)

// RegisterAll installs every built-in filesystem kind on reg.
func RegisterAll(reg *registry.Registry) {
	reg.RegisterFilesystemKind(MemFSKind, memFSProvider{})
	reg.RegisterFilesystemKind(LocalFSKind, localFSProvider{})
	reg.RegisterFilesystemKind(ArchiveFSKind, archiveFSProvider{})
}

type memFSConfig struct {
	ReadOnly bool `json:"read_only"`
}

type memFSProvider struct{}

func (memFSProvider) Construct(ctx context.Context, cctx *registry.CreationContext, config json.RawMessage) (vfs.FileSystemHandler, error) {
	var cfg memFSConfig
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, vfserrors.Wrap(vfserrors.InvalidParameter, err, "invalid memfs config")
		}
	}
	fs := memfs.New()
	if cfg.ReadOnly {
		fs = fs.WithReadOnly()
	}
	return fs, nil
}

type localFSConfig struct {
	Root     string `json:"root"`
	ReadOnly bool   `json:"read_only"`
}

type localFSProvider struct{}

func (localFSProvider) Construct(ctx context.Context, cctx *registry.CreationContext, config json.RawMessage) (vfs.FileSystemHandler, error) {
	var cfg localFSConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, vfserrors.Wrap(vfserrors.InvalidParameter, err, "invalid localfs config")
	}
	if cfg.Root == "" {
		return nil, vfserrors.New(vfserrors.InvalidParameter, "localfs config requires a root path")
	}
	fs := localfs.New(cfg.Root)
	if cfg.ReadOnly {
		fs = fs.WithReadOnly()
	}
	return fs, nil
}

// archiveRuleConfig is the JSON form of an archive.Rule.
type archiveRuleConfig struct {
	PathPattern   string `json:"path_pattern"`
	HandlerKind   string `json:"handler_kind"`
	HandlesFile   bool   `json:"handles_file"`
	HandlesFolder bool   `json:"handles_folder"`
}

type nonUnicodeConfigJSON struct {
	Encoding        string `json:"encoding"` // "", "auto", or an IANA name
	AllowUTF8Mix    bool   `json:"allow_utf8_mix"`
	IgnoreUTF8Flags bool   `json:"ignore_utf8_flags"`
}

type archiveFSConfig struct {
	InputFS    uuid.UUID             `json:"input_fs"`
	Rules      []archiveRuleConfig   `json:"rules"`
	NonUnicode nonUnicodeConfigJSON  `json:"non_unicode"`
}

type archiveFSProvider struct{}

func (archiveFSProvider) Construct(ctx context.Context, cctx *registry.CreationContext, config json.RawMessage) (vfs.FileSystemHandler, error) {
	var cfg archiveFSConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, vfserrors.Wrap(vfserrors.InvalidParameter, err, "invalid archive overlay config")
	}

	inner, err := cctx.GetOrRunFS(cfg.InputFS)
	if err != nil {
		return nil, err
	}

	rules := make([]archive.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		pattern, err := regexp.Compile(r.PathPattern)
		if err != nil {
			return nil, vfserrors.Wrap(vfserrors.InvalidParameter, err, "invalid archive rule pattern: "+r.PathPattern)
		}
		rules = append(rules, archive.Rule{
			PathPattern:   pattern,
			HandlerKind:   r.HandlerKind,
			HandlesFile:   r.HandlesFile,
			HandlesFolder: r.HandlesFolder,
		})
	}

	constructors := map[string]archive.Constructor{
		"zip": zipfmt.Construct,
	}

	nonUnicode := archive.NonUnicodeCompat{Default: toNonUnicodeConfig(cfg.NonUnicode)}

	return archive.New(inner, rules, constructors, nonUnicode), nil
}

func toNonUnicodeConfig(cfg nonUnicodeConfigJSON) archive.NonUnicodeConfig {
	enc := textenc.Encoding{Kind: textenc.System}
	switch cfg.Encoding {
	case "":
		enc = textenc.Encoding{Kind: textenc.System}
	case "auto":
		enc = textenc.Encoding{Kind: textenc.AutoDetect}
	default:
		enc = textenc.Encoding{Kind: textenc.Named, Name: cfg.Encoding}
	}
	return archive.NonUnicodeConfig{
		EncodingOverride: enc,
		AllowUTF8Mix:     cfg.AllowUTF8Mix,
		IgnoreUTF8Flags:  cfg.IgnoreUTF8Flags,
	}
}
