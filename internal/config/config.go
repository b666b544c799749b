// Package config loads BPM's launcher-supplied configuration: cache
// directory, install DB path, ordered provider list, and mount table, per
// spec.md §6. Parsed with github.com/BurntSushi/toml. Ported from
// original_source/crates/bpm/src/config.rs, including its `${VAR}`
// path-variable substitution and get_mountpoint resolution logic.
package config

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/a-h/bpm/internal/bpmerr"
)

// Config is the populated struct the core expects from its launcher.
type Config struct {
	CacheDir string
	DBFile   string
	Providers []ProviderConfig
	Mount    MountConfig
}

// ProviderConfig names one configured provider: its name, its URI
// ("fs://<path>" or "http://<url>"), and where its scanned catalog is
// cached.
type ProviderConfig struct {
	Name          string
	URI           string
	CacheFilePath string
}

// MountConfig is the resolved mount table: an optional default ("TARGET")
// plus named alternate mount points.
type MountConfig struct {
	UseDefaultTarget bool
	DefaultTarget    string // empty if unset
	Mounts           []NamedMount
}

// NamedMount is one non-default mount point entry.
type NamedMount struct {
	Name string
	Path string
}

// tomlDoc mirrors ConfigToml from original_source/crates/bpm/src/config.rs.
type tomlDoc struct {
	CacheDir         string                 `toml:"cache_dir"`
	Database         string                 `toml:"database"`
	UseDefaultTarget bool                   `toml:"use_default_target"`
	Providers        map[string]toml.Primitive `toml:"providers"`
	Mount            map[string]toml.Primitive `toml:"mount"`
}

// FromReader parses a TOML configuration document.
func FromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read config: %v", bpmerr.ErrConfig, err)
	}

	var doc tomlDoc
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: parse config.toml: %v", bpmerr.ErrConfig, err)
	}

	cfg := &Config{
		CacheDir: pathReplace(doc.CacheDir),
		DBFile:   pathReplace(doc.Database),
	}

	mounts, defaultTarget, err := decodeMounts(md, doc.Mount)
	if err != nil {
		return nil, err
	}
	cfg.Mount = MountConfig{
		UseDefaultTarget: doc.UseDefaultTarget,
		DefaultTarget:    defaultTarget,
		Mounts:           mounts,
	}

	providers, err := decodeProviders(md, doc.Providers, cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	cfg.Providers = providers

	return cfg, nil
}

// FromPath opens and parses the configuration file at path.
func FromPath(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open config: %v", bpmerr.ErrConfig, err)
	}
	defer f.Close()
	return FromReader(f)
}

func decodeMounts(md toml.MetaData, raw map[string]toml.Primitive) (mounts []NamedMount, defaultTarget string, err error) {
	// map iteration order is unspecified, so sort names for determinism.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var path string
		if decErr := md.PrimitiveDecode(raw[name], &path); decErr != nil {
			return nil, "", fmt.Errorf("%w: invalid mount %q", bpmerr.ErrConfig, name)
		}
		path = pathReplace(path)
		if name == "TARGET" {
			defaultTarget = path
			continue
		}
		mounts = append(mounts, NamedMount{Name: name, Path: path})
	}
	return mounts, defaultTarget, nil
}

func decodeProviders(md toml.MetaData, raw map[string]toml.Primitive, cacheDir string) ([]ProviderConfig, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	var providers []ProviderConfig
	for _, name := range names {
		prim := raw[name]

		var single string
		if err := md.PrimitiveDecode(prim, &single); err == nil {
			providers = append(providers, newProviderConfig(name, single, cacheDir))
			continue
		}

		var list []string
		if err := md.PrimitiveDecode(prim, &list); err == nil {
			for _, uri := range list {
				providers = append(providers, newProviderConfig(name, uri, cacheDir))
			}
			continue
		}

		return nil, fmt.Errorf("%w: invalid provider %q", bpmerr.ErrConfig, name)
	}
	return providers, nil
}

func newProviderConfig(name, uri, cacheDir string) ProviderConfig {
	uri = pathReplace(uri)
	return ProviderConfig{
		Name:          name,
		URI:           uri,
		CacheFilePath: cacheDir + "/provider/" + name + ".json",
	}
}

// MountPoint is the resolved outcome of GetMountpoint.
type MountPoint struct {
	Path string
	// Specified reports whether Path came from an explicitly named mount
	// (a named entry or the literal "TARGET") rather than an empty mount
	// name. Resolution errors use bpmerr sentinels.
	Specified bool
}

// GetMountpoint resolves a package's declared mount name to a filesystem
// path, following original_source's get_mountpoint exactly: nil/empty name
// or the literal "TARGET" both mean "use the default target", gated by
// UseDefaultTarget and requiring DefaultTarget to be set.
func (c *Config) GetMountpoint(name string) (MountPoint, error) {
	if name == "" || name == "TARGET" {
		if !c.Mount.UseDefaultTarget {
			return MountPoint{}, bpmerr.ErrDefaultDisabled
		}
		if c.Mount.DefaultTarget == "" {
			return MountPoint{}, fmt.Errorf("%w: no default TARGET mount configured", bpmerr.ErrInvalidMount)
		}
		return MountPoint{Path: c.Mount.DefaultTarget, Specified: name == "TARGET"}, nil
	}

	for _, m := range c.Mount.Mounts {
		if m.Name == name {
			return MountPoint{Path: m.Path, Specified: true}, nil
		}
	}
	return MountPoint{}, fmt.Errorf("%w: unknown mount %q", bpmerr.ErrInvalidMount, name)
}

// pathReplace substitutes the path variables BPM recognizes in
// configuration and provider URIs. Ported from original_source's
// path_replace, renamed from Rust's ${BPM}/${ARCH3264}/${ARCHX8664} to this
// module's ${EXE}/${OS}/${ARCH} per SPEC_FULL.md's supplemented-features
// section.
func pathReplace(path string) string {
	if strings.Contains(path, "${EXE}") {
		if exe, err := os.Executable(); err == nil {
			path = strings.ReplaceAll(path, "${EXE}", dirOf(exe))
		}
	}
	if strings.Contains(path, "${OS}") {
		path = strings.ReplaceAll(path, "${OS}", runtime.GOOS)
	}
	if strings.Contains(path, "${ARCH}") {
		path = strings.ReplaceAll(path, "${ARCH}", runtime.GOARCH)
	}
	return path
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[:idx]
}
