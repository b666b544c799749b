// Package pkgfile implements the BPM package-file format: a two-layer tar
// (CONTROL, meta.json, data.tar.zst) with per-file and whole-data
// cryptographic hashes and a strict manifest/data cross-check, per §4.B and
// §6 of the design.
package pkgfile

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MetaData is the manifest embedded as meta.json inside a package file.
type MetaData struct {
	Name         string     `json:"name"`
	Version      string     `json:"version"`
	Arch         string     `json:"arch,omitempty"`
	Mount        string     `json:"mount,omitempty"`
	DataHash     string     `json:"data_hash,omitempty"`
	DataSize     uint64     `json:"data_size"`
	Dependencies OrderedMap `json:"dependencies,omitempty"`
	Files        FileMap    `json:"files"`
	KV           OrderedMap `json:"kv,omitempty"`
	Description  string     `json:"description,omitempty"`
	UUID         string     `json:"uuid,omitempty"`
}

// NewMetaData builds an empty manifest for name/version with a fresh UUID.
func NewMetaData(name, version string) *MetaData {
	return &MetaData{
		Name:    name,
		Version: version,
		UUID:    uuid.NewString(),
	}
}

// ID returns the (name, version) pair identifying the package.
func (m *MetaData) ID() PackageID {
	return PackageID{Name: m.Name, Version: m.Version}
}

// AddDependency records an opaque dependency constraint string; the
// constraint is never parsed or evaluated (dependency resolution is a
// Non-goal — see spec.md §1).
func (m *MetaData) AddDependency(name, constraint string) {
	m.Dependencies.Set(name, constraint)
}

// AddFile records a FileInfo for a path, keyed by forward-slash relative path.
func (m *MetaData) AddFile(path string, fi FileInfo) {
	m.Files.Set(path, fi)
}

// WithKV sets a single key/value attribute.
func (m *MetaData) WithKV(key, value string) {
	m.KV.Set(key, value)
}

// ToWriter serializes the manifest as JSON.
func (m *MetaData) ToWriter(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(m)
}

// ReadMetaData parses a manifest from JSON bytes.
func ReadMetaData(r io.Reader) (*MetaData, error) {
	var m MetaData
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode meta.json: %w", err)
	}
	return &m, nil
}

// PackageID uniquely names an artifact in a catalog.
type PackageID struct {
	Name    string
	Version string
}

func (id PackageID) String() string {
	return id.Name + "_" + id.Version
}

// DependencyID names a dependency with an optional version constraint.
type DependencyID struct {
	Name    string
	Version string // empty means unconstrained
}

// Package name/version grammar, from original_source/crates/package/src/lib.rs.

var packageNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]*$`)

// IsValidPackageName reports whether name matches the package-name grammar:
// starts alphabetic, contains only [A-Za-z0-9-], no trailing '-', no "--".
func IsValidPackageName(name string) bool {
	if name == "" || !packageNameRe.MatchString(name) {
		return false
	}
	if strings.HasSuffix(name, "-") {
		return false
	}
	if strings.Contains(name, "--") {
		return false
	}
	return true
}

// IsValidVersion reports whether v matches the version-string grammar: must
// start with a digit, end alphanumerically, contain only [A-Za-z0-9.+-],
// must not contain two consecutive separator characters from {.,-,+}, and
// must not contain the literal substring "bpm".
func IsValidVersion(v string) bool {
	if v == "" {
		return false
	}
	if v[0] < '0' || v[0] > '9' {
		return false
	}
	last := v[len(v)-1]
	if !((last >= 'a' && last <= 'z') || (last >= 'A' && last <= 'Z') || (last >= '0' && last <= '9')) {
		return false
	}
	if strings.Contains(v, "bpm") {
		return false
	}
	prevSep := false
	for i := 0; i < len(v); i++ {
		c := v[i]
		alnum := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		sep := c == '.' || c == '-' || c == '+'
		if !alnum && !sep {
			return false
		}
		if sep {
			if prevSep {
				return false
			}
			prevSep = true
		} else {
			prevSep = false
		}
	}
	return true
}

const (
	// PkgFileExtension is the package-file suffix without the leading dot.
	PkgFileExtension = "bpm"
	// DottedPkgFileExtension is PkgFileExtension with its leading dot.
	DottedPkgFileExtension = "." + PkgFileExtension
	// ControlFileName is the first entry in the outer tar.
	ControlFileName = "CONTROL"
	// MetaFileName is the second entry in the outer tar.
	MetaFileName = "meta.json"
	// DataFileName is the third entry in the outer tar.
	DataFileName = "data.tar.zst"
)

// MakeFilename builds "<name>_<version>[_<arch>].bpm".
func MakeFilename(name, version, arch string) string {
	if arch != "" {
		return fmt.Sprintf("%s_%s_%s%s", name, version, arch, DottedPkgFileExtension)
	}
	return fmt.Sprintf("%s_%s%s", name, version, DottedPkgFileExtension)
}

// IsPackageFileName reports whether filename ends with the package-file
// extension.
func IsPackageFileName(filename string) bool {
	return strings.HasSuffix(filename, DottedPkgFileExtension)
}

// SplitParts splits "<name>_<version>[_<arch>].bpm" into its name, version
// and optional arch. The ".bpm" suffix is stripped first, then the
// remainder is split on '_': two parts is name+version, three is
// name+version+arch.
func SplitParts(filename string) (name, version, arch string, ok bool) {
	if !IsPackageFileName(filename) {
		return "", "", "", false
	}
	base := strings.TrimSuffix(filename, DottedPkgFileExtension)
	parts := strings.Split(base, "_")
	switch len(parts) {
	case 2:
		return parts[0], parts[1], "", true
	case 3:
		return parts[0], parts[1], parts[2], true
	default:
		return "", "", "", false
	}
}

// FilenameMatch reports whether filename names exactly the given package ID.
func FilenameMatch(filename string, id PackageID) bool {
	name, version, _, ok := SplitParts(filename)
	return ok && name == id.Name && version == id.Version
}
