package packer

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/a-h/bpm/internal/pkgfile"
)

// BuildOptions collects the inputs to the build subcommand, mirroring
// original_source's subcmd_build/PackageBuilder fields.
type BuildOptions struct {
	Root         string // file tree to pack
	WrapDir      string // optional directory prefix applied to every packed path
	Name         string
	Version      string
	Arch         string
	Mount        string
	Description  string
	Dependencies map[string]string
	KV           map[string]string
	Rules        *RuleSet
	Symlinks     SymlinkPolicy
}

// Build walks Root, applies the ignore/mode rules, validates symlinks, and
// writes a package file to dest.
func Build(dest string, opts BuildOptions) (*pkgfile.MetaData, error) {
	rules := opts.Rules
	if rules == nil {
		rules = &RuleSet{}
	}

	entries, err := Gather(opts.Root, rules, opts.Symlinks, opts.WrapDir)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(dest)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", dest, err)
	}
	defer f.Close()

	meta, err := pkgfile.Build(f, pkgfile.BuildInput{
		Name:            opts.Name,
		Version:         opts.Version,
		Arch:            opts.Arch,
		Mount:           opts.Mount,
		Description:     opts.Description,
		Dependencies:    opts.Dependencies,
		DependencyOrder: sortedKeys(opts.Dependencies),
		KV:              opts.KV,
		KVOrder:         sortedKeys(opts.KV),
		Entries:         entries,
	})
	if err != nil {
		os.Remove(dest)
		return nil, err
	}
	return meta, nil
}

// ListFiles opens a package file and returns its manifest's path list.
func ListFiles(path string) ([]string, error) {
	opened, err := openPackage(path)
	if err != nil {
		return nil, err
	}
	return opened.ListFiles(), nil
}

// Verify opens a package file and runs its integrity protocol, returning
// nil on success.
func Verify(path string) error {
	opened, err := openPackage(path)
	if err != nil {
		return err
	}
	return opened.Verify()
}

// SetVersion re-versions an existing package file, writing the result to
// dest (which may equal path; a temp file is used and renamed into place).
func SetVersion(path, dest, newVersion, newArch string) (*pkgfile.MetaData, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(dirOf(dest), "bpmpack-setversion-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	meta, err := pkgfile.SetVersion(tmp, src, newVersion, newArch)
	if err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return nil, fmt.Errorf("rename into place: %w", err)
	}
	return meta, nil
}

// TestIgnore applies rules to every path under root and returns the
// add/ignore decision for each, without building a package.
func TestIgnore(root string, rules *RuleSet) ([]Decision, error) {
	entries, err := Gather(root, rules, SymlinkPolicy{AllowOutside: true, AllowDangling: true}, "")
	if err != nil {
		return nil, err
	}
	kept := make(map[string]bool, len(entries))
	for _, e := range entries {
		kept[e.Path] = true
	}

	all, err := discoverAllPaths(root)
	if err != nil {
		return nil, err
	}

	decisions := make([]Decision, 0, len(all))
	for _, p := range all {
		d := rules.Decide(p)
		d.Add = kept[p]
		decisions = append(decisions, d)
	}
	return decisions, nil
}

func openPackage(path string) (*pkgfile.OpenedPackage, error) {
	return pkgfile.Open(func() (io.ReadCloser, error) {
		return os.Open(path)
	})
}

func dirOf(path string) string {
	dir := filepath.Dir(path)
	if dir == "" {
		return "."
	}
	return dir
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func discoverAllPaths(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	return paths, err
}
