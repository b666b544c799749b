// Package packer implements the build/list-files/verify/test-ignore/
// set-version subcommands of spec.md §4.H: the reverse path of
// internal/pkgfile, turning a file tree into a package file. Ported from
// original_source/crates/bpmpack/src/lib.rs's ignore/mode-glob aggregation,
// symlink validation, and file-discovery walk. Glob matching is grounded on
// github.com/gobwas/glob, pulled from the same dependency surface as
// hashgraph-solo-weaver's go.mod.
package packer

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/a-h/bpm/internal/pkgfile"
)

// Mode is the set of per-file tags a ModeGlob rule can attach.
type Mode struct {
	Volatile bool
	Weak     bool
	Ignore   bool
}

// rule is one aggregated glob line: an ignore-file line, an inline
// --ignore-pattern flag, or a mode-file line, in the order it was supplied.
type rule struct {
	g      glob.Glob
	negate bool
	modes  Mode
	source string
}

// RuleSet is the aggregated, ordered set of ignore and mode rules that
// decide, for each discovered path, whether to add it and how to tag it.
type RuleSet struct {
	rules []rule
}

// ParseIgnoreLines parses the gitignore-style lines of one ignore-file
// input (or the inline --ignore-pattern flags, one per element): blank
// lines and lines starting with '#' are skipped, a leading '!' reinstates
// a path an earlier rule excluded.
func ParseIgnoreLines(source string, lines []string) ([]rule, error) {
	var rules []rule
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		negate := strings.HasPrefix(line, "!")
		pattern := strings.TrimPrefix(line, "!")
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid glob %q: %w", source, i+1, pattern, err)
		}
		rules = append(rules, rule{g: g, negate: negate, modes: Mode{Ignore: true}, source: fmt.Sprintf("%s:%d", source, i+1)})
	}
	return rules, nil
}

// ParseModeLines parses one mode-file's "<modes> <path_glob>" lines. modes
// is a comma-separated list using long (volatile, weak, ignore) or short
// (v, w, i) names; unrecognized modes are logged by the caller and skipped.
func ParseModeLines(source string, lines []string, warn func(msg string)) ([]rule, error) {
	var rules []rule
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: expected \"<modes> <glob>\", got %q", source, i+1, line)
		}
		modeList, pattern := fields[0], fields[1]

		var m Mode
		for _, mode := range strings.Split(modeList, ",") {
			switch mode {
			case "volatile", "v":
				m.Volatile = true
			case "weak", "w":
				m.Weak = true
			case "ignore", "i":
				m.Ignore = true
			case "":
			default:
				if warn != nil {
					warn(fmt.Sprintf("%s:%d: ignoring unrecognized file mode %q", source, i+1, mode))
				}
			}
		}

		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid glob %q: %w", source, i+1, pattern, err)
		}
		rules = append(rules, rule{g: g, modes: m, source: fmt.Sprintf("%s:%d", source, i+1)})
	}
	return rules, nil
}

// BuildRuleSet aggregates mode files, ignore files, and inline ignore
// patterns, in that order, matching original_source's build_globs.
func BuildRuleSet(modeFiles, ignoreFiles []string, ignorePatterns []string, warn func(string)) (*RuleSet, error) {
	rs := &RuleSet{}

	for _, path := range modeFiles {
		lines, err := readLines(path)
		if err != nil {
			return nil, err
		}
		rules, err := ParseModeLines(path, lines, warn)
		if err != nil {
			return nil, err
		}
		rs.rules = append(rs.rules, rules...)
	}

	for _, path := range ignoreFiles {
		lines, err := readLines(path)
		if err != nil {
			return nil, err
		}
		rules, err := ParseIgnoreLines(path, lines)
		if err != nil {
			return nil, err
		}
		rs.rules = append(rs.rules, rules...)
	}

	if len(ignorePatterns) > 0 {
		rules, err := ParseIgnoreLines("pattern", ignorePatterns)
		if err != nil {
			return nil, err
		}
		rs.rules = append(rs.rules, rules...)
	}

	return rs, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// Decision is the add/ignore outcome and tags for one discovered path.
type Decision struct {
	Path     string
	Add      bool
	Reason   string
	Volatile bool
	Weak     bool
}

// Decide evaluates path (and its ancestor directories, shallowest first) against
// every aggregated rule whose glob matches, taking the last match as
// authoritative, mirroring gitignore's "last matching pattern wins" rule.
func (rs *RuleSet) Decide(path string) Decision {
	d := Decision{Path: path, Add: true}
	segments := strings.Split(path, "/")

	for i := 1; i <= len(segments); i++ {
		ancestor := strings.Join(segments[:i], "/")
		for _, r := range rs.rules {
			if !r.g.Match(ancestor) {
				continue
			}
			if r.modes.Ignore {
				d.Add = r.negate
				d.Reason = r.source
			}
			if i == len(segments) {
				if r.modes.Volatile {
					d.Volatile = true
				}
				if r.modes.Weak {
					d.Weak = true
				}
			}
		}
	}
	return d
}

// reinstateParents walks decisions in path order and, for every path that
// ended up explicitly added despite an ignored ancestor, clears the
// ignored flag on every ancestor directory, matching original_source's
// readd_parent_ignore pass (a whitelisted descendant drags its parent
// directories back in so the tar has somewhere to extract it into).
func reinstateParents(decisions map[string]*Decision, order []string) {
	for _, path := range order {
		d := decisions[path]
		if !d.Add {
			continue
		}
		segments := strings.Split(path, "/")
		for i := 1; i < len(segments); i++ {
			ancestor := strings.Join(segments[:i], "/")
			if ad, ok := decisions[ancestor]; ok {
				ad.Add = true
			}
		}
	}
}

// SymlinkPolicy controls how Gather validates discovered symlinks.
type SymlinkPolicy struct {
	AllowOutside bool // allow links that resolve outside the package root
	AllowDangling bool // allow links to a nonexistent target
}

// SymlinkError reports one symlink that failed validation.
type SymlinkError struct {
	Path   string
	Target string
	Reason string
}

func (e *SymlinkError) Error() string {
	return fmt.Sprintf("symlink %s -> %s: %s", e.Path, e.Target, e.Reason)
}

// Gather walks root, applies rules, validates symlinks, and returns the
// kept entries as pkgfile.Entry values ready for pkgfile.Build. wrapDir, if
// non-empty, is prepended to every kept path.
func Gather(root string, rs *RuleSet, policy SymlinkPolicy, wrapDir string) ([]pkgfile.Entry, error) {
	root = filepath.Clean(root)

	type discovered struct {
		pkgPath  string
		fullPath string
		typ      pkgfile.FileType
		target   string
		size     uint64
		mtime    uint64
	}

	var found []discovered
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
		pkgPath := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", p, err)
			}
			found = append(found, discovered{pkgPath: pkgPath, fullPath: p, typ: pkgfile.TypeLink, target: target})
		case d.IsDir():
			found = append(found, discovered{pkgPath: pkgPath, fullPath: p, typ: pkgfile.TypeDir})
		default:
			found = append(found, discovered{
				pkgPath:  pkgPath,
				fullPath: p,
				typ:      pkgfile.TypeFile,
				size:     uint64(info.Size()),
				mtime:    uint64(info.ModTime().Unix()),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	order := make([]string, 0, len(found))
	decisions := make(map[string]*Decision, len(found))
	for _, f := range found {
		d := rs.Decide(f.pkgPath)
		decisions[f.pkgPath] = &d
		order = append(order, f.pkgPath)
	}
	reinstateParents(decisions, order)

	var entries []pkgfile.Entry
	for _, f := range found {
		d := decisions[f.pkgPath]
		if !d.Add {
			continue
		}

		if f.typ == pkgfile.TypeLink {
			if err := validateSymlink(root, f.fullPath, f.target, policy); err != nil {
				return nil, err
			}
		}

		pkgPath := f.pkgPath
		if wrapDir != "" {
			pkgPath = wrapDir + "/" + pkgPath
		}

		e := pkgfile.Entry{
			Path:     pkgPath,
			Type:     f.typ,
			Target:   f.target,
			Volatile: d.Volatile,
			Mtime:    f.mtime,
			Size:     f.size,
		}
		if f.typ == pkgfile.TypeFile {
			fullPath := f.fullPath
			e.Open = func() (io.ReadCloser, error) {
				return os.Open(fullPath)
			}
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func validateSymlink(root, fullPath, target string, policy SymlinkPolicy) error {
	if filepath.IsAbs(target) {
		return &SymlinkError{Path: fullPath, Target: target, Reason: "absolute symlink targets are never allowed"}
	}

	resolved := filepath.Join(filepath.Dir(fullPath), target)
	_, statErr := os.Stat(resolved)
	exists := statErr == nil

	if !exists && !policy.AllowDangling {
		return &SymlinkError{Path: fullPath, Target: target, Reason: "target does not exist"}
	}

	if exists {
		rel, err := filepath.Rel(root, resolved)
		if err != nil || strings.HasPrefix(rel, "..") {
			if !policy.AllowOutside {
				return &SymlinkError{Path: fullPath, Target: target, Reason: "target resolves outside the package root"}
			}
		}
	}
	return nil
}
