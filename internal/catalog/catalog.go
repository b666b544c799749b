// Package catalog implements the multi-provider package catalog: merge,
// filter, and resolve operations over scan results produced by the
// provider scanners (internal/provider), per spec.md §3 and §4.D. Grounded
// on original_source/crates/scan_result/src/lib.rs.
package catalog

import (
	"sort"
	"strings"

	"github.com/a-h/bpm/internal/bpmerr"
	"github.com/a-h/bpm/internal/version"
)

// VersionInfo is one per-architecture catalog entry for a given version.
type VersionInfo struct {
	URI      string
	Filename string
	Arch     string
	Channels []string
}

// AddChannel appends channel if not already present.
func (v *VersionInfo) AddChannel(channel string) {
	for _, c := range v.Channels {
		if c == channel {
			return
		}
	}
	v.Channels = append(v.Channels, channel)
}

func (v *VersionInfo) hasChannel(channel string) bool {
	for _, c := range v.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// PackageInfo holds every known version of a single package name, plus any
// key/value attributes scraped from a provider-side kv.json.
type PackageInfo struct {
	Versions map[string][]VersionInfo // version string -> one entry per arch
	KV       map[string]string
}

func newPackageInfo() *PackageInfo {
	return &PackageInfo{Versions: map[string][]VersionInfo{}}
}

// HasVersion reports whether any entry exists for version v.
func (p *PackageInfo) HasVersion(v string) bool {
	_, ok := p.Versions[v]
	return ok
}

// HasChannel reports whether any version lists channel.
func (p *PackageInfo) HasChannel(channel string) bool {
	for _, vis := range p.Versions {
		for _, vi := range vis {
			if vi.hasChannel(channel) {
				return true
			}
		}
	}
	return false
}

// merge combines other into p: union of versions, union of per-arch entries
// within a version, union of channels within an entry, kv first-writer-wins.
func (p *PackageInfo) merge(other *PackageInfo) {
	for v, vis := range other.Versions {
		p.Versions[v] = mergeVersionInfos(p.Versions[v], vis)
	}
	if p.KV == nil && other.KV != nil {
		p.KV = other.KV
	}
}

func mergeVersionInfos(existing, incoming []VersionInfo) []VersionInfo {
	out := existing
	for _, in := range incoming {
		found := false
		for i := range out {
			if out[i].Arch == in.Arch {
				for _, c := range in.Channels {
					out[i].AddChannel(c)
				}
				found = true
				break
			}
		}
		if !found {
			out = append(out, in)
		}
	}
	return out
}

// AddVersion records a scanned entry, finding or creating the VersionInfo
// for (version, arch) and merging in any channels supplied.
func (p *PackageInfo) AddVersion(ver string, vi VersionInfo) {
	list := p.Versions[ver]
	for i := range list {
		if list[i].Arch == vi.Arch {
			list[i].URI = vi.URI
			list[i].Filename = vi.Filename
			for _, c := range vi.Channels {
				list[i].AddChannel(c)
			}
			p.Versions[ver] = list
			return
		}
	}
	p.Versions[ver] = append(list, vi)
}

// ScanResult is a catalog produced by a single provider scan. See
// spec.md §3 CatalogEntry/PackageInfo/Catalog.
type ScanResult struct {
	Packages map[string]*PackageInfo
}

// New returns an empty ScanResult.
func New() *ScanResult {
	return &ScanResult{Packages: map[string]*PackageInfo{}}
}

func (s *ScanResult) pkg(name string) *PackageInfo {
	p, ok := s.Packages[name]
	if !ok {
		p = newPackageInfo()
		s.Packages[name] = p
	}
	return p
}

// AddVersion records a scanned package-file entry.
func (s *ScanResult) AddVersion(name, ver string, vi VersionInfo) {
	s.pkg(name).AddVersion(ver, vi)
}

// AddChannelVersion adds channel to every arch-entry of (name, ver).
func (s *ScanResult) AddChannelVersion(name, channel, ver string) {
	p := s.pkg(name)
	list := p.Versions[ver]
	for i := range list {
		list[i].AddChannel(channel)
	}
	p.Versions[ver] = list
}

// AddKV merges a provider-side kv.json map for a package, first-writer-wins.
func (s *ScanResult) AddKV(name string, kv map[string]string) {
	p := s.pkg(name)
	if p.KV == nil {
		p.KV = kv
	}
}

// Merge returns the union of a and b: for each package name, the union of
// versions; for each version, the union of per-arch entries; for each
// entry, union of channels; kv merges with first-writer-wins.
func Merge(a, b *ScanResult) *ScanResult {
	out := New()
	for name, p := range a.Packages {
		merged := newPackageInfo()
		merged.merge(p)
		out.Packages[name] = merged
	}
	for name, p := range b.Packages {
		merged, ok := out.Packages[name]
		if !ok {
			merged = newPackageInfo()
			out.Packages[name] = merged
		}
		merged.merge(p)
	}
	return out
}

// PackageCount returns the number of distinct package names.
func (s *ScanResult) PackageCount() int { return len(s.Packages) }

// VersionCount returns the total number of (package, version) pairs.
func (s *ScanResult) VersionCount() int {
	n := 0
	for _, p := range s.Packages {
		n += len(p.Versions)
	}
	return n
}

// UniqueCount returns the total number of per-arch entries across all
// packages and versions.
func (s *ScanResult) UniqueCount() int {
	n := 0
	for _, p := range s.Packages {
		for _, vis := range p.Versions {
			n += len(vis)
		}
	}
	return n
}

// ArchMatcher implements the arch-filter grammar from spec.md §4.C: exact
// match, "*" wildcard (matches everything, including no-arch entries), or a
// comma-separated list of exact names.
type ArchMatcher struct {
	wildcard bool
	set      map[string]struct{}
}

// ParseArchMatcher builds a matcher from a filter expression.
func ParseArchMatcher(expr string) ArchMatcher {
	if expr == "" || expr == "*" {
		return ArchMatcher{wildcard: true}
	}
	set := map[string]struct{}{}
	for _, a := range strings.Split(expr, ",") {
		set[strings.TrimSpace(a)] = struct{}{}
	}
	return ArchMatcher{set: set}
}

// Match reports whether arch is accepted.
func (m ArchMatcher) Match(arch string) bool {
	if m.wildcard {
		return true
	}
	_, ok := m.set[arch]
	return ok
}

// FilterArch keeps only per-arch entries matching m, pruning version lists
// and then package infos that become empty.
func (s *ScanResult) FilterArch(m ArchMatcher) {
	for name, p := range s.Packages {
		for v, vis := range p.Versions {
			kept := vis[:0]
			for _, vi := range vis {
				if m.Match(vi.Arch) {
					kept = append(kept, vi)
				}
			}
			if len(kept) == 0 {
				delete(p.Versions, v)
			} else {
				p.Versions[v] = kept
			}
		}
		if len(p.Versions) == 0 {
			delete(s.Packages, name)
		}
	}
}

// FilterPackage keeps only package names in names.
func (s *ScanResult) FilterPackage(names []string) {
	want := map[string]struct{}{}
	for _, n := range names {
		want[n] = struct{}{}
	}
	for name := range s.Packages {
		if _, ok := want[name]; !ok {
			delete(s.Packages, name)
		}
	}
}

// FilterChannel keeps only version entries that list at least one of
// channels, pruning empty version lists and package infos.
func (s *ScanResult) FilterChannel(channels []string) {
	want := map[string]struct{}{}
	for _, c := range channels {
		want[c] = struct{}{}
	}
	for name, p := range s.Packages {
		for v, vis := range p.Versions {
			kept := vis[:0]
			for _, vi := range vis {
				if anyChannelMatches(vi.Channels, want) {
					kept = append(kept, vi)
				}
			}
			if len(kept) == 0 {
				delete(p.Versions, v)
			} else {
				p.Versions[v] = kept
			}
		}
		if len(p.Versions) == 0 {
			delete(s.Packages, name)
		}
	}
}

func anyChannelMatches(have []string, want map[string]struct{}) bool {
	for _, c := range have {
		if _, ok := want[c]; ok {
			return true
		}
	}
	return false
}

// Selector chooses among a package's versions: unconstrained, by channel,
// or by exact version, per spec.md §4.D resolve().
type Selector struct {
	Channel string
	Version string
}

// Versioning records how a resolved install is pinned, per spec.md §3.
type Versioning struct {
	PinnedToVersion bool
	PinnedToChannel bool
	Channel         string
}

// Resolve implements spec.md §4.D's resolve(name, selector): pick the
// greatest matching version by the §4.A order.
func (s *ScanResult) Resolve(name string, sel Selector) (VersionInfo, string, Versioning, error) {
	p, ok := s.Packages[name]
	if !ok {
		return VersionInfo{}, "", Versioning{}, bpmerr.ErrNotFound
	}

	switch {
	case sel.Version != "":
		vis, ok := p.Versions[sel.Version]
		if !ok || len(vis) == 0 {
			return VersionInfo{}, "", Versioning{}, bpmerr.ErrNotFound
		}
		return vis[0], sel.Version, Versioning{PinnedToVersion: true}, nil

	case sel.Channel != "":
		versions := make([]string, 0, len(p.Versions))
		for v, vis := range p.Versions {
			if anyHasChannel(vis, sel.Channel) {
				versions = append(versions, v)
			}
		}
		if len(versions) == 0 {
			return VersionInfo{}, "", Versioning{}, bpmerr.ErrNotFound
		}
		best := greatest(versions)
		return firstFor(p.Versions[best]), best, Versioning{PinnedToChannel: true, Channel: sel.Channel}, nil

	default:
		versions := make([]string, 0, len(p.Versions))
		for v := range p.Versions {
			versions = append(versions, v)
		}
		if len(versions) == 0 {
			return VersionInfo{}, "", Versioning{}, bpmerr.ErrNotFound
		}
		best := greatest(versions)
		return firstFor(p.Versions[best]), best, Versioning{}, nil
	}
}

func anyHasChannel(vis []VersionInfo, channel string) bool {
	for _, vi := range vis {
		if vi.hasChannel(channel) {
			return true
		}
	}
	return false
}

func firstFor(vis []VersionInfo) VersionInfo {
	if len(vis) == 0 {
		return VersionInfo{}
	}
	return vis[0]
}

func greatest(versions []string) string {
	sort.Slice(versions, func(i, j int) bool { return version.Less(versions[i], versions[j]) })
	return versions[len(versions)-1]
}
