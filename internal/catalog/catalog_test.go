package catalog

import (
	"errors"
	"testing"

	"github.com/a-h/bpm/internal/bpmerr"
)

func sample() *ScanResult {
	s := New()
	s.AddVersion("foo", "1.0.0", VersionInfo{Arch: "amd64", URI: "file:///foo_1.0.0_amd64.bpm", Channels: []string{"stable"}})
	s.AddVersion("foo", "1.0.0", VersionInfo{Arch: "arm64", URI: "file:///foo_1.0.0_arm64.bpm"})
	s.AddVersion("foo", "1.1.0", VersionInfo{Arch: "amd64", URI: "file:///foo_1.1.0_amd64.bpm", Channels: []string{"beta"}})
	s.AddVersion("bar", "2.0.0", VersionInfo{Arch: "amd64", URI: "file:///bar_2.0.0_amd64.bpm"})
	return s
}

func TestCounts(t *testing.T) {
	s := sample()
	if got := s.PackageCount(); got != 2 {
		t.Errorf("PackageCount = %d, want 2", got)
	}
	if got := s.VersionCount(); got != 3 {
		t.Errorf("VersionCount = %d, want 3", got)
	}
	if got := s.UniqueCount(); got != 4 {
		t.Errorf("UniqueCount = %d, want 4", got)
	}
}

func TestMerge(t *testing.T) {
	a := New()
	a.AddVersion("foo", "1.0.0", VersionInfo{Arch: "amd64", Channels: []string{"stable"}})

	b := New()
	b.AddVersion("foo", "1.0.0", VersionInfo{Arch: "arm64"})
	b.AddVersion("foo", "1.1.0", VersionInfo{Arch: "amd64"})
	b.AddVersion("baz", "3.0.0", VersionInfo{Arch: "amd64"})

	merged := Merge(a, b)
	if got := merged.PackageCount(); got != 2 {
		t.Errorf("PackageCount = %d, want 2", got)
	}
	if got := merged.VersionCount(); got != 3 {
		t.Errorf("VersionCount = %d, want 3", got)
	}
	if got := merged.UniqueCount(); got != 4 {
		t.Errorf("UniqueCount = %d, want 4", got)
	}

	p := merged.Packages["foo"]
	if !p.HasChannel("stable") {
		t.Error("expected merged foo@1.0.0/amd64 to retain channel stable")
	}
}

func TestFilterArch(t *testing.T) {
	s := sample()
	s.FilterArch(ParseArchMatcher("amd64"))
	if got := s.PackageCount(); got != 2 {
		t.Errorf("PackageCount after FilterArch = %d, want 2", got)
	}
	if got := s.UniqueCount(); got != 3 {
		t.Errorf("UniqueCount after FilterArch = %d, want 3 (arm64 entry dropped)", got)
	}
}

func TestFilterArchWildcard(t *testing.T) {
	s := sample()
	before := s.UniqueCount()
	s.FilterArch(ParseArchMatcher("*"))
	if got := s.UniqueCount(); got != before {
		t.Errorf("wildcard filter changed UniqueCount: %d -> %d", before, got)
	}
}

func TestFilterPackage(t *testing.T) {
	s := sample()
	s.FilterPackage([]string{"foo"})
	if got := s.PackageCount(); got != 1 {
		t.Errorf("PackageCount = %d, want 1", got)
	}
	if _, ok := s.Packages["bar"]; ok {
		t.Error("expected bar to be filtered out")
	}
}

func TestFilterChannel(t *testing.T) {
	s := sample()
	s.FilterChannel([]string{"beta"})
	if got := s.PackageCount(); got != 1 {
		t.Errorf("PackageCount = %d, want 1 (only foo has a beta version)", got)
	}
	p := s.Packages["foo"]
	if p.HasVersion("1.0.0") {
		t.Error("expected 1.0.0 (stable only) to be pruned")
	}
	if !p.HasVersion("1.1.0") {
		t.Error("expected 1.1.0 (beta) to survive")
	}
}

func TestResolveDefaultPicksGreatest(t *testing.T) {
	s := sample()
	vi, ver, versioning, err := s.Resolve("foo", Selector{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ver != "1.1.0" {
		t.Errorf("resolved version = %q, want 1.1.0", ver)
	}
	if versioning.PinnedToVersion || versioning.PinnedToChannel {
		t.Errorf("unconstrained resolve should not pin: %+v", versioning)
	}
	if vi.Arch != "amd64" {
		t.Errorf("resolved arch = %q, want amd64", vi.Arch)
	}
}

func TestResolveByVersion(t *testing.T) {
	s := sample()
	_, ver, versioning, err := s.Resolve("foo", Selector{Version: "1.0.0"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ver != "1.0.0" || !versioning.PinnedToVersion {
		t.Errorf("got ver=%q versioning=%+v", ver, versioning)
	}
}

func TestResolveByChannel(t *testing.T) {
	s := sample()
	_, ver, versioning, err := s.Resolve("foo", Selector{Channel: "stable"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ver != "1.0.0" || !versioning.PinnedToChannel || versioning.Channel != "stable" {
		t.Errorf("got ver=%q versioning=%+v", ver, versioning)
	}
}

func TestResolveNotFound(t *testing.T) {
	s := sample()
	if _, _, _, err := s.Resolve("missing", Selector{}); !errors.Is(err, bpmerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, _, _, err := s.Resolve("foo", Selector{Version: "9.9.9"}); !errors.Is(err, bpmerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing version, got %v", err)
	}
	if _, _, _, err := s.Resolve("foo", Selector{Channel: "nightly"}); !errors.Is(err, bpmerr.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing channel, got %v", err)
	}
}
