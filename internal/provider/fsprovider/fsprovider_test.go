package fsprovider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/a-h/bpm/internal/catalog"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestScanFlatLayout(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "foo_1.0.0_amd64.bpm"))
	touch(t, filepath.Join(root, "foo_1.0.0.bpm"))

	p := New(root, catalog.ParseArchMatcher("*"), nil)
	result, err := p.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := result.PackageCount(); got != 1 {
		t.Fatalf("PackageCount = %d, want 1", got)
	}
	if got := result.UniqueCount(); got != 2 {
		t.Fatalf("UniqueCount = %d, want 2", got)
	}
}

func TestScanNamedLayoutWithChannelsAndKV(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "foo", "foo_1.0.0_amd64.bpm"))
	touch(t, filepath.Join(root, "foo", "foo_1.1.0_amd64.bpm"))
	if err := os.WriteFile(filepath.Join(root, "foo", "channels.json"),
		[]byte(`{"stable": ["1.0.0"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "foo", "kv.json"),
		[]byte(`{"homepage": "https://example.com"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	p := New(root, catalog.ParseArchMatcher("*"), nil)
	result, err := p.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	pkg := result.Packages["foo"]
	if pkg == nil {
		t.Fatal("expected foo package")
	}
	if !pkg.HasChannel("stable") {
		t.Error("expected stable channel on 1.0.0")
	}
	if pkg.KV["homepage"] != "https://example.com" {
		t.Errorf("kv.json not merged: %+v", pkg.KV)
	}
}

func TestScanNamedChannelLayout(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "foo", "channel_beta", "foo_2.0.0_amd64.bpm"))

	p := New(root, catalog.ParseArchMatcher("*"), nil)
	result, err := p.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	pkg := result.Packages["foo"]
	if pkg == nil {
		t.Fatal("expected foo package")
	}
	if !pkg.HasChannel("beta") {
		t.Error("expected beta channel")
	}
}

func TestScanDropsNameMismatch(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "foo", "bar_1.0.0_amd64.bpm"))

	p := New(root, catalog.ParseArchMatcher("*"), nil)
	result, err := p.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.PackageCount() != 0 {
		t.Errorf("expected mismatched entry to be dropped, got %d packages", result.PackageCount())
	}
}

func TestScanArchFilter(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "foo_1.0.0_amd64.bpm"))
	touch(t, filepath.Join(root, "foo_1.0.0_arm64.bpm"))

	p := New(root, catalog.ParseArchMatcher("arm64"), nil)
	result, err := p.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := result.UniqueCount(); got != 1 {
		t.Fatalf("UniqueCount = %d, want 1", got)
	}
}
