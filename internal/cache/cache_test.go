package cache

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/a-h/bpm/internal/catalog"
	"github.com/a-h/bpm/internal/pkgfile"
)

type stubFetcher struct {
	content string
	err     error
}

func (s stubFetcher) Fetch(ctx context.Context, w io.Writer, uri string) error {
	if s.err != nil {
		return s.err
	}
	_, err := io.Copy(w, bytes.NewBufferString(s.content))
	return err
}

func TestFetchMissesCacheThenProvider(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	sr := catalog.New()
	sr.AddVersion("foo", "1.0.0", catalog.VersionInfo{
		URI:      "stub://foo",
		Filename: "foo_1.0.0.bpm",
		Arch:     "",
	})

	providers := []ProviderEntry{
		{Name: "p1", Fetcher: stubFetcher{content: "package-bytes"}, Catalog: sr},
	}

	path, err := c.Fetch(context.Background(), pkgfile.PackageID{Name: "foo", Version: "1.0.0"}, providers)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "package-bytes" {
		t.Errorf("cached content = %q, want %q", data, "package-bytes")
	}
	if filepath.Base(path) != "foo_1.0.0.bpm" {
		t.Errorf("cached path = %q, want basename foo_1.0.0.bpm", path)
	}

	// A second fetch should hit the cache, not the provider.
	path2, err := c.Fetch(context.Background(), pkgfile.PackageID{Name: "foo", Version: "1.0.0"}, nil)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if path2 != path {
		t.Errorf("second Fetch returned %q, want %q", path2, path)
	}
}

func TestFetchTriesNextProviderOnError(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sr := catalog.New()
	sr.AddVersion("foo", "1.0.0", catalog.VersionInfo{URI: "stub://foo", Filename: "foo_1.0.0.bpm"})

	providers := []ProviderEntry{
		{Name: "bad", Fetcher: stubFetcher{err: context.DeadlineExceeded}, Catalog: sr},
		{Name: "good", Fetcher: stubFetcher{content: "ok"}, Catalog: sr},
	}
	path, err := c.Fetch(context.Background(), pkgfile.PackageID{Name: "foo", Version: "1.0.0"}, providers)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "ok" {
		t.Errorf("content = %q, want ok", data)
	}
}

func TestFetchFailsWhenNoProviderHasIt(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Fetch(context.Background(), pkgfile.PackageID{Name: "missing", Version: "1.0.0"}, nil)
	if err == nil {
		t.Fatal("expected error when no provider has the package")
	}
}

func TestListTouchEvict(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(c.packagesDir(), "foo_1.0.0.bpm"), "a")
	mustWrite(t, filepath.Join(c.packagesDir(), "foo_2.0.0.bpm"), "b")
	mustWrite(t, filepath.Join(c.packagesDir(), "bar_1.0.0.bpm"), "c")

	entries, err := c.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() len = %d, want 3", len(entries))
	}

	if err := c.Touch(pkgfile.PackageID{Name: "foo", Version: "1.0.0"}); err != nil {
		t.Errorf("Touch: %v", err)
	}

	if err := c.Evict("foo", "1.0.0"); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	entries, _ = c.List()
	if len(entries) != 2 {
		t.Fatalf("List() after evict len = %d, want 2", len(entries))
	}

	if err := c.Evict("foo", ""); err != nil {
		t.Fatalf("Evict all foo: %v", err)
	}
	entries, _ = c.List()
	if len(entries) != 1 {
		t.Fatalf("List() after evict all foo len = %d, want 1", len(entries))
	}
}

func TestSweep(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(c.packagesDir(), "foo_1.0.0.bpm"), "a")
	mustWrite(t, filepath.Join(c.packagesDir(), "bar_1.0.0.bpm"), "b")

	inUse := map[pkgfile.PackageID]bool{
		{Name: "foo", Version: "1.0.0"}: true,
	}
	removed, err := c.Sweep(inUse, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || filepath.Base(removed[0]) != "bar_1.0.0.bpm" {
		t.Errorf("removed = %v, want [bar_1.0.0.bpm]", removed)
	}
	entries, _ := c.List()
	if len(entries) != 1 {
		t.Fatalf("List() after sweep len = %d, want 1", len(entries))
	}
}

func TestClear(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(c.packagesDir(), "foo_1.0.0.bpm"), "a")
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	entries, err := c.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("List() after Clear len = %d, want 0", len(entries))
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
