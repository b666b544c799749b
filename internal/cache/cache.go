// Package cache implements the local content-addressed package cache from
// spec.md §4.E: a packages/ directory of fully-verified artifacts, a
// provider/ directory of cached catalog JSON, and a single temp.download
// staging path. Grounded on storage/storage.go's FileSystem idiom (teacher
// a-h/depot), generalized from a single-root read/write store into the
// three-directory layout and write-temp-then-fsync-then-rename fetch
// protocol the spec requires.
package cache

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/a-h/bpm/internal/bpmerr"
	"github.com/a-h/bpm/internal/catalog"
	"github.com/a-h/bpm/internal/pkgfile"
)

const (
	packagesDirName  = "packages"
	providerDirName  = "provider"
	tempDownloadName = "temp.download"
)

// Fetcher retrieves the bytes named by uri for a single catalog entry,
// writing them to w. fsprovider and httpprovider both implement this.
type Fetcher interface {
	Fetch(ctx context.Context, w io.Writer, uri string) error
}

// ProviderEntry pairs a configured provider's fetch capability with its
// most recently scanned catalog, in configured iteration order.
type ProviderEntry struct {
	Name    string
	Fetcher Fetcher
	Catalog *catalog.ScanResult
}

// Cache is the local on-disk package cache.
type Cache struct {
	Root string
}

// New returns a Cache rooted at root, creating its directory structure if
// absent. Creation is idempotent.
func New(root string) (*Cache, error) {
	c := &Cache{Root: root}
	for _, dir := range []string{c.packagesDir(), c.providerDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
		}
	}
	return c, nil
}

func (c *Cache) packagesDir() string  { return filepath.Join(c.Root, packagesDirName) }
func (c *Cache) providerDir() string  { return filepath.Join(c.Root, providerDirName) }
func (c *Cache) tempDownload() string { return filepath.Join(c.Root, tempDownloadName) }

// Find searches the cache for a filename matching id, returning its path.
func (c *Cache) Find(id pkgfile.PackageID) (path string, ok bool) {
	entries, err := os.ReadDir(c.packagesDir())
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name, ver, _, parsed := pkgfile.SplitParts(e.Name())
		if parsed && name == id.Name && ver == id.Version {
			return filepath.Join(c.packagesDir(), e.Name()), true
		}
	}
	return "", false
}

// Fetch implements the cache-fetch contract from spec.md §4.E: search the
// cache first, then try each provider in order, consulting its cached
// catalog for a matching entry and calling its Fetcher. The first provider
// to succeed wins; transient per-provider errors are skipped, not fatal.
func (c *Cache) Fetch(ctx context.Context, id pkgfile.PackageID, providers []ProviderEntry) (string, error) {
	if path, ok := c.Find(id); ok {
		return path, nil
	}

	for _, p := range providers {
		vi, filename, err := lookupEntry(p.Catalog, id)
		if err != nil {
			continue
		}
		path, err := c.fetchOne(ctx, p.Fetcher, vi.URI, filename)
		if err != nil {
			continue
		}
		return path, nil
	}

	return "", fmt.Errorf("%w: %s %s", bpmerr.ErrFetch, id.Name, id.Version)
}

func lookupEntry(sr *catalog.ScanResult, id pkgfile.PackageID) (catalog.VersionInfo, string, error) {
	if sr == nil {
		return catalog.VersionInfo{}, "", bpmerr.ErrNotFound
	}
	p, ok := sr.Packages[id.Name]
	if !ok {
		return catalog.VersionInfo{}, "", bpmerr.ErrNotFound
	}
	vis, ok := p.Versions[id.Version]
	if !ok || len(vis) == 0 {
		return catalog.VersionInfo{}, "", bpmerr.ErrNotFound
	}
	return vis[0], vis[0].Filename, nil
}

// fetchOne streams uri through the single temp.download staging path,
// fsyncs, then atomically renames into packages/<filename>.
func (c *Cache) fetchOne(ctx context.Context, f Fetcher, uri, filename string) (string, error) {
	tmp := c.tempDownload()
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create temp download: %w", err)
	}

	if err := f.Fetch(ctx, out, uri); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("fsync temp download: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close temp download: %w", err)
	}

	final := filepath.Join(c.packagesDir(), filename)
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename temp download into place: %w", err)
	}
	return final, nil
}

// Entry describes one cached artifact for List/Touch/Evict.
type Entry struct {
	Path    string
	Name    string
	Version string
	ModTime time.Time
}

// List returns every cached package artifact.
func (c *Cache) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(c.packagesDir())
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	var out []Entry
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		name, ver, _, ok := pkgfile.SplitParts(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Path:    filepath.Join(c.packagesDir(), e.Name()),
			Name:    name,
			Version: ver,
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Touch updates an artifact's access/modification time without re-fetching
// it. Sweep does not look at these times; it decides by Install DB
// reference only.
func (c *Cache) Touch(id pkgfile.PackageID) error {
	path, ok := c.Find(id)
	if !ok {
		return fmt.Errorf("%w: %s %s not cached", bpmerr.ErrNotFound, id.Name, id.Version)
	}
	now := time.Now()
	return os.Chtimes(path, now, now)
}

// Evict removes cached artifacts matching name, and optionally an exact
// version.
func (c *Cache) Evict(name, version string) error {
	entries, err := c.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name != name {
			continue
		}
		if version != "" && e.Version != version {
			continue
		}
		if err := os.Remove(e.Path); err != nil {
			return fmt.Errorf("evict %s: %w", e.Path, err)
		}
	}
	return nil
}

// Sweep removes cached artifacts not referenced by inUse, a set of package
// IDs currently tracked by the Install DB. When invert is true, the filter
// reverses: only artifacts that ARE in inUse are removed.
func (c *Cache) Sweep(inUse map[pkgfile.PackageID]bool, invert bool) ([]string, error) {
	entries, err := c.List()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, e := range entries {
		id := pkgfile.PackageID{Name: e.Name, Version: e.Version}
		referenced := inUse[id]
		if referenced != invert {
			continue
		}
		if err := os.Remove(e.Path); err != nil {
			return removed, fmt.Errorf("sweep %s: %w", e.Path, err)
		}
		removed = append(removed, e.Path)
	}
	return removed, nil
}

// ProviderCatalogPath returns where a given provider's scanned catalog JSON
// is cached.
func (c *Cache) ProviderCatalogPath(providerName string) string {
	return filepath.Join(c.providerDir(), providerName+".json")
}

// Clear removes every cached artifact and provider catalog.
func (c *Cache) Clear() error {
	if err := os.RemoveAll(c.packagesDir()); err != nil {
		return err
	}
	if err := os.RemoveAll(c.providerDir()); err != nil {
		return err
	}
	for _, dir := range []string{c.packagesDir(), c.providerDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
