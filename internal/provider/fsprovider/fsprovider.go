// Package fsprovider implements the filesystem catalog scanner from
// spec.md §4.C: flat, named, and named+channel directory layouts, each
// optionally annotated with channels.json/kv.json side files. Grounded on
// storage/storage.go's FileSystem idiom (teacher a-h/depot).
package fsprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/bpm/internal/catalog"
	"github.com/a-h/bpm/internal/pkgfile"
	"github.com/a-h/bpm/internal/provider"
)

// Provider scans a local directory tree for package files.
type Provider struct {
	Root   string
	Arch   catalog.ArchMatcher
	Logger *slog.Logger
}

// New returns a filesystem provider rooted at root.
func New(root string, arch catalog.ArchMatcher, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{Root: root, Arch: arch, Logger: logger}
}

// Scan implements provider.Scanner. The filesystem scan is entirely local
// and synchronous, but still honors cancellation between directories so a
// scan of a large tree can be interrupted promptly.
func (p *Provider) Scan(ctx context.Context) (*catalog.ScanResult, error) {
	return p.scan(ctx)
}

func (p *Provider) scan(ctx context.Context) (*catalog.ScanResult, error) {
	result := catalog.New()

	entries, err := os.ReadDir(p.Root)
	if err != nil {
		return nil, fmt.Errorf("read provider root %s: %w", p.Root, err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() {
			p.addFlatFile(result, filepath.Join(p.Root, e.Name()), e.Name())
			continue
		}
		if err := p.scanNamedDir(result, filepath.Join(p.Root, e.Name()), e.Name()); err != nil {
			p.Logger.Warn("skipping named directory", "dir", e.Name(), "error", err)
		}
	}

	return result, nil
}

// addFlatFile handles the flat layout: <root>/<name>_<ver>[_<arch>].bpm.
func (p *Provider) addFlatFile(result *catalog.ScanResult, fullPath, filename string) {
	name, ver, arch, ok := pkgfile.SplitParts(filename)
	if !ok {
		return
	}
	if !p.Arch.Match(arch) {
		return
	}
	result.AddVersion(name, ver, catalog.VersionInfo{
		URI:      "file://" + fullPath,
		Filename: filename,
		Arch:     arch,
	})
}

// scanNamedDir handles the named and named+channel layouts rooted at
// <root>/<dirName>/.
func (p *Provider) scanNamedDir(result *catalog.ScanResult, dirPath, dirName string) error {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return err
	}

	var channels provider.ChannelsDoc
	for _, e := range entries {
		switch {
		case !e.IsDir() && e.Name() == "channels.json":
			doc, err := readChannelsDoc(filepath.Join(dirPath, e.Name()))
			if err != nil {
				p.Logger.Warn("invalid channels.json", "path", dirPath, "error", err)
				continue
			}
			channels = doc

		case !e.IsDir() && e.Name() == "kv.json":
			doc, err := readKVDoc(filepath.Join(dirPath, e.Name()))
			if err != nil {
				p.Logger.Warn("invalid kv.json", "path", dirPath, "error", err)
				continue
			}
			result.AddKV(dirName, doc)

		case !e.IsDir():
			p.addNamedFile(result, filepath.Join(dirPath, e.Name()), e.Name(), dirName)

		case strings.HasPrefix(e.Name(), "channel_"):
			channel := strings.TrimPrefix(e.Name(), "channel_")
			p.scanChannelDir(result, filepath.Join(dirPath, e.Name()), dirName, channel)

		default:
			p.Logger.Warn("unrecognized entry in named directory, skipping", "dir", dirPath, "entry", e.Name())
		}
	}
	// channels.json names versions added by the loop above, so it is applied
	// once every package file in the directory has been recorded.
	for channel, versions := range channels {
		for _, v := range versions {
			result.AddChannelVersion(dirName, channel, v)
		}
	}
	return nil
}

// addNamedFile enforces the rule that a package file's parsed name must
// equal its enclosing directory name; mismatches are logged and dropped.
func (p *Provider) addNamedFile(result *catalog.ScanResult, fullPath, filename, dirName string) {
	name, ver, arch, ok := pkgfile.SplitParts(filename)
	if !ok {
		return
	}
	if name != dirName {
		p.Logger.Warn("package name does not match enclosing directory, dropping", "file", filename, "dir", dirName)
		return
	}
	if !p.Arch.Match(arch) {
		return
	}
	result.AddVersion(name, ver, catalog.VersionInfo{
		URI:      "file://" + fullPath,
		Filename: filename,
		Arch:     arch,
	})
}

func (p *Provider) scanChannelDir(result *catalog.ScanResult, dirPath, name, channel string) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		p.Logger.Warn("skipping channel directory", "dir", dirPath, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		fname, ver, arch, ok := pkgfile.SplitParts(e.Name())
		if !ok || fname != name {
			continue
		}
		if !p.Arch.Match(arch) {
			continue
		}
		result.AddVersion(name, ver, catalog.VersionInfo{
			URI:      "file://" + filepath.Join(dirPath, e.Name()),
			Filename: e.Name(),
			Arch:     arch,
			Channels: []string{channel},
		})
	}
}

// Fetch implements cache.Fetcher: uri is a "file://" URI produced by Scan.
func (p *Provider) Fetch(ctx context.Context, w io.Writer, uri string) error {
	path := uri
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		path = u.Path
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}
	return ctx.Err()
}

func readChannelsDoc(path string) (provider.ChannelsDoc, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc provider.ChannelsDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func readKVDoc(path string) (provider.KVDoc, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc provider.KVDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
