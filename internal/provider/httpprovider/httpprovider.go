// Package httpprovider implements the HTTP directory-index catalog scanner
// from spec.md §4.C: the same flat/named/named+channel layouts as
// fsprovider, expressed as linked directory listings fetched over GET.
// Grounded on storage/storage.go (teacher a-h/depot) for the read-only
// storage idiom; concurrency grounded on golang.org/x/sync's errgroup and
// semaphore packages, pulled in for this exact bounded-fan-out shape.
package httpprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/a-h/bpm/internal/catalog"
	"github.com/a-h/bpm/internal/pkgfile"
	"github.com/a-h/bpm/internal/provider"
)

const defaultConcurrency = 8
const maxDepth = 4

// Provider scans an HTTP directory listing for package files.
type Provider struct {
	BaseURL     string
	Client      *http.Client
	Concurrency int64
	Arch        catalog.ArchMatcher
	Logger      *slog.Logger
}

// New returns an HTTP provider rooted at baseURL. A zero concurrency
// selects the default bound.
func New(baseURL string, arch catalog.ArchMatcher, concurrency int64, logger *slog.Logger) *Provider {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		Client:      http.DefaultClient,
		Concurrency: concurrency,
		Arch:        arch,
		Logger:      logger,
	}
}

// link is one anchor from a directory listing.
type link struct {
	href string
	text string
}

// Scan implements provider.Scanner.
func (p *Provider) Scan(ctx context.Context) (*catalog.ScanResult, error) {
	result := catalog.New()
	var mu sync.Mutex
	sem := semaphore.NewWeighted(p.Concurrency)

	rootLinks, err := p.fetchLinks(ctx, p.BaseURL+"/")
	if err != nil {
		return nil, fmt.Errorf("fetch provider root: %w", err)
	}
	files, dirs := partition(rootLinks)

	for _, f := range files {
		p.addFile(&mu, result, p.BaseURL, f)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range dirs {
		d := d
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			p.scanNamedDir(gctx, &mu, result, p.BaseURL, d, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil && err != context.Canceled {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return result, nil
}

// scanNamedDir fetches one named-package directory and dispatches its
// contents: package files, channels.json/kv.json side files, and
// channel_<name> subdirectories, per spec.md §4.C step 2-3. Errors fetching
// an individual subtree are logged and skipped rather than aborting the
// whole scan.
func (p *Provider) scanNamedDir(ctx context.Context, mu *sync.Mutex, result *catalog.ScanResult, baseURL, dirName string, depth int) {
	if depth > maxDepth {
		return
	}
	dirURL := baseURL + "/" + dirName
	links, err := p.fetchLinks(ctx, dirURL+"/")
	if err != nil {
		p.Logger.Warn("skipping directory", "url", dirURL, "error", err)
		return
	}

	files, subdirs := partition(links)
	for _, f := range files {
		p.addNamedFile(mu, result, dirURL, f, dirName)
	}

	for _, l := range links {
		switch l.text {
		case "channels.json":
			p.mergeChannelsDoc(ctx, mu, result, dirURL+"/channels.json", dirName)
		case "kv.json":
			p.mergeKVDoc(ctx, mu, result, dirURL+"/kv.json", dirName)
		}
	}

	for _, d := range subdirs {
		if channel, ok := strings.CutPrefix(d, "channel_"); ok {
			p.scanChannelDir(ctx, mu, result, dirURL, channel, dirName)
		}
	}
}

func (p *Provider) scanChannelDir(ctx context.Context, mu *sync.Mutex, result *catalog.ScanResult, dirURL, channel, name string) {
	channelURL := dirURL + "/channel_" + channel
	links, err := p.fetchLinks(ctx, channelURL+"/")
	if err != nil {
		p.Logger.Warn("skipping channel directory", "url", channelURL, "error", err)
		return
	}
	files, _ := partition(links)
	for _, f := range files {
		fname, ver, arch, ok := pkgfile.SplitParts(f)
		if !ok || fname != name || !p.Arch.Match(arch) {
			continue
		}
		mu.Lock()
		result.AddVersion(name, ver, catalog.VersionInfo{
			URI:      channelURL + "/" + f,
			Filename: f,
			Arch:     arch,
			Channels: []string{channel},
		})
		mu.Unlock()
	}
}

func (p *Provider) addFile(mu *sync.Mutex, result *catalog.ScanResult, baseURL, filename string) {
	name, ver, arch, ok := pkgfile.SplitParts(filename)
	if !ok || !p.Arch.Match(arch) {
		return
	}
	mu.Lock()
	result.AddVersion(name, ver, catalog.VersionInfo{
		URI:      baseURL + "/" + filename,
		Filename: filename,
		Arch:     arch,
	})
	mu.Unlock()
}

func (p *Provider) addNamedFile(mu *sync.Mutex, result *catalog.ScanResult, dirURL, filename, dirName string) {
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
	mu.Lock()
	result.AddVersion(name, ver, catalog.VersionInfo{
		URI:      dirURL + "/" + filename,
		Filename: filename,
		Arch:     arch,
	})
	mu.Unlock()
}

func (p *Provider) mergeChannelsDoc(ctx context.Context, mu *sync.Mutex, result *catalog.ScanResult, docURL, name string) {
	var doc provider.ChannelsDoc
	if err := p.fetchJSON(ctx, docURL, &doc); err != nil {
		p.Logger.Warn("invalid channels.json", "url", docURL, "error", err)
		return
	}
	mu.Lock()
	defer mu.Unlock()
	for channel, versions := range doc {
		for _, v := range versions {
			result.AddChannelVersion(name, channel, v)
		}
	}
}

func (p *Provider) mergeKVDoc(ctx context.Context, mu *sync.Mutex, result *catalog.ScanResult, docURL, name string) {
	var doc provider.KVDoc
	if err := p.fetchJSON(ctx, docURL, &doc); err != nil {
		p.Logger.Warn("invalid kv.json", "url", docURL, "error", err)
		return
	}
	mu.Lock()
	defer mu.Unlock()
	result.AddKV(name, doc)
}

// Fetch implements cache.Fetcher: GETs uri and copies the response body to
// w, aborting at the next read boundary if ctx is cancelled.
func (p *Provider) Fetch(ctx context.Context, w io.Writer, uri string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", uri, resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}
	return nil
}

func (p *Provider) fetchJSON(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// fetchLinks GETs u and extracts every <a href> anchor.
func (p *Provider) fetchLinks(ctx context.Context, u string) ([]link, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	return parseAnchors(resp.Body, u)
}

func parseAnchors(r io.Reader, baseURL string) ([]link, error) {
	base, _ := url.Parse(baseURL)
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var links []link
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key != "href" {
					continue
				}
				href := a.Val
				text := anchorText(n)
				if base != nil {
					if ref, err := base.Parse(href); err == nil {
						href = ref.String()
					}
				}
				links = append(links, link{href: href, text: text})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

func anchorText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// partition splits a directory listing's anchors into package-file names
// and bare directory names, per spec.md §4.C: a directory is any link
// whose text has no "." and ends with "/".
func partition(links []link) (files []string, dirs []string) {
	for _, l := range links {
		text := l.text
		if text == "" || text == ".." || text == "../" {
			continue
		}
		if !strings.Contains(text, ".") && strings.HasSuffix(text, "/") {
			dirs = append(dirs, strings.TrimSuffix(text, "/"))
			continue
		}
		if strings.HasSuffix(text, pkgfile.PkgFileExtension) {
			files = append(files, text)
		}
	}
	return files, dirs
}
