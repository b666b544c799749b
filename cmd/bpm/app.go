package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/bpm/cmd/bpm/globals"
	"github.com/a-h/bpm/internal/cache"
	"github.com/a-h/bpm/internal/catalog"
	"github.com/a-h/bpm/internal/config"
	"github.com/a-h/bpm/internal/installdb"
	"github.com/a-h/bpm/internal/installer"
	"github.com/a-h/bpm/internal/metrics"
	"github.com/a-h/bpm/internal/provider"
	"github.com/a-h/bpm/internal/provider/fsprovider"
	"github.com/a-h/bpm/internal/provider/httpprovider"
)

// app bundles the resources every subcommand needs after loading config,
// matching the teacher's per-command "build dependencies, run" shape rather
// than a shared long-lived daemon object.
type app struct {
	Config  *config.Config
	Cache   *cache.Cache
	DB      *installdb.DB
	Logger  *slog.Logger
	Metrics metrics.Metrics

	providerScanners map[string]provider.Scanner
	providerEntries  []cache.ProviderEntry
	mergedCatalog    *catalog.ScanResult
}

func newLogger(g *globals.Globals) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if g.Verbose {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// newApp loads configuration and wires the cache, install DB, and provider
// scanners, then loads each provider's most recently cached catalog (scan
// itself is a separate, explicit subcommand, per spec.md §4.D's
// scan/load_cache split).
func newApp(ctx context.Context, g *globals.Globals) (*app, error) {
	log := newLogger(g)

	configPath := g.Config
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determine default config path: %w", err)
		}
		configPath = filepath.Join(home, ".config", "bpm", "config.toml")
	}

	cfg, err := config.FromPath(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	c, err := cache.New(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	db, err := installdb.Open(ctx, cfg.DBFile)
	if err != nil {
		return nil, fmt.Errorf("open install db: %w", err)
	}

	m, err := metrics.New()
	if err != nil {
		log.Warn("metrics disabled", "error", err)
	}

	archMatcher := catalog.ParseArchMatcher(g.Arch)

	a := &app{
		Config:           cfg,
		Cache:            c,
		DB:               db,
		Logger:           log,
		Metrics:          m,
		providerScanners: map[string]provider.Scanner{},
	}

	merged := catalog.New()
	for _, pc := range cfg.Providers {
		scanner, fetcher, err := buildProvider(pc, archMatcher, log)
		if err != nil {
			log.Warn("skipping misconfigured provider", "provider", pc.Name, "error", err)
			continue
		}
		a.providerScanners[pc.Name] = scanner

		cached := loadCachedCatalog(c.ProviderCatalogPath(pc.Name))
		a.providerEntries = append(a.providerEntries, cache.ProviderEntry{
			Name:    pc.Name,
			Fetcher: fetcher,
			Catalog: cached,
		})
		merged = catalog.Merge(merged, cached)
	}
	a.mergedCatalog = merged

	return a, nil
}

// fetchScanner is implemented by both fsprovider.Provider and
// httpprovider.Provider: each is simultaneously a provider.Scanner and a
// cache.Fetcher for the artifacts it names.
type fetchScanner interface {
	provider.Scanner
	cache.Fetcher
}

func buildProvider(pc config.ProviderConfig, arch catalog.ArchMatcher, log *slog.Logger) (provider.Scanner, cache.Fetcher, error) {
	var fs fetchScanner
	switch {
	case strings.HasPrefix(pc.URI, "fs://"):
		fs = fsprovider.New(strings.TrimPrefix(pc.URI, "fs://"), arch, log.With("provider", pc.Name))
	case strings.HasPrefix(pc.URI, "http://"), strings.HasPrefix(pc.URI, "https://"):
		fs = httpprovider.New(pc.URI, arch, 0, log.With("provider", pc.Name))
	default:
		return nil, nil, fmt.Errorf("unsupported provider URI scheme: %q", pc.URI)
	}
	return fs, fs, nil
}

func loadCachedCatalog(path string) *catalog.ScanResult {
	f, err := os.Open(path)
	if err != nil {
		return catalog.New()
	}
	defer f.Close()

	var sr catalog.ScanResult
	if err := json.NewDecoder(f).Decode(&sr); err != nil {
		return catalog.New()
	}
	if sr.Packages == nil {
		sr.Packages = map[string]*catalog.PackageInfo{}
	}
	return &sr
}

func saveCachedCatalog(path string, sr *catalog.ScanResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(sr)
}

// installer builds the install engine bound to this app's resources.
func (a *app) installer() *installer.Installer {
	return &installer.Installer{
		Config:    a.Config,
		DB:        a.DB,
		Cache:     a.Cache,
		Catalog:   a.mergedCatalog,
		Providers: a.providerEntries,
		Logger:    a.Logger,
		Metrics:   a.Metrics,
	}
}

func (a *app) close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
