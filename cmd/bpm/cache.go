package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/a-h/bpm/cmd/bpm/globals"
	"github.com/a-h/bpm/internal/bpmerr"
	"github.com/a-h/bpm/internal/catalog"
	"github.com/a-h/bpm/internal/pkgfile"
)

// CacheCmd implements `bpm cache clean|clear|evict|list|fetch|touch`.
type CacheCmd struct {
	Clean CacheCleanCmd `cmd:"" help:"Remove cached artifacts for packages no longer installed."`
	Clear CacheClearCmd `cmd:"" help:"Remove every cached artifact and provider catalog."`
	Evict CacheEvictCmd `cmd:"" help:"Remove cached artifacts for a package, optionally a single version."`
	List  CacheListCmd  `cmd:"" help:"List cached artifacts."`
	Fetch CacheFetchCmd `cmd:"" help:"Resolve and download a package into the cache without installing it."`
	Touch CacheTouchCmd `cmd:"" help:"Refresh a cached artifact's access time."`
}

type CacheCleanCmd struct{}

func (cmd *CacheCleanCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	inUse := map[pkgfile.PackageID]bool{}
	for _, rec := range a.DB.List() {
		inUse[rec.ID()] = true
	}
	removed, err := a.Cache.Sweep(inUse, false)
	if err != nil {
		return err
	}
	for _, path := range removed {
		fmt.Println(path)
	}
	return nil
}

type CacheClearCmd struct{}

func (cmd *CacheClearCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()
	return a.Cache.Clear()
}

type CacheEvictCmd struct {
	Name    string `arg:"" help:"Package name."`
	Version string `arg:"" optional:"" help:"Exact version to evict; every cached version if omitted."`
}

func (cmd *CacheEvictCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()
	return a.Cache.Evict(cmd.Name, cmd.Version)
}

type CacheListCmd struct{}

func (cmd *CacheListCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	entries, err := a.Cache.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s %s %s\n", e.Name, e.Version, e.ModTime.Format("2006-01-02T15:04:05"))
	}
	return nil
}

type CacheFetchCmd struct {
	Target string `arg:"" help:"Package name[@selector] to resolve and download."`
}

func (cmd *CacheFetchCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	name, selector, _ := strings.Cut(cmd.Target, "@")
	sel := catalog.Selector{}
	if selector != "" {
		if a.mergedCatalog.Packages[name] != nil && a.mergedCatalog.Packages[name].HasChannel(selector) {
			sel.Channel = selector
		} else {
			sel.Version = selector
		}
	}

	_, version, _, err := a.mergedCatalog.Resolve(name, sel)
	if err != nil {
		return fmt.Errorf("%w: %s", bpmerr.ErrNotFound, cmd.Target)
	}

	id := pkgfile.PackageID{Name: name, Version: version}
	path, err := a.Cache.Fetch(ctx, id, a.providerEntries)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

type CacheTouchCmd struct {
	Name    string `arg:"" help:"Package name."`
	Version string `arg:"" help:"Exact version."`
}

func (cmd *CacheTouchCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()
	return a.Cache.Touch(pkgfile.PackageID{Name: cmd.Name, Version: cmd.Version})
}
