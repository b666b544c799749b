package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/a-h/bpm/cmd/bpm/globals"
)

// ListCmd implements `bpm list installed | list available | list channels`.
type ListCmd struct {
	Installed ListInstalledCmd `cmd:"" help:"List installed packages."`
	Available ListAvailableCmd `cmd:"" help:"List packages known to the catalog."`
	Channels  ListChannelsCmd  `cmd:"" help:"List channels known to the catalog."`
}

type ListInstalledCmd struct{}

func (cmd *ListInstalledCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	for _, rec := range a.DB.List() {
		pin := ""
		switch {
		case rec.Versioning.PinnedToVersion:
			pin = " (pinned to version)"
		case rec.Versioning.PinnedToChannel:
			pin = fmt.Sprintf(" (pinned to channel %s)", rec.Versioning.Channel)
		}
		fmt.Printf("%s %s%s\n", rec.Meta.Name, rec.Meta.Version, pin)
	}
	return nil
}

type ListAvailableCmd struct{}

func (cmd *ListAvailableCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	names := make([]string, 0, len(a.mergedCatalog.Packages))
	for name := range a.mergedCatalog.Packages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pkg := a.mergedCatalog.Packages[name]
		versions := make([]string, 0, len(pkg.Versions))
		for v := range pkg.Versions {
			versions = append(versions, v)
		}
		sort.Strings(versions)
		fmt.Printf("%s: %v\n", name, versions)
	}
	return nil
}

type ListChannelsCmd struct{}

func (cmd *ListChannelsCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	seen := map[string]bool{}
	for _, pkg := range a.mergedCatalog.Packages {
		for _, vis := range pkg.Versions {
			for _, vi := range vis {
				for _, c := range vi.Channels {
					seen[c] = true
				}
			}
		}
	}
	channels := make([]string, 0, len(seen))
	for c := range seen {
		channels = append(channels, c)
	}
	sort.Strings(channels)
	for _, c := range channels {
		fmt.Println(c)
	}
	return nil
}
