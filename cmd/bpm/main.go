package main

import (
	"github.com/a-h/bpm/cmd/bpm/globals"
	"github.com/alecthomas/kong"
)

// CLI is the full command tree from spec.md §6.
type CLI struct {
	globals.Globals
	Search    SearchCmd    `cmd:"" help:"Search the catalog by substring."`
	List      ListCmd      `cmd:"" help:"List installed packages, available packages, or channels."`
	Scan      ScanCmd      `cmd:"" help:"Re-scan configured providers and refresh the catalog cache."`
	Install   InstallCmd   `cmd:"" help:"Install a package from the catalog or a local file."`
	Uninstall UninstallCmd `cmd:"" help:"Uninstall an installed package."`
	Update    UpdateCmd    `cmd:"" help:"Update installed packages to their greatest allowed version."`
	Pin       PinCmd       `cmd:"" help:"Pin an installed package to its current version or a channel."`
	Unpin     UnpinCmd     `cmd:"" help:"Remove a package's pin."`
	Verify    VerifyCmd    `cmd:"" help:"Verify installed packages against their recorded manifest."`
	Query     QueryCmd     `cmd:"" help:"Query ownership and file lists of installed packages."`
	Cache     CacheCmd     `cmd:"" help:"Inspect and manage the local package cache."`
}

var Version = "dev"

func main() {
	cli := CLI{
		Globals: globals.Globals{},
	}

	ctx := kong.Parse(&cli,
		kong.Name("bpm"),
		kong.Description("A general-purpose binary package manager"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
