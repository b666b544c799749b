package main

import (
	"context"

	"github.com/a-h/bpm/cmd/bpm/globals"
)

// UninstallCmd implements `bpm uninstall <name> [--remove-unowned]`.
type UninstallCmd struct {
	Name          string `arg:"" help:"Installed package name."`
	RemoveUnowned bool   `help:"Fail with an uninstall-blocked error when a package directory is left non-empty by files this package didn't install."`
}

func (cmd *UninstallCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	return a.installer().Uninstall(ctx, cmd.Name, cmd.RemoveUnowned)
}
