package main

import (
	"context"

	"github.com/a-h/bpm/cmd/bpm/globals"
	"github.com/a-h/bpm/internal/installer"
)

// InstallCmd implements `bpm install <name[@selector] | path.bpm>`.
type InstallCmd struct {
	Target    string `arg:"" help:"Package name[@selector] or path to a .bpm file."`
	NoPin     bool   `help:"Do not record a version/channel pin for this install."`
	Update    bool   `help:"Treat this install as an update check for the named package."`
	Reinstall bool   `help:"Reinstall even if the resolved version is already installed."`
}

func (cmd *InstallCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	return a.installer().Install(ctx, cmd.Target, installer.InstallOptions{
		NoPin:     cmd.NoPin,
		Update:    cmd.Update,
		Reinstall: cmd.Reinstall,
	})
}
