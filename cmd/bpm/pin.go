package main

import (
	"context"

	"github.com/a-h/bpm/cmd/bpm/globals"
)

// PinCmd implements `bpm pin <name> [--channel <chan>]`.
type PinCmd struct {
	Name    string `arg:"" help:"Installed package name."`
	Channel string `help:"Pin to this channel instead of the exact installed version."`
}

func (cmd *PinCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	return a.installer().Pin(ctx, cmd.Name, cmd.Channel)
}

// UnpinCmd implements `bpm unpin <name>`.
type UnpinCmd struct {
	Name string `arg:"" help:"Installed package name."`
}

func (cmd *UnpinCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	return a.installer().Unpin(ctx, cmd.Name)
}
