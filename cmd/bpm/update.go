package main

import (
	"context"

	"github.com/a-h/bpm/cmd/bpm/globals"
)

// UpdateCmd implements `bpm update [<name>…]`: upgrade the named packages
// (or every installed package, if none are named) to the greatest version
// their pin allows. Packages pinned to a version are left unchanged.
type UpdateCmd struct {
	Names []string `arg:"" optional:"" help:"Package names to update; all installed packages if omitted."`
}

func (cmd *UpdateCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	return a.installer().Update(ctx, cmd.Names)
}
