package main

import (
	"context"
	"fmt"

	"github.com/a-h/bpm/cmd/bpm/globals"
	"github.com/a-h/bpm/internal/installer"
)

// VerifyCmd implements `bpm verify [<name>…] [--restore] [--restore-volatile] [--mtime]`.
type VerifyCmd struct {
	Names           []string `arg:"" optional:"" help:"Package names to verify; all installed packages if omitted."`
	Restore         bool     `help:"Re-extract any file that fails verification."`
	RestoreVolatile bool     `help:"Also verify (and, with --restore, restore) files marked volatile."`
	Mtime           bool     `help:"Also compare recorded modification times."`
}

func (cmd *VerifyCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	results, err := a.installer().Verify(ctx, cmd.Names, installer.VerifyOptions{
		Restore:         cmd.Restore,
		RestoreVolatile: cmd.RestoreVolatile,
		Mtime:           cmd.Mtime,
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("ok")
		return nil
	}
	for _, r := range results {
		status := "mismatch"
		if r.Restored {
			status = "restored"
		}
		fmt.Printf("%s: %s: %s (%s)\n", r.Package, r.Path, status, r.Reason)
	}
	return nil
}
