package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/a-h/bpm/cmd/bpm/globals"
	"github.com/a-h/bpm/internal/bpmerr"
)

// QueryCmd implements `bpm query owner <path>` and `bpm query list-files <name>`.
type QueryCmd struct {
	Owner     QueryOwnerCmd     `cmd:"" help:"Find which installed package owns a file."`
	ListFiles QueryListFilesCmd `cmd:"" name:"list-files" help:"List the files an installed package owns."`
}

type QueryOwnerCmd struct {
	Path string `arg:"" help:"Filesystem path to look up."`
}

func (cmd *QueryOwnerCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	name, ok := a.installer().Owner(cmd.Path)
	if !ok {
		return fmt.Errorf("%w: no installed package owns %s", bpmerr.ErrNotFound, cmd.Path)
	}
	fmt.Println(name)
	return nil
}

type QueryListFilesCmd struct {
	Name  string `arg:"" help:"Installed package name."`
	Depth int    `help:"Maximum number of path components to render; 0 renders the full path." default:"0"`
}

func (cmd *QueryListFilesCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	rec, ok := a.DB.Get(cmd.Name)
	if !ok {
		return fmt.Errorf("%w: %s", bpmerr.ErrNotInstalled, cmd.Name)
	}

	for _, path := range rec.Meta.Files.Paths() {
		fmt.Println(truncateDepth(path, cmd.Depth))
	}
	return nil
}

// truncateDepth implements the --depth open question resolution: 0 means
// render the full path, otherwise keep only the first depth components.
func truncateDepth(path string, depth int) string {
	if depth <= 0 {
		return path
	}
	parts := strings.Split(path, "/")
	if len(parts) <= depth {
		return path
	}
	return strings.Join(parts[:depth], "/")
}
