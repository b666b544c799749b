package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/a-h/bpm/cmd/bpm/globals"
)

// SearchCmd implements `bpm search <substring> [--exact]`.
type SearchCmd struct {
	Substring string `arg:"" help:"Substring (or, with --exact, full name) to search for."`
	Exact     bool   `help:"Require an exact name match instead of a substring match."`
}

func (cmd *SearchCmd) Run(g *globals.Globals) error {
	ctx := context.Background()
	a, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	var names []string
	for name := range a.mergedCatalog.Packages {
		if cmd.Exact {
			if name == cmd.Substring {
				names = append(names, name)
			}
			continue
		}
		if strings.Contains(name, cmd.Substring) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
