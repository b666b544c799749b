// Command bpmpack implements the build/list-files/verify/test-ignore/
// set-version subcommands of spec.md §4.H, the counterpart binary to cmd/bpm
// for authoring packages rather than installing them. Flag layout is
// grounded on original_source/crates/bpmpack/src/args.rs's clap definitions,
// translated into kong's struct-tag command tree per this module's CLI
// convention (cmd/bpm/main.go).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/a-h/bpm/internal/packer"
	"github.com/a-h/bpm/internal/pkgfile"
)

type CLI struct {
	Build      BuildCmd      `cmd:"" default:"1" help:"Build a package from a file tree."`
	SetVersion SetVersionCmd `cmd:"" name:"set-version" help:"Version an unversioned package file."`
	ListFiles  ListFilesCmd  `cmd:"" name:"list-files" aliases:"list" help:"List the files contained in a package file."`
	Verify     VerifyCmd     `cmd:"" help:"Verify a package file's integrity."`
	TestIgnore TestIgnoreCmd `cmd:"" name:"test-ignore" help:"Show which files ignore/mode rules would add or skip."`
}

type BuildCmd struct {
	Root          string   `arg:"" help:"Directory tree to pack."`
	Name          string   `help:"The package's name." short:"n" required:""`
	Version       string   `help:"The package's version." required:"" xor:"version"`
	Unversioned   bool     `help:"Build a package without a version; it is invalid until versioned later." xor:"version"`
	Mount         string   `help:"The package's mount point, where it installs into." required:""`
	Arch          string   `help:"The package's architecture tag."`
	Description   string   `help:"A brief description of the package."`
	OutputDir     string   `help:"Directory to write the built package file into." short:"o" default:"."`
	WrapWithDir   string   `name:"wrap-with-dir" help:"Wrap all files into one root directory."`
	IgnoreFile    []string `name:"ignore-file" help:"Use an ignore file to exclude or include files."`
	IgnorePattern []string `name:"ignore-pattern" help:"Use an ignore pattern to exclude or include files."`
	FileModes     []string `name:"file-modes" help:"Read volatile/weak/ignore file modes from a file."`
	AllowSymlinkDangling bool `name:"allow-symlink-dne" help:"Allow symlinks to files that do not exist."`
	AllowSymlinkOutside  bool `name:"allow-symlink-outside" help:"Allow symlinks to files outside the package."`
	Depend []string `help:"Add a dependency, as pkg[@version]."`
	KV     []string `help:"Add a key=value attribute." name:"kv"`
}

func (cmd *BuildCmd) Run() error {
	rules, err := packer.BuildRuleSet(cmd.FileModes, cmd.IgnoreFile, cmd.IgnorePattern, func(msg string) {
		fmt.Fprintln(os.Stderr, "warning:", msg)
	})
	if err != nil {
		return err
	}

	version := cmd.Version
	if cmd.Unversioned {
		version = "unversioned"
	}

	dest := filepath.Join(cmd.OutputDir, pkgfile.MakeFilename(cmd.Name, version, cmd.Arch))
	meta, err := packer.Build(dest, packer.BuildOptions{
		Root:         cmd.Root,
		WrapDir:      cmd.WrapWithDir,
		Name:         cmd.Name,
		Version:      version,
		Arch:         cmd.Arch,
		Mount:        cmd.Mount,
		Description:  cmd.Description,
		Dependencies: parseKeyValueList(cmd.Depend, "@"),
		KV:           parseKeyValueList(cmd.KV, "="),
		Rules:        rules,
		Symlinks: packer.SymlinkPolicy{
			AllowDangling: cmd.AllowSymlinkDangling,
			AllowOutside:  cmd.AllowSymlinkOutside,
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("built %s (%d files, %d bytes)\n", dest, meta.Files.Len(), meta.DataSize)
	return nil
}

// parseKeyValueList turns ["a=b", "c"] (or ["a@1.0", "c"]) into a map,
// treating a bare entry with no separator as a key with an empty value.
func parseKeyValueList(entries []string, sep string) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		k, v, _ := strings.Cut(e, sep)
		out[k] = v
	}
	return out
}

type SetVersionCmd struct {
	PkgFile string `arg:"" help:"Package file to version."`
	Version string `help:"The package's version." required:""`
	Output  string `short:"o" help:"Destination path; defaults to overwriting pkgfile in place."`
}

func (cmd *SetVersionCmd) Run() error {
	dest := cmd.Output
	if dest == "" {
		dest = cmd.PkgFile
	}
	meta, err := packer.SetVersion(cmd.PkgFile, dest, cmd.Version, "")
	if err != nil {
		return err
	}
	fmt.Printf("versioned %s -> %s\n", dest, meta.Version)
	return nil
}

type ListFilesCmd struct {
	PkgFile string `arg:"" help:"Package file to inspect."`
}

func (cmd *ListFilesCmd) Run() error {
	files, err := packer.ListFiles(cmd.PkgFile)
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return nil
}

type VerifyCmd struct {
	PkgFile string `arg:"" help:"Package file to verify."`
}

func (cmd *VerifyCmd) Run() error {
	if err := packer.Verify(cmd.PkgFile); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

type TestIgnoreCmd struct {
	Root          string   `arg:"" help:"Directory tree to evaluate."`
	IgnoreFile    []string `name:"ignore-file" help:"Use an ignore file to exclude or include files."`
	IgnorePattern []string `name:"ignore-pattern" help:"Use an ignore pattern to exclude or include files."`
	FileModes     []string `name:"file-modes" help:"Read volatile/weak/ignore file modes from a file."`
}

func (cmd *TestIgnoreCmd) Run() error {
	rules, err := packer.BuildRuleSet(cmd.FileModes, cmd.IgnoreFile, cmd.IgnorePattern, func(msg string) {
		fmt.Fprintln(os.Stderr, "warning:", msg)
	})
	if err != nil {
		return err
	}

	decisions, err := packer.TestIgnore(cmd.Root, rules)
	if err != nil {
		return err
	}
	for _, d := range decisions {
		status := "add"
		if !d.Add {
			status = "ignore"
		}
		fmt.Printf("%s %s\n", status, d.Path)
	}
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("bpmpack"),
		kong.Description("Build and inspect bpm package files"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
