// Package globals carries the flags every bpm subcommand needs regardless
// of which operation it runs, mirroring cmd/depot/cmd/globals (teacher
// a-h/depot): reconstructed here since that package's source was filtered
// out of the retrieved pack, but its shape is evident from main.go's
// ctx.Run(&cli.Globals) usage.
package globals

// Globals holds the flags common to every bpm subcommand.
type Globals struct {
	Config  string `help:"Path to config.toml (default: ~/.config/bpm/config.toml)." env:"BPM_CONFIG"`
	Verbose bool   `help:"Enable verbose (debug) logging." short:"v"`
	Arch    string `help:"Architecture filter for catalog operations (exact, comma list, or * for all)." default:"*" env:"BPM_ARCH"`
}
