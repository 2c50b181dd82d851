package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// Command selects which top-level action to run.
type Command int

const (
	CommandGenerate Command = iota
	CommandUp
	CommandDown
)

type Options struct {
	Command    Command
	ConfigPath string
	Out        string
	LiveURL    string
	DryRun     bool
	Podman     bool
	Verbose    bool
}

func Parse(args []string) (Options, error) {
	const defaultConfig = "pg-catalyst.toml"

	opts := Options{
		ConfigPath: defaultConfig,
	}

	fs := flag.NewFlagSet("pg-catalyst", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "Path to configuration file (.toml, or a sqlc .yaml to import)")
	fs.StringVar(&opts.ConfigPath, "c", opts.ConfigPath, "Path to configuration file (.toml, or a sqlc .yaml to import)")
	fs.StringVar(&opts.Out, "out", "", "Override output directory; relative paths are resolved against the config directory")
	fs.StringVar(&opts.LiveURL, "live", "", "Resolve types against an existing database at this URL instead of a managed container")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Generate code without writing files")
	fs.BoolVar(&opts.Podman, "podman", false, "Manage the database container with podman instead of docker")
	fs.BoolVar(&opts.Verbose, "verbose", false, "Enable verbose logging")
	fs.BoolVar(&opts.Verbose, "v", false, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		usage := Usage(fs)
		if errors.Is(err, flag.ErrHelp) {
			return Options{}, fmt.Errorf("%w\n\n%s", err, usage)
		}
		return Options{}, fmt.Errorf("%w\n\n%s", err, usage)
	}

	rest := fs.Args()
	switch {
	case len(rest) == 0:
		opts.Command = CommandGenerate
	case len(rest) > 1:
		return Options{}, fmt.Errorf("unexpected arguments %q\n\n%s", rest[1:], Usage(fs))
	default:
		switch rest[0] {
		case "generate":
			opts.Command = CommandGenerate
		case "up":
			opts.Command = CommandUp
		case "down":
			opts.Command = CommandDown
		default:
			return Options{}, fmt.Errorf("unknown command %q\n\n%s", rest[0], Usage(fs))
		}
	}
	return opts, nil
}

func Usage(fs *flag.FlagSet) string {
	if fs == nil {
		return ""
	}
	var buf strings.Builder
	fmt.Fprintf(&buf, "Usage of %s:\n", fs.Name())
	fmt.Fprintf(&buf, "  %s [flags] [generate|up|down]\n\nFlags:\n", fs.Name())
	out := fs.Output()
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fs.SetOutput(out)
	return buf.String()
}
