// Package main implements the pg-catalyst CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/electwix/pg-catalyst/internal/cli"
	"github.com/electwix/pg-catalyst/internal/logging"
	"github.com/electwix/pg-catalyst/internal/pipeline"
)

func main() {
	code := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := cli.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			_, _ = fmt.Fprintln(stdout, err.Error())
			return 0
		}
		_, _ = fmt.Fprintln(stderr, err.Error())
		return 1
	}

	logger := logging.New(logging.Options{
		Verbose: opts.Verbose,
		Writer:  stderr,
	})

	pipe := pipeline.Pipeline{Env: pipeline.Environment{Logger: logger}}
	runOpts := pipeline.RunOptions{
		ConfigPath:  opts.ConfigPath,
		OutOverride: opts.Out,
		LiveURL:     opts.LiveURL,
		DryRun:      opts.DryRun,
		Podman:      opts.Podman,
	}

	switch opts.Command {
	case cli.CommandUp:
		if err := pipe.Up(ctx, runOpts); err != nil {
			_, _ = fmt.Fprintln(stderr, err.Error())
			return 1
		}
		return 0
	case cli.CommandDown:
		if err := pipe.Down(ctx, runOpts); err != nil {
			_, _ = fmt.Fprintln(stderr, err.Error())
			return 1
		}
		return 0
	}

	summary, runErr := pipe.Run(ctx, runOpts)
	if runErr != nil {
		_, _ = fmt.Fprintln(stderr, runErr.Error())
		var writeErr *pipeline.WriteError
		if errors.As(runErr, &writeErr) {
			return 2
		}
		return 1
	}

	if opts.DryRun {
		for _, file := range summary.Files {
			_, _ = fmt.Fprintln(stdout, file.Path)
		}
		return 0
	}

	logger.Info("generation complete",
		"modules", summary.Modules,
		"queries", summary.Queries,
		"files", len(summary.Files))
	return 0
}
