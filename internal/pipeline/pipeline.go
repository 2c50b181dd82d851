// Package pipeline orchestrates the whole generation run: configuration,
// loading, parsing, validation, live type resolution, and code output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/electwix/pg-catalyst/internal/codegen"
	"github.com/electwix/pg-catalyst/internal/config"
	"github.com/electwix/pg-catalyst/internal/container"
	"github.com/electwix/pg-catalyst/internal/fileset"
	"github.com/electwix/pg-catalyst/internal/query/parser"
	"github.com/electwix/pg-catalyst/internal/query/validate"
	"github.com/electwix/pg-catalyst/internal/typeres"
)

// Writer writes generated files to persistent storage.
type Writer interface {
	WriteFile(path string, data []byte) error
}

// CloseFunc releases a database handle opened by Connect.
type CloseFunc func(context.Context) error

// ContainerManager is the container lifecycle surface the pipeline needs.
type ContainerManager interface {
	Setup(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

// Environment captures the external dependencies of a run. Zero fields
// fall back to the real implementations.
type Environment struct {
	Logger     *slog.Logger
	NewLoader  func(base string) (fileset.Loader, error)
	Writer     Writer
	Connect    func(ctx context.Context, url string) (typeres.Describer, CloseFunc, error)
	Containers func(cfg config.Container, logger *slog.Logger) ContainerManager
}

func (env *Environment) fill() {
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	if env.NewLoader == nil {
		env.NewLoader = fileset.NewOSLoader
	}
	if env.Writer == nil {
		env.Writer = NewOSWriter()
	}
	if env.Connect == nil {
		env.Connect = func(ctx context.Context, url string) (typeres.Describer, CloseFunc, error) {
			d, err := typeres.Connect(ctx, url)
			if err != nil {
				return nil, nil, err
			}
			return d, d.Close, nil
		}
	}
	if env.Containers == nil {
		env.Containers = func(cfg config.Container, logger *slog.Logger) ContainerManager {
			return container.NewManager(cfg, logger)
		}
	}
}

// Pipeline runs generation with a fixed environment.
type Pipeline struct {
	Env Environment
}

// RunOptions configures one execution.
type RunOptions struct {
	ConfigPath  string
	OutOverride string
	LiveURL     string
	DryRun      bool
	Podman      bool
}

// Summary reports what a run produced. Files are populated on dry runs
// too, with paths relative to the output directory.
type Summary struct {
	OutDir  string
	Files   []codegen.File
	Modules int
	Queries int
}

// WriteError wraps failures encountered while writing generated files.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Run executes the pipeline according to the provided options.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	env := p.Env
	env.fill()

	plan, err := config.Load(opts.ConfigPath)
	if err != nil {
		return Summary{}, err
	}
	if opts.OutOverride != "" {
		plan.Out = opts.OutOverride
		if !filepath.IsAbs(plan.Out) {
			plan.Out = filepath.Join(plan.BaseDir, plan.Out)
		}
	}
	if opts.Podman {
		plan.Container.Podman = true
	}

	validated, err := loadModules(env, plan)
	if err != nil {
		return Summary{}, err
	}

	resolved, err := resolveModules(ctx, env, plan, opts.LiveURL, validated)
	if err != nil {
		return Summary{}, err
	}

	files, err := codegen.Generate(plan.Package, resolved)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{OutDir: plan.Out, Files: files, Modules: len(resolved)}
	for _, m := range resolved {
		summary.Queries += len(m.Queries)
	}

	if opts.DryRun {
		env.Logger.Info("dry run, skipping writes",
			slog.Int("files", len(files)))
		return summary, nil
	}

	for _, file := range files {
		target := filepath.Join(plan.Out, file.Path)
		if err := env.Writer.WriteFile(target, file.Content); err != nil {
			return summary, &WriteError{Path: target, Err: err}
		}
		env.Logger.Debug("wrote file", slog.String("path", target))
	}
	return summary, nil
}

// Up starts the managed database container and leaves it running.
func (p *Pipeline) Up(ctx context.Context, opts RunOptions) error {
	env := p.Env
	env.fill()

	plan, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Podman {
		plan.Container.Podman = true
	}
	return env.Containers(plan.Container, env.Logger).Setup(ctx)
}

// Down stops and removes the managed database container.
func (p *Pipeline) Down(ctx context.Context, opts RunOptions) error {
	env := p.Env
	env.fill()

	plan, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Podman {
		plan.Container.Podman = true
	}
	return env.Containers(plan.Container, env.Logger).Cleanup(ctx)
}

// loadModules reads, parses, and validates every configured query module.
func loadModules(env Environment, plan config.Plan) ([]*validate.ValidatedModule, error) {
	loader, err := env.NewLoader(plan.BaseDir)
	if err != nil {
		return nil, err
	}
	sources, err := loader.Load(plan.Queries)
	if err != nil {
		return nil, err
	}

	modules := make([]*validate.ValidatedModule, 0, len(sources))
	for _, src := range sources {
		module, err := parser.Parse(src.Path, src.Content)
		if err != nil {
			return nil, err
		}
		validated, verr := validate.Module(module.Info, module)
		if verr != nil {
			return nil, verr
		}
		env.Logger.Debug("validated module",
			slog.String("path", src.Path),
			slog.Int("queries", len(validated.Queries)))
		modules = append(modules, validated)
	}
	return modules, nil
}

// resolveModules prepares every query against a database: the configured
// live one when a URL is known, otherwise a disposable container that is
// cleaned up before returning.
func resolveModules(ctx context.Context, env Environment, plan config.Plan, liveURL string, modules []*validate.ValidatedModule) ([]*typeres.Module, error) {
	url := liveURL
	if url == "" {
		url = plan.DatabaseURL
	}

	var manager ContainerManager
	if url == "" {
		manager = env.Containers(plan.Container, env.Logger)
		if err := manager.Setup(ctx); err != nil {
			return nil, err
		}
		url = plan.ManagedURL()
	}

	resolved, err := resolveAgainst(ctx, env, url, modules)

	if manager != nil {
		if cerr := manager.Cleanup(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return resolved, err
}

func resolveAgainst(ctx context.Context, env Environment, url string, modules []*validate.ValidatedModule) ([]*typeres.Module, error) {
	db, closeDB, err := env.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = closeDB(ctx)
	}()

	resolved := make([]*typeres.Module, 0, len(modules))
	for _, module := range modules {
		m, err := typeres.Resolve(ctx, db, module)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, m)
	}
	return resolved, nil
}

// NewOSWriter returns a Writer that performs atomic writes on the local
// filesystem.
func NewOSWriter() Writer {
	return &osWriter{perm: 0o644}
}

type osWriter struct {
	perm fs.FileMode
}

func (w *osWriter) WriteFile(path string, data []byte) error {
	if path == "" {
		return errors.New("pipeline: empty path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".pg-catalyst-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
		_ = tmp.Close()
	}()
	if w.perm != 0 {
		if err := tmp.Chmod(w.perm); err != nil {
			return fmt.Errorf("chmod temp file: %w", err)
		}
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}
