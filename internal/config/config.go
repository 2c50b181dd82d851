// Package config loads and validates the pg-catalyst configuration.
package config

import (
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// DatabaseConfig selects the connection used for live type resolution.
// An empty URL means a disposable managed container is used instead.
type DatabaseConfig struct {
	URL string `toml:"url"`
}

// ContainerConfig tunes the disposable database container.
type ContainerConfig struct {
	Runtime         string `toml:"runtime"`
	Image           string `toml:"image"`
	Name            string `toml:"name"`
	Port            int    `toml:"port"`
	Password        string `toml:"password"`
	MaxRetries      int    `toml:"max_retries"`
	RetryIntervalMs int    `toml:"retry_interval_ms"`
}

// Config mirrors the expected pg-catalyst TOML schema.
type Config struct {
	Package   string          `toml:"package"`
	Out       string          `toml:"out"`
	Queries   []string        `toml:"queries"`
	Database  DatabaseConfig  `toml:"database"`
	Container ContainerConfig `toml:"container"`
}

// Container is the normalized container configuration forwarded to the
// lifecycle manager.
type Container struct {
	Podman        bool
	Image         string
	Name          string
	Port          int
	Password      string
	MaxRetries    int
	RetryInterval int // milliseconds
}

// Plan is the fully-resolved configuration used by downstream stages.
// Query patterns stay relative; they are resolved against BaseDir.
type Plan struct {
	Package     string
	Out         string
	Queries     []string
	BaseDir     string
	DatabaseURL string
	Container   Container
}

const (
	defaultImage         = "postgres"
	defaultName          = "pg_catalyst_postgres"
	defaultPort          = 5432
	defaultPassword      = "postgres"
	defaultMaxRetries    = 120
	defaultRetryInterval = 1000
)

// Load reads, validates, and resolves a configuration file. Files ending
// in .yaml or .yml are treated as sqlc project configurations and mapped
// onto the native schema first.
func Load(path string) (Plan, error) {
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		imported, err := ImportSQLC(path)
		if err != nil {
			return Plan{}, err
		}
		cfg = imported
	default:
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return Plan{}, fmt.Errorf("read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Plan{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	return resolve(path, cfg)
}

func resolve(path string, cfg Config) (Plan, error) {
	if cfg.Package == "" {
		return Plan{}, fmt.Errorf("%s: missing package name", path)
	}
	if !token.IsIdentifier(cfg.Package) {
		return Plan{}, fmt.Errorf("%s: package %q is not a valid Go identifier", path, cfg.Package)
	}
	if cfg.Out == "" {
		return Plan{}, fmt.Errorf("%s: missing output directory", path)
	}
	if len(cfg.Queries) == 0 {
		return Plan{}, fmt.Errorf("%s: no query patterns configured", path)
	}

	container, err := resolveContainer(path, cfg.Container)
	if err != nil {
		return Plan{}, err
	}

	baseDir := filepath.Dir(path)
	out := cfg.Out
	if !filepath.IsAbs(out) {
		out = filepath.Join(baseDir, out)
	}

	return Plan{
		Package:     cfg.Package,
		Out:         out,
		Queries:     append([]string(nil), cfg.Queries...),
		BaseDir:     baseDir,
		DatabaseURL: cfg.Database.URL,
		Container:   container,
	}, nil
}

func resolveContainer(path string, cfg ContainerConfig) (Container, error) {
	podman := false
	switch cfg.Runtime {
	case "", "docker":
	case "podman":
		podman = true
	default:
		return Container{}, fmt.Errorf("%s: unknown container runtime %q (expected docker or podman)", path, cfg.Runtime)
	}

	container := Container{
		Podman:        podman,
		Image:         cfg.Image,
		Name:          cfg.Name,
		Port:          cfg.Port,
		Password:      cfg.Password,
		MaxRetries:    cfg.MaxRetries,
		RetryInterval: cfg.RetryIntervalMs,
	}
	if container.Image == "" {
		container.Image = defaultImage
	}
	if container.Name == "" {
		container.Name = defaultName
	}
	if container.Port == 0 {
		container.Port = defaultPort
	}
	if container.Port < 1 || container.Port > 65535 {
		return Container{}, fmt.Errorf("%s: container port %d out of range", path, container.Port)
	}
	if container.Password == "" {
		container.Password = defaultPassword
	}
	if container.MaxRetries == 0 {
		container.MaxRetries = defaultMaxRetries
	}
	if container.MaxRetries < 0 {
		return Container{}, fmt.Errorf("%s: container max_retries must be positive", path)
	}
	if container.RetryInterval == 0 {
		container.RetryInterval = defaultRetryInterval
	}
	if container.RetryInterval < 0 {
		return Container{}, fmt.Errorf("%s: container retry_interval_ms must be positive", path)
	}
	return container, nil
}

// ManagedURL is the connection string for the managed container described
// by the plan.
func (p Plan) ManagedURL() string {
	return fmt.Sprintf("postgres://postgres:%s@127.0.0.1:%d/postgres", p.Container.Password, p.Container.Port)
}
