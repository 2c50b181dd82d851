// Package container manages the disposable PostgreSQL container used for
// live type resolution.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/electwix/pg-catalyst/internal/config"
)

// Runner executes a container runtime command and reports whether it
// exited successfully. Swapped out in tests.
type Runner func(ctx context.Context, name string, args ...string) (bool, error)

func execRunner(ctx context.Context, name string, args ...string) (bool, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Manager drives the container runtime for one configured container.
type Manager struct {
	cfg    config.Container
	logger *slog.Logger
	run    Runner
	sleep  func(time.Duration)
}

func NewManager(cfg config.Container, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger,
		run:    execRunner,
		sleep:  time.Sleep,
	}
}

func (m *Manager) runtime() string {
	if m.cfg.Podman {
		return "podman"
	}
	return "docker"
}

// Setup starts the container and waits until PostgreSQL accepts
// connections.
func (m *Manager) Setup(ctx context.Context) error {
	if err := m.spawn(ctx); err != nil {
		return err
	}
	return m.healthcheck(ctx)
}

// Cleanup stops and removes the container together with its volumes.
func (m *Manager) Cleanup(ctx context.Context) error {
	runtime := m.runtime()
	ok, err := m.run(ctx, runtime, "stop", m.cfg.Name)
	if err != nil || !ok {
		return &StopError{Runtime: runtime, Err: err}
	}
	ok, err = m.run(ctx, runtime, "rm", "-v", m.cfg.Name)
	if err != nil || !ok {
		return &RemoveError{Runtime: runtime, Err: err}
	}
	return nil
}

func (m *Manager) spawn(ctx context.Context) error {
	runtime := m.runtime()
	ok, err := m.run(ctx, runtime, "run", "-d",
		"--name", m.cfg.Name,
		"-p", fmt.Sprintf("%d:5432", m.cfg.Port),
		"-e", "POSTGRES_PASSWORD="+m.cfg.Password,
		m.cfg.Image,
	)
	if err != nil || !ok {
		return &StartError{Runtime: runtime, Err: err}
	}
	return nil
}

func (m *Manager) healthcheck(ctx context.Context) error {
	interval := time.Duration(m.cfg.RetryInterval) * time.Millisecond
	for retries := 0; ; retries++ {
		healthy, err := m.probe(ctx)
		if err != nil {
			return err
		}
		if healthy {
			return nil
		}
		if retries >= m.cfg.MaxRetries {
			return ErrMaxRetries
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		m.sleep(interval)
		if n := retries + 1; n%10 == 0 {
			m.logger.Info("container startup slower than expected",
				slog.Int("retries", n),
				slog.Int("max_retries", m.cfg.MaxRetries))
		}
	}
}

func (m *Manager) probe(ctx context.Context) (bool, error) {
	runtime := m.runtime()
	ok, err := m.run(ctx, runtime, "exec", m.cfg.Name, "pg_isready")
	if err != nil {
		return false, &HealthCheckError{Runtime: runtime, Err: err}
	}
	return ok, nil
}
