package container

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/electwix/pg-catalyst/internal/config"
)

func testConfig() config.Container {
	return config.Container{
		Image:         "postgres",
		Name:          "pg_catalyst_postgres",
		Port:          5455,
		Password:      "postgres",
		MaxRetries:    3,
		RetryInterval: 1,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	Name string
	Args []string
}

// fakeRunner records invocations and replays scripted results.
type fakeRunner struct {
	calls   []call
	results []struct {
		ok  bool
		err error
	}
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) (bool, error) {
	f.calls = append(f.calls, call{Name: name, Args: args})
	if len(f.results) == 0 {
		return true, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res.ok, res.err
}

func (f *fakeRunner) script(results ...struct {
	ok  bool
	err error
}) {
	f.results = results
}

func r(ok bool, err error) struct {
	ok  bool
	err error
} {
	return struct {
		ok  bool
		err error
	}{ok, err}
}

func newTestManager(runner *fakeRunner) *Manager {
	m := NewManager(testConfig(), discardLogger())
	m.run = runner.run
	m.sleep = func(time.Duration) {}
	return m
}

func TestSetup(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner)

	if err := m.Setup(context.Background()); err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}

	want := []call{
		{Name: "docker", Args: []string{
			"run", "-d",
			"--name", "pg_catalyst_postgres",
			"-p", "5455:5432",
			"-e", "POSTGRES_PASSWORD=postgres",
			"postgres",
		}},
		{Name: "docker", Args: []string{"exec", "pg_catalyst_postgres", "pg_isready"}},
	}
	if diff := cmp.Diff(want, runner.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSetupPodman(t *testing.T) {
	runner := &fakeRunner{}
	cfg := testConfig()
	cfg.Podman = true
	m := NewManager(cfg, discardLogger())
	m.run = runner.run
	m.sleep = func(time.Duration) {}

	if err := m.Setup(context.Background()); err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	for _, c := range runner.calls {
		if c.Name != "podman" {
			t.Fatalf("call used %q, want podman", c.Name)
		}
	}
}

func TestSetupRetriesUntilHealthy(t *testing.T) {
	runner := &fakeRunner{}
	runner.script(
		r(true, nil),  // run
		r(false, nil), // pg_isready not ready
		r(false, nil),
		r(true, nil), // ready
	)
	m := newTestManager(runner)

	if err := m.Setup(context.Background()); err != nil {
		t.Fatalf("Setup returned error: %v", err)
	}
	if got := len(runner.calls); got != 4 {
		t.Fatalf("len(calls) = %d, want 4", got)
	}
}

func TestSetupMaxRetries(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner)
	m.run = func(_ context.Context, name string, args ...string) (bool, error) {
		if args[0] == "run" {
			return true, nil
		}
		return false, nil
	}

	err := m.Setup(context.Background())
	if !errors.Is(err, ErrMaxRetries) {
		t.Fatalf("err = %v, want ErrMaxRetries", err)
	}
}

func TestSetupStartFailure(t *testing.T) {
	runner := &fakeRunner{}
	runner.script(r(false, nil))
	m := newTestManager(runner)

	err := m.Setup(context.Background())
	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("err = %v, want StartError", err)
	}
	if !strings.Contains(err.Error(), "docker daemon") {
		t.Fatalf("error = %q, want daemon hint", err.Error())
	}
}

func TestSetupHealthCheckFailure(t *testing.T) {
	probeErr := errors.New("exec: docker not found")
	runner := &fakeRunner{}
	runner.script(r(true, nil), r(false, probeErr))
	m := newTestManager(runner)

	err := m.Setup(context.Background())
	var hcErr *HealthCheckError
	if !errors.As(err, &hcErr) {
		t.Fatalf("err = %v, want HealthCheckError", err)
	}
	if !errors.Is(err, probeErr) {
		t.Fatalf("err = %v, want wrapped probe error", err)
	}
}

func TestCleanup(t *testing.T) {
	runner := &fakeRunner{}
	m := newTestManager(runner)

	if err := m.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup returned error: %v", err)
	}

	want := []call{
		{Name: "docker", Args: []string{"stop", "pg_catalyst_postgres"}},
		{Name: "docker", Args: []string{"rm", "-v", "pg_catalyst_postgres"}},
	}
	if diff := cmp.Diff(want, runner.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanupErrors(t *testing.T) {
	runner := &fakeRunner{}
	runner.script(r(false, nil))
	m := newTestManager(runner)

	err := m.Cleanup(context.Background())
	var stopErr *StopError
	if !errors.As(err, &stopErr) {
		t.Fatalf("err = %v, want StopError", err)
	}

	runner = &fakeRunner{}
	runner.script(r(true, nil), r(false, nil))
	m = newTestManager(runner)

	err = m.Cleanup(context.Background())
	var rmErr *RemoveError
	if !errors.As(err, &rmErr) {
		t.Fatalf("err = %v, want RemoveError", err)
	}
}
