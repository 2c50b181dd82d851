package fileset

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestLoaderLoadSuccess(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"queries/todos.sql":  &fstest.MapFile{Data: []byte("--! a\nSELECT 1;\n")},
		"queries/users.sql":  &fstest.MapFile{Data: []byte("--! b\nSELECT 2;\n")},
		"extra/archive.sql":  &fstest.MapFile{Data: []byte("--! c\nSELECT 3;\n")},
		"queries/readme.txt": &fstest.MapFile{Data: []byte("not sql")},
	}

	loader := NewLoader(fsys)
	sources, err := loader.Load([]string{"queries/*.sql", "extra/*.sql", "queries/todos.sql"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	want := []string{"extra/archive.sql", "queries/todos.sql", "queries/users.sql"}
	if len(sources) != len(want) {
		t.Fatalf("expected %d sources, got %d", len(want), len(sources))
	}
	for i, src := range sources {
		if src.Path != want[i] {
			t.Errorf("source %d path = %q, want %q", i, src.Path, want[i])
		}
		if len(src.Content) == 0 {
			t.Errorf("source %q has empty content", src.Path)
		}
	}
}

func TestLoaderLoadNoMatches(t *testing.T) {
	t.Parallel()

	loader := NewLoader(fstest.MapFS{
		"queries/todos.sql": &fstest.MapFile{Data: []byte("x")},
	})

	_, err := loader.Load([]string{"schemas/*.sql", "queries/nope.sql"})
	var noMatch NoMatchError
	if !errors.As(err, &noMatch) {
		t.Fatalf("expected NoMatchError, got %T: %v", err, err)
	}
	if len(noMatch.Patterns) != 2 {
		t.Fatalf("unexpected missing patterns: %v", noMatch.Patterns)
	}
}

func TestLoaderLoadInvalidPattern(t *testing.T) {
	t.Parallel()

	loader := NewLoader(fstest.MapFS{})
	_, err := loader.Load([]string{"["})
	var patternErr PatternError
	if !errors.As(err, &patternErr) {
		t.Fatalf("expected PatternError, got %T: %v", err, err)
	}
	if patternErr.Pattern != "[" {
		t.Fatalf("unexpected pattern on error: %q", patternErr.Pattern)
	}
}

func TestLoaderLoadNoPatterns(t *testing.T) {
	t.Parallel()

	loader := NewLoader(fstest.MapFS{})
	if _, err := loader.Load(nil); !errors.Is(err, ErrNoPatterns) {
		t.Fatalf("expected ErrNoPatterns, got %v", err)
	}
}
