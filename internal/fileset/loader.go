// Package fileset resolves query module glob patterns and loads their
// sources for parsing.
package fileset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Source is one discovered query module: its display path and raw bytes.
type Source struct {
	Path    string
	Content []byte
}

// Loader expands glob patterns against an fs.FS and reads every match,
// rewriting the discovered paths with a join function for deterministic,
// de-duplicated results.
type Loader struct {
	fsys fs.FS
	join func(name string) string
}

// ErrNoPatterns indicates that Load was invoked without any glob patterns.
var ErrNoPatterns = errors.New("fileset: no patterns provided")

// PatternError wraps syntax issues reported while evaluating a glob pattern.
type PatternError struct {
	Pattern string
	Err     error
}

// Error implements the error interface.
func (e PatternError) Error() string {
	return fmt.Sprintf("invalid glob pattern %q: %v", e.Pattern, e.Err)
}

// Unwrap returns the underlying error.
func (e PatternError) Unwrap() error { return e.Err }

// NoMatchError describes which patterns failed to yield any results.
type NoMatchError struct {
	Patterns []string
}

// Error implements the error interface.
func (e NoMatchError) Error() string {
	return "patterns matched no files: " + strings.Join(e.Patterns, ", ")
}

// NewLoader constructs a Loader against the provided filesystem without
// any path rewriting, preserving the original match names. Useful for
// tests.
func NewLoader(fsys fs.FS) Loader {
	return Loader{
		fsys: fsys,
		join: func(name string) string { return name },
	}
}

// NewOSLoader constructs a Loader rooted at base that reports absolute OS
// paths for each match.
func NewOSLoader(base string) (Loader, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return Loader{}, fmt.Errorf("resolve base %q: %w", base, err)
	}

	info, err := os.Stat(absBase)
	if err != nil {
		return Loader{}, fmt.Errorf("stat base %q: %w", absBase, err)
	}
	if !info.IsDir() {
		return Loader{}, fmt.Errorf("base %q is not a directory", absBase)
	}

	return Loader{
		fsys: os.DirFS(absBase),
		join: func(name string) string {
			return filepath.Join(absBase, filepath.FromSlash(name))
		},
	}, nil
}

// Load evaluates each glob pattern, reads every match, and returns the
// sources sorted by display path with duplicates removed.
func (l Loader) Load(patterns []string) ([]Source, error) {
	if l.fsys == nil {
		return nil, errors.New("fileset: loader has no filesystem")
	}
	if len(patterns) == 0 {
		return nil, ErrNoPatterns
	}

	matched := make([]string, 0)
	missing := make([]string, 0)
	for _, pattern := range patterns {
		matches, err := fs.Glob(l.fsys, filepath.ToSlash(pattern))
		if err != nil {
			return nil, PatternError{Pattern: pattern, Err: err}
		}
		if len(matches) == 0 {
			missing = append(missing, pattern)
			continue
		}
		matched = append(matched, matches...)
	}
	if len(missing) > 0 {
		return nil, NoMatchError{Patterns: missing}
	}

	slices.Sort(matched)
	matched = slices.Compact(matched)

	sources := make([]Source, 0, len(matched))
	for _, name := range matched {
		content, err := fs.ReadFile(l.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		sources = append(sources, Source{Path: l.join(name), Content: content})
	}
	return sources, nil
}
