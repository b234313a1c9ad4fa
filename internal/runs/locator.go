// Package runs locates the run directories written by the instrumented tool and
// resolves the artifact paths inside them.
//
// # Layout
//
// The tool writes one directory per run under a root:
//
//	root/
//	  <run-name>/          name matches the configured glob, e.g. "curl_12345"
//	    <log file>
//	    0/
//	      <metadata file>
//	      <capture file>
//	    1/
//	      ...
//
// # Selecting the current run
//
// Locator.Current returns the lexicographically last matching directory. This
// is only meaningful if the root was reset immediately before the single launch
// being inspected. Snapshot and Since avoid that precondition by diffing the
// root around a launch; the launch package uses them to hand back an explicit
// run. Concurrent runs under one root are not supported by either approach.
//
// A symlink under the root counts as a run when its name matches and it
// resolves to a directory.
package runs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

var (
	// ErrNoRun is returned when no run directory matches under the root.
	ErrNoRun = errors.New("no run directory found")

	// ErrBadPattern is returned for a run pattern that is not a valid glob.
	ErrBadPattern = errors.New("invalid run pattern")
)

// Locator finds run directories under a root by glob pattern.
type Locator struct {
	pattern string
	layout  Layout
}

// NewLocator validates pattern and returns a Locator.
func NewLocator(pattern string, layout Layout) (*Locator, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadPattern)
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrBadPattern, pattern, err)
	}
	return &Locator{pattern: pattern, layout: layout}, nil
}

// Pattern returns the glob used to recognise run directories.
func (l *Locator) Pattern() string {
	return l.pattern
}

// Layout returns the artifact layout given to runs found by this locator.
func (l *Locator) Layout() Layout {
	return l.layout
}

// List returns the names of run directories under root, sorted lexicographically.
// Symlinks to directories are included. A missing root yields an empty list.
func (l *Locator) List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list runs in %s: %w", root, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		// Pattern was validated in NewLocator.
		if ok, _ := filepath.Match(l.pattern, e.Name()); !ok {
			continue
		}
		if e.IsDir() || isDirLink(root, e) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// isDirLink reports whether e is a symlink resolving to a directory.
// Dangling links are skipped.
func isDirLink(root string, e fs.DirEntry) bool {
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(root, e.Name()))
	return err == nil && info.IsDir()
}

// Current returns the most recent run under root, or ErrNoRun.
func (l *Locator) Current(root string) (Run, error) {
	names, err := l.List(root)
	if err != nil {
		return Run{}, err
	}
	if len(names) == 0 {
		return Run{}, fmt.Errorf("%w under %s (pattern %q)", ErrNoRun, root, l.pattern)
	}
	return l.Open(root, names[len(names)-1]), nil
}

// Open returns the Run for name under root without checking it exists.
func (l *Locator) Open(root, name string) Run {
	return NewRun(filepath.Join(root, name), l.layout)
}

// Snapshot records the run directories present under root.
type Snapshot map[string]struct{}

// Snapshot captures the current set of runs under root.
func (l *Locator) Snapshot(root string) (Snapshot, error) {
	names, err := l.List(root)
	if err != nil {
		return nil, err
	}
	snap := make(Snapshot, len(names))
	for _, n := range names {
		snap[n] = struct{}{}
	}
	return snap, nil
}

// Since returns the runs under root that are not in before, sorted by name.
func (l *Locator) Since(root string, before Snapshot) ([]Run, error) {
	names, err := l.List(root)
	if err != nil {
		return nil, err
	}
	var out []Run
	for _, n := range names {
		if _, seen := before[n]; seen {
			continue
		}
		out = append(out, l.Open(root, n))
	}
	return out, nil
}
