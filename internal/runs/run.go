package runs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Layout names the fixed files the instrumented tool writes inside a run.
type Layout struct {
	// MetadataFile is the structured document written per connection.
	MetadataFile string
	// CaptureFile is the packet capture written per connection.
	CaptureFile string
	// LogFile is the single log written at the run root.
	LogFile string
}

// Run addresses one run directory and the artifacts inside it.
//
// Path methods are pure string composition and never touch the filesystem.
type Run struct {
	Dir    string
	Layout Layout
}

// NewRun returns a Run for dir using layout.
func NewRun(dir string, layout Layout) Run {
	return Run{Dir: dir, Layout: layout}
}

// Name returns the base name of the run directory.
func (r Run) Name() string {
	return filepath.Base(r.Dir)
}

// ConnectionDir returns the directory of connection id, with a trailing separator.
func (r Run) ConnectionDir(id int) string {
	return r.Dir + string(filepath.Separator) + strconv.Itoa(id) + string(filepath.Separator)
}

// MetadataPath returns the metadata document path for connection id.
func (r Run) MetadataPath(id int) string {
	return r.ConnectionDir(id) + r.Layout.MetadataFile
}

// CapturePath returns the capture file path for connection id.
func (r Run) CapturePath(id int) string {
	return r.ConnectionDir(id) + r.Layout.CaptureFile
}

// LogPath returns the path of the run log.
func (r Run) LogPath() string {
	return r.Dir + string(filepath.Separator) + r.Layout.LogFile
}

// Connections lists the connection ids present in the run, sorted numerically.
// Entries that are not directories or not non-negative integers are ignored.
func (r Run) Connections() ([]int, error) {
	entries, err := os.ReadDir(r.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list connections: %w: %s", ErrNoRun, r.Dir)
	}
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	ids := make([]int, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, err := strconv.Atoi(e.Name())
		if err != nil || id < 0 || strconv.Itoa(id) != e.Name() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}
