// Package logscan inspects a run log for error-marked lines.
//
// A missing log is reported as ErrLogNotFound rather than "no errors": a run
// that never wrote its log is not a clean run.
package logscan

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

// ErrLogNotFound is returned when the log file does not exist.
// It also matches fs.ErrNotExist.
var ErrLogNotFound = fmt.Errorf("log not found: %w", fs.ErrNotExist)

// Inspector scans logs for a fixed marker token.
type Inspector struct {
	Marker string
}

// New returns an Inspector for marker.
func New(marker string) *Inspector {
	return &Inspector{Marker: marker}
}

// HasErrors reports whether any line of the log at path contains the marker.
func (in *Inspector) HasErrors(path string) (bool, error) {
	found := false
	err := in.scan(path, func(string) bool {
		found = true
		return false
	})
	return found, err
}

// ErrorLines returns every line of the log at path containing the marker.
func (in *Inspector) ErrorLines(path string) ([]string, error) {
	var lines []string
	err := in.scan(path, func(line string) bool {
		lines = append(lines, line)
		return true
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// scan calls match for each marked line until it returns false.
func (in *Inspector) scan(path string, match func(string) bool) error {
	if in.Marker == "" {
		return errors.New("empty error marker")
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrLogNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	// Lines are unbounded: a long unmarked line must not hide later marked ones.
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" && strings.Contains(line, in.Marker) && !match(strings.TrimRight(line, "\r\n")) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read log %s: %w", path, err)
		}
	}
}
