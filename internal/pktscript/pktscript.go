// Package pktscript runs packet-level scripts through the instrumented tool.
//
// Each script is written to a uniquely named scratch file, handed to the
// packet script interpreter as the wrapped command, and removed afterwards on
// every exit path: interpreter success, interpreter failure, or a failed
// launch. A failed removal is reported as a *CleanupError alongside, never
// instead of, the launch result.
package pktscript

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/roach88/snitchkit/internal/launch"
)

// ScratchPattern is the os.CreateTemp pattern for scratch script files.
const ScratchPattern = "pkt-*.pkt"

// CleanupError reports a scratch file that could not be removed.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("remove scratch script %s: %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// Launcher is the subset of the launch driver the runner needs.
type Launcher interface {
	Launch(ctx context.Context, spec launch.Spec) (*launch.Outcome, error)
}

// Runner executes packet scripts.
type Runner struct {
	launcher    Launcher
	interpreter string
	scratchDir  string
	remove      func(string) error
}

// NewRunner returns a Runner that launches interpreter through l and keeps
// scratch files in scratchDir (os.TempDir() when empty).
func NewRunner(l Launcher, interpreter, scratchDir string) *Runner {
	return &Runner{
		launcher:    l,
		interpreter: interpreter,
		scratchDir:  scratchDir,
		remove:      os.Remove,
	}
}

// FromDriver builds a Runner from the driver's configuration.
func FromDriver(d *launch.Driver) *Runner {
	cfg := d.Config()
	return NewRunner(d, cfg.Interpreter, cfg.ScratchDir)
}

// Run writes script to a scratch file and runs the interpreter on it under
// the instrumented tool. The returned outcome reflects the interpreter's exit
// status. The scratch file is gone when Run returns.
func (r *Runner) Run(ctx context.Context, script string) (out *launch.Outcome, err error) {
	path, err := r.writeScratch(script)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := r.cleanup(path); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	out, err = r.launcher.Launch(ctx, launch.Spec{
		Command:    []string{r.interpreter, path},
		Instrument: true,
	})
	if err != nil {
		return nil, fmt.Errorf("run packet script: %w", err)
	}
	return out, nil
}

// RunFile reads the script at path and runs it with Run.
func (r *Runner) RunFile(ctx context.Context, path string) (*launch.Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read packet script: %w", err)
	}
	return r.Run(ctx, string(data))
}

// writeScratch creates, fills and closes a scratch file. On failure the file
// is removed before returning.
func (r *Runner) writeScratch(script string) (string, error) {
	f, err := os.CreateTemp(r.scratchDir, ScratchPattern)
	if err != nil {
		return "", fmt.Errorf("create scratch script: %w", err)
	}
	path := f.Name()

	_, werr := f.WriteString(script)
	cerr := f.Close()
	if werr == nil && cerr == nil {
		return path, nil
	}

	err = fmt.Errorf("write scratch script: %w", errors.Join(werr, cerr))
	if rmErr := r.cleanup(path); rmErr != nil {
		err = errors.Join(err, rmErr)
	}
	return "", err
}

func (r *Runner) cleanup(path string) error {
	err := r.remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return &CleanupError{Path: path, Err: err}
}
