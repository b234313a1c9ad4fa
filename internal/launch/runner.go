package launch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// ErrStart is returned when a process could not be spawned at all, e.g. the
// executable is missing or not executable. A process that ran and exited
// non-zero is not an error.
var ErrStart = errors.New("failed to start process")

// Command is a fully structured process invocation. No shell is involved.
type Command struct {
	Path string
	Args []string
	Env  []string

	// Stdout and Stderr receive the process output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// Runner abstracts process execution so the driver can be tested without
// spawning real processes.
type Runner interface {
	// Run blocks until the process exits and returns its exit code.
	// The error is non-nil only when the process could not be run.
	Run(ctx context.Context, cmd Command) (int, error)
}

// ExecRunner runs commands on the local host with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, c Command) (int, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = c.Env
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("%w: %s: %w", ErrStart, c.Path, err)
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes os/exec makes
// when stdout and stderr are separate writers sharing one sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
