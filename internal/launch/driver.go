// Package launch drives the instrumented tool.
//
// Launches are described by a structured Spec (options, command argv,
// environment overrides) and executed through a Runner; no shell strings are
// built. The run root is snapshotted around every launch so the Outcome names
// the run directories the launch produced.
//
// Launches are synchronous and unsupervised: the driver blocks until the
// process exits and enforces no timeout of its own.
package launch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/snitchkit/internal/config"
	"github.com/roach88/snitchkit/internal/dirs"
	"github.com/roach88/snitchkit/internal/runs"
)

var (
	// ErrBinaryNotFound is returned when no compiled test binary matches a name.
	ErrBinaryNotFound = errors.New("no matching test binary")

	// ErrAmbiguousBinary is returned when several binaries match a name and
	// none is a unique suffix match.
	ErrAmbiguousBinary = errors.New("ambiguous test binary")

	// ErrNoCommand is returned for a launch without a command.
	ErrNoCommand = errors.New("missing command")
)

// Spec describes one launch of the instrumented tool.
type Spec struct {
	// Options are passed to the tool after the destination flag.
	Options []string

	// Command is the wrapped command argv.
	Command []string

	// Env holds KEY=VALUE overrides applied on top of the process environment.
	Env []string

	// Instrument sets the injection variable to the instrumentation library.
	Instrument bool
}

// Outcome is the result of a launch.
type Outcome struct {
	ExitCode int

	// Runs are the run directories that appeared under the root during the
	// launch, sorted by name.
	Runs []runs.Run
}

// Success reports whether the process exited with status zero. This is a
// smoke-test signal only; see logscan for error-level log lines.
func (o *Outcome) Success() bool {
	return o.ExitCode == 0
}

// Latest returns the last run produced by the launch, or runs.ErrNoRun.
func (o *Outcome) Latest() (runs.Run, error) {
	if len(o.Runs) == 0 {
		return runs.Run{}, fmt.Errorf("%w by this launch", runs.ErrNoRun)
	}
	return o.Runs[len(o.Runs)-1], nil
}

// Capture is an Outcome plus the process output.
type Capture struct {
	Outcome

	Stdout string
	Stderr string

	// Combined interleaves stdout and stderr in write order.
	Combined string
}

// Driver launches the instrumented tool with the configured root and library.
type Driver struct {
	cfg     config.Config
	locator *runs.Locator
	runner  Runner
	logger  *slog.Logger
	environ func() []string
}

// Option configures a Driver.
type Option func(*Driver)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(d *Driver) { d.runner = r }
}

// WithLogger sets the logger used for launch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithEnviron replaces the base environment source (os.Environ by default).
func WithEnviron(fn func() []string) Option {
	return func(d *Driver) { d.environ = fn }
}

// New creates a Driver for cfg.
func New(cfg config.Config, opts ...Option) (*Driver, error) {
	loc, err := cfg.Locator()
	if err != nil {
		return nil, fmt.Errorf("create driver: %w", err)
	}
	d := &Driver{
		cfg:     cfg,
		locator: loc,
		runner:  ExecRunner{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		environ: os.Environ,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the driver configuration.
func (d *Driver) Config() config.Config {
	return d.cfg
}

// Locator returns the run locator used to attribute runs to launches.
func (d *Driver) Locator() *runs.Locator {
	return d.locator
}

// Launch runs the tool against spec.Command, discarding its output.
func (d *Driver) Launch(ctx context.Context, spec Spec) (*Outcome, error) {
	return d.launch(ctx, spec, nil, nil)
}

// LaunchCapturing runs the tool like Launch and returns its output.
func (d *Driver) LaunchCapturing(ctx context.Context, spec Spec) (*Capture, error) {
	var stdout, stderr, combined syncBuffer

	out, err := d.launch(ctx, spec,
		io.MultiWriter(&stdout, &combined),
		io.MultiWriter(&stderr, &combined),
	)
	if err != nil {
		return nil, err
	}
	return &Capture{
		Outcome:  *out,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Combined: combined.String(),
	}, nil
}

// RunTargetBinary resets the run root, resolves name in the binary directory
// and launches it instrumented. A name matching no binary returns
// ErrBinaryNotFound without launching anything.
func (d *Driver) RunTargetBinary(ctx context.Context, name string, options []string) (*Outcome, error) {
	if err := dirs.ResetDir(d.cfg.RunRoot); err != nil {
		return nil, fmt.Errorf("run target binary: %w", err)
	}

	bin, err := d.ResolveBinary(name)
	if err != nil {
		return nil, err
	}

	return d.Launch(ctx, Spec{
		Options:    options,
		Command:    []string{bin},
		Instrument: true,
	})
}

// Preload runs command directly with the instrumentation library injected,
// bypassing the tool.
func (d *Driver) Preload(ctx context.Context, command []string, env []string) (*Outcome, error) {
	if len(command) == 0 {
		return nil, ErrNoCommand
	}
	if err := validateEnv(env); err != nil {
		return nil, err
	}

	cmd := Command{
		Path: command[0],
		Args: command[1:],
		Env:  mergeEnv(d.environ(), []string{d.preload()}, env),
	}
	return d.run(ctx, cmd)
}

// ResolveBinary finds the compiled test binary for name: a file in the binary
// directory whose name contains name and ends with the binary suffix. When
// several match, a unique one ending in name+suffix wins.
func (d *Driver) ResolveBinary(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrBinaryNotFound)
	}

	entries, err := os.ReadDir(d.cfg.BinDir)
	if err != nil {
		return "", fmt.Errorf("%w %q in %s: %w", ErrBinaryNotFound, name, d.cfg.BinDir, err)
	}

	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base := e.Name()
		if strings.Contains(base, name) && strings.HasSuffix(base, d.cfg.BinSuffix) {
			matches = append(matches, base)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w %q in %s", ErrBinaryNotFound, name, d.cfg.BinDir)
	case 1:
		return filepath.Join(d.cfg.BinDir, matches[0]), nil
	}

	var exact []string
	for _, m := range matches {
		if strings.HasSuffix(m, name+d.cfg.BinSuffix) {
			exact = append(exact, m)
		}
	}
	if len(exact) == 1 {
		return filepath.Join(d.cfg.BinDir, exact[0]), nil
	}
	return "", fmt.Errorf("%w %q: %s", ErrAmbiguousBinary, name, strings.Join(matches, ", "))
}

func (d *Driver) launch(ctx context.Context, spec Spec, stdout, stderr io.Writer) (*Outcome, error) {
	if len(spec.Command) == 0 {
		return nil, ErrNoCommand
	}
	if err := validateEnv(spec.Env); err != nil {
		return nil, err
	}

	args := make([]string, 0, 2+len(spec.Options)+len(spec.Command))
	args = append(args, d.cfg.DestFlag, d.cfg.RunRoot)
	args = append(args, spec.Options...)
	args = append(args, spec.Command...)

	var inject []string
	if spec.Instrument {
		inject = []string{d.preload()}
	}

	cmd := Command{
		Path:   d.cfg.Tool,
		Args:   args,
		Env:    mergeEnv(d.environ(), inject, spec.Env),
		Stdout: stdout,
		Stderr: stderr,
	}
	return d.run(ctx, cmd)
}

// run executes cmd and attributes new run directories to it.
func (d *Driver) run(ctx context.Context, cmd Command) (*Outcome, error) {
	before, err := d.locator.Snapshot(d.cfg.RunRoot)
	if err != nil {
		return nil, fmt.Errorf("snapshot run root: %w", err)
	}

	d.logger.Debug("launching", "path", cmd.Path, "args", cmd.Args, "root", d.cfg.RunRoot)

	code, err := d.runner.Run(ctx, cmd)
	if err != nil {
		d.logger.Error("launch failed", "path", cmd.Path, "error", err)
		return nil, err
	}

	created, err := d.locator.Since(d.cfg.RunRoot, before)
	if err != nil {
		return nil, fmt.Errorf("locate runs: %w", err)
	}

	d.logger.Info("launch finished",
		"path", cmd.Path,
		"exit_code", code,
		"runs", len(created),
	)
	return &Outcome{ExitCode: code, Runs: created}, nil
}

func (d *Driver) preload() string {
	return d.cfg.PreloadVar + "=" + d.cfg.Library
}
