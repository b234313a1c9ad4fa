package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/snitchkit/internal/config"
	"github.com/roach88/snitchkit/internal/launch"
)

// session is the configuration, logger and driver one command runs with.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	driver *launch.Driver
	out    *OutputFormatter
}

// newFormatter builds the formatter for cmd's writers.
func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newLogger returns a text logger on w at Info, or Debug when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openSession loads the config named by --config and builds a driver for it.
// Failures are command errors (exit 2).
func openSession(cmd *cobra.Command, opts *RootOptions) (*session, error) {
	out := newFormatter(cmd, opts)

	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return nil, out.Fail(ExitCommandError, CodeConfig, "failed to load config", err, nil)
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	d, err := launch.New(cfg, launch.WithLogger(logger))
	if err != nil {
		return nil, out.Fail(ExitCommandError, CodeConfig, "failed to create driver", err, nil)
	}

	logger.Debug("session ready", "root", cfg.RunRoot, "tool", cfg.Tool)
	return &session{cfg: cfg, logger: logger, driver: d, out: out}, nil
}
