package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/snitchkit/internal/dirs"
	"github.com/roach88/snitchkit/internal/launch"
)

// LaunchOptions holds flags shared by the launching commands.
type LaunchOptions struct {
	*RootOptions
	Options []string // tool options placed before the command
	Env     []string // KEY=VALUE overrides
	Capture bool     // include the target's output in the report
	Bare    bool     // do not inject the instrumentation library
}

// outcomeView is the reported form of a launch outcome.
type outcomeView struct {
	ExitCode int      `json:"exit_code"`
	Runs     []string `json:"runs"`
	Stdout   string   `json:"stdout,omitempty"`
	Stderr   string   `json:"stderr,omitempty"`
}

func newOutcomeView(out *launch.Outcome) outcomeView {
	v := outcomeView{
		ExitCode: out.ExitCode,
		Runs:     make([]string, 0, len(out.Runs)),
	}
	for _, r := range out.Runs {
		v.Runs = append(v.Runs, r.Dir)
	}
	return v
}

func (v outcomeView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "exit code: %d", v.ExitCode)
	for _, r := range v.Runs {
		fmt.Fprintf(&b, "\nrun: %s", r)
	}
	if v.Stdout != "" {
		fmt.Fprintf(&b, "\n--- stdout ---\n%s", strings.TrimRight(v.Stdout, "\n"))
	}
	if v.Stderr != "" {
		fmt.Fprintf(&b, "\n--- stderr ---\n%s", strings.TrimRight(v.Stderr, "\n"))
	}
	return b.String()
}

// reportOutcome prints v. A non-zero exit code is a failure (exit 1).
func (s *session) reportOutcome(v outcomeView) error {
	if v.ExitCode == 0 {
		return s.out.Success(v)
	}
	if s.out.Format != "json" {
		fmt.Fprintln(s.out.Writer, v)
	}
	return s.out.Fail(ExitFailure, CodeTargetFailed,
		fmt.Sprintf("target exited with code %d", v.ExitCode), nil, v)
}

func (s *session) launchFailure(err error) error {
	return s.out.Fail(ExitCommandError, CodeLaunch, "launch failed", err, nil)
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Empty the run root",
		Long: `Remove the run root and everything under it, then recreate it empty.

Exit codes:
  0 - Run root is empty
  2 - Command error (bad config, root not removable)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			if err := dirs.ResetDir(s.cfg.RunRoot); err != nil {
				return s.out.Fail(ExitCommandError, CodeLaunch, "failed to reset run root", err, nil)
			}
			s.logger.Debug("run root reset", "root", s.cfg.RunRoot)
			return s.out.Success(resetView{Root: s.cfg.RunRoot})
		},
	}
}

type resetView struct {
	Root string `json:"root"`
}

func (v resetView) String() string {
	return "reset " + v.Root
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LaunchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <name>",
		Short: "Run a compiled test binary under the tool",
		Long: `Reset the run root, find the compiled test binary whose file name
contains <name> and launch it under the instrumented tool.

Exit codes:
  0 - Target exited 0
  1 - Target exited non-zero
  2 - Command error (binary not found or ambiguous, tool not startable)

Examples:
  snitchkit exec socket
  snitchkit exec connect --option=-c`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			out, err := s.driver.RunTargetBinary(cmd.Context(), args[0], opts.Options)
			if err != nil {
				return s.launchFailure(err)
			}
			return s.reportOutcome(newOutcomeView(out))
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Options, "option", "o", nil, "tool option (repeatable)")
	return cmd
}

// NewLaunchCommand creates the launch command.
func NewLaunchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LaunchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "launch [flags] -- <command> [args...]",
		Short: "Run an arbitrary command under the tool",
		Long: `Launch a command under the instrumented tool. The run root is not reset.

Exit codes:
  0 - Target exited 0
  1 - Target exited non-zero
  2 - Command error (bad --env, tool not startable)

Examples:
  snitchkit launch -- curl -s http://localhost/
  snitchkit launch --env HTTP_PROXY= --capture -- ./client`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}

			spec := launch.Spec{
				Options:    opts.Options,
				Command:    args,
				Env:        opts.Env,
				Instrument: !opts.Bare,
			}

			if !opts.Capture {
				out, err := s.driver.Launch(cmd.Context(), spec)
				if err != nil {
					return s.launchFailure(err)
				}
				return s.reportOutcome(newOutcomeView(out))
			}

			capture, err := s.driver.LaunchCapturing(cmd.Context(), spec)
			if err != nil {
				return s.launchFailure(err)
			}
			v := newOutcomeView(&capture.Outcome)
			v.Stdout = capture.Stdout
			v.Stderr = capture.Stderr
			return s.reportOutcome(v)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Options, "option", "o", nil, "tool option (repeatable)")
	cmd.Flags().StringArrayVarP(&opts.Env, "env", "e", nil, "environment override KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&opts.Capture, "capture", false, "report the target's stdout and stderr")
	cmd.Flags().BoolVar(&opts.Bare, "bare", false, "do not inject the instrumentation library")
	return cmd
}

// NewPreloadCommand creates the preload command.
func NewPreloadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LaunchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "preload [flags] -- <command> [args...]",
		Short: "Run a command with the library injected, without the tool",
		Long: `Run a command directly with the instrumentation library injected through
the preload variable. The tool is bypassed, so no run root is passed.

Exit codes:
  0 - Target exited 0
  1 - Target exited non-zero
  2 - Command error (bad --env, command not startable)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			out, err := s.driver.Preload(cmd.Context(), args, opts.Env)
			if err != nil {
				return s.launchFailure(err)
			}
			return s.reportOutcome(newOutcomeView(out))
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Env, "env", "e", nil, "environment override KEY=VALUE (repeatable)")
	return cmd
}
