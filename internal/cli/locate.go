package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/snitchkit/internal/artifact"
	"github.com/roach88/snitchkit/internal/dirs"
	"github.com/roach88/snitchkit/internal/logscan"
	"github.com/roach88/snitchkit/internal/runs"
)

// LocateOptions holds flags for the locate command.
type LocateOptions struct {
	*RootOptions
	Run  string // run directory name; empty means the current run
	Conn int    // connection to check; negative means all
}

type connView struct {
	artifact.Report
	Error string `json:"error,omitempty"`
}

type locateView struct {
	Run         string     `json:"run"`
	Log         string     `json:"log"`
	Connections []connView `json:"connections"`
}

func (v locateView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run: %s\nlog: %s", v.Run, v.Log)
	if len(v.Connections) == 0 {
		b.WriteString("\nno connections")
	}
	for _, c := range v.Connections {
		if c.Error != "" {
			fmt.Fprintf(&b, "\nconnection %d: %s", c.Connection, c.Error)
			continue
		}
		fmt.Fprintf(&b, "\nconnection %d: %s (%d bytes), %s (%d bytes)",
			c.Connection, c.MetadataPath, c.MetadataBytes, c.CapturePath, c.CaptureBytes)
	}
	return b.String()
}

func (v locateView) failed() int {
	n := 0
	for _, c := range v.Connections {
		if c.Error != "" {
			n++
		}
	}
	return n
}

// NewLocateCommand creates the locate command.
func NewLocateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LocateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "locate",
		Short: "Show the current run and check its connection artifacts",
		Long: `Find the most recent run directory under the run root (or the one named
by --run) and check that each connection has a non-empty metadata file and
packet capture.

Exit codes:
  0 - All checked connections have both artifacts
  1 - An artifact is missing or empty
  2 - Command error (no run found)

Examples:
  snitchkit locate
  snitchkit locate --conn 0 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}

			run, err := s.pickRun(opts.Run)
			if err != nil {
				return s.out.Fail(ExitCommandError, CodeNoRun, "no run to inspect", err, nil)
			}

			ids := []int{opts.Conn}
			if opts.Conn < 0 {
				if ids, err = run.Connections(); err != nil {
					return s.out.Fail(ExitCommandError, CodeArtifact, "failed to list connections", err, nil)
				}
			}

			v := locateView{
				Run:         run.Dir,
				Log:         run.LogPath(),
				Connections: make([]connView, 0, len(ids)),
			}
			for _, id := range ids {
				rep, err := artifact.CheckConnection(run, id)
				c := connView{Report: rep}
				if err != nil {
					c.Error = err.Error()
				}
				v.Connections = append(v.Connections, c)
			}

			if n := v.failed(); n > 0 {
				if s.out.Format != "json" {
					fmt.Fprintln(s.out.Writer, v)
				}
				return s.out.Fail(ExitFailure, CodeArtifact,
					fmt.Sprintf("%d connection(s) with missing or empty artifacts", n), nil, v)
			}
			return s.out.Success(v)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run directory name (default: most recent)")
	cmd.Flags().IntVar(&opts.Conn, "conn", -1, "check only this connection")
	return cmd
}

// pickRun opens the named run, or the current one when name is empty.
// A named run that does not exist is reported as runs.ErrNoRun.
func (s *session) pickRun(name string) (runs.Run, error) {
	loc := s.driver.Locator()
	if name == "" {
		return loc.Current(s.cfg.RunRoot)
	}

	run := loc.Open(s.cfg.RunRoot, name)
	ok, err := dirs.DirExists(run.Dir)
	if err != nil {
		return runs.Run{}, err
	}
	if !ok {
		return runs.Run{}, fmt.Errorf("%w: %s", runs.ErrNoRun, run.Dir)
	}
	return run, nil
}

// CheckLogOptions holds flags for the check-log command.
type CheckLogOptions struct {
	*RootOptions
	Run string
}

type checkLogView struct {
	Log    string   `json:"log"`
	Errors []string `json:"errors"`
}

func (v checkLogView) String() string {
	if len(v.Errors) == 0 {
		return fmt.Sprintf("log: %s\nno errors", v.Log)
	}
	return fmt.Sprintf("log: %s\n%s", v.Log, strings.Join(v.Errors, "\n"))
}

// NewCheckLogCommand creates the check-log command.
func NewCheckLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckLogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check-log [path]",
		Short: "Scan a run log for error-marked lines",
		Long: `Scan a run log for lines containing the configured error marker.
Without a path, the log of the current run (or --run) is scanned.

Exit codes:
  0 - No error lines
  1 - The log contains error lines
  2 - Command error (no run, log missing)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}

			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				run, err := s.pickRun(opts.Run)
				if err != nil {
					return s.out.Fail(ExitCommandError, CodeNoRun, "no run to inspect", err, nil)
				}
				path = run.LogPath()
			}

			lines, err := logscan.New(s.cfg.ErrorMarker).ErrorLines(path)
			if errors.Is(err, logscan.ErrLogNotFound) {
				return s.out.Fail(ExitCommandError, CodeLogMissing, "run log missing", err, nil)
			}
			if err != nil {
				return s.out.Fail(ExitCommandError, CodeLogMissing, "failed to scan log", err, nil)
			}

			v := checkLogView{Log: path, Errors: lines}
			if v.Errors == nil {
				v.Errors = []string{}
			}
			if len(lines) > 0 {
				if s.out.Format != "json" {
					fmt.Fprintln(s.out.Writer, v)
				}
				return s.out.Fail(ExitFailure, CodeLogErrors,
					fmt.Sprintf("%d error line(s) in %s", len(lines), path), nil, v)
			}
			return s.out.Success(v)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run directory name (default: most recent)")
	return cmd
}
