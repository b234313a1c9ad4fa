package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/snitchkit/internal/launch"
	"github.com/roach88/snitchkit/internal/pktscript"
)

// ScriptOptions holds flags for the script command.
type ScriptOptions struct {
	*RootOptions
	Builtin string
}

// NewScriptCommand creates the script command.
func NewScriptCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScriptOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "script [file]",
		Short: "Run a packet script under the tool",
		Long: fmt.Sprintf(`Copy a packet script to a scratch file and run the interpreter on it
under the instrumented tool. The scratch file is removed afterwards.

Give either a script file or --builtin with one of: %s.

Exit codes:
  0 - Interpreter exited 0
  1 - Interpreter exited non-zero
  2 - Command error (script unreadable, unknown builtin, tool not startable)`,
			strings.Join(pktscript.BuiltinNames(), ", ")),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (opts.Builtin != "") {
				return NewExitError(ExitCommandError, "exactly one of <file> or --builtin is required")
			}

			s, err := openSession(cmd, rootOpts)
			if err != nil {
				return err
			}
			scripts := pktscript.FromDriver(s.driver)

			var out *launch.Outcome
			if opts.Builtin != "" {
				var text string
				text, err = pktscript.Builtin(opts.Builtin)
				if err != nil {
					return s.out.Fail(ExitCommandError, CodeLaunch, "unknown builtin script", err, nil)
				}
				s.logger.Debug("running builtin script", "name", opts.Builtin)
				out, err = scripts.Run(cmd.Context(), text)
			} else {
				s.logger.Debug("running script file", "path", args[0])
				out, err = scripts.RunFile(cmd.Context(), args[0])
			}
			if err != nil {
				return s.launchFailure(err)
			}
			return s.reportOutcome(newOutcomeView(out))
		},
	}

	cmd.Flags().StringVar(&opts.Builtin, "builtin", "", "run a built-in script by name")
	return cmd
}
