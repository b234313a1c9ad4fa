package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/snitchkit/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	DB       string
	Limit    int
	Scenario string
}

type historyView struct {
	Runs []store.RunRecord `json:"runs"`
}

func (v historyView) String() string {
	if len(v.Runs) == 0 {
		return "No recorded runs."
	}
	var b strings.Builder
	for i, r := range v.Runs {
		if i > 0 {
			b.WriteByte('\n')
		}
		status := "PASS"
		if !r.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "#%d %s %s %s exit=%d connections=%d log_errors=%d",
			r.Seq, r.StartedAt.UTC().Format(time.RFC3339), status, r.Scenario,
			r.ExitCode, len(r.Conns), r.LogErrors)
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "\n    %s", strings.SplitN(e, "\n", 2)[0])
		}
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List scenario runs recorded in a run ledger",
		Long: `List scenario runs recorded by "snitchkit test --db", newest first.

Exit codes:
  0 - Runs listed
  2 - Command error (ledger not found, no run for --scenario)

Examples:
  snitchkit history --db runs.db
  snitchkit history --db runs.db --scenario socket_two_connections`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to the run ledger (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs (0 for all)")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "show only the latest run of this scenario")

	return cmd
}

func runHistory(cmd *cobra.Command, opts *HistoryOptions) error {
	out := newFormatter(cmd, opts.RootOptions)

	if opts.DB == "" {
		return NewExitError(ExitCommandError, "--db is required")
	}
	if _, err := os.Stat(opts.DB); os.IsNotExist(err) {
		return out.Fail(ExitCommandError, CodeLedger, fmt.Sprintf("run ledger not found: %s", opts.DB), nil, nil)
	}

	ledger, err := store.Open(opts.DB)
	if err != nil {
		return out.Fail(ExitCommandError, CodeLedger, "failed to open run ledger", err, nil)
	}
	defer ledger.Close()

	if opts.Scenario != "" {
		rec, err := ledger.LatestRun(cmd.Context(), opts.Scenario)
		if errors.Is(err, store.ErrNotFound) {
			return out.Fail(ExitCommandError, CodeNoRun, "no recorded run", err, nil)
		}
		if err != nil {
			return out.Fail(ExitCommandError, CodeLedger, "failed to read run ledger", err, nil)
		}
		return out.Success(historyView{Runs: []store.RunRecord{*rec}})
	}

	records, err := ledger.ListRuns(cmd.Context(), opts.Limit)
	if err != nil {
		return out.Fail(ExitCommandError, CodeLedger, "failed to read run ledger", err, nil)
	}
	return out.Success(historyView{Runs: records})
}
