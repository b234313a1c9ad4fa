package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/snitchkit/internal/dirs"
	"github.com/roach88/snitchkit/internal/harness"
	"github.com/roach88/snitchkit/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // substring filter on scenario file names
	DB     string // run ledger to record results in (optional)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files against the tool",
		Long: `Run every scenario file (*.yaml, *.yml) in a directory.

Each scenario resets the run root, launches its target under the tool and
checks its assertions. When golden/<scenario-file>.golden exists next to the
scenarios, the run summary must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, bad config, ledger not writable)

Examples:
  snitchkit test ./scenarios
  snitchkit test ./scenarios --filter socket
  snitchkit test ./scenarios --update
  snitchkit test ./scenarios --db runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenario files whose name contains this")
	cmd.Flags().StringVar(&opts.DB, "db", "", "record results in this run ledger")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, scenariosDir string) error {
	if ok, _ := dirs.DirExists(scenariosDir); !ok {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	files, err := harness.DiscoverScenarios(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(files) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	s, err := openSession(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	deps := harness.NewDeps(s.driver, s.logger)

	var ledger *store.Store
	if opts.DB != "" {
		if ledger, err = store.Open(opts.DB); err != nil {
			return WrapExitError(ExitCommandError, "failed to open run ledger", err)
		}
		defer ledger.Close()
	}

	t := &tester{cmd: cmd, opts: opts, out: s.out, deps: deps, ledger: ledger}
	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		sr := t.runScenario(cmd.Context(), file)
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result)
}

// tester runs scenario files for one test command invocation.
type tester struct {
	cmd    *cobra.Command
	opts   *TestOptions
	out    *OutputFormatter
	deps   harness.Deps
	ledger *store.Store
}

// runScenario loads, runs, golden-checks and records one scenario file.
func (t *tester) runScenario(ctx context.Context, file string) ScenarioResult {
	base := filepath.Base(file)
	t.out.VerboseLog("running scenario file %s", base)

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return t.fail(base, fmt.Sprintf("failed to load scenario: %v", err))
	}

	started := time.Now()
	result, err := harness.Run(ctx, t.deps, scenario)
	if err != nil {
		return t.fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}

	errs := append([]string(nil), result.Errors...)
	note := ""

	golden := goldenFilePath(file)
	switch {
	case t.opts.Update:
		if err := writeGolden(golden, scenario.Name, result); err != nil {
			return t.fail(scenario.Name, fmt.Sprintf("failed to update golden file: %v", err))
		}
		note = " (golden updated)"
	default:
		match, err := compareWithGolden(golden, scenario.Name, result)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// No golden file: assertions alone decide.
		case err != nil:
			errs = append(errs, fmt.Sprintf("golden comparison failed: %v", err))
		case !match:
			errs = append(errs, "summary does not match golden file (run with --update to regenerate)")
		}
	}

	if t.ledger != nil {
		if err := t.record(ctx, scenario.Name, result, errs, started); err != nil {
			errs = append(errs, fmt.Sprintf("failed to record run: %v", err))
		}
	}

	if len(errs) > 0 {
		return t.fail(scenario.Name, errs...)
	}
	if t.opts.Format != "json" {
		fmt.Fprintf(t.cmd.OutOrStdout(), "✓ %s%s\n", scenario.Name, note)
	}
	return ScenarioResult{Name: scenario.Name, Pass: true}
}

func (t *tester) fail(name string, errs ...string) ScenarioResult {
	if t.opts.Format != "json" {
		w := t.cmd.OutOrStdout()
		fmt.Fprintf(w, "✗ %s\n", name)
		for _, e := range errs {
			for _, line := range strings.Split(strings.TrimRight(e, "\n"), "\n") {
				fmt.Fprintf(w, "  %s\n", line)
			}
		}
	}
	return ScenarioResult{Name: name, Pass: false, Errors: errs}
}

func (t *tester) record(ctx context.Context, name string, result *harness.Result, errs []string, started time.Time) error {
	rec := store.RunRecord{
		Scenario:  name,
		Pass:      len(errs) == 0,
		ExitCode:  result.ExitCode,
		RunDir:    result.Run,
		LogErrors: len(result.LogErrors),
		Errors:    errs,
		StartedAt: started,
	}
	for _, c := range result.Connections {
		rec.Conns = append(rec.Conns, store.ConnectionRecord{
			Connection: c.ID,
			EventTypes: c.Events,
			Error:      c.Error,
		})
	}
	id, err := t.ledger.RecordRun(ctx, rec)
	if err != nil {
		return err
	}
	t.deps.Logger.Debug("recorded run", "id", id, "scenario", name)
	t.out.VerboseLog("recorded %s as ledger entry %s", name, id)
	return nil
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

func goldenBytes(name string, result *harness.Result) ([]byte, error) {
	data, err := harness.MarshalCanonical(harness.Summary(name, result))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary: %w", err)
	}
	return data, nil
}

// writeGolden writes the current summary as the golden file.
func writeGolden(path, name string, result *harness.Result) error {
	data, err := goldenBytes(name, result)
	if err != nil {
		return err
	}
	if err := dirs.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// compareWithGolden compares the current summary against the golden file.
// A missing golden file is returned as an fs.ErrNotExist error.
func compareWithGolden(path, name string, result *harness.Result) (bool, error) {
	want, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	got, err := goldenBytes(name, result)
	if err != nil {
		return false, err
	}
	return bytes.Equal(want, got), nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    CodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
