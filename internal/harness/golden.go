package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Summary returns the deterministic view of a result used for golden
// comparison. Run directory names and captured output carry process IDs and
// paths, so they are left out.
func Summary(scenarioName string, result *Result) map[string]any {
	trace := make([]any, len(result.Trace))
	for i, event := range result.Trace {
		m := map[string]any{
			"step": event.Step,
			"seq":  event.Seq,
		}
		if event.Detail != "" {
			m["detail"] = event.Detail
		}
		trace[i] = m
	}

	conns := make([]any, len(result.Connections))
	for i, c := range result.Connections {
		m := map[string]any{
			"id":     c.ID,
			"events": c.Events,
		}
		if c.Error != "" {
			m["error"] = c.Error
		}
		conns[i] = m
	}

	summary := map[string]any{
		"scenario":    scenarioName,
		"pass":        result.Pass,
		"exit_code":   result.ExitCode,
		"log_errors":  len(result.LogErrors),
		"connections": conns,
		"trace":       trace,
	}
	if result.LogMissing {
		summary["log_missing"] = true
	}
	return summary
}

// RunWithGolden executes a scenario and compares its summary against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the summary doesn't match the golden file.
func RunWithGolden(t *testing.T, deps Deps, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), deps, scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's summary against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalCanonical(Summary(scenarioName, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
