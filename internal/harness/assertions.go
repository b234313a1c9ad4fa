package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/snitchkit/internal/artifact"
	"github.com/roach88/snitchkit/internal/runs"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Harness steps for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, event := range e.Trace {
			if event.Detail != "" {
				fmt.Fprintf(&buf, "  [%d] %s %s\n", event.Seq, event.Step, event.Detail)
			} else {
				fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event.Step)
			}
		}
	}

	return buf.String()
}

// AssertionContext carries what assertions need beyond the Result.
type AssertionContext struct {
	// Run is the run directory under inspection, nil if the launch made none.
	Run *runs.Run
}

func assertExit(result *Result, assertion Assertion) error {
	want := assertion.Type == AssertExitSuccess
	if (result.ExitCode == 0) == want {
		return nil
	}
	expected := "exit code 0"
	if !want {
		expected = "non-zero exit code"
	}
	return &AssertionError{
		Type:     assertion.Type,
		Expected: expected,
		Actual:   fmt.Sprintf("exit code %d", result.ExitCode),
		Trace:    result.Trace,
	}
}

func assertLog(result *Result, assertion Assertion) error {
	if result.LogMissing {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: "run log present",
			Actual:   "run log missing",
			Trace:    result.Trace,
		}
	}

	want := assertion.Type == AssertLogErrors
	if (len(result.LogErrors) > 0) == want {
		return nil
	}
	if want {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: "at least one error line in run log",
			Actual:   "no error lines",
			Trace:    result.Trace,
		}
	}
	return &AssertionError{
		Type:     assertion.Type,
		Expected: "no error lines in run log",
		Actual:   fmt.Sprintf("%d error line(s): %s", len(result.LogErrors), strings.Join(result.LogErrors, " | ")),
		Trace:    result.Trace,
	}
}

func assertConnectionCount(result *Result, assertion Assertion) error {
	if len(result.Connections) == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     assertion.Type,
		Expected: fmt.Sprintf("%d connection(s)", assertion.Count),
		Actual:   fmt.Sprintf("%d connection(s)", len(result.Connections)),
		Trace:    result.Trace,
	}
}

func assertArtifactsPresent(result *Result, assertion Assertion, actx *AssertionContext) error {
	fail := func(actual string) error {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: fmt.Sprintf("metadata and capture for connection %d", assertion.Connection),
			Actual:   actual,
			Trace:    result.Trace,
		}
	}

	if actx == nil || actx.Run == nil {
		return fail("no run directory")
	}

	rep, err := artifact.CheckConnection(*actx.Run, assertion.Connection)
	if err != nil {
		return fail(err.Error())
	}
	ok, err := artifact.CaptureHeaderValid(rep.CapturePath)
	if err != nil {
		return fail(err.Error())
	}
	if !ok {
		return fail(fmt.Sprintf("%s has no pcap header", rep.CapturePath))
	}
	return nil
}

func assertEventContains(result *Result, assertion Assertion) error {
	expected := fmt.Sprintf("event %q on connection %d", assertion.Event, assertion.Connection)

	conn, ok := result.Connection(assertion.Connection)
	if !ok {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: expected,
			Actual:   fmt.Sprintf("connection %d not found", assertion.Connection),
			Trace:    result.Trace,
		}
	}
	if conn.Error != "" {
		return &AssertionError{
			Type:     assertion.Type,
			Expected: expected,
			Actual:   conn.Error,
			Trace:    result.Trace,
		}
	}
	if slices.Contains(conn.Events, assertion.Event) {
		return nil
	}
	return &AssertionError{
		Type:     assertion.Type,
		Expected: expected,
		Actual:   fmt.Sprintf("events %v", conn.Events),
		Trace:    result.Trace,
	}
}

func assertOutputContains(result *Result, assertion Assertion) error {
	if strings.Contains(result.Output, assertion.Text) {
		return nil
	}
	return &AssertionError{
		Type:     assertion.Type,
		Expected: fmt.Sprintf("output containing %q", assertion.Text),
		Actual:   fmt.Sprintf("output %q", result.Output),
		Trace:    result.Trace,
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a list of error messages (empty if all assertions pass).
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertExitSuccess, AssertExitFailure:
			err = assertExit(result, assertion)
		case AssertNoLogErrors, AssertLogErrors:
			err = assertLog(result, assertion)
		case AssertConnectionCount:
			err = assertConnectionCount(result, assertion)
		case AssertArtifactsPresent:
			err = assertArtifactsPresent(result, assertion, actx)
		case AssertEventContains:
			err = assertEventContains(result, assertion)
		case AssertOutputContains:
			err = assertOutputContains(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
