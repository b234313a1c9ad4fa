package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/snitchkit/internal/artifact"
	"github.com/roach88/snitchkit/internal/dirs"
	"github.com/roach88/snitchkit/internal/launch"
	"github.com/roach88/snitchkit/internal/logscan"
	"github.com/roach88/snitchkit/internal/pktscript"
	"github.com/roach88/snitchkit/internal/runs"
	"github.com/roach88/snitchkit/internal/testutil"
)

// Deps are the collaborators a scenario runs against.
type Deps struct {
	Driver    *launch.Driver
	Scripts   *pktscript.Runner
	Inspector *logscan.Inspector
	Logger    *slog.Logger
}

// NewDeps wires the packet script runner and log inspector to d's
// configuration.
func NewDeps(d *launch.Driver, logger *slog.Logger) Deps {
	return Deps{
		Driver:    d,
		Scripts:   pktscript.FromDriver(d),
		Inspector: logscan.New(d.Config().ErrorMarker),
		Logger:    logger,
	}
}

// Harness is the test execution engine for one scenario.
type Harness struct {
	deps   Deps
	clock  *testutil.DeterministicClock
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
// 1. Reset the run root
// 2. Launch the target under the instrumented tool
// 3. Locate the run directory the launch produced
// 4. Scan the run log for error-marked lines
// 5. Read each connection's event document
// 6. Evaluate assertions
//
// Assertion failures are reported in the Result. A returned error means the
// scenario could not be executed at all (reset failed, binary not found, the
// tool could not be started).
func Run(ctx context.Context, deps Deps, scenario *Scenario) (*Result, error) {
	if deps.Driver == nil {
		return nil, errors.New("harness: no launch driver")
	}
	if deps.Scripts == nil {
		deps.Scripts = pktscript.FromDriver(deps.Driver)
	}
	if deps.Inspector == nil {
		deps.Inspector = logscan.New(deps.Driver.Config().ErrorMarker)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := &Harness{
		deps:   deps,
		clock:  testutil.NewDeterministicClock(),
		logger: logger.With("scenario", scenario.Name),
	}
	return h.run(ctx, scenario)
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()
	cfg := h.deps.Driver.Config()

	if err := dirs.ResetDir(cfg.RunRoot); err != nil {
		return nil, fmt.Errorf("failed to reset run root: %w", err)
	}
	result.AddTrace(StepReset, "", h.clock.Next())

	kind := scenario.Target.Kind()
	out, output, err := h.launch(ctx, scenario.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s target: %w", kind, err)
	}
	result.ExitCode = out.ExitCode
	result.Output = output
	result.AddTrace(StepLaunch, fmt.Sprintf("%s exit_code=%d", kind, out.ExitCode), h.clock.Next())
	h.logger.Info("target launched", "kind", kind, "exit_code", out.ExitCode, "runs", len(out.Runs))

	actx := &AssertionContext{}
	run, err := out.Latest()
	switch {
	case errors.Is(err, runs.ErrNoRun):
		result.LogMissing = true
		result.AddTrace(StepLocate, "no run", h.clock.Next())
		h.logger.Warn("launch produced no run directory")
	case err != nil:
		return nil, err
	default:
		actx.Run = &run
		if err := h.inspect(run, result); err != nil {
			return nil, err
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	h.logger.Info("scenario finished", "pass", result.Pass, "errors", len(result.Errors))
	return result, nil
}

// launch starts the target and returns its outcome and, when captured, the
// combined output.
func (h *Harness) launch(ctx context.Context, t Target) (*launch.Outcome, string, error) {
	var command []string

	switch t.Kind() {
	case "binary":
		bin, err := h.deps.Driver.ResolveBinary(t.Binary)
		if err != nil {
			return nil, "", err
		}
		command = []string{bin}
	case "command":
		command = t.Command
	case "script":
		out, err := h.deps.Scripts.RunFile(ctx, t.Script)
		return out, "", err
	case "builtin_script":
		script, err := pktscript.Builtin(t.BuiltinScript)
		if err != nil {
			return nil, "", err
		}
		out, err := h.deps.Scripts.Run(ctx, script)
		return out, "", err
	default:
		return nil, "", errors.New("target has no kind")
	}

	spec := launch.Spec{
		Options:    t.Options,
		Command:    command,
		Env:        t.Env,
		Instrument: true,
	}
	if t.CaptureOutput {
		c, err := h.deps.Driver.LaunchCapturing(ctx, spec)
		if err != nil {
			return nil, "", err
		}
		return &c.Outcome, c.Combined, nil
	}
	out, err := h.deps.Driver.Launch(ctx, spec)
	return out, "", err
}

// inspect fills the result from the run directory: connections, log errors
// and event types.
func (h *Harness) inspect(run runs.Run, result *Result) error {
	ids, err := run.Connections()
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}
	result.Run = run.Dir
	result.AddTrace(StepLocate, fmt.Sprintf("connections=%d", len(ids)), h.clock.Next())

	lines, err := h.deps.Inspector.ErrorLines(run.LogPath())
	switch {
	case errors.Is(err, logscan.ErrLogNotFound):
		result.LogMissing = true
		result.AddTrace(StepInspect, "log missing", h.clock.Next())
	case err != nil:
		return fmt.Errorf("failed to inspect log: %w", err)
	default:
		result.LogErrors = lines
		result.AddTrace(StepInspect, fmt.Sprintf("log_errors=%d", len(lines)), h.clock.Next())
	}

	total := 0
	for _, id := range ids {
		conn := ConnectionResult{ID: id, Events: []string{}}
		events, err := artifact.ReadEvents(run.MetadataPath(id))
		if err != nil {
			conn.Error = err.Error()
			h.logger.Warn("unreadable event document", "connection", id, "error", err)
		} else {
			conn.Events = artifact.EventTypes(events)
			total += len(events)
		}
		result.Connections = append(result.Connections, conn)
	}
	result.AddTrace(StepRead, fmt.Sprintf("events=%d", total), h.clock.Next())
	return nil
}
