package harness

// Trace step names, in execution order.
const (
	StepReset   = "reset"
	StepLaunch  = "launch"
	StepLocate  = "locate"
	StepInspect = "inspect"
	StepRead    = "read"
)

// TraceEvent records one harness step.
type TraceEvent struct {
	Step   string `json:"step"`
	Detail string `json:"detail,omitempty"`
	Seq    int64  `json:"seq"`
}

// ConnectionResult summarizes one connection directory of the run.
type ConnectionResult struct {
	ID     int      `json:"id"`
	Events []string `json:"events"`

	// Error is set when the event document could not be read.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool `json:"pass"`

	// Trace lists the harness steps in order, stamped by a deterministic clock.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// ExitCode is the launched process exit status.
	ExitCode int `json:"exit_code"`

	// Run is the run directory the launch produced, empty if none.
	Run string `json:"run,omitempty"`

	// Connections are the run's connections, sorted by id.
	Connections []ConnectionResult `json:"connections"`

	// LogErrors are the error-marked lines of the run log.
	LogErrors []string `json:"log_errors,omitempty"`

	// LogMissing is set when the run produced no log file.
	LogMissing bool `json:"log_missing,omitempty"`

	// Output is the combined stdout and stderr, when captured.
	Output string `json:"output,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []TraceEvent{},
		Errors:      []string{},
		Connections: []ConnectionResult{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(step, detail string, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{Step: step, Detail: detail, Seq: seq})
}

// Connection returns the summary for connection id.
func (r *Result) Connection(id int) (ConnectionResult, bool) {
	for _, c := range r.Connections {
		if c.ID == id {
			return c, true
		}
	}
	return ConnectionResult{}, false
}
