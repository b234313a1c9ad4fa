package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines one instrumented test run and the checks applied to it.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Target is what gets launched under the instrumented tool.
	Target Target `yaml:"target"`

	// Assertions validate the exit status, log and artifacts of the run.
	Assertions []Assertion `yaml:"assertions"`
}

// Target selects what to launch. Exactly one of Binary, Command, Script and
// BuiltinScript is set.
type Target struct {
	// Binary is a compiled test program name, resolved in the binary directory.
	Binary string `yaml:"binary,omitempty"`

	// Command is an arbitrary argv wrapped by the tool.
	Command []string `yaml:"command,omitempty"`

	// Script is a packet script file. Relative paths are resolved against the
	// scenario file's directory.
	Script string `yaml:"script,omitempty"`

	// BuiltinScript names a bundled packet script.
	BuiltinScript string `yaml:"builtin_script,omitempty"`

	// Options are passed to the instrumented tool.
	Options []string `yaml:"options,omitempty"`

	// Env holds KEY=VALUE overrides for the launched process.
	Env []string `yaml:"env,omitempty"`

	// CaptureOutput records stdout and stderr for output_contains.
	CaptureOutput bool `yaml:"capture_output,omitempty"`
}

// Kind returns the target kind: "binary", "command", "script" or "builtin_script".
func (t Target) Kind() string {
	switch {
	case t.Binary != "":
		return "binary"
	case len(t.Command) > 0:
		return "command"
	case t.Script != "":
		return "script"
	case t.BuiltinScript != "":
		return "builtin_script"
	}
	return ""
}

// Assertion validates one property of a finished run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "exit_success" / "exit_failure": launched process exit status
	// - "no_log_errors" / "log_errors": error-marked lines in the run log
	// - "connection_count": number of connection directories
	// - "artifacts_present": metadata and capture exist, non-empty, valid pcap header
	// - "event_contains": a connection's events include an event type
	// - "output_contains": captured output includes text
	Type string `yaml:"type"`

	// Count is the expected connection count (connection_count).
	Count int `yaml:"count,omitempty"`

	// Connection is the connection id (artifacts_present, event_contains).
	Connection int `yaml:"connection,omitempty"`

	// Event is the expected event type (event_contains).
	Event string `yaml:"event,omitempty"`

	// Text is the expected output substring (output_contains).
	Text string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertExitSuccess      = "exit_success"
	AssertExitFailure      = "exit_failure"
	AssertNoLogErrors      = "no_log_errors"
	AssertLogErrors        = "log_errors"
	AssertConnectionCount  = "connection_count"
	AssertArtifactsPresent = "artifacts_present"
	AssertEventContains    = "event_contains"
	AssertOutputContains   = "output_contains"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if s := scenario.Target.Script; s != "" && !filepath.IsAbs(s) {
		scenario.Target.Script = filepath.Join(filepath.Dir(path), s)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if err := validateTarget(&s.Target); err != nil {
		return err
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], &s.Target); err != nil {
			return err
		}
	}

	return nil
}

func validateTarget(t *Target) error {
	set := 0
	if t.Binary != "" {
		set++
	}
	if len(t.Command) > 0 {
		set++
	}
	if t.Script != "" {
		set++
	}
	if t.BuiltinScript != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("target: exactly one of binary, command, script, builtin_script is required (got %d)", set)
	}

	if t.CaptureOutput && (t.Script != "" || t.BuiltinScript != "") {
		return fmt.Errorf("target: capture_output is not supported for packet scripts")
	}
	if (t.Script != "" || t.BuiltinScript != "") && (len(t.Options) > 0 || len(t.Env) > 0) {
		return fmt.Errorf("target: options and env are not supported for packet scripts")
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, t *Target) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertExitSuccess, AssertExitFailure, AssertNoLogErrors, AssertLogErrors:
	case AssertConnectionCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for connection_count", index)
		}
	case AssertArtifactsPresent:
		if a.Connection < 0 {
			return fmt.Errorf("assertions[%d]: connection must be non-negative", index)
		}
	case AssertEventContains:
		if a.Connection < 0 {
			return fmt.Errorf("assertions[%d]: connection must be non-negative", index)
		}
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_contains", index)
		}
	case AssertOutputContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for output_contains", index)
		}
		if !t.CaptureOutput {
			return fmt.Errorf("assertions[%d]: output_contains requires target.capture_output", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
