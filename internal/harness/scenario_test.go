package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to dir/name and returns the path.
func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "fork.yaml", `
name: fork_two_connections
description: "fork.c opens one socket in parent and child"
target:
  binary: fork
  options: ["-p"]
  env: ["NETSPY_DEV=enp0s3"]
assertions:
  - type: exit_success
  - type: no_log_errors
  - type: connection_count
    count: 2
  - type: artifacts_present
    connection: 1
  - type: event_contains
    connection: 0
    event: socket
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "fork_two_connections", scenario.Name)
	assert.Equal(t, "binary", scenario.Target.Kind())
	assert.Equal(t, []string{"-p"}, scenario.Target.Options)
	assert.Equal(t, []string{"NETSPY_DEV=enp0s3"}, scenario.Target.Env)
	require.Len(t, scenario.Assertions, 5)
	assert.Equal(t, 2, scenario.Assertions[2].Count)
	assert.Equal(t, 1, scenario.Assertions[3].Connection)
	assert.Equal(t, "socket", scenario.Assertions[4].Event)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "bad.yaml", "name: [unclosed\n")

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_UnknownFieldsRejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "top level typo",
			content: `
name: x
description: d
target: {binary: curl}
assertion:
  - type: exit_success
`,
		},
		{
			name: "target typo",
			content: `
name: x
description: d
target: {binray: curl}
assertions:
  - type: exit_success
`,
		},
		{
			name: "assertion typo",
			content: `
name: x
description: d
target: {binary: curl}
assertions:
  - type: connection_count
    cnt: 2
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), "s.yaml", tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to parse YAML")
		})
	}
}

func TestLoadScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "description: d\ntarget: {binary: curl}\nassertions: [{type: exit_success}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			content: "name: x\ntarget: {binary: curl}\nassertions: [{type: exit_success}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no target",
			content: "name: x\ndescription: d\nassertions: [{type: exit_success}]\n",
			wantErr: "exactly one of binary, command, script, builtin_script",
		},
		{
			name:    "two targets",
			content: "name: x\ndescription: d\ntarget: {binary: curl, command: [ls]}\nassertions: [{type: exit_success}]\n",
			wantErr: "exactly one of binary, command, script, builtin_script",
		},
		{
			name:    "no assertions",
			content: "name: x\ndescription: d\ntarget: {binary: curl}\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown assertion type",
			content: "name: x\ndescription: d\ntarget: {binary: curl}\nassertions: [{type: trace_contains}]\n",
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name:    "negative count",
			content: "name: x\ndescription: d\ntarget: {binary: curl}\nassertions: [{type: connection_count, count: -1}]\n",
			wantErr: "count must be non-negative",
		},
		{
			name:    "event_contains without event",
			content: "name: x\ndescription: d\ntarget: {binary: curl}\nassertions: [{type: event_contains}]\n",
			wantErr: "event is required",
		},
		{
			name:    "output_contains without capture",
			content: "name: x\ndescription: d\ntarget: {binary: curl}\nassertions: [{type: output_contains, text: usage}]\n",
			wantErr: "requires target.capture_output",
		},
		{
			name:    "capture with script",
			content: "name: x\ndescription: d\ntarget: {builtin_script: connected_socket, capture_output: true}\nassertions: [{type: exit_success}]\n",
			wantErr: "capture_output is not supported for packet scripts",
		},
		{
			name:    "env with script",
			content: "name: x\ndescription: d\ntarget: {script: a.pkt, env: [A=1]}\nassertions: [{type: exit_success}]\n",
			wantErr: "options and env are not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), "s.yaml", tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_ConnectionCountZeroAllowed(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "s.yaml", `
name: no_sockets
description: "program that never opens a socket"
target:
  command: ["/bin/true"]
assertions:
  - type: connection_count
    count: 0
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, 0, scenario.Assertions[0].Count)
	assert.Equal(t, "command", scenario.Target.Kind())
}

func TestLoadScenario_ScriptPathRelativeToScenario(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "s.yaml", `
name: handshake
description: "packet script"
target:
  script: scripts/handshake.pkt
assertions:
  - type: exit_success
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "scripts", "handshake.pkt"), scenario.Target.Script)
	assert.Equal(t, "script", scenario.Target.Kind())
}

func TestLoadScenario_AbsoluteScriptPathKept(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "s.yaml", `
name: handshake
description: "packet script"
target:
  script: /srv/pkt/handshake.pkt
assertions:
  - type: exit_failure
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/pkt/handshake.pkt", scenario.Target.Script)
}

func TestAssertionConstants(t *testing.T) {
	assert.Equal(t, "exit_success", AssertExitSuccess)
	assert.Equal(t, "exit_failure", AssertExitFailure)
	assert.Equal(t, "no_log_errors", AssertNoLogErrors)
	assert.Equal(t, "log_errors", AssertLogErrors)
	assert.Equal(t, "connection_count", AssertConnectionCount)
	assert.Equal(t, "artifacts_present", AssertArtifactsPresent)
	assert.Equal(t, "event_contains", AssertEventContains)
	assert.Equal(t, "output_contains", AssertOutputContains)
}

func TestLoadExampleScenarios(t *testing.T) {
	paths, err := DiscoverScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, p := range paths {
		t.Run(filepath.Base(p), func(t *testing.T) {
			_, err := LoadScenario(p)
			require.NoError(t, err)
		})
	}
}

func TestDiscoverScenarios(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b_fork.yaml", "a_curl.yml", "notes.txt", "c_fork_exec.yaml"} {
		writeScenario(t, dir, name, "")
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0755))

	paths, err := DiscoverScenarios(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a_curl.yml"),
		filepath.Join(dir, "b_fork.yaml"),
		filepath.Join(dir, "c_fork_exec.yaml"),
	}, paths)

	paths, err = DiscoverScenarios(dir, "fork")
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	_, err = DiscoverScenarios(filepath.Join(dir, "absent"), "")
	var dirErr *ScenarioDirError
	require.ErrorAs(t, err, &dirErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
