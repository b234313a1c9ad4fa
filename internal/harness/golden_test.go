package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/snitchkit/internal/testutil"
)

func TestRunWithGolden_TwoConnections(t *testing.T) {
	env, deps := newFakeDeps(t)
	env.AddBinary(t, "socket.out", 0)

	scenario := &Scenario{
		Name:        "socket_two_connections",
		Description: "two connections with socket and close events",
		Target: Target{
			Binary: "socket",
			Env:    []string{testutil.FakeConnectionsEnv + "=2"},
		},
		Assertions: []Assertion{
			{Type: AssertExitSuccess},
			{Type: AssertNoLogErrors},
			{Type: AssertConnectionCount, Count: 2},
			{Type: AssertArtifactsPresent, Connection: 1},
		},
	}

	// To regenerate:
	//   go test ./internal/harness -run TestRunWithGolden -update
	result, err := RunWithGolden(t, deps, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass)
}

func TestRunWithGolden_FailingBinary(t *testing.T) {
	env, deps := newFakeDeps(t)
	env.AddBinary(t, "crash.out", 3)

	scenario := &Scenario{
		Name:        "failing_binary",
		Description: "non-zero exit and an error-marked log line",
		Target: Target{
			Binary: "crash",
			Env:    []string{testutil.FakeErrorEnv + "=boom"},
		},
		Assertions: []Assertion{
			{Type: AssertExitSuccess},
			{Type: AssertNoLogErrors},
		},
	}

	result, err := RunWithGolden(t, deps, scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
}

func TestAssertGolden_NoRun(t *testing.T) {
	result := NewResult()
	result.ExitCode = 70
	result.LogMissing = true
	result.AddTrace(StepReset, "", 1)
	result.AddTrace(StepLaunch, "command exit_code=70", 2)
	result.AddTrace(StepLocate, "no run", 3)
	result.AddError("Assertion failed: no_log_errors")

	require.NoError(t, AssertGolden(t, "no_run", result))
}

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"sorted keys", map[string]any{"b": 1, "a": true, "c": "x"}, `{"a":true,"b":1,"c":"x"}`},
		{"nested", map[string]any{"l": []any{int64(1), []string{"s"}}}, `{"l":[1,["s"]]}`},
		{"no html escaping", "<a&b>", `"<a&b>"`},
		{"control characters", "a\nb\t\x01", `"a\nb\t\u0001"`},
		{"quote and backslash", `"\`, `"\"\\"`},
		{"line separator literal", "a\u2028b", "\"a\u2028b\""},
		{"nfc", "e\u0301", "\"\u00e9\""},
		{"empty array", []any{}, `[]`},
		{"empty strings", []string{}, `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes to surrogates 0xD83D 0xDE00, which sort before U+FF61.
	got, err := MarshalCanonical(map[string]any{"\uff61": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\uff61\":1}", string(got))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	for _, v := range []any{nil, 1.5, map[string]any{"k": nil}, struct{}{}} {
		_, err := MarshalCanonical(v)
		assert.Error(t, err, "%#v", v)
	}
}
