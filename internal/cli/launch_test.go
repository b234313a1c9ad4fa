package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/snitchkit/internal/dirs"
	"github.com/roach88/snitchkit/internal/launch"
	"github.com/roach88/snitchkit/internal/testutil"
)

func TestResetCommand(t *testing.T) {
	env := newCLIEnv(t)
	root := env.Config.RunRoot
	require.NoError(t, os.MkdirAll(filepath.Join(root, "stale_1"), 0755))

	stdout, _, err := env.run(t, "reset")
	require.NoError(t, err)
	assert.Contains(t, stdout, "reset "+root)

	empty, err := dirs.IsEmpty(root)
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestExecCommand_Success(t *testing.T) {
	env := newCLIEnv(t)
	env.AddBinary(t, "socket.out", 0)

	stdout, _, err := env.run(t, "exec", "socket")
	require.NoError(t, err)
	assert.Contains(t, stdout, "exit code: 0")
	assert.Contains(t, stdout, "run: "+filepath.Join(env.Config.RunRoot, "socket.out_"))
}

func TestExecCommand_NonZeroExit(t *testing.T) {
	env := newCLIEnv(t)
	env.AddBinary(t, "refused.out", 3)

	stdout, _, err := env.run(t, "exec", "refused")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "target exited with code 3")
	assert.Contains(t, stdout, "exit code: 3")
}

func TestExecCommand_BinaryNotFound(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "exec", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, launch.ErrBinaryNotFound)
}

func TestExecCommand_JSON(t *testing.T) {
	env := newCLIEnv(t)
	env.AddBinary(t, "socket.out", 0)

	stdout, _, err := env.run(t, "exec", "socket", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   outcomeView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.ExitCode)
	assert.Len(t, resp.Data.Runs, 1)
}

func TestExecCommand_JSONFailure(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.run(t, "exec", "missing", "--format", "json")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeLaunch, resp.Error.Code)
}

func TestLaunchCommand_Capture(t *testing.T) {
	env := newCLIEnv(t)

	stdout, _, err := env.run(t, "launch", "--capture", "--", "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Contains(t, stdout, "--- stdout ---")
	assert.Contains(t, stdout, "hello")
	assert.Contains(t, stdout, "faketool: wrapping sh")
}

func TestLaunchCommand_EnvOverride(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "launch", "--env", "WANT=yes", "--", "sh", "-c", `test "$WANT" = yes`)
	require.NoError(t, err)

	_, _, err = env.run(t, "launch", "--env", "WANT=no", "--", "sh", "-c", `test "$WANT" = yes`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestLaunchCommand_BadEnv(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run(t, "launch", "--env", "NOEQUALS", "--", "true")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, launch.ErrBadEnv)
}

func TestLaunchCommand_Bare(t *testing.T) {
	env := newCLIEnv(t)
	check := `test -z "$` + testutil.FakePreloadVar + `"`

	_, _, err := env.run(t, "launch", "--bare", "--", "sh", "-c", check)
	require.NoError(t, err)

	_, _, err = env.run(t, "launch", "--", "sh", "-c", check)
	require.Error(t, err, "library is injected unless --bare")
}

func TestPreloadCommand(t *testing.T) {
	env := newCLIEnv(t)
	check := `test "$` + testutil.FakePreloadVar + `" = ` + testutil.FakeLibrary

	stdout, _, err := env.run(t, "preload", "--format", "json", "--", "sh", "-c", check)
	require.NoError(t, err)

	var resp struct {
		Data outcomeView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Empty(t, resp.Data.Runs, "preload bypasses the tool")
}
