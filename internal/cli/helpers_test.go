package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/snitchkit/internal/testutil"
)

// cliEnv is a fake tool environment plus a config file pointing at it.
type cliEnv struct {
	*testutil.FakeEnv
	ConfigPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	env := testutil.NewFakeEnv(t)

	data, err := yaml.Marshal(env.Config)
	require.NoError(t, err)

	path := filepath.Join(env.Dir, "snitchkit.yaml")
	require.NoError(t, os.WriteFile(path, data, 0644))

	return &cliEnv{FakeEnv: env, ConfigPath: path}
}

// run executes the root command with sub as the subcommand and the env's
// config, returning stdout, stderr and the command error.
func (e *cliEnv) run(t *testing.T, sub string, args ...string) (string, string, error) {
	t.Helper()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{sub, "--config", e.ConfigPath}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
