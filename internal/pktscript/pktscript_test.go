package pktscript

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/snitchkit/internal/launch"
	"github.com/roach88/snitchkit/internal/testutil"
)

// stubLauncher records the spec and the scratch file's content at launch time.
type stubLauncher struct {
	spec    launch.Spec
	content string
	out     *launch.Outcome
	err     error
	explode bool
}

func (s *stubLauncher) Launch(ctx context.Context, spec launch.Spec) (*launch.Outcome, error) {
	s.spec = spec
	if len(spec.Command) == 2 {
		data, _ := os.ReadFile(spec.Command[1])
		s.content = string(data)
	}
	if s.explode {
		panic("interpreter exploded")
	}
	return s.out, s.err
}

func assertNoScratch(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files left behind")
}

func TestRun_PassesScratchToInterpreter(t *testing.T) {
	scratch := t.TempDir()
	stub := &stubLauncher{out: &launch.Outcome{ExitCode: 0}}
	r := NewRunner(stub, "/usr/bin/packetdrill", scratch)

	out, err := r.Run(context.Background(), ConnectedSocket)
	require.NoError(t, err)
	assert.True(t, out.Success())

	require.Len(t, stub.spec.Command, 2)
	assert.Equal(t, "/usr/bin/packetdrill", stub.spec.Command[0])
	assert.Equal(t, scratch, filepath.Dir(stub.spec.Command[1]))
	assert.True(t, strings.HasPrefix(filepath.Base(stub.spec.Command[1]), "pkt-"))
	assert.True(t, stub.spec.Instrument)
	assert.Equal(t, ConnectedSocket, stub.content, "script written verbatim and closed before launch")

	_, err = os.Stat(stub.spec.Command[1])
	assert.True(t, os.IsNotExist(err))
	assertNoScratch(t, scratch)
}

func TestRun_InterpreterFailureStillCleansUp(t *testing.T) {
	scratch := t.TempDir()
	stub := &stubLauncher{out: &launch.Outcome{ExitCode: 1}}
	r := NewRunner(stub, "packetdrill", scratch)

	out, err := r.Run(context.Background(), "bogus")
	require.NoError(t, err)
	assert.False(t, out.Success())
	assertNoScratch(t, scratch)
}

func TestRun_LaunchErrorStillCleansUp(t *testing.T) {
	scratch := t.TempDir()
	stub := &stubLauncher{err: launch.ErrStart}
	r := NewRunner(stub, "packetdrill", scratch)

	out, err := r.Run(context.Background(), ConnectedSocket)
	require.ErrorIs(t, err, launch.ErrStart)
	assert.Nil(t, out)

	var cleanupErr *CleanupError
	assert.False(t, errors.As(err, &cleanupErr), "launch failure is not a cleanup failure")
	assertNoScratch(t, scratch)
}

func TestRun_PanicStillCleansUp(t *testing.T) {
	scratch := t.TempDir()
	stub := &stubLauncher{explode: true}
	r := NewRunner(stub, "packetdrill", scratch)

	assert.Panics(t, func() {
		_, _ = r.Run(context.Background(), ConnectedSocket)
	})
	assertNoScratch(t, scratch)
}

func TestRun_CleanupFailureReportedDistinctly(t *testing.T) {
	scratch := t.TempDir()
	stub := &stubLauncher{out: &launch.Outcome{ExitCode: 0}}
	r := NewRunner(stub, "packetdrill", scratch)
	r.remove = func(string) error { return syscall.EPERM }

	out, err := r.Run(context.Background(), ConnectedSocket)
	require.Error(t, err)
	require.NotNil(t, out, "interpreter result survives a cleanup failure")
	assert.True(t, out.Success())

	var cleanupErr *CleanupError
	require.True(t, errors.As(err, &cleanupErr))
	assert.Equal(t, stub.spec.Command[1], cleanupErr.Path)
	assert.ErrorIs(t, err, syscall.EPERM)
}

func TestRun_CleanupAndLaunchFailureBothReported(t *testing.T) {
	stub := &stubLauncher{err: launch.ErrStart}
	r := NewRunner(stub, "packetdrill", t.TempDir())
	r.remove = func(string) error { return syscall.EPERM }

	_, err := r.Run(context.Background(), ConnectedSocket)
	require.ErrorIs(t, err, launch.ErrStart)

	var cleanupErr *CleanupError
	assert.True(t, errors.As(err, &cleanupErr))
}

func TestRun_ScratchDirMissing(t *testing.T) {
	stub := &stubLauncher{}
	r := NewRunner(stub, "packetdrill", filepath.Join(t.TempDir(), "absent"))

	_, err := r.Run(context.Background(), ConnectedSocket)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create scratch script")
	assert.Empty(t, stub.spec.Command, "nothing launched")
}

func TestRunFile(t *testing.T) {
	scratch := t.TempDir()
	src := filepath.Join(t.TempDir(), "handshake.pkt")
	require.NoError(t, os.WriteFile(src, []byte(ConnectedSocket), 0644))

	stub := &stubLauncher{out: &launch.Outcome{}}
	r := NewRunner(stub, "packetdrill", scratch)

	_, err := r.RunFile(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, ConnectedSocket, stub.content)
	assertNoScratch(t, scratch)

	_, err = os.Stat(src)
	require.NoError(t, err, "the source script is never removed")

	_, err = r.RunFile(context.Background(), filepath.Join(t.TempDir(), "missing.pkt"))
	require.Error(t, err)
}

func TestBuiltin(t *testing.T) {
	s, err := Builtin("connected_socket")
	require.NoError(t, err)
	assert.Equal(t, ConnectedSocket, s)
	assert.Equal(t, []string{"connected_socket"}, BuiltinNames())

	_, err = Builtin("nope")
	require.Error(t, err)
}

// End-to-end through the fake tool and interpreter.

func TestRun_EndToEnd(t *testing.T) {
	env := testutil.NewFakeEnv(t)
	d, err := launch.New(env.Config)
	require.NoError(t, err)
	r := FromDriver(d)

	tests := []struct {
		name    string
		script  string
		success bool
	}{
		{"interpreter succeeds", ConnectedSocket, true},
		{"interpreter fails", "FAIL: expected SYN", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Run(context.Background(), tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.success, out.Success())

			recorded := env.RecordedScripts(t)
			require.NotEmpty(t, recorded)
			last := recorded[len(recorded)-1]
			_, statErr := os.Stat(last)
			assert.True(t, os.IsNotExist(statErr), "scratch %s should be removed", last)
			assertNoScratch(t, env.Config.ScratchDir)

			run, err := out.Latest()
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(run.Name(), "fakeinterp_"), run.Name())
		})
	}
}
