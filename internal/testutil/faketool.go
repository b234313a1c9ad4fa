package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/roach88/snitchkit/internal/config"
)

// Environment variables understood by the fake tool.
const (
	// FakeConnectionsEnv sets how many connection directories the fake tool
	// creates (default 1).
	FakeConnectionsEnv = "FAKE_TOOL_CONNECTIONS"

	// FakeErrorEnv, when non-empty, is appended to the run log as an
	// error-marked line.
	FakeErrorEnv = "FAKE_TOOL_ERROR"

	// FakeCrashEnv makes the fake tool exit 70 before creating a run.
	FakeCrashEnv = "FAKE_TOOL_CRASH"

	// FakePreloadVar is the injection variable used by fake environments.
	// It is harmless to the dynamic loader, unlike LD_PRELOAD.
	FakePreloadVar = "SNITCHKIT_TEST_PRELOAD"

	// FakeLibrary is the library path fake environments inject.
	FakeLibrary = "/opt/snitchkit/libfake.so"
)

// fakeToolScript mimics the instrumented tool's file contract: it honours the
// destination flag, writes one run directory named <command>_<pid> with a log
// and per-connection artifacts, then execs the wrapped command.
const fakeToolScript = `#!/bin/sh
dest=""
while [ $# -gt 0 ]; do
	case "$1" in
	-d)
		dest="$2"
		shift 2
		;;
	--)
		shift
		break
		;;
	-*)
		shift
		;;
	*)
		break
		;;
	esac
done

if [ -z "$dest" ] || [ $# -eq 0 ]; then
	echo "usage: faketool -d <dir> [options] <command> [args...]" >&2
	exit 64
fi

if [ -n "$FAKE_TOOL_CRASH" ]; then
	echo "faketool: crashing" >&2
	exit 70
fi

run="$dest/$(basename "$1")_$$"
mkdir -p "$run"
echo "[INFO] run started for $1" > "$run/@LOG@"
echo "[INFO] injected @VAR@=$@VAR@" >> "$run/@LOG@"

n="${FAKE_TOOL_CONNECTIONS:-1}"
i=0
while [ "$i" -lt "$n" ]; do
	mkdir -p "$run/$i"
	printf '[{"type":"socket","timestamp":{"sec":1,"usec":2},"return_value":3,"success":true,"error_str":"","details":{"domain":"AF_INET","type":"SOCK_STREAM","protocol":6}},{"type":"close","timestamp":{"sec":1,"usec":9},"return_value":0,"success":true,"error_str":"","details":{}}]\n' > "$run/$i/@META@"
	printf '\324\303\262\241\002\000\004\000' > "$run/$i/@PCAP@"
	i=$((i + 1))
done

if [ -n "$FAKE_TOOL_ERROR" ]; then
	echo "@MARKER@ $FAKE_TOOL_ERROR" >> "$run/@LOG@"
fi

echo "faketool: run $run"
echo "faketool: wrapping $1" >&2
exec "$@"
`

// fakeInterpreterScript stands in for the packet script interpreter. It
// records the script path it was given, then fails if the script contains
// the word FAIL.
const fakeInterpreterScript = `#!/bin/sh
if [ ! -f "$1" ]; then
	echo "interpreter: missing script $1" >&2
	exit 2
fi
echo "$1" >> "@RECORD@"
if grep -q FAIL "$1"; then
	echo "interpreter: script failed" >&2
	exit 1
fi
exit 0
`

// FakeEnv is a self-contained harness environment backed by the fake tool.
type FakeEnv struct {
	Dir    string
	Config config.Config

	// Record is the file the fake interpreter appends script paths to.
	Record string
}

// RequirePOSIX skips the test when /bin/sh scripts cannot be run.
func RequirePOSIX(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH")
	}
}

// NewFakeEnv lays out a fake tool, interpreter, binary directory, run root
// and scratch directory under t.TempDir and returns a matching config.
func NewFakeEnv(t *testing.T) *FakeEnv {
	t.Helper()
	RequirePOSIX(t)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Tool = filepath.Join(dir, "bin", "faketool")
	cfg.Interpreter = filepath.Join(dir, "bin", "fakeinterp")
	cfg.Library = FakeLibrary
	cfg.PreloadVar = FakePreloadVar
	cfg.RunRoot = filepath.Join(dir, "runs")
	cfg.BinDir = filepath.Join(dir, "c_programs")
	cfg.ScratchDir = filepath.Join(dir, "scratch")

	env := &FakeEnv{
		Dir:    dir,
		Config: cfg,
		Record: filepath.Join(dir, "interpreter.record"),
	}

	for _, d := range []string{filepath.Join(dir, "bin"), cfg.BinDir, cfg.ScratchDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}

	tool := strings.NewReplacer(
		"@LOG@", cfg.LogFile,
		"@META@", cfg.MetadataFile,
		"@PCAP@", cfg.CaptureFile,
		"@MARKER@", cfg.ErrorMarker,
		"@VAR@", cfg.PreloadVar,
	).Replace(fakeToolScript)
	writeExecutable(t, cfg.Tool, tool)

	interp := strings.ReplaceAll(fakeInterpreterScript, "@RECORD@", env.Record)
	writeExecutable(t, cfg.Interpreter, interp)

	return env
}

// AddBinary writes a compiled-test stand-in named file into the binary
// directory that exits with code.
func (e *FakeEnv) AddBinary(t *testing.T, file string, code int) string {
	t.Helper()
	path := filepath.Join(e.Config.BinDir, file)
	writeExecutable(t, path, "#!/bin/sh\nexit "+strconv.Itoa(code)+"\n")
	return path
}

// RecordedScripts returns the script paths the fake interpreter was given.
func (e *FakeEnv) RecordedScripts(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(e.Record)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Fields(string(data))
}

func writeExecutable(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatal(err)
	}
}
