package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snitchkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoad_OverridesAndResolvesPaths(t *testing.T) {
	path := writeConfig(t, `
tool: ./bin/tcpsnitch
run_root: out
bin_dir: /opt/c_programs
interpreter: packetdrill
error_marker: "[ERR]"
`)
	dir := filepath.Dir(path)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "bin", "tcpsnitch"), cfg.Tool)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.RunRoot)
	assert.Equal(t, "/opt/c_programs", cfg.BinDir)
	assert.Equal(t, "packetdrill", cfg.Interpreter, "bare names stay on PATH")
	assert.Equal(t, "[ERR]", cfg.ErrorMarker)
	// Untouched fields keep their defaults.
	assert.Equal(t, "LD_PRELOAD", cfg.PreloadVar)
	assert.Equal(t, "events.json", cfg.MetadataFile)
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Tool, cfg.Tool)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "snitch_runs"), cfg.RunRoot)
}

func TestLoad_UnknownField(t *testing.T) {
	path := writeConfig(t, "tool: x\nrun_rot: typo\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty tool", func(c *Config) { c.Tool = "" }},
		{"dest flag without dash", func(c *Config) { c.DestFlag = "d" }},
		{"bad preload var", func(c *Config) { c.PreloadVar = "LD PRELOAD" }},
		{"log file with separator", func(c *Config) { c.LogFile = "logs/log.txt" }},
		{"empty marker", func(c *Config) { c.ErrorMarker = "" }},
		{"bad glob", func(c *Config) { c.RunPattern = "[" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestLayoutAndLocator(t *testing.T) {
	cfg := Default()

	layout := cfg.Layout()
	assert.Equal(t, "events.json", layout.MetadataFile)
	assert.Equal(t, "dump.pcap", layout.CaptureFile)
	assert.Equal(t, "log.txt", layout.LogFile)

	loc, err := cfg.Locator()
	require.NoError(t, err)
	assert.Equal(t, cfg.RunPattern, loc.Pattern())
}
