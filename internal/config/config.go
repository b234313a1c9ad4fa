// Package config holds the harness configuration: where the instrumented tool
// and its injection library live, where runs are written, and the fixed names
// the tool uses for its artifacts.
//
// The values are threaded explicitly into the locator, the launch driver and
// the packet script runner instead of being process-wide constants.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/snitchkit/internal/runs"
)

// DefaultFile is the config file name looked up when --config is not given.
const DefaultFile = "snitchkit.yaml"

// Config is the harness configuration.
type Config struct {
	// Tool is the instrumented tool executable.
	Tool string `yaml:"tool"`

	// DestFlag is the tool option that takes the run root.
	DestFlag string `yaml:"dest_flag"`

	// Library is the shared library injected into the target.
	Library string `yaml:"library"`

	// PreloadVar is the environment variable used for injection.
	PreloadVar string `yaml:"preload_var"`

	// RunRoot is the directory the tool writes runs into.
	RunRoot string `yaml:"run_root"`

	// RunPattern is the glob run directory names match.
	RunPattern string `yaml:"run_pattern"`

	LogFile      string `yaml:"log_file"`
	MetadataFile string `yaml:"metadata_file"`
	CaptureFile  string `yaml:"capture_file"`

	// ErrorMarker tags error lines in the run log.
	ErrorMarker string `yaml:"error_marker"`

	// BinDir holds the compiled test binaries.
	BinDir string `yaml:"bin_dir"`

	// BinSuffix is the file suffix of compiled test binaries.
	BinSuffix string `yaml:"bin_suffix"`

	// Interpreter runs packet scripts.
	Interpreter string `yaml:"interpreter"`

	// ScratchDir holds temporary packet scripts. Empty means os.TempDir().
	ScratchDir string `yaml:"scratch_dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Tool:         "tcpsnitch",
		DestFlag:     "-d",
		Library:      "/usr/local/lib/libtcpsnitch.so",
		PreloadVar:   "LD_PRELOAD",
		RunRoot:      "snitch_runs",
		RunPattern:   "*_[0-9]*",
		LogFile:      "log.txt",
		MetadataFile: "events.json",
		CaptureFile:  "dump.pcap",
		ErrorMarker:  "[ERROR]",
		BinDir:       "c_programs",
		BinSuffix:    ".out",
		Interpreter:  "packetdrill",
	}
}

// Load reads the YAML file at path over the defaults, resolves relative
// paths against the file's directory and validates the result.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg = cfg.resolve(filepath.Dir(path))

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it is non-empty, else DefaultFile if it
// exists in the working directory, else the defaults.
func LoadOrDefault(path string) (Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return Load(DefaultFile)
	}
	cfg := Default()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Layout returns the artifact layout described by the config.
func (c Config) Layout() runs.Layout {
	return runs.Layout{
		MetadataFile: c.MetadataFile,
		CaptureFile:  c.CaptureFile,
		LogFile:      c.LogFile,
	}
}

// Locator builds a run locator for the configured pattern and layout.
func (c Config) Locator() (*runs.Locator, error) {
	return runs.NewLocator(c.RunPattern, c.Layout())
}

// resolve makes relative paths absolute against base. Tool and interpreter
// are only resolved when they contain a separator; bare names go through PATH.
func (c Config) resolve(base string) Config {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	cmd := func(p string) string {
		if strings.ContainsRune(p, filepath.Separator) {
			return abs(p)
		}
		return p
	}

	c.RunRoot = abs(c.RunRoot)
	c.BinDir = abs(c.BinDir)
	c.Library = abs(c.Library)
	c.ScratchDir = abs(c.ScratchDir)
	c.Tool = cmd(c.Tool)
	c.Interpreter = cmd(c.Interpreter)
	return c
}

// fields returns the config as a plain map keyed by YAML names.
func (c Config) fields() map[string]any {
	return map[string]any{
		"tool":          c.Tool,
		"dest_flag":     c.DestFlag,
		"library":       c.Library,
		"preload_var":   c.PreloadVar,
		"run_root":      c.RunRoot,
		"run_pattern":   c.RunPattern,
		"log_file":      c.LogFile,
		"metadata_file": c.MetadataFile,
		"capture_file":  c.CaptureFile,
		"error_marker":  c.ErrorMarker,
		"bin_dir":       c.BinDir,
		"bin_suffix":    c.BinSuffix,
		"interpreter":   c.Interpreter,
		"scratch_dir":   c.ScratchDir,
	}
}
