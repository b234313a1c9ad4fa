package config

import (
	_ "embed"
	"fmt"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaCUE string

// Validate checks cfg against the embedded CUE schema and verifies the run
// pattern is a usable glob.
func Validate(cfg Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if !def.Exists() {
		return fmt.Errorf("config schema has no #Config definition")
	}

	value := ctx.Encode(cfg.fields())
	if err := value.Err(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", cueerrors.Details(err, nil))
	}

	if _, err := filepath.Match(cfg.RunPattern, ""); err != nil {
		return fmt.Errorf("run_pattern %q: %w", cfg.RunPattern, err)
	}
	return nil
}
