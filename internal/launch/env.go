package launch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadEnv is returned for an environment override that is not KEY=VALUE.
var ErrBadEnv = errors.New("invalid environment override")

// parseEnv splits a KEY=VALUE override.
func parseEnv(spec string) (string, string, error) {
	if strings.HasPrefix(spec, "-") {
		return "", "", fmt.Errorf("%w %q: must not start with '-'", ErrBadEnv, spec)
	}
	idx := strings.Index(spec, "=")
	if idx < 0 {
		return "", "", fmt.Errorf("%w %q: expected KEY=VALUE", ErrBadEnv, spec)
	}
	key := spec[:idx]
	if key == "" || strings.TrimSpace(key) != key {
		return "", "", fmt.Errorf("%w %q: environment variable name is required", ErrBadEnv, spec)
	}
	return key, spec[idx+1:], nil
}

// validateEnv checks every override.
func validateEnv(env []string) error {
	for _, spec := range env {
		if _, _, err := parseEnv(spec); err != nil {
			return err
		}
	}
	return nil
}

// mergeEnv layers KEY=VALUE lists; a later layer replaces an earlier value
// for the same key in place. Base entries without '=' are kept verbatim.
func mergeEnv(layers ...[]string) []string {
	var out []string
	index := make(map[string]int)

	for _, layer := range layers {
		for _, kv := range layer {
			key := kv
			if i := strings.Index(kv, "="); i >= 0 {
				key = kv[:i]
			}
			if at, ok := index[key]; ok {
				out[at] = kv
				continue
			}
			index[key] = len(out)
			out = append(out, kv)
		}
	}
	return out
}
