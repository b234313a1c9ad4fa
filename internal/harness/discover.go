package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioDirError is returned when a scenario directory cannot be used.
type ScenarioDirError struct {
	Dir string
	Err error
}

// Error implements the error interface.
func (e *ScenarioDirError) Error() string {
	return fmt.Sprintf("scenario directory %q: %v", e.Dir, e.Err)
}

func (e *ScenarioDirError) Unwrap() error {
	return e.Err
}

// DiscoverScenarios lists the scenario files (*.yaml, *.yml) directly inside
// dir, sorted by name. When filter is non-empty only files whose base name
// contains it are returned.
func DiscoverScenarios(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ScenarioDirError{Dir: dir, Err: err}
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}

	sort.Strings(paths)
	return paths, nil
}
