package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator hands out predictable record IDs ("<prefix>-0001", ...)
// so ledger rows and golden output are stable across test runs.
//
// Safe for concurrent use.
type FixedIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedIDGenerator returns a generator using prefix, or "test-run" if empty.
func NewFixedIDGenerator(prefix string) *FixedIDGenerator {
	if prefix == "" {
		prefix = "test-run"
	}
	return &FixedIDGenerator{prefix: prefix}
}

// Generate returns the next ID.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%04d", g.prefix, g.n)
}
