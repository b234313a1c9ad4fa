package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/snitchkit/internal/testutil"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// createTestStore opens a fresh store in t.TempDir with fixed IDs and clock.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path,
		WithIDGenerator(testutil.NewFixedIDGenerator("run")),
		WithClock(func() time.Time { return testEpoch }),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// recordTestRun records a passing run of scenario with conns connections.
func recordTestRun(t *testing.T, s *Store, scenario string, conns int) string {
	t.Helper()
	rec := RunRecord{
		Scenario: scenario,
		Pass:     true,
		RunDir:   "/tmp/runs/" + scenario + "_100",
	}
	for i := 0; i < conns; i++ {
		rec.Conns = append(rec.Conns, ConnectionRecord{
			Connection: i,
			EventTypes: []string{"socket", "close"},
		})
	}
	id, err := s.RecordRun(context.Background(), rec)
	if err != nil {
		t.Fatalf("RecordRun() failed: %v", err)
	}
	return id
}
