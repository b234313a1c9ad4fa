package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no ledger record matches a lookup.
var ErrNotFound = errors.New("run record not found")

// RunRecord is one scenario execution.
type RunRecord struct {
	ID        string             `json:"id"`
	Seq       int64              `json:"seq"`
	Scenario  string             `json:"scenario"`
	Pass      bool               `json:"pass"`
	ExitCode  int                `json:"exit_code"`
	RunDir    string             `json:"run_dir,omitempty"`
	LogErrors int                `json:"log_errors"`
	Errors    []string           `json:"errors"`
	StartedAt time.Time          `json:"started_at"`
	Conns     []ConnectionRecord `json:"connections"`
}

// ConnectionRecord is one connection observed by a run.
type ConnectionRecord struct {
	Connection int      `json:"connection"`
	EventTypes []string `json:"event_types"`
	Error      string   `json:"error,omitempty"`
}

// RecordRun inserts rec and its connections in one transaction. ID and Seq
// are assigned by the store; the assigned ID is returned. A zero StartedAt
// is set to the store clock.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) (string, error) {
	if rec.Scenario == "" {
		return "", errors.New("record run: scenario is required")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.now()
	}

	errorsJSON, err := marshalStrings(rec.Errors)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM scenario_runs`).Scan(&seq); err != nil {
		return "", fmt.Errorf("record run: next seq: %w", err)
	}

	id := s.ids.Generate()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO scenario_runs
		(id, seq, scenario, pass, exit_code, run_dir, log_errors, errors, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		seq,
		rec.Scenario,
		rec.Pass,
		rec.ExitCode,
		rec.RunDir,
		rec.LogErrors,
		errorsJSON,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}

	for _, c := range rec.Conns {
		typesJSON, err := marshalStrings(c.EventTypes)
		if err != nil {
			return "", fmt.Errorf("record run: connection %d: %w", c.Connection, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_connections (run_id, connection, event_types, error)
			VALUES (?, ?, ?, ?)
		`, id, c.Connection, typesJSON, c.Error)
		if err != nil {
			return "", fmt.Errorf("record run: connection %d: %w", c.Connection, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("record run: commit: %w", err)
	}
	return id, nil
}

// ListRuns returns up to limit records, newest first. A limit <= 0 returns
// every record.
//
// Returns an empty slice (not nil) when the ledger is empty.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT id, seq, scenario, pass, exit_code, run_dir, log_errors, errors, started_at
		FROM scenario_runs
		ORDER BY seq DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	records := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	for i := range records {
		if records[i].Conns, err = s.readConnections(ctx, records[i].ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// LatestRun returns the most recent record for scenario, or ErrNotFound.
func (s *Store) LatestRun(ctx context.Context, scenario string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, seq, scenario, pass, exit_code, run_dir, log_errors, errors, started_at
		FROM scenario_runs
		WHERE scenario = ?
		ORDER BY seq DESC
		LIMIT 1
	`, scenario)

	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: scenario %q", ErrNotFound, scenario)
	}
	if err != nil {
		return nil, err
	}

	if rec.Conns, err = s.readConnections(ctx, rec.ID); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) readConnections(ctx context.Context, runID string) ([]ConnectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT connection, event_types, error
		FROM run_connections
		WHERE run_id = ?
		ORDER BY connection ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()

	conns := []ConnectionRecord{}
	for rows.Next() {
		var c ConnectionRecord
		var typesJSON string
		if err := rows.Scan(&c.Connection, &typesJSON, &c.Error); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		if c.EventTypes, err = unmarshalStrings(typesJSON); err != nil {
			return nil, fmt.Errorf("connection %d event types: %w", c.Connection, err)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return conns, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var rec RunRecord
	var errorsJSON, startedAt string
	err := sc.Scan(
		&rec.ID,
		&rec.Seq,
		&rec.Scenario,
		&rec.Pass,
		&rec.ExitCode,
		&rec.RunDir,
		&rec.LogErrors,
		&errorsJSON,
		&startedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan run: %w", err)
	}

	if rec.Errors, err = unmarshalStrings(errorsJSON); err != nil {
		return rec, fmt.Errorf("run %s errors: %w", rec.ID, err)
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return rec, fmt.Errorf("run %s started_at: %w", rec.ID, err)
	}
	return rec, nil
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalStrings(s string) ([]string, error) {
	out := []string{}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}
