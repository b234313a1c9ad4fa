// Package store provides the SQLite-backed run ledger: a history of scenario
// executions and the connections each one observed.
//
// # Tables
//
//   - scenario_runs: one row per execution (pass, exit code, run directory,
//     error-line count, assertion failures)
//   - run_connections: per-connection event types for a run
//
// # Ordering
//
// Rows are ordered by seq, assigned at insert time. Wall-clock started_at is
// informational only, so ordering survives clock changes.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Record IDs are UUIDv7 by default; tests inject a fixed IDGenerator.
package store
