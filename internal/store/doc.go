// Package store provides SQLite-backed storage for run result bundles.
//
// A bundle is a run summary, its logbook and one series per logged signal:
//   - runs: one row per run id with final state, duration, reached time,
//     error text and the bundle digest
//   - series: every requested key, so empty series survive a round trip
//   - samples: (time, value) pairs keyed by run, target and signal
//   - logbook_entries: entries keyed by run and logical sequence number
//
// Writes are idempotent per run id. Reads are deterministic: runs come back
// in insertion order, logbooks by seq, samples by time. Wall-clock time is
// never stored or used for ordering.
//
// Two indexed lookups answer the questions a report asks of many runs:
// RunsWithDigest finds runs that observed exactly the same thing, and
// RunsWithSeverity finds runs that logged an error or a panic.
//
// Schema changes after the initial schema are numbered migrations tracked in
// PRAGMA user_version.
package store
