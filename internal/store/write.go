package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Hoorsana/Observer-2/internal/digest"
	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// WriteResult stores a finished run's bundle: the run row, every logged
// key, its samples and the logbook, in one transaction.
//
// Writes are idempotent per run id. If the run already exists nothing is
// written and inserted is false.
func (s *Store) WriteResult(ctx context.Context, res *engine.Result, description string) (inserted bool, err error) {
	if res == nil {
		return false, errors.New("write result: nil result")
	}
	if !res.State.Terminal() {
		return false, fmt.Errorf("write result: run %s is %s, not finished", res.RunID, res.State)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write result: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	sum, err := digest.Bundle(res)
	if err != nil {
		return false, fmt.Errorf("write result: %w", err)
	}

	var errText string
	if res.Err != nil {
		errText = res.Err.Error()
	}
	r, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, description, final_state, duration, reached, error, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, res.RunID, description, string(res.State), res.Duration, res.Reached, errText, sum)
	if err != nil {
		return false, fmt.Errorf("write run: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write run: rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	for _, e := range res.Logbook {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO logbook_entries (run_id, seq, what, severity, data)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, res.RunID, e.Seq, e.What, string(e.Severity), e.Data); err != nil {
			return false, fmt.Errorf("write logbook entry %d: %w", e.Seq, err)
		}
	}

	for _, key := range timeseries.Keys(res.Timeseries) {
		if err := writeSeries(ctx, tx, res.RunID, key, res.Timeseries[key]); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write result: commit: %w", err)
	}
	return true, nil
}

func writeSeries(ctx context.Context, tx *sql.Tx, runID string, key timeseries.Key, series timeseries.Series) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO series (run_id, target, signal)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, runID, key.Target, key.Signal); err != nil {
		return fmt.Errorf("write series %s: %w", key, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO samples (run_id, target, signal, time, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write series %s: prepare: %w", key, err)
	}
	defer stmt.Close()

	for _, smp := range series {
		if _, err := stmt.ExecContext(ctx, runID, key.Target, key.Signal, smp.Time, smp.Value); err != nil {
			return fmt.Errorf("write sample %s@%g: %w", key, smp.Time, err)
		}
	}
	return nil
}
