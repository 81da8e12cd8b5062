package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// ErrNotFound is returned when a run id is not in the store.
var ErrNotFound = errors.New("run not found")

// Run is the summary row of a stored run.
type Run struct {
	// Seq orders runs by insertion.
	Seq         int64        `json:"seq"`
	ID          string       `json:"id"`
	Description string       `json:"description,omitempty"`
	State       engine.State `json:"state"`
	Duration    float64      `json:"duration"`
	Reached     float64      `json:"reached"`
	Error       string       `json:"error,omitempty"`
	Digest      string       `json:"digest"`
}

// ReadRun returns the summary of one run, or ErrNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, description, final_state, duration, reached, error, digest
		FROM runs
		WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return r, nil
}

// ListRuns returns every stored run in insertion order.
//
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, description, final_state, duration, reached, error, digest
		FROM runs
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// RunsWithDigest returns, in insertion order, the ids of runs whose bundle
// has the given digest.
func (s *Store) RunsWithDigest(ctx context.Context, digest string) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT id FROM runs
		WHERE digest = ?
		ORDER BY seq ASC
	`, digest)
}

// RunsWithSeverity returns, in insertion order, the ids of runs with at least
// one logbook entry of the given severity.
func (s *Store) RunsWithSeverity(ctx context.Context, sev engine.Severity) ([]string, error) {
	return s.queryIDs(ctx, `
		SELECT r.id FROM runs r
		WHERE EXISTS (
			SELECT 1 FROM logbook_entries e
			WHERE e.run_id = r.id AND e.severity = ?
		)
		ORDER BY r.seq ASC
	`, string(sev))
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run ids: %w", err)
	}
	return ids, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var state string
	if err := row.Scan(&r.Seq, &r.ID, &r.Description, &state, &r.Duration, &r.Reached, &r.Error, &r.Digest); err != nil {
		return Run{}, err
	}
	r.State = engine.State(state)
	return r, nil
}

// ReadLogbook returns a run's logbook in sequence order.
func (s *Store) ReadLogbook(ctx context.Context, runID string) ([]engine.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, what, severity, data
		FROM logbook_entries
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query logbook: %w", err)
	}
	defer rows.Close()

	entries := []engine.Entry{}
	for rows.Next() {
		var e engine.Entry
		var sev string
		if err := rows.Scan(&e.Seq, &e.What, &sev, &e.Data); err != nil {
			return nil, fmt.Errorf("scan logbook entry: %w", err)
		}
		e.Severity = engine.Severity(sev)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logbook: %w", err)
	}
	return entries, nil
}

// ReadKeys returns the logged keys of a run sorted by target then signal.
func (s *Store) ReadKeys(ctx context.Context, runID string) ([]timeseries.Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target, signal
		FROM series
		WHERE run_id = ?
		ORDER BY target COLLATE BINARY ASC, signal COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query series keys: %w", err)
	}
	defer rows.Close()

	keys := []timeseries.Key{}
	for rows.Next() {
		var k timeseries.Key
		if err := rows.Scan(&k.Target, &k.Signal); err != nil {
			return nil, fmt.Errorf("scan series key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series keys: %w", err)
	}
	return keys, nil
}

// ReadSeries returns one logged signal of a run in time order.
func (s *Store) ReadSeries(ctx context.Context, runID string, key timeseries.Key) (timeseries.Series, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, value
		FROM samples
		WHERE run_id = ? AND target = ? AND signal = ?
		ORDER BY time ASC
	`, runID, key.Target, key.Signal)
	if err != nil {
		return nil, fmt.Errorf("query samples %s: %w", key, err)
	}
	defer rows.Close()

	series := timeseries.Series{}
	for rows.Next() {
		var smp timeseries.Sample
		if err := rows.Scan(&smp.Time, &smp.Value); err != nil {
			return nil, fmt.Errorf("scan sample %s: %w", key, err)
		}
		series = append(series, smp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples %s: %w", key, err)
	}
	return series, nil
}

// ReadResult reassembles a stored bundle. The terminal error, if any, comes
// back as its message only.
func (s *Store) ReadResult(ctx context.Context, runID string) (*engine.Result, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	res := &engine.Result{
		RunID:      run.ID,
		State:      run.State,
		Duration:   run.Duration,
		Reached:    run.Reached,
		Timeseries: map[timeseries.Key]timeseries.Series{},
	}
	if run.Error != "" {
		res.Err = errors.New(run.Error)
	}

	if res.Logbook, err = s.ReadLogbook(ctx, runID); err != nil {
		return nil, err
	}

	keys, err := s.ReadKeys(ctx, runID)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if res.Timeseries[k], err = s.ReadSeries(ctx, runID, k); err != nil {
			return nil, err
		}
	}
	return res, nil
}
