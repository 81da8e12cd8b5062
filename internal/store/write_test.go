package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hoorsana/Observer-2/internal/engine"
)

func TestWriteResult(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	inserted, err := s.WriteResult(ctx, createTestResult("run-1"), "adder bench")
	require.NoError(t, err)
	assert.True(t, inserted)

	var runs, entries, samples, series int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&runs))
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM logbook_entries").Scan(&entries))
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM samples").Scan(&samples))
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM series").Scan(&series))
	assert.Equal(t, 1, runs)
	assert.Equal(t, 3, entries)
	assert.Equal(t, 3, samples)
	assert.Equal(t, 2, series)
}

func TestWriteResult_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteResult(ctx, createTestResult("run-1"), "first")
	require.NoError(t, err)

	again := createTestResult("run-1")
	again.Logbook = append(again.Logbook, engine.Entry{Seq: 4, What: "extra", Severity: engine.SeverityInfo})
	inserted, err := s.WriteResult(ctx, again, "second")
	require.NoError(t, err)
	assert.False(t, inserted)

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "first", run.Description)

	entries, err := s.ReadLogbook(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestWriteResult_Aborted(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteResult(ctx, createAbortedResult("run-x"), "")
	require.NoError(t, err)

	run, err := s.ReadRun(ctx, "run-x")
	require.NoError(t, err)
	assert.Equal(t, engine.StateAborted, run.State)
	assert.Equal(t, "driver: advance to t=1: dac lost", run.Error)
	assert.Equal(t, 1.0, run.Reached)
}

func TestWriteResult_Rejects(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteResult(ctx, nil, "")
	assert.Error(t, err)

	running := createTestResult("run-1")
	running.State = engine.StateRunning
	_, err = s.WriteResult(ctx, running, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not finished")

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestWriteResult_DuplicateSampleTimesKeepFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	res := createTestResult("run-1")
	res.Timeseries[sumKey] = append(res.Timeseries[sumKey], res.Timeseries[sumKey][2])
	_, err := s.WriteResult(ctx, res, "")
	require.NoError(t, err)

	series, err := s.ReadSeries(ctx, "run-1", sumKey)
	require.NoError(t, err)
	assert.Len(t, series, 3)
}

func TestWriteResult_CancelledContext(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.WriteResult(ctx, createTestResult("run-1"), "")
	require.Error(t, err)

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)
}
