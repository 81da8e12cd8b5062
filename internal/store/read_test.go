package store

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hoorsana/Observer-2/internal/digest"
	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

func TestReadResult_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := createTestResult("run-1")
	_, err := s.WriteResult(ctx, want, "")
	require.NoError(t, err)

	got, err := s.ReadResult(ctx, "run-1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ReadResult() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadResult_AbortedKeepsErrorText(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteResult(ctx, createAbortedResult("run-x"), "")
	require.NoError(t, err)

	got, err := s.ReadResult(ctx, "run-x")
	require.NoError(t, err)
	require.Error(t, got.Err)
	assert.Equal(t, "driver: advance to t=1: dac lost", got.Err.Error())
	assert.Equal(t, engine.SeverityError, got.Logbook[0].Severity)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ReadResult(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRuns_InsertionOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-b", "run-a", "run-c"} {
		_, err := s.WriteResult(ctx, createTestResult(id), "")
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	var ids []string
	for i, r := range runs {
		ids = append(ids, r.ID)
		assert.Equal(t, int64(i+1), r.Seq)
	}
	assert.Equal(t, []string{"run-b", "run-a", "run-c"}, ids)
}

func TestListRuns_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestReadLogbook_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	res := createTestResult("run-1")
	res.Logbook[0], res.Logbook[2] = res.Logbook[2], res.Logbook[0]
	_, err := s.WriteResult(ctx, res, "")
	require.NoError(t, err)

	entries, err := s.ReadLogbook(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestReadSeries_OrderedByTime(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	res := createTestResult("run-1")
	res.Timeseries[sumKey] = timeseries.Series{{Time: 1, Value: 3}, {Time: 0, Value: 1}, {Time: 0.5, Value: 2}}
	_, err := s.WriteResult(ctx, res, "")
	require.NoError(t, err)

	got, err := s.ReadSeries(ctx, "run-1", sumKey)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, got.Times())
	assert.Equal(t, []float64{1, 2, 3}, got.Values())
}

func TestReadKeys_IncludesEmptySeries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteResult(ctx, createTestResult("run-1"), "")
	require.NoError(t, err)

	keys, err := s.ReadKeys(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []timeseries.Key{outKey, sumKey}, keys)

	empty, err := s.ReadSeries(ctx, "run-1", outKey)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReads_IsolatedPerRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteResult(ctx, createTestResult("run-1"), "")
	require.NoError(t, err)
	_, err = s.WriteResult(ctx, createAbortedResult("run-2"), "")
	require.NoError(t, err)

	series, err := s.ReadSeries(ctx, "run-2", sumKey)
	require.NoError(t, err)
	assert.Len(t, series, 1)

	keys, err := s.ReadKeys(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, []timeseries.Key{sumKey}, keys)
}

func TestRunsWithSeverity(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteResult(ctx, createTestResult("run-1"), "")
	require.NoError(t, err)
	_, err = s.WriteResult(ctx, createAbortedResult("run-2"), "")
	require.NoError(t, err)

	ids, err := s.RunsWithSeverity(ctx, engine.SeverityError)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-2"}, ids)

	ids, err = s.RunsWithSeverity(ctx, engine.SeverityInfo)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, ids)

	ids, err = s.RunsWithSeverity(ctx, engine.SeverityPanic)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRunsWithDigest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, res := range []*engine.Result{createTestResult("run-1"), createAbortedResult("run-2"), createTestResult("run-3")} {
		_, err := s.WriteResult(ctx, res, "")
		require.NoError(t, err)
	}

	ids, err := s.RunsWithDigest(ctx, digest.MustBundle(createTestResult("any")))
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1", "run-3"}, ids)

	ids, err = s.RunsWithDigest(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)
}

func TestReadRun_DigestSurvivesRoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-1", "run-2"} {
		_, err := s.WriteResult(ctx, createTestResult(id), "")
		require.NoError(t, err)
	}

	r1, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	r2, err := s.ReadRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, digest.MustBundle(createTestResult("run-1")), r1.Digest)
	assert.Equal(t, r1.Digest, r2.Digest, "same content, same digest")

	// The reassembled bundle hashes to what was stored.
	back, err := s.ReadResult(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, r1.Digest, digest.MustBundle(back))

	_, err = s.WriteResult(ctx, createAbortedResult("run-x"), "")
	require.NoError(t, err)
	rx, err := s.ReadRun(ctx, "run-x")
	require.NoError(t, err)
	assert.NotEqual(t, r1.Digest, rx.Digest)
}
