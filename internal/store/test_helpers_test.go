package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var (
	sumKey = timeseries.Key{Target: "adder", Signal: "sum"}
	outKey = timeseries.Key{Target: "adder", Signal: "out"}
)

// createTestResult builds a completed bundle with one populated series and
// one empty one.
func createTestResult(runID string) *engine.Result {
	return &engine.Result{
		RunID:    runID,
		State:    engine.StateCompleted,
		Duration: 2,
		Reached:  2,
		Timeseries: map[timeseries.Key]timeseries.Series{
			sumKey: {{Time: 0, Value: 40}, {Time: 0.5, Value: 100}, {Time: 1, Value: 100}},
			outKey: {},
		},
		Logbook: []engine.Entry{
			{Seq: 1, What: "set_signal adder.val1 value=40", Severity: engine.SeverityInfo, Data: "t=0 dac.out1 value=2"},
			{Seq: 2, What: "sample adder.sum", Severity: engine.SeverityInfo, Data: "t=0"},
			{Seq: 3, What: "phase 0 end", Severity: engine.SeverityInfo, Data: "t=2"},
		},
	}
}

func createAbortedResult(runID string) *engine.Result {
	return &engine.Result{
		RunID:      runID,
		State:      engine.StateAborted,
		Duration:   2,
		Reached:    1,
		Timeseries: map[timeseries.Key]timeseries.Series{sumKey: {{Time: 0, Value: 40}}},
		Logbook: []engine.Entry{
			{Seq: 1, What: "advance to t=1", Severity: engine.SeverityError, Data: "dac lost"},
		},
		Err: errors.New("driver: advance to t=1: dac lost"),
	}
}
