package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// Snapshot renders a run for golden comparison: final state, reached time,
// the logbook and every series. Run ids and error wording are left out so
// snapshots only change when behaviour does.
func Snapshot(scenario string, run *engine.Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", scenario)
	fmt.Fprintf(&b, "state: %s\n", run.State)
	fmt.Fprintf(&b, "reached: %g\n", run.Reached)

	b.WriteString("logbook:\n")
	for _, e := range run.Logbook {
		fmt.Fprintf(&b, "  %d %s\n", e.Seq, e)
	}

	b.WriteString("series:\n")
	for _, k := range timeseries.Keys(run.Timeseries) {
		fmt.Fprintf(&b, "  %s:", k)
		for _, smp := range run.Timeseries[k] {
			fmt.Fprintf(&b, " %g=%g", smp.Time, smp.Value)
		}
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}

	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's snapshot against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, Snapshot(name, result.Run))
}
