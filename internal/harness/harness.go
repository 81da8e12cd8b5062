package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Hoorsana/Observer-2/internal/driver/sim"
	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/loader"
	"github.com/Hoorsana/Observer-2/internal/store"
	"github.com/Hoorsana/Observer-2/internal/testutil"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// Option configures a scenario run.
type Option func(*config)

type config struct {
	logger   *slog.Logger
	store    *store.Store
	runIDs   engine.RunIDGenerator
	loadOpts []loader.Option
}

// WithLogger sets the logger handed to the coordinator and the simulation
// driver. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithStore persists each run into st instead of a private in-memory store.
// The caller keeps ownership of st.
func WithStore(st *store.Store) Option {
	return func(c *config) {
		c.store = st
	}
}

// WithRunIDs overrides run id generation. Default: "<scenario>-1" for every
// run, which keeps golden output stable.
func WithRunIDs(g engine.RunIDGenerator) Option {
	return func(c *config) {
		c.runIDs = g
	}
}

// WithLoaderOptions passes options to the bench and plan loader.
func WithLoaderOptions(opts ...loader.Option) Option {
	return func(c *config) {
		c.loadOpts = append(c.loadOpts, opts...)
	}
}

// Run executes a scenario on the simulation driver and returns the result.
//
// Execution flow:
// 1. Load the bench and plan
// 2. Run the plan with a run id derived from the scenario name
// 3. Persist the bundle to the store
// 4. Check the final state and evaluate assertions
//
// An error is returned only when the scenario cannot be executed at all;
// an aborted run or a failed assertion is reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.With("scenario", scenario.Name)

	bench, err := loader.LoadBench(scenario.Bench)
	if err != nil {
		return nil, fmt.Errorf("load bench: %w", err)
	}
	p, err := loader.LoadPlan(scenario.Plan, cfg.loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}

	st := cfg.store
	if st == nil {
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	var ids engine.RunIDGenerator = testutil.NewSequentialGenerator(scenario.Name)
	if cfg.runIDs != nil {
		ids = cfg.runIDs
	}
	coordOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRunIDGenerator(ids),
	}
	if scenario.Clamp {
		coordOpts = append(coordOpts, engine.WithClamping())
	}
	coord := engine.New(sim.New(sim.WithLogger(logger)), coordOpts...)

	run, runErr := coord.Run(ctx, engine.Config{
		Devices:     bench.Devices,
		Connections: bench.Connections,
		Plan:        p,
	})
	if _, err := st.WriteResult(ctx, run, scenario.Description); err != nil {
		return nil, fmt.Errorf("persist run %s: %w", run.RunID, err)
	}

	result := NewResult(scenario.Name)
	result.Run = run
	result.RunID = run.RunID
	result.State = run.State

	want := scenario.ExpectState
	if want == "" {
		want = engine.StateCompleted
	}
	if run.State != want {
		ae := &AssertionError{
			Type:     "expect_state",
			Expected: string(want),
			Actual:   string(run.State),
			Logbook:  run.Logbook,
		}
		if runErr != nil {
			ae.Actual += ": " + runErr.Error()
		}
		result.AddError(ae.Error())
	}

	kinds := make(map[timeseries.Key]timeseries.Interpolation, len(p.Logging))
	for _, req := range p.Logging {
		kinds[req.Key()] = req.Kind
	}
	actx := &AssertionContext{
		Ctx:   ctx,
		Run:   run,
		Kinds: kinds,
		Store: st,
	}
	for _, msg := range EvaluateAssertions(actx, scenario.Assertions) {
		result.AddError(msg)
	}

	logger.Info("scenario finished",
		"run_id", run.RunID,
		"state", run.State,
		"pass", result.Pass,
		"failures", len(result.Errors),
	)
	return result, nil
}

// RunAll executes scenarios in order. It stops at the first scenario that
// cannot be executed; failing scenarios do not stop it.
func RunAll(ctx context.Context, scenarios []*Scenario, opts ...Option) ([]*Result, error) {
	results := make([]*Result, 0, len(scenarios))
	for _, s := range scenarios {
		r, err := Run(ctx, s, opts...)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}
