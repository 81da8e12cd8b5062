package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Hoorsana/Observer-2/internal/network"
	"github.com/Hoorsana/Observer-2/internal/plan"
	"github.com/Hoorsana/Observer-2/internal/rangemap"
	"github.com/Hoorsana/Observer-2/internal/schedule"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// State is the lifecycle position of a run.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateScheduled  State = "scheduled"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateAborted    State = "aborted"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Config is everything a run needs besides the driver.
type Config struct {
	Devices     []network.DeviceSpec
	Connections []network.ConnectionSpec
	Plan        *plan.TestPlan
}

// Result is the bundle handed back after a run reaches a terminal state.
// On abort it still holds everything collected up to the failure.
type Result struct {
	RunID      string
	State      State
	Timeseries map[timeseries.Key]timeseries.Series
	Logbook    []Entry
	// Duration is the plan's total duration; zero if validation failed.
	Duration float64
	// Reached is the furthest time the driver was advanced to.
	Reached float64
	// Err is the terminal error of an aborted run.
	Err error
}

// Coordinator drives a Driver through a plan's timeline.
//
// A Coordinator executes one run at a time and is not safe for concurrent
// Run calls. Everything happens on the caller's goroutine: events are applied
// in timeline order and cancellation is only observed between events.
type Coordinator struct {
	driver  Driver
	logger  *slog.Logger
	runIDs  RunIDGenerator
	clamp   bool
	metrics *metrics
	state   State
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithRunIDGenerator overrides run ID generation. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(c *Coordinator) {
		c.runIDs = g
	}
}

// WithClamping makes every range mapping clamp into the destination range
// instead of aborting the run with an Unrepresentable error.
func WithClamping() Option {
	return func(c *Coordinator) {
		c.clamp = true
	}
}

// WithMetrics registers run, event and driver metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Coordinator) {
		c.metrics = newMetrics(reg)
	}
}

// New creates a Coordinator for driver.
func New(driver Driver, opts ...Option) *Coordinator {
	c := &Coordinator{
		driver: driver,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		runIDs: UUIDv7Generator{},
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the state of the current or most recent run.
func (c *Coordinator) State() State {
	return c.state
}

func (c *Coordinator) setState(s State, logger *slog.Logger) {
	logger.Debug("state transition", "from", c.state, "to", s)
	c.state = s
}

// run is the mutable state of one execution, owned by the Run call.
type run struct {
	c       *Coordinator
	id      string
	logger  *slog.Logger
	log     *Logbook
	plan    *plan.TestPlan
	series  map[timeseries.Key]timeseries.Series
	convert map[timeseries.Key]*rangemap.Chain
	now     float64
	// advanced is set once the driver has produced its first segment.
	advanced bool
}

// Run validates cfg, schedules the plan and executes it against the driver.
//
// The returned Result is never nil. The error is nil exactly when the run
// completed; otherwise it is a *RunError whose cause is also recorded as the
// last error or panic entry of the logbook.
func (c *Coordinator) Run(ctx context.Context, cfg Config) (*Result, error) {
	r := &run{
		c:      c,
		id:     c.runIDs.Generate(),
		log:    NewLogbook(NewClockAt(0)),
		plan:   cfg.Plan,
		series: make(map[timeseries.Key]timeseries.Series),
	}
	r.logger = c.logger.With("run", r.id)
	c.state = StateIdle

	c.setState(StateValidating, r.logger)
	net, tl, err := c.validate(cfg)
	if err != nil {
		r.log.Append(SeverityPanic, "validate", err.Error())
		return r.finish(StateAborted, 0, &RunError{Code: ErrCodeValidation, Message: "run rejected", Err: err})
	}
	if r.convert, err = c.sampleChains(net, cfg.Plan.Logging); err != nil {
		r.log.Append(SeverityPanic, "validate", err.Error())
		return r.finish(StateAborted, 0, &RunError{Code: ErrCodeValidation, Message: "run rejected", Err: err})
	}
	for _, req := range cfg.Plan.Logging {
		r.series[req.Key()] = timeseries.Series{}
	}
	c.setState(StateScheduled, r.logger)

	r.logger.Info("run starting",
		"devices", len(net.Devices()),
		"connections", len(net.Connections()),
		"phases", len(cfg.Plan.Phases),
		"events", tl.Len(),
		"duration", tl.Duration())

	c.setState(StateRunning, r.logger)
	if err := r.execute(ctx, net, tl); err != nil {
		return r.finish(StateAborted, tl.Duration(), err)
	}
	return r.finish(StateCompleted, tl.Duration(), nil)
}

func (c *Coordinator) validate(cfg Config) (*network.Network, *schedule.Timeline, error) {
	if cfg.Plan == nil {
		return nil, nil, fmt.Errorf("no test plan")
	}
	net, err := network.Build(cfg.Devices, cfg.Connections, c.chainOptions()...)
	if err != nil {
		return nil, nil, fmt.Errorf("build network: %w", err)
	}
	if err := plan.Check(cfg.Plan, net); err != nil {
		return nil, nil, fmt.Errorf("check plan: %w", err)
	}
	tl, err := schedule.Build(cfg.Plan)
	if err != nil {
		return nil, nil, fmt.Errorf("schedule plan: %w", err)
	}
	return net, tl, nil
}

func (r *run) execute(ctx context.Context, net *network.Network, tl *schedule.Timeline) error {
	lc, hasLifecycle := r.c.driver.(Lifecycle)
	if hasLifecycle {
		setup := Setup{RunID: r.id, Network: net, Logging: r.plan.Logging, Duration: tl.Duration()}
		if err := lc.Start(ctx, setup); err != nil {
			return r.driverFailed("start", "start driver", 0, err)
		}
	}

	err := r.loop(ctx, net, tl)

	if hasLifecycle {
		// Teardown must run even when the caller's context is cancelled.
		if stopErr := lc.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			failure := r.driverFailed("stop", "stop driver", r.now, stopErr)
			if err == nil {
				err = failure
			}
		}
	}
	return err
}

func (r *run) loop(ctx context.Context, net *network.Network, tl *schedule.Timeline) error {
	for _, ev := range tl.Events() {
		if err := r.checkCancelled(ctx); err != nil {
			return err
		}
		if ev.Time > r.now {
			if err := r.advance(ctx, ev.Time); err != nil {
				return err
			}
		}
		if err := r.handle(ctx, net, ev); err != nil {
			return err
		}
		r.c.metrics.event(ev.Kind.String())
	}

	if err := r.checkCancelled(ctx); err != nil {
		return err
	}
	if !r.advanced || r.now < tl.Duration() {
		return r.advance(ctx, tl.Duration())
	}
	return nil
}

func (r *run) checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		r.log.Append(SeverityInfo, "cancelled", "")
		r.logger.Info("run cancelled", "t", r.now)
		return &RunError{Code: ErrCodeCancelled, Message: "run cancelled", Time: r.now, Err: err}
	}
	return nil
}

func (r *run) handle(ctx context.Context, net *network.Network, ev schedule.Event) error {
	switch ev.Kind {
	case schedule.KindCommand:
		a, err := r.c.route(net, ev.Command, ev.Time)
		if err != nil {
			r.log.Append(SeverityError, ev.Describe(), err.Error())
			code := ErrCodeDriver
			if rangemap.IsRangeError(err) {
				code = ErrCodeRange
			}
			return &RunError{Code: code, Message: "cannot route " + ev.Describe(), Time: ev.Time, Err: err}
		}
		r.logger.Debug("applying command", "t", ev.Time, "command", ev.Command.String(), "action", a.String())
		if err := r.c.driver.ApplyCommand(ctx, a); err != nil {
			return r.driverFailed("apply", ev.Describe(), ev.Time, err)
		}
		r.log.Append(SeverityInfo, ev.Describe(), fmt.Sprintf("t=%g %s", ev.Time, a))

	case schedule.KindPhaseBoundary:
		if cp, ok := r.c.driver.(Checkpointer); ok {
			b := Boundary{Phase: ev.Phase, Description: r.plan.Phases[ev.Phase].Description, Time: ev.Time}
			if err := cp.OnPhaseBoundary(ctx, b); err != nil {
				return r.driverFailed("checkpoint", ev.Describe(), ev.Time, err)
			}
		}
		r.log.Append(SeverityInfo, ev.Describe(), fmt.Sprintf("t=%g", ev.Time))

	case schedule.KindSampleTick:
		r.log.Append(SeverityInfo, ev.Describe(), fmt.Sprintf("t=%g", ev.Time))
	}
	return nil
}

func (r *run) advance(ctx context.Context, t float64) error {
	start := time.Now()
	seg, err := r.c.driver.AdvanceTo(ctx, t)
	r.c.metrics.observeAdvance(time.Since(start))
	if err != nil {
		return r.driverFailed("advance", fmt.Sprintf("advance to t=%g", t), t, err)
	}
	r.now = t
	r.advanced = true
	return r.collect(seg)
}

// collect converts a segment to physical values and folds it into the run's
// series. Keys are visited in sorted order so failures are deterministic.
func (r *run) collect(seg timeseries.Segment) error {
	for _, key := range timeseries.Keys(seg) {
		acc, requested := r.series[key]
		if !requested {
			r.logger.Debug("ignoring unrequested samples", "key", key.String())
			continue
		}
		samples := seg[key]
		if err := samples.Validate(); err != nil {
			return r.driverFailed("advance", "collect "+key.String(), r.now, err)
		}
		if last, ok := acc.Last(); ok && len(samples) > 0 && samples[0].Time < last.Time {
			err := fmt.Errorf("segment starts at t=%g before last sample at t=%g", samples[0].Time, last.Time)
			return r.driverFailed("advance", "collect "+key.String(), r.now, err)
		}

		if chain, ok := r.convert[key]; ok {
			converted := make(timeseries.Series, len(samples))
			for i, s := range samples {
				v, err := chain.Apply(s.Value)
				if err != nil {
					r.log.Append(SeverityError, "convert "+key.String(), fmt.Sprintf("t=%g %v", s.Time, err))
					return &RunError{Code: ErrCodeRange, Message: "cannot convert sample of " + key.String(), Time: s.Time, Err: err}
				}
				converted[i] = timeseries.Sample{Time: s.Time, Value: v}
			}
			samples = converted
		}
		r.series[key] = timeseries.Merge(acc, samples)
	}
	return nil
}

func (r *run) driverFailed(op, what string, t float64, err error) error {
	de := &DriverError{Op: op, Time: t, Err: err}
	r.c.metrics.driverError(op)
	r.log.Append(SeverityError, what, de.Error())
	r.logger.Warn("driver failed", "op", op, "t", t, "error", err)
	return &RunError{Code: ErrCodeDriver, Message: op + " failed", Time: t, Err: de}
}

func (r *run) finish(s State, duration float64, err error) (*Result, error) {
	r.c.setState(s, r.logger)
	r.c.metrics.runFinished(s)

	res := &Result{
		RunID:      r.id,
		State:      s,
		Timeseries: r.series,
		Logbook:    r.log.Entries(),
		Duration:   duration,
		Reached:    r.now,
		Err:        err,
	}
	if err != nil {
		r.logger.Warn("run aborted", "reached", r.now, "entries", r.log.Len(), "error", err)
		return res, err
	}
	r.logger.Info("run completed", "reached", r.now, "entries", r.log.Len(), "series", len(r.series))
	return res, nil
}
