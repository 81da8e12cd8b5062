package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/schedule"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// Driver operations, as recorded in Call.Op and accepted by FailOn.
const (
	OpStart      = "start"
	OpApply      = "apply"
	OpAdvance    = "advance"
	OpCheckpoint = "checkpoint"
	OpStop       = "stop"
)

// Call is one recorded driver invocation.
type Call struct {
	Op       string
	Time     float64
	Action   engine.Action
	Boundary engine.Boundary
}

// String renders the call for compact assertions, e.g. "apply@0.5 dac.out1 value=1".
func (c Call) String() string {
	switch c.Op {
	case OpApply:
		return fmt.Sprintf("%s@%g %s", c.Op, c.Time, c.Action)
	case OpCheckpoint:
		return fmt.Sprintf("%s@%g phase %d", c.Op, c.Time, c.Boundary.Phase)
	default:
		return fmt.Sprintf("%s@%g", c.Op, c.Time)
	}
}

// SegmentFunc produces the samples for the window from..to. The window
// includes from only on the first advance of a run.
type SegmentFunc func(from, to float64, includeFrom bool) timeseries.Segment

// ScriptedDriver is a driver double that records every call, answers
// AdvanceTo from a SegmentFunc and fails on demand.
//
// It implements engine.Driver, engine.Checkpointer and engine.Lifecycle.
type ScriptedDriver struct {
	mu       sync.Mutex
	segments SegmentFunc
	failures map[string]failure
	hook     func(Call)
	calls    []Call
	now      float64
	advanced bool
}

type failure struct {
	at  float64
	err error
}

// NewScriptedDriver creates a driver. A nil segments func yields empty segments.
func NewScriptedDriver(segments SegmentFunc) *ScriptedDriver {
	return &ScriptedDriver{segments: segments, failures: make(map[string]failure)}
}

// FailOn makes the first call of op at or after time at return err.
func (d *ScriptedDriver) FailOn(op string, at float64, err error) *ScriptedDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[op] = failure{at: at, err: err}
	return d
}

// OnCall registers a hook run after each call is recorded.
func (d *ScriptedDriver) OnCall(hook func(Call)) *ScriptedDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hook = hook
	return d
}

// Start implements engine.Lifecycle.
func (d *ScriptedDriver) Start(ctx context.Context, s engine.Setup) error {
	d.mu.Lock()
	d.now, d.advanced = 0, false
	d.mu.Unlock()
	return d.record(Call{Op: OpStart})
}

// Stop implements engine.Lifecycle.
func (d *ScriptedDriver) Stop(ctx context.Context) error {
	return d.record(Call{Op: OpStop, Time: d.Now()})
}

// ApplyCommand implements engine.Driver.
func (d *ScriptedDriver) ApplyCommand(ctx context.Context, a engine.Action) error {
	return d.record(Call{Op: OpApply, Time: a.Time, Action: a})
}

// OnPhaseBoundary implements engine.Checkpointer.
func (d *ScriptedDriver) OnPhaseBoundary(ctx context.Context, b engine.Boundary) error {
	return d.record(Call{Op: OpCheckpoint, Time: b.Time, Boundary: b})
}

// AdvanceTo implements engine.Driver.
func (d *ScriptedDriver) AdvanceTo(ctx context.Context, t float64) (timeseries.Segment, error) {
	if err := d.record(Call{Op: OpAdvance, Time: t}); err != nil {
		return nil, err
	}

	d.mu.Lock()
	from, include := d.now, !d.advanced
	d.now, d.advanced = t, true
	segments := d.segments
	d.mu.Unlock()

	if segments == nil {
		return timeseries.Segment{}, nil
	}
	return segments(from, t, include), nil
}

func (d *ScriptedDriver) record(c Call) error {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	hook := d.hook
	var err error
	if f, ok := d.failures[c.Op]; ok && c.Time >= f.at {
		delete(d.failures, c.Op)
		err = f.err
	}
	d.mu.Unlock()

	if hook != nil {
		hook(c)
	}
	return err
}

// Now returns the time of the last successful advance.
func (d *ScriptedDriver) Now() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

// Calls returns a copy of the recorded calls.
func (d *ScriptedDriver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Trace returns the recorded calls rendered with Call.String.
func (d *ScriptedDriver) Trace() []string {
	calls := d.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Actions returns the routed actions in application order.
func (d *ScriptedDriver) Actions() []engine.Action {
	var out []engine.Action
	for _, c := range d.Calls() {
		if c.Op == OpApply {
			out = append(out, c.Action)
		}
	}
	return out
}

// Count returns how many times op was called.
func (d *ScriptedDriver) Count(op string) int {
	n := 0
	for _, c := range d.Calls() {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Sampler returns a SegmentFunc sampling each key's function at multiples
// of period inside the window.
func Sampler(period float64, signals map[timeseries.Key]func(t float64) float64) SegmentFunc {
	return func(from, to float64, includeFrom bool) timeseries.Segment {
		seg := make(timeseries.Segment, len(signals))
		for key, fn := range signals {
			var s timeseries.Series
			for _, t := range schedule.TickTimes(period, from, to) {
				if t == from && !includeFrom {
					continue
				}
				s = append(s, timeseries.Sample{Time: t, Value: fn(t)})
			}
			seg[key] = s
		}
		return seg
	}
}

// Constant returns a signal function that always yields v.
func Constant(v float64) func(float64) float64 {
	return func(float64) float64 { return v }
}
