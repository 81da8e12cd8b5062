package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"

	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/network"
	"github.com/Hoorsana/Observer-2/internal/plan"
	"github.com/Hoorsana/Observer-2/internal/schedule"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// ErrNotStarted is returned by calls made outside Start/Stop.
var ErrNotStarted = errors.New("sim: driver not started")

// Checkpoint is the electrical state of every port at a phase boundary.
type Checkpoint struct {
	Phase  int
	Time   float64
	Values map[network.PortRef]float64
}

// Driver simulates a bench in-process.
//
// Every port value is a closed-form function of time: stimuli are constant,
// ramp or sine generators and models are algebraic. AdvanceTo therefore
// evaluates the bench only at the sample times it has to report.
//
// Implements engine.Driver, engine.Checkpointer and engine.Lifecycle.
type Driver struct {
	mu     sync.Mutex
	logger *slog.Logger

	net     *network.Network
	logging []plan.LoggingRequest
	models  []*model
	stimuli map[network.PortRef]stimulus
	params  map[string]map[string]float64

	started     bool
	now         float64
	checkpoints []Checkpoint
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the structured logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = l
	}
}

// New creates an idle driver. The bench arrives with Start.
func New(opts ...Option) *Driver {
	d := &Driver{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start implements engine.Lifecycle. It instantiates the device models.
func (d *Driver) Start(ctx context.Context, s engine.Setup) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s.Network == nil {
		return errors.New("sim: no network")
	}
	models := make([]*model, 0, len(s.Network.Devices()))
	params := make(map[string]map[string]float64)
	for _, dev := range s.Network.Devices() {
		params[dev.Name] = maps.Clone(dev.Model.Params)
		if params[dev.Name] == nil {
			params[dev.Name] = make(map[string]float64)
		}
		if dev.Model.Type == "" {
			continue
		}
		m, err := newModel(dev)
		if err != nil {
			return fmt.Errorf("sim: device %s: %w", dev.Name, err)
		}
		models = append(models, m)
	}

	d.net = s.Network
	d.logging = append([]plan.LoggingRequest(nil), s.Logging...)
	d.models = models
	d.params = params
	d.stimuli = make(map[network.PortRef]stimulus)
	d.checkpoints = nil
	d.now = 0
	d.started = true

	d.logger.Info("simulation started", "run", s.RunID, "models", len(models), "logging", len(s.Logging))
	return nil
}

// Stop implements engine.Lifecycle.
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return ErrNotStarted
	}
	d.started = false
	d.logger.Info("simulation stopped", "t", d.now, "checkpoints", len(d.checkpoints))
	return nil
}

// ApplyCommand implements engine.Driver.
func (d *Driver) ApplyCommand(ctx context.Context, a engine.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return ErrNotStarted
	}
	if a.Command.Kind == plan.SetParam {
		if _, ok := d.params[a.Device]; !ok {
			return fmt.Errorf("sim: unknown device %q", a.Device)
		}
		d.params[a.Device][a.Data.Param] = a.Data.Value
		d.logger.Debug("param set", "device", a.Device, "param", a.Data.Param, "value", a.Data.Value)
		return nil
	}

	port, err := d.net.Resolve(a.Device, a.Signal)
	if err != nil {
		return fmt.Errorf("sim: %w", err)
	}
	d.stimuli[port.Ref()] = stimulus{port: port, kind: a.Command.Kind, data: a.Data, at: a.Time}
	d.logger.Debug("stimulus set", "port", port.Ref().String(), "kind", a.Command.Kind, "t", a.Time)
	return nil
}

// AdvanceTo implements engine.Driver. Each logging request is sampled at
// every multiple of its period in [now, t], window start included.
func (d *Driver) AdvanceTo(ctx context.Context, t float64) (timeseries.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil, ErrNotStarted
	}
	if t < d.now {
		return nil, fmt.Errorf("sim: cannot advance backwards from t=%g to t=%g", d.now, t)
	}

	cache := make(map[float64]map[network.PortRef]float64)
	seg := make(timeseries.Segment, len(d.logging))
	for _, req := range d.logging {
		port, err := d.net.Resolve(req.Target, req.Signal)
		if err != nil {
			return nil, fmt.Errorf("sim: logging %s: %w", req.Key(), err)
		}
		ref := port.Ref()
		var s timeseries.Series
		for _, st := range schedule.TickTimes(req.Period, d.now, t) {
			vals, ok := cache[st]
			if !ok {
				vals = d.evaluate(st)
				cache[st] = vals
			}
			s = append(s, timeseries.Sample{Time: st, Value: vals[ref]})
		}
		seg[req.Key()] = s
	}
	d.now = t
	return seg, nil
}

// OnPhaseBoundary implements engine.Checkpointer.
func (d *Driver) OnPhaseBoundary(ctx context.Context, b engine.Boundary) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return ErrNotStarted
	}
	d.checkpoints = append(d.checkpoints, Checkpoint{Phase: b.Phase, Time: b.Time, Values: d.evaluate(b.Time)})
	d.logger.Debug("checkpoint", "phase", b.Phase, "description", b.Description, "t", b.Time)
	return nil
}

// Checkpoints returns the snapshots taken at phase boundaries.
func (d *Driver) Checkpoints() []Checkpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Checkpoint(nil), d.checkpoints...)
}

// Param returns a device parameter.
func (d *Driver) Param(device, name string) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.params[device][name]
	return v, ok
}

// Sample evaluates a single port at time t.
func (d *Driver) Sample(device, signal string, t float64) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return 0, ErrNotStarted
	}
	port, err := d.net.Resolve(device, signal)
	if err != nil {
		return 0, err
	}
	return d.evaluate(t)[port.Ref()], nil
}
