package engine

import (
	"context"
	"fmt"

	"github.com/Hoorsana/Observer-2/internal/network"
	"github.com/Hoorsana/Observer-2/internal/plan"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// Driver is the backend a run executes against: a simulation, live
// hardware, or a test double. The coordinator never branches on which.
//
// Calls are strictly sequential. AdvanceTo is called with non-decreasing
// times and returns every sample produced for the active logging requests
// since the previous call, in the electrical domain of the logged port.
type Driver interface {
	ApplyCommand(ctx context.Context, a Action) error
	AdvanceTo(ctx context.Context, t float64) (timeseries.Segment, error)
}

// Checkpointer is implemented by drivers that need to save or restore state
// when a phase ends.
type Checkpointer interface {
	OnPhaseBoundary(ctx context.Context, b Boundary) error
}

// Lifecycle is implemented by drivers that need setup before the first
// event and teardown after the last. Stop is called exactly once for every
// successful Start, whatever the outcome of the run.
type Lifecycle interface {
	Start(ctx context.Context, s Setup) error
	Stop(ctx context.Context) error
}

// Setup describes the run to a Lifecycle driver.
type Setup struct {
	RunID    string
	Network  *network.Network
	Logging  []plan.LoggingRequest
	Duration float64
}

// Boundary identifies the end of a phase.
type Boundary struct {
	Phase       int
	Description string
	Time        float64
}

// Action is a command after routing and range mapping.
//
// Device/Signal/Channel name the port that actually receives the stimulus:
// the target port itself, or the port driving it through a connection.
// Data holds the payload translated into that port's electrical domain.
type Action struct {
	Command plan.Command
	Time    float64
	Device  string
	Signal  string
	Channel string
	Data    plan.Data
}

// String renders the routed stimulus, e.g. "dac.out1 value=1.5".
func (a Action) String() string {
	if a.Command.Kind.TargetsSignal() {
		return fmt.Sprintf("%s.%s %s", a.Device, a.Signal, a.Data.Format(a.Command.Kind))
	}
	return fmt.Sprintf("%s %s", a.Device, a.Data.Format(a.Command.Kind))
}
