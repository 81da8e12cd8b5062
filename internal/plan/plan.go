// Package plan defines the test plan: phases of timed commands plus the
// logging requests active for the whole run.
package plan

import (
	"fmt"
	"strings"

	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// CommandKind is the closed set of commands a plan may schedule.
type CommandKind string

const (
	SetSignal     CommandKind = "set_signal"
	SetSignalRamp CommandKind = "set_signal_ramp"
	SetSignalSine CommandKind = "set_signal_sine"
	SetParam      CommandKind = "set_param"
)

// ParseCommandKind resolves a command name.
func ParseCommandKind(s string) (CommandKind, error) {
	switch k := CommandKind(strings.ToLower(strings.TrimSpace(s))); k {
	case SetSignal, SetSignalRamp, SetSignalSine, SetParam:
		return k, nil
	default:
		return "", fmt.Errorf("unknown command %q", s)
	}
}

// TargetsSignal reports whether the command writes a port.
func (k CommandKind) TargetsSignal() bool {
	return k == SetSignal || k == SetSignalRamp || k == SetSignalSine
}

// Data is the command payload. Which fields are meaningful depends on the
// command kind:
//
//	set_signal       Signal, Value
//	set_signal_ramp  Signal, Slope (per second), InitialOutput
//	set_signal_sine  Signal, Amplitude, Frequency (Hz), Phase (rad), Bias
//	set_param        Param, Value
//
// Values are in the target port's physical domain.
type Data struct {
	Signal        string  `json:"signal,omitempty" yaml:"signal,omitempty"`
	Param         string  `json:"param,omitempty" yaml:"param,omitempty"`
	Value         float64 `json:"value,omitempty" yaml:"value,omitempty"`
	Slope         float64 `json:"slope,omitempty" yaml:"slope,omitempty"`
	InitialOutput float64 `json:"initial_output,omitempty" yaml:"initial_output,omitempty"`
	Amplitude     float64 `json:"amplitude,omitempty" yaml:"amplitude,omitempty"`
	Frequency     float64 `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	Phase         float64 `json:"phase,omitempty" yaml:"phase,omitempty"`
	Bias          float64 `json:"bias,omitempty" yaml:"bias,omitempty"`
}

// Format renders the kind-relevant payload fields, e.g. "value=30".
func (d Data) Format(kind CommandKind) string {
	switch kind {
	case SetSignal:
		return fmt.Sprintf("value=%g", d.Value)
	case SetSignalRamp:
		return fmt.Sprintf("slope=%g initial_output=%g", d.Slope, d.InitialOutput)
	case SetSignalSine:
		return fmt.Sprintf("amplitude=%g frequency=%g phase=%g bias=%g", d.Amplitude, d.Frequency, d.Phase, d.Bias)
	case SetParam:
		return fmt.Sprintf("param=%s value=%g", d.Param, d.Value)
	default:
		return ""
	}
}

// Command is a timed action against a device.
type Command struct {
	// Time is the offset from the start of the enclosing phase, in seconds.
	Time        float64
	Kind        CommandKind
	Target      string
	Data        Data
	Description string
}

// String renders e.g. "set_signal adder.val1 value=30".
func (c Command) String() string {
	if c.Kind.TargetsSignal() {
		return fmt.Sprintf("%s %s.%s %s", c.Kind, c.Target, c.Data.Signal, c.Data.Format(c.Kind))
	}
	return fmt.Sprintf("%s %s %s", c.Kind, c.Target, c.Data.Format(c.Kind))
}

// Phase is a timed segment of a plan.
type Phase struct {
	Description string
	Duration    float64
	Commands    []Command
}

// LoggingRequest subscribes to a signal for the whole plan.
type LoggingRequest struct {
	Target      string
	Signal      string
	Period      float64
	Kind        timeseries.Interpolation
	Description string
}

// Key returns the timeseries key the request produces.
func (r LoggingRequest) Key() timeseries.Key {
	return timeseries.Key{Target: r.Target, Signal: r.Signal}
}

// TestPlan is an ordered list of phases plus logging requests.
type TestPlan struct {
	Description string
	Phases      []Phase
	Logging     []LoggingRequest
}

// Duration returns the sum of phase durations.
func (p *TestPlan) Duration() float64 {
	var total float64
	for _, ph := range p.Phases {
		total += ph.Duration
	}
	return total
}

// CommandCount returns the number of commands across all phases.
func (p *TestPlan) CommandCount() int {
	n := 0
	for _, ph := range p.Phases {
		n += len(ph.Commands)
	}
	return n
}
