package sim

import (
	"fmt"
	"math"

	"github.com/Hoorsana/Observer-2/internal/network"
	"github.com/Hoorsana/Observer-2/internal/plan"
	"github.com/Hoorsana/Observer-2/internal/rangemap"
)

// Model types understood by the simulator.
const (
	ModelAdder        = "adder"
	ModelAverage      = "average"
	ModelLimitMonitor = "limit_monitor"
	ModelPassthrough  = "passthrough"
	ModelSource       = "source"
)

// stimulus is a generator attached to a port by a command.
type stimulus struct {
	port network.Port
	kind plan.CommandKind
	data plan.Data
	at   float64
}

func (s stimulus) value(t float64) float64 {
	switch s.kind {
	case plan.SetSignalRamp:
		return s.data.InitialOutput + s.data.Slope*(t-s.at)
	case plan.SetSignalSine:
		return s.data.Bias + s.data.Amplitude*math.Sin(2*math.Pi*s.data.Frequency*t+s.data.Phase)
	default:
		return s.data.Value
	}
}

// model is a device behaviour. Inputs and outputs are combined in the
// physical domain; outputs are written back electrically.
type model struct {
	device  string
	kind    string
	inputs  []network.Port
	outputs []network.Port
}

func newModel(dev *network.Device) (*model, error) {
	m := &model{device: dev.Name, kind: dev.Model.Type}
	for _, p := range dev.Ports {
		switch {
		case p.Flags.Has(network.FlagInput):
			m.inputs = append(m.inputs, p)
		case p.CanDrive():
			m.outputs = append(m.outputs, p)
		}
	}

	switch m.kind {
	case ModelAdder, ModelAverage, ModelPassthrough, ModelLimitMonitor:
		if len(m.inputs) == 0 || len(m.outputs) == 0 {
			return nil, fmt.Errorf("model %s needs at least one input and one output", m.kind)
		}
	case ModelSource:
		if len(m.outputs) == 0 {
			return nil, fmt.Errorf("model %s needs at least one output", m.kind)
		}
	default:
		return nil, fmt.Errorf("unknown model type %q", m.kind)
	}
	return m, nil
}

// eval writes the model's outputs and reports whether any changed.
func (m *model) eval(vals map[network.PortRef]float64, params map[string]float64) bool {
	in := make([]float64, len(m.inputs))
	for i, p := range m.inputs {
		in[i] = toPhysical(p, vals[p.Ref()])
	}

	if m.kind == ModelLimitMonitor {
		limit, ok := params["limit"]
		high := ok && in[0] > limit
		changed := false
		for _, p := range m.outputs {
			v := p.Range.Min
			if high {
				v = p.Range.Max
			}
			changed = set(vals, p.Ref(), v) || changed
		}
		return changed
	}

	var out float64
	switch m.kind {
	case ModelAdder:
		for _, v := range in {
			out += v
		}
	case ModelAverage:
		for _, v := range in {
			out += v
		}
		out /= float64(len(in))
	case ModelPassthrough:
		out = in[0]
	case ModelSource:
		v, ok := params["value"]
		if !ok {
			return false
		}
		out = v
	}

	changed := false
	for _, p := range m.outputs {
		changed = set(vals, p.Ref(), toElectrical(p, out)) || changed
	}
	return changed
}

func set(vals map[network.PortRef]float64, ref network.PortRef, v float64) bool {
	if old, ok := vals[ref]; ok && old == v {
		return false
	}
	vals[ref] = v
	return true
}

func toPhysical(p network.Port, v float64) float64 {
	out, err := rangemap.NewChain(p.ToPhysical(), rangemap.WithClamp()).Apply(v)
	if err != nil {
		return v
	}
	return out
}

func toElectrical(p network.Port, v float64) float64 {
	out, err := rangemap.NewChain(p.ToElectrical(), rangemap.WithClamp()).Apply(v)
	if err != nil {
		return p.Range.Clamp(v)
	}
	return p.Range.Clamp(out)
}

// evaluate computes every port's electrical value at time t. Unset ports
// read their range minimum. Connections and models are relaxed until
// nothing changes, for at most one pass per device plus one.
func (d *Driver) evaluate(t float64) map[network.PortRef]float64 {
	vals := make(map[network.PortRef]float64)
	for _, dev := range d.net.Devices() {
		for _, p := range dev.Ports {
			vals[p.Ref()] = p.Range.Min
		}
	}
	for ref, s := range d.stimuli {
		vals[ref] = s.port.Range.Clamp(s.value(t))
	}

	passes := len(d.net.Devices()) + 1
	for i := 0; i < passes; i++ {
		changed := false
		for _, c := range d.net.Connections() {
			v, err := rangemap.NewChain([]rangemap.Step{c.Wire()}, rangemap.WithClamp()).Apply(vals[c.Source.Ref()])
			if err != nil {
				continue
			}
			changed = set(vals, c.Dest.Ref(), v) || changed
		}
		for _, m := range d.models {
			changed = m.eval(vals, d.params[m.device]) || changed
		}
		if !changed {
			break
		}
	}
	return vals
}
