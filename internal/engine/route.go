package engine

import (
	"fmt"

	"github.com/Hoorsana/Observer-2/internal/network"
	"github.com/Hoorsana/Observer-2/internal/plan"
	"github.com/Hoorsana/Observer-2/internal/rangemap"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// route resolves where a command's stimulus must be applied and translates
// its payload there.
//
// A signal command names a port P by its physical meaning. If a connection
// Q -> P drives P, the stimulus goes to Q: the value is taken from P's
// physical range onto P's wire, then back across the connection onto Q's
// wire. Otherwise it goes to P itself, onto P's wire. Each stage is checked.
func (c *Coordinator) route(n *network.Network, cmd plan.Command, t float64) (Action, error) {
	a := Action{Command: cmd, Time: t, Device: cmd.Target, Data: cmd.Data}
	if !cmd.Kind.TargetsSignal() {
		return a, nil
	}

	port, err := n.Resolve(cmd.Target, cmd.Data.Signal)
	if err != nil {
		return Action{}, err
	}

	steps := port.ToElectrical()
	dest := port
	if conn, ok := n.DriverOf(port.Device, port.Signal); ok {
		steps = append(steps, conn.Wire().Inverse())
		dest = conn.Source
	}
	chain := rangemap.NewChain(steps, c.chainOptions()...)

	a.Device, a.Signal, a.Channel = dest.Device, dest.Signal, dest.Channel
	a.Data.Signal = dest.Signal

	switch cmd.Kind {
	case plan.SetSignal:
		if a.Data.Value, err = chain.Apply(cmd.Data.Value); err != nil {
			return Action{}, fmt.Errorf("value: %w", err)
		}
	case plan.SetSignalRamp:
		if a.Data.InitialOutput, err = chain.Apply(cmd.Data.InitialOutput); err != nil {
			return Action{}, fmt.Errorf("initial_output: %w", err)
		}
		if a.Data.Slope, err = chain.ApplyDelta(cmd.Data.Slope); err != nil {
			return Action{}, fmt.Errorf("slope: %w", err)
		}
	case plan.SetSignalSine:
		if a.Data.Bias, err = chain.Apply(cmd.Data.Bias); err != nil {
			return Action{}, fmt.Errorf("bias: %w", err)
		}
		if a.Data.Amplitude, err = chain.ApplyDelta(cmd.Data.Amplitude); err != nil {
			return Action{}, fmt.Errorf("amplitude: %w", err)
		}
	}
	return a, nil
}

// sampleChains returns, per logged key, the chain translating a driver's
// electrical sample into the port's physical domain. Keys whose port has no
// physical range are absent.
func (c *Coordinator) sampleChains(n *network.Network, reqs []plan.LoggingRequest) (map[timeseries.Key]*rangemap.Chain, error) {
	out := make(map[timeseries.Key]*rangemap.Chain)
	for _, req := range reqs {
		port, err := n.Resolve(req.Target, req.Signal)
		if err != nil {
			return nil, err
		}
		if steps := port.ToPhysical(); len(steps) > 0 {
			out[req.Key()] = rangemap.NewChain(steps, c.chainOptions()...)
		}
	}
	return out, nil
}

func (c *Coordinator) chainOptions() []rangemap.Option {
	if c.clamp {
		return []rangemap.Option{rangemap.WithClamp()}
	}
	return nil
}
