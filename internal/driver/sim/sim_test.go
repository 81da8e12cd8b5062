package sim_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hoorsana/Observer-2/internal/driver/sim"
	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/network"
	"github.com/Hoorsana/Observer-2/internal/plan"
	"github.com/Hoorsana/Observer-2/internal/rangemap"
	"github.com/Hoorsana/Observer-2/internal/testutil"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

func port(signal string, lo, hi float64, flags ...string) network.PortSpec {
	return network.PortSpec{Signal: signal, Range: rangemap.Range{Min: lo, Max: hi}, Flags: flags}
}

func withPhysical(p network.PortSpec, lo, hi float64) network.PortSpec {
	p.Physical = &rangemap.Range{Min: lo, Max: hi}
	return p
}

func coordinator(d engine.Driver) *engine.Coordinator {
	return engine.New(d,
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithRunIDGenerator(testutil.NewSequentialGenerator("sim")),
	)
}

func adderConfig() engine.Config {
	return engine.Config{
		Devices: []network.DeviceSpec{
			{Name: "dac", Kind: "instrument", Ports: []network.PortSpec{
				port("out1", 0, 5, "output", "analog"),
				port("out2", 0, 5, "output", "analog"),
			}},
			{Name: "adder", Kind: "model", Model: network.ModelSpec{Type: sim.ModelAdder}, Ports: []network.PortSpec{
				port("val1", 0, 100, "input", "analog"),
				port("val2", 0, 100, "input", "analog"),
				port("sum", 0, 200, "output", "analog"),
			}},
		},
		Connections: []network.ConnectionSpec{
			{SourceDevice: "dac", SourceSignal: "out1", DestDevice: "adder", DestSignal: "val1"},
			{SourceDevice: "dac", SourceSignal: "out2", DestDevice: "adder", DestSignal: "val2"},
		},
		Plan: &plan.TestPlan{
			Phases: []plan.Phase{{
				Duration: 2,
				Commands: []plan.Command{
					{Time: 0, Kind: plan.SetSignal, Target: "adder", Data: plan.Data{Signal: "val1", Value: 40}},
					{Time: 0.5, Kind: plan.SetSignal, Target: "adder", Data: plan.Data{Signal: "val2", Value: 60}},
				},
			}},
			Logging: []plan.LoggingRequest{{Target: "adder", Signal: "sum", Period: 0.5}},
		},
	}
}

func TestDriver_AdderEndToEnd(t *testing.T) {
	d := sim.New()
	res, err := coordinator(d).Run(context.Background(), adderConfig())
	require.NoError(t, err)

	sum := res.Timeseries[timeseries.Key{Target: "adder", Signal: "sum"}]
	assert.Equal(t, []float64{0, 0.5, 1, 1.5, 2}, sum.Times())
	// The first window sees t=0.5 before val2 is set; the next window
	// re-samples it afterwards and wins the merge.
	assert.Equal(t, []float64{40, 100, 100, 100, 100}, sum.Values())
	assert.False(t, math.Signbit(sum[0].Time), "first sample is at +0")

	cps := d.Checkpoints()
	require.Len(t, cps, 1)
	assert.Equal(t, 2.0, cps[0].Time)
	assert.Equal(t, 100.0, cps[0].Values[network.PortRef{Device: "adder", Signal: "sum"}])
}

func TestDriver_LimitMonitorEndToEnd(t *testing.T) {
	cfg := engine.Config{
		Devices: []network.DeviceSpec{
			{Name: "psu", Kind: "instrument", Ports: []network.PortSpec{port("v", 0, 10, "output", "analog")}},
			{
				Name:  "monitor",
				Kind:  "model",
				Model: network.ModelSpec{Type: sim.ModelLimitMonitor, Params: map[string]float64{"limit": 229.5}},
				Ports: []network.PortSpec{
					withPhysical(port("temp", 0, 10, "input", "analog"), 0, 500),
					port("alarm", 0, 1, "output", "digital"),
				},
			},
		},
		Connections: []network.ConnectionSpec{
			{SourceDevice: "psu", SourceSignal: "v", DestDevice: "monitor", DestSignal: "temp"},
		},
		Plan: &plan.TestPlan{
			Phases: []plan.Phase{
				{Description: "below", Duration: 1, Commands: []plan.Command{
					{Kind: plan.SetSignal, Target: "monitor", Data: plan.Data{Signal: "temp", Value: 200}},
				}},
				{Description: "above", Duration: 1, Commands: []plan.Command{
					{Kind: plan.SetSignal, Target: "monitor", Data: plan.Data{Signal: "temp", Value: 250}},
				}},
			},
			Logging: []plan.LoggingRequest{{Target: "monitor", Signal: "alarm", Period: 0.5}},
		},
	}

	d := sim.New()
	res, err := coordinator(d).Run(context.Background(), cfg)
	require.NoError(t, err)

	alarm := res.Timeseries[timeseries.Key{Target: "monitor", Signal: "alarm"}]
	assert.Equal(t, []float64{0, 0.5, 1, 1.5, 2}, alarm.Times())
	assert.Equal(t, []float64{0, 0, 1, 1, 1}, alarm.Values())
	assert.Len(t, d.Checkpoints(), 2)
}

// startBench builds cfg's network and starts d on it.
func startBench(t *testing.T, d *sim.Driver, devices []network.DeviceSpec, conns []network.ConnectionSpec, logging ...plan.LoggingRequest) {
	t.Helper()
	n, err := network.Build(devices, conns)
	require.NoError(t, err)
	require.NoError(t, d.Start(context.Background(), engine.Setup{RunID: "t", Network: n, Logging: logging}))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
}

func TestDriver_Generators(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	startBench(t, d, []network.DeviceSpec{{Name: "dut", Ports: []network.PortSpec{
		port("ramp", 0, 10, "input", "analog"),
		port("wave", 0, 10, "input", "analog"),
	}}}, nil)

	require.NoError(t, d.ApplyCommand(ctx, engine.Action{
		Command: plan.Command{Kind: plan.SetSignalRamp}, Device: "dut", Signal: "ramp",
		Data: plan.Data{Slope: 2, InitialOutput: 1},
	}))
	require.NoError(t, d.ApplyCommand(ctx, engine.Action{
		Command: plan.Command{Kind: plan.SetSignalSine}, Device: "dut", Signal: "wave",
		Data: plan.Data{Amplitude: 2, Frequency: 0.25, Bias: 5},
	}))

	v, err := d.Sample("dut", "ramp", 2)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	v, err = d.Sample("dut", "ramp", 10)
	require.NoError(t, err)
	assert.Equal(t, 10.0, v, "generators saturate at the port range")

	v, err = d.Sample("dut", "wave", 1)
	require.NoError(t, err)
	assert.InDelta(t, 7.0, v, 1e-12)
}

func TestDriver_UnsetPortsReadRangeMinimum(t *testing.T) {
	d := sim.New()
	startBench(t, d, []network.DeviceSpec{{Name: "dut", Ports: []network.PortSpec{
		port("bias", -5, 5, "input", "analog"),
	}}}, nil)

	v, err := d.Sample("dut", "bias", 0)
	require.NoError(t, err)
	assert.Equal(t, -5.0, v)
}

func TestDriver_SourceAverageAndSetParam(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	startBench(t, d,
		[]network.DeviceSpec{
			{Name: "src", Model: network.ModelSpec{Type: sim.ModelSource, Params: map[string]float64{"value": 3}},
				Ports: []network.PortSpec{port("out", 0, 10, "output", "analog")}},
			{Name: "avg", Model: network.ModelSpec{Type: sim.ModelAverage}, Ports: []network.PortSpec{
				port("a", 0, 10, "input", "analog"),
				port("b", 0, 10, "input", "analog"),
				port("o", 0, 10, "output", "analog"),
			}},
			{Name: "pt", Model: network.ModelSpec{Type: sim.ModelPassthrough}, Ports: []network.PortSpec{
				port("i", 0, 10, "input", "analog"),
				port("o", 0, 10, "output", "analog"),
			}},
		},
		[]network.ConnectionSpec{
			{SourceDevice: "src", SourceSignal: "out", DestDevice: "avg", DestSignal: "a"},
			{SourceDevice: "avg", SourceSignal: "o", DestDevice: "pt", DestSignal: "i"},
		},
	)

	v, err := d.Sample("pt", "o", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	require.NoError(t, d.ApplyCommand(ctx, engine.Action{
		Command: plan.Command{Kind: plan.SetParam}, Device: "src",
		Data: plan.Data{Param: "value", Value: 8},
	}))
	got, ok := d.Param("src", "value")
	require.True(t, ok)
	assert.Equal(t, 8.0, got)

	v, err = d.Sample("pt", "o", 0)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
}

func TestDriver_AdvanceIncludesWindowStart(t *testing.T) {
	ctx := context.Background()
	d := sim.New()
	startBench(t, d,
		[]network.DeviceSpec{{Name: "dut", Ports: []network.PortSpec{port("x", 0, 10, "input", "analog")}}},
		nil,
		plan.LoggingRequest{Target: "dut", Signal: "x", Period: 1},
	)
	key := timeseries.Key{Target: "dut", Signal: "x"}

	seg, err := d.AdvanceTo(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2}, seg[key].Times())

	seg, err = d.AdvanceTo(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, seg[key].Times())

	_, err = d.AdvanceTo(ctx, 1)
	assert.Error(t, err)
}

func TestDriver_NotStarted(t *testing.T) {
	ctx := context.Background()
	d := sim.New()

	_, err := d.AdvanceTo(ctx, 1)
	assert.ErrorIs(t, err, sim.ErrNotStarted)
	assert.ErrorIs(t, d.ApplyCommand(ctx, engine.Action{}), sim.ErrNotStarted)
	assert.ErrorIs(t, d.OnPhaseBoundary(ctx, engine.Boundary{}), sim.ErrNotStarted)
	assert.ErrorIs(t, d.Stop(ctx), sim.ErrNotStarted)
}

func TestDriver_UnknownModelType(t *testing.T) {
	n, err := network.Build([]network.DeviceSpec{{
		Name:  "x",
		Model: network.ModelSpec{Type: "integrator"},
		Ports: []network.PortSpec{port("o", 0, 1, "output", "analog")},
	}}, nil)
	require.NoError(t, err)

	err = sim.New().Start(context.Background(), engine.Setup{Network: n})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown model type "integrator"`)
}

func TestDriver_Deterministic(t *testing.T) {
	run := func() *engine.Result {
		res, err := coordinator(sim.New()).Run(context.Background(), adderConfig())
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.Timeseries, b.Timeseries)
	assert.Equal(t, a.Logbook, b.Logbook)
}
