package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hoorsana/Observer-2/internal/network"
	"github.com/Hoorsana/Observer-2/internal/plan"
	"github.com/Hoorsana/Observer-2/internal/rangemap"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// thermalBench has a DUT whose temperature input reads 0..10 V for 0..100 C,
// driven by a 0..5 V DAC channel.
func thermalBench(t *testing.T, opts ...rangemap.Option) *network.Network {
	t.Helper()
	phys := func(lo, hi float64) *rangemap.Range { return &rangemap.Range{Min: lo, Max: hi} }

	devices := []network.DeviceSpec{
		{
			Name: "dac",
			Kind: "instrument",
			Ports: []network.PortSpec{
				{Signal: "out1", Channel: "ao0", Range: rangemap.Range{Min: 0, Max: 5}, Flags: []string{"output", "analog"}},
			},
		},
		{
			Name: "dut",
			Ports: []network.PortSpec{
				{Signal: "temp_in", Range: rangemap.Range{Min: 0, Max: 10}, Physical: phys(0, 100), Flags: []string{"input", "analog"}},
				{Signal: "aux", Range: rangemap.Range{Min: 0, Max: 10}, Physical: phys(0, 100), Flags: []string{"input", "analog"}},
				{Signal: "temp_out", Range: rangemap.Range{Min: 0, Max: 10}, Physical: phys(-50, 150), Flags: []string{"output", "analog"}},
				{Signal: "raw", Range: rangemap.Range{Min: 0, Max: 10}, Flags: []string{"output", "analog"}},
			},
		},
	}
	connections := []network.ConnectionSpec{
		{SourceDevice: "dac", SourceSignal: "out1", DestDevice: "dut", DestSignal: "temp_in"},
	}
	n, err := network.Build(devices, connections, opts...)
	require.NoError(t, err)
	return n
}

func TestRoute_DrivenPortGoesToSource(t *testing.T) {
	c := New(nil)
	n := thermalBench(t)

	cmd := plan.Command{Kind: plan.SetSignal, Target: "dut", Data: plan.Data{Signal: "temp_in", Value: 50}}
	a, err := c.route(n, cmd, 1)
	require.NoError(t, err)

	assert.Equal(t, "dac", a.Device)
	assert.Equal(t, "out1", a.Signal)
	assert.Equal(t, "ao0", a.Channel)
	assert.Equal(t, 2.5, a.Data.Value)
	assert.Equal(t, 1.0, a.Time)
	assert.Equal(t, "dac.out1 value=2.5", a.String())
}

func TestRoute_UndrivenPortStaysOnTarget(t *testing.T) {
	c := New(nil)
	n := thermalBench(t)

	cmd := plan.Command{Kind: plan.SetSignal, Target: "dut", Data: plan.Data{Signal: "aux", Value: 50}}
	a, err := c.route(n, cmd, 0)
	require.NoError(t, err)

	assert.Equal(t, "dut", a.Device)
	assert.Equal(t, "aux", a.Signal)
	assert.Equal(t, 5.0, a.Data.Value)
}

func TestRoute_RampAndSineScaleDeltas(t *testing.T) {
	c := New(nil)
	n := thermalBench(t)

	ramp := plan.Command{Kind: plan.SetSignalRamp, Target: "dut", Data: plan.Data{Signal: "temp_in", Slope: 20, InitialOutput: 0}}
	a, err := c.route(n, ramp, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, a.Data.Slope)
	assert.Equal(t, 0.0, a.Data.InitialOutput)

	sine := plan.Command{Kind: plan.SetSignalSine, Target: "dut", Data: plan.Data{Signal: "temp_in", Amplitude: 40, Frequency: 2, Bias: 50}}
	a, err = c.route(n, sine, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, a.Data.Amplitude)
	assert.Equal(t, 2.5, a.Data.Bias)
	assert.Equal(t, 2.0, a.Data.Frequency, "frequency is not range-mapped")
}

func TestRoute_Unrepresentable(t *testing.T) {
	c := New(nil)
	n := thermalBench(t)

	cmd := plan.Command{Kind: plan.SetSignal, Target: "dut", Data: plan.Data{Signal: "temp_in", Value: 150}}
	_, err := c.route(n, cmd, 0)
	require.Error(t, err)
	assert.True(t, rangemap.IsUnrepresentable(err))

	var re *rangemap.RangeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, rangemap.StagePhysicalToElectrical, re.Stage)
}

func TestRoute_ClampingSaturates(t *testing.T) {
	c := New(nil, WithClamping())
	n := thermalBench(t, c.chainOptions()...)

	cmd := plan.Command{Kind: plan.SetSignal, Target: "dut", Data: plan.Data{Signal: "temp_in", Value: 150}}
	a, err := c.route(n, cmd, 0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, a.Data.Value)
}

func TestRoute_SetParamPassesThrough(t *testing.T) {
	c := New(nil)
	n := thermalBench(t)

	cmd := plan.Command{Kind: plan.SetParam, Target: "dut", Data: plan.Data{Param: "limit", Value: 229.5}}
	a, err := c.route(n, cmd, 0)
	require.NoError(t, err)
	assert.Equal(t, "dut", a.Device)
	assert.Empty(t, a.Signal)
	assert.Equal(t, cmd.Data, a.Data)
	assert.Equal(t, "dut param=limit value=229.5", a.String())
}

func TestSampleChains(t *testing.T) {
	c := New(nil)
	n := thermalBench(t)

	reqs := []plan.LoggingRequest{
		{Target: "dut", Signal: "temp_out", Period: 1},
		{Target: "dut", Signal: "raw", Period: 1},
	}
	chains, err := c.sampleChains(n, reqs)
	require.NoError(t, err)

	require.Contains(t, chains, timeseries.Key{Target: "dut", Signal: "temp_out"})
	assert.NotContains(t, chains, timeseries.Key{Target: "dut", Signal: "raw"})

	v, err := chains[timeseries.Key{Target: "dut", Signal: "temp_out"}].Apply(5)
	require.NoError(t, err)
	assert.Equal(t, 50.0, v)
}

func TestSampleChains_UnknownPort(t *testing.T) {
	c := New(nil)
	n := thermalBench(t)

	_, err := c.sampleChains(n, []plan.LoggingRequest{{Target: "dut", Signal: "nope", Period: 1}})
	assert.Error(t, err)
}
