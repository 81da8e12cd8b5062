// Package sim is an in-process simulated backend for the execution
// coordinator.
//
// The bench's devices become algebraic models chosen by model.type:
//
//	adder          output = sum of inputs
//	average        output = mean of inputs
//	limit_monitor  output high when the first input exceeds params.limit
//	passthrough    output = first input
//	source         output = params.value
//
// Inputs are read and outputs written in each port's physical domain, so a
// model declared in degrees sees degrees whatever its wiring carries.
// Devices without a model type only hold the stimuli applied to them.
//
// Stimuli are constant, ramp or sine generators. Every evaluation is a pure
// function of time, so the same plan always yields the same samples.
package sim
