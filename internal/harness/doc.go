// Package harness runs scenario files against the simulation driver.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: adder_sum
//	description: "adder output follows both inputs"
//	bench: ../benches/adder.yaml
//	plan: ../plans/adder.yaml
//	expect_state: completed
//	assertions:
//	  - type: is_close_at_time
//	    target: adder
//	    signal: sum
//	    time: 1
//	    expected: 100
//	  - type: logbook_contains
//	    what: set_signal adder.val2
//
// Bench and plan paths are relative to the scenario file.
//
// # Assertion Types
//
//   - is_close_at_time: signal value at a time within rtol/atol of expected
//   - is_equal_at_time: signal value at a time equals expected exactly
//   - is_equal_once: some sample in [lo, hi] equals expected
//   - final_state: the persisted run ended completed or aborted
//   - logbook_contains: an entry's what contains a substring
//
// Signals are evaluated with the interpolation declared by their logging
// request.
//
// # Deterministic Testing
//
// Each run gets the id "<name>-1" and is written to an in-memory SQLite store
// unless WithStore is given. Logbooks are stamped by a logical clock, so
// Snapshot output is stable for golden comparison with goldie.
package harness
