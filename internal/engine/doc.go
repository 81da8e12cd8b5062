// Package engine implements the execution coordinator.
//
// A Coordinator takes a bench (devices and connections) and a test plan,
// validates them, flattens the plan into a timeline and drives a Driver
// through it, producing per-signal timeseries and a logbook.
//
// ARCHITECTURE:
//
// State machine per run:
//
//	Idle -> Validating -> Scheduled -> Running -> Completed | Aborted
//
// Validating builds the network, checks the plan against it and builds the
// timeline. Any failure aborts with a single panic entry and no driver call.
//
// Running walks the timeline in order. Before an event whose time is ahead
// of the driver, the coordinator calls AdvanceTo and folds the returned
// segment into the series. Commands are routed and range-mapped, then
// applied; phase boundaries reach Checkpointer drivers; sample ticks only
// force the advance. Each handled event appends an info entry.
//
// Failure policy: a driver or range error is logged as an error entry and is
// terminal. Nothing is retried. Series collected so far are kept.
//
// Single goroutine:
// The coordinator never spawns goroutines. All suspension happens inside
// driver calls and cancellation is checked between events only.
//
// Logical clock:
// Logbook entries are stamped from a per-run Clock, never wall time, so the
// same run against a deterministic driver yields a byte-identical logbook.
package engine
