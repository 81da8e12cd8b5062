// Package network builds and validates the device/port/connection graph.
//
// A Network is constructed once with Build and never mutated. Build checks
// every rule and reports all violations together:
//
//   - device names are unique, signal names are unique per device
//   - names are non-empty and contain no '.'
//   - every connection endpoint resolves
//   - a connection runs from an output (or bidirectional) port to an input
//     (or bidirectional) port in the same analog/digital domain
//   - a port is the destination of at most one connection
//   - ranges are finite with min <= max, flags are well formed
//   - device kinds come from the closed set generic/model/instrument/controller
//
// Each Connection owns a rangemap.Chain from the source's physical value to
// the destination's physical value.
package network
