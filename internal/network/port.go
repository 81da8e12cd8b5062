package network

import (
	"fmt"
	"strings"

	"github.com/Hoorsana/Observer-2/internal/rangemap"
)

// Flag is a bit set of port properties.
type Flag uint8

const (
	FlagInput Flag = 1 << iota
	FlagOutput
	FlagAnalog
	FlagDigital
	FlagBidirectional
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagInput, "input"},
	{FlagOutput, "output"},
	{FlagAnalog, "analog"},
	{FlagDigital, "digital"},
	{FlagBidirectional, "bidirectional"},
}

// ParseFlags reads flag names. Exactly one of analog/digital and at least one
// of input/output/bidirectional must be present. Input together with output
// requires bidirectional.
func ParseFlags(names []string) (Flag, error) {
	var f Flag
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		found := false
		for _, fn := range flagNames {
			if fn.name == name {
				f |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown flag %q", raw)
		}
	}
	if f.Has(FlagAnalog) == f.Has(FlagDigital) {
		return 0, fmt.Errorf("exactly one of analog or digital is required, got %v", names)
	}
	if f&(FlagInput|FlagOutput|FlagBidirectional) == 0 {
		return 0, fmt.Errorf("one of input, output or bidirectional is required, got %v", names)
	}
	if f.Has(FlagInput|FlagOutput) && !f.Has(FlagBidirectional) {
		return 0, fmt.Errorf("input and output together require bidirectional, got %v", names)
	}
	return f, nil
}

// Has reports whether every bit of other is set.
func (f Flag) Has(other Flag) bool {
	return f&other == other
}

// String lists the set flags in canonical order.
func (f Flag) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, ",")
}

// PortRef names a port by device and signal.
type PortRef struct {
	Device string
	Signal string
}

// String renders "device.signal".
func (r PortRef) String() string {
	return r.Device + "." + r.Signal
}

// Port is a signal endpoint on a device.
type Port struct {
	Device  string
	Signal  string
	Channel string
	// Range is the electrical range carried on the wire.
	Range rangemap.Range
	// Physical is the range of the quantity the signal represents. Nil when
	// the port has no physical interpretation distinct from Range.
	Physical *rangemap.Range
	Flags    Flag
}

// Ref returns the port's reference.
func (p Port) Ref() PortRef {
	return PortRef{Device: p.Device, Signal: p.Signal}
}

// CanDrive reports whether the port can be the source of a connection.
func (p Port) CanDrive() bool {
	return p.Flags.Has(FlagOutput) || p.Flags.Has(FlagBidirectional)
}

// CanReceive reports whether the port can be the destination of a connection.
func (p Port) CanReceive() bool {
	return p.Flags.Has(FlagInput) || p.Flags.Has(FlagBidirectional)
}

// Digital reports whether the port is in the digital domain.
func (p Port) Digital() bool {
	return p.Flags.Has(FlagDigital)
}

// PhysicalRange returns the physical range, or the electrical one when the
// port declares none.
func (p Port) PhysicalRange() rangemap.Range {
	if p.Physical != nil {
		return *p.Physical
	}
	return p.Range
}

// ToElectrical returns the steps taking a physical value onto the wire.
// Empty when the port declares no physical range.
func (p Port) ToElectrical() []rangemap.Step {
	if p.Physical == nil {
		return nil
	}
	return []rangemap.Step{{Stage: rangemap.StagePhysicalToElectrical, From: *p.Physical, To: p.Range}}
}

// ToPhysical returns the steps taking an electrical value to its physical
// meaning. Empty when the port declares no physical range.
func (p Port) ToPhysical() []rangemap.Step {
	if p.Physical == nil {
		return nil
	}
	return []rangemap.Step{{Stage: rangemap.StageElectricalToPhysical, From: p.Range, To: *p.Physical}}
}
