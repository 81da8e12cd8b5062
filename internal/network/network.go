package network

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Hoorsana/Observer-2/internal/rangemap"
)

// Kind tags what a device stands for. The set is closed.
type Kind string

const (
	KindGeneric    Kind = "generic"
	KindModel      Kind = "model"
	KindInstrument Kind = "instrument"
	KindController Kind = "controller"
)

// ParseKind resolves a kind tag. The empty tag means KindGeneric.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindGeneric, nil
	case KindGeneric, KindModel, KindInstrument, KindController:
		return k, nil
	default:
		return "", fmt.Errorf("unknown device kind %q", s)
	}
}

// PortSpec is the declarative form of a port.
type PortSpec struct {
	Signal   string
	Channel  string
	Range    rangemap.Range
	Physical *rangemap.Range
	Flags    []string
}

// ModelSpec carries backend-specific behaviour for a device. The core never
// interprets it.
type ModelSpec struct {
	Type   string
	Params map[string]float64
}

// DeviceSpec is the declarative form of a device.
type DeviceSpec struct {
	Name  string
	Kind  string
	Ports []PortSpec
	Model ModelSpec
}

// ConnectionSpec is the declarative form of a wire.
type ConnectionSpec struct {
	SourceDevice string
	SourceSignal string
	DestDevice   string
	DestSignal   string
}

// Device is a named, immutable collection of ports.
type Device struct {
	Name  string
	Kind  Kind
	Ports []Port
	Model ModelSpec
}

// Port looks up a port by signal name.
func (d *Device) Port(signal string) (Port, bool) {
	signal = normalize(signal)
	for _, p := range d.Ports {
		if p.Signal == signal {
			return p, true
		}
	}
	return Port{}, false
}

// Connection is a validated wire from a driving port to a receiving port.
type Connection struct {
	Source Port
	Dest   Port
	mapper *rangemap.Chain
}

// Mapper returns the forward chain from the source's physical (or
// electrical) value to the destination's physical (or electrical) value.
func (c Connection) Mapper() *rangemap.Chain {
	return c.mapper
}

// Wire returns the single electrical-to-electrical stage of the connection.
func (c Connection) Wire() rangemap.Step {
	return rangemap.Step{Stage: rangemap.StageConnection, From: c.Source.Range, To: c.Dest.Range}
}

// String renders "src.sig -> dst.sig".
func (c Connection) String() string {
	return c.Source.Ref().String() + " -> " + c.Dest.Ref().String()
}

// Network is the validated device/connection graph. It is immutable after Build.
type Network struct {
	devices     []*Device
	byName      map[string]*Device
	connections []Connection
	from        map[PortRef][]int
	to          map[PortRef]int
}

// Build validates specs and constructs the graph. Every problem is reported
// in a single *ValidationError.
//
// Names are compared after Unicode NFC normalization and may not contain '.'
// since "device.signal" is the canonical port notation.
func Build(devices []DeviceSpec, connections []ConnectionSpec, opts ...rangemap.Option) (*Network, error) {
	var issues Issues
	n := &Network{
		byName: make(map[string]*Device, len(devices)),
		from:   make(map[PortRef][]int),
		to:     make(map[PortRef]int),
	}

	for i, spec := range devices {
		field := fmt.Sprintf("devices[%d]", i)
		d, ok := buildDevice(spec, field, &issues)
		if !ok {
			continue
		}
		if _, dup := n.byName[d.Name]; dup {
			issues.Add(ErrCodeDuplicateDevice, field, "device %q is declared more than once", d.Name)
			continue
		}
		n.byName[d.Name] = d
		n.devices = append(n.devices, d)
	}

	for i, spec := range connections {
		field := fmt.Sprintf("connections[%d]", i)
		conn, ok := n.buildConnection(spec, field, &issues, opts)
		if !ok {
			continue
		}
		dst := conn.Dest.Ref()
		if prev, taken := n.to[dst]; taken {
			issues.Add(ErrCodeMultipleDrivers, field, "port %s is already driven by %s", dst, n.connections[prev].Source.Ref())
			continue
		}
		idx := len(n.connections)
		n.connections = append(n.connections, conn)
		n.to[dst] = idx
		src := conn.Source.Ref()
		n.from[src] = append(n.from[src], idx)
	}

	if err := issues.Err(); err != nil {
		return nil, err
	}
	return n, nil
}

// buildDevice reports port-level issues but still returns the device so that
// connections referencing it are checked. The bool is false only when the
// device cannot be named.
func buildDevice(spec DeviceSpec, field string, issues *Issues) (*Device, bool) {
	name := normalize(spec.Name)
	if err := checkName(name); err != nil {
		issues.Add(ErrCodeInvalidName, field+".name", "%v", err)
		return nil, false
	}
	kind, err := ParseKind(spec.Kind)
	if err != nil {
		issues.Add(ErrCodeUnknownKind, field+".kind", "%v", err)
	}

	d := &Device{Name: name, Kind: kind, Model: spec.Model}
	seen := make(map[string]bool, len(spec.Ports))
	for j, ps := range spec.Ports {
		pfield := fmt.Sprintf("%s.ports[%d]", field, j)
		signal := normalize(ps.Signal)
		if err := checkName(signal); err != nil {
			issues.Add(ErrCodeInvalidName, pfield+".signal", "%v", err)
			continue
		}
		if seen[signal] {
			issues.Add(ErrCodeDuplicatePort, pfield, "device %q declares signal %q more than once", name, signal)
			continue
		}
		seen[signal] = true

		flags, err := ParseFlags(ps.Flags)
		if err != nil {
			issues.Add(ErrCodeInvalidFlags, pfield+".flags", "%v", err)
		}
		if err := ps.Range.Validate(); err != nil {
			issues.Add(ErrCodeInvalidRange, pfield+".range", "%v", err)
		}
		var physical *rangemap.Range
		if ps.Physical != nil {
			if err := ps.Physical.Validate(); err != nil {
				issues.Add(ErrCodeInvalidRange, pfield+".physical", "%v", err)
			}
			r := *ps.Physical
			physical = &r
		}

		d.Ports = append(d.Ports, Port{
			Device:   name,
			Signal:   signal,
			Channel:  ps.Channel,
			Range:    ps.Range,
			Physical: physical,
			Flags:    flags,
		})
	}
	return d, true
}

func (n *Network) buildConnection(spec ConnectionSpec, field string, issues *Issues, opts []rangemap.Option) (Connection, bool) {
	src, srcOK := n.lookup(spec.SourceDevice, spec.SourceSignal)
	if !srcOK {
		issues.Add(ErrCodeUnknownReference, field, "source %s.%s does not exist", spec.SourceDevice, spec.SourceSignal)
	}
	dst, dstOK := n.lookup(spec.DestDevice, spec.DestSignal)
	if !dstOK {
		issues.Add(ErrCodeUnknownReference, field, "destination %s.%s does not exist", spec.DestDevice, spec.DestSignal)
	}
	if !srcOK || !dstOK {
		return Connection{}, false
	}
	// Ports with malformed flags were already reported.
	if src.Flags == 0 || dst.Flags == 0 {
		return Connection{}, false
	}

	ok := true
	if !src.CanDrive() {
		issues.Add(ErrCodeIncompatibleDirection, field, "source %s is not an output (flags %s)", src.Ref(), src.Flags)
		ok = false
	}
	if !dst.CanReceive() {
		issues.Add(ErrCodeIncompatibleDirection, field, "destination %s is not an input (flags %s)", dst.Ref(), dst.Flags)
		ok = false
	}
	if src.Digital() != dst.Digital() {
		issues.Add(ErrCodeDomainMismatch, field, "%s is %s but %s is %s", src.Ref(), domain(src), dst.Ref(), domain(dst))
		ok = false
	}
	if !ok {
		return Connection{}, false
	}

	steps := src.ToElectrical()
	steps = append(steps, rangemap.Step{Stage: rangemap.StageConnection, From: src.Range, To: dst.Range})
	steps = append(steps, dst.ToPhysical()...)
	return Connection{Source: src, Dest: dst, mapper: rangemap.NewChain(steps, opts...)}, true
}

func domain(p Port) string {
	if p.Digital() {
		return "digital"
	}
	return "analog"
}

func (n *Network) lookup(device, signal string) (Port, bool) {
	d, ok := n.byName[normalize(device)]
	if !ok {
		return Port{}, false
	}
	return d.Port(signal)
}

// Resolve returns the port named by device and signal.
func (n *Network) Resolve(device, signal string) (Port, error) {
	d, ok := n.byName[normalize(device)]
	if !ok {
		return Port{}, fmt.Errorf("unknown device %q", device)
	}
	p, ok := d.Port(signal)
	if !ok {
		return Port{}, fmt.Errorf("device %q has no signal %q", device, signal)
	}
	return p, nil
}

// Device returns the named device.
func (n *Network) Device(name string) (*Device, bool) {
	d, ok := n.byName[normalize(name)]
	return d, ok
}

// Devices returns devices in declaration order.
func (n *Network) Devices() []*Device {
	return append([]*Device(nil), n.devices...)
}

// Connections returns connections in declaration order.
func (n *Network) Connections() []Connection {
	return append([]Connection(nil), n.connections...)
}

// ConnectionsFrom returns the connections driven by the given port, in
// declaration order.
func (n *Network) ConnectionsFrom(device, signal string) []Connection {
	idx := n.from[PortRef{Device: normalize(device), Signal: normalize(signal)}]
	out := make([]Connection, 0, len(idx))
	for _, i := range idx {
		out = append(out, n.connections[i])
	}
	return out
}

// DriverOf returns the connection driving the given port, if any.
func (n *Network) DriverOf(device, signal string) (Connection, bool) {
	i, ok := n.to[PortRef{Device: normalize(device), Signal: normalize(signal)}]
	if !ok {
		return Connection{}, false
	}
	return n.connections[i], true
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("name %q must not contain '.'", name)
	}
	return nil
}
