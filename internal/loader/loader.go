package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/Hoorsana/Observer-2/internal/network"
	"github.com/Hoorsana/Observer-2/internal/plan"
	"github.com/Hoorsana/Observer-2/internal/rangemap"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// PhaseDirEnv names the directory searched for phase includes that do not
// resolve relative to the including file.
const PhaseDirEnv = "OBSERVER_PHASE_DIR"

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
	FormatHCL  Format = "hcl"
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue":
		return FormatCUE, nil
	case ".hcl":
		return FormatHCL, nil
	default:
		return "", &LoadError{Path: path, Code: ErrCodeFormat, Message: "unsupported extension, want .yaml, .yml, .cue or .hcl"}
	}
}

// Bench is a loaded device network declaration.
type Bench struct {
	Devices     []network.DeviceSpec
	Connections []network.ConnectionSpec
}

// Option configures loading.
type Option func(*options)

type options struct {
	phaseDir string
}

// WithPhaseDir overrides the include search directory taken from
// OBSERVER_PHASE_DIR.
func WithPhaseDir(dir string) Option {
	return func(o *options) {
		o.phaseDir = dir
	}
}

// LoadBench reads a bench file.
func LoadBench(path string) (*Bench, error) {
	format, data, err := read(path)
	if err != nil {
		return nil, err
	}

	var doc *benchDoc
	switch format {
	case FormatHCL:
		doc, err = decodeHCLBench(path, data)
	default:
		doc = &benchDoc{}
		err = decodeDoc(format, path, data, doc)
	}
	if err != nil {
		return nil, err
	}
	return doc.bench(), nil
}

func (d *benchDoc) bench() *Bench {
	b := &Bench{}
	for _, dd := range d.Devices {
		spec := network.DeviceSpec{Name: dd.Name, Kind: dd.Kind}
		for _, pd := range dd.Ports {
			ps := network.PortSpec{
				Signal:  pd.Signal,
				Channel: pd.Channel,
				Range:   rangemap.Range(pd.Range),
				Flags:   pd.Flags,
			}
			if pd.Physical != nil {
				phys := rangemap.Range(*pd.Physical)
				ps.Physical = &phys
			}
			spec.Ports = append(spec.Ports, ps)
		}
		if dd.Model != nil {
			spec.Model = network.ModelSpec{Type: dd.Model.Type, Params: dd.Model.Params}
		}
		b.Devices = append(b.Devices, spec)
	}
	for _, c := range d.Connections {
		b.Connections = append(b.Connections, network.ConnectionSpec{
			SourceDevice: c[0],
			SourceSignal: c[1],
			DestDevice:   c[2],
			DestSignal:   c[3],
		})
	}
	return b
}

// LoadPlan reads a plan file and resolves its phase includes.
//
// A phase given as a string names another file, looked up relative to the
// including file and then relative to the phase directory. That file holds a
// single phase (description, duration, commands) or a fragment listing
// phases, which may include further files. Fragments never carry logging.
func LoadPlan(path string, opts ...Option) (*plan.TestPlan, error) {
	o := options{phaseDir: os.Getenv(PhaseDirEnv)}
	for _, opt := range opts {
		opt(&o)
	}

	doc, err := decodePlan(path)
	if err != nil {
		return nil, err
	}
	if doc.Duration != nil || len(doc.Commands) > 0 {
		return nil, &LoadError{Path: path, Code: ErrCodeSchema, Message: "a plan lists phases; duration and commands belong inside a phase"}
	}

	p := &plan.TestPlan{Description: doc.Description}
	for _, l := range doc.Logging {
		p.Logging = append(p.Logging, plan.LoggingRequest{
			Target:      l.Target,
			Signal:      l.Signal,
			Period:      l.Period,
			Kind:        timeseries.Interpolation(l.Kind),
			Description: l.Description,
		})
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{Path: path, Code: ErrCodeRead, Message: "cannot resolve path", Err: err}
	}
	p.Phases, err = resolvePhases(doc.Phases, path, []string{abs}, o)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// resolvePhases expands refs declared in from. stack holds the absolute
// paths of the files currently being expanded.
func resolvePhases(refs []phaseRef, from string, stack []string, o options) ([]plan.Phase, error) {
	var out []plan.Phase
	for _, ref := range refs {
		if ref.Phase != nil {
			out = append(out, ref.Phase.phase())
			continue
		}

		target, err := findInclude(from, ref.Include, o.phaseDir)
		if err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(target)
		if err != nil {
			return nil, &LoadError{Path: target, Code: ErrCodeRead, Message: "cannot resolve path", Err: err}
		}
		for _, seen := range stack {
			if seen == abs {
				chain := append(append([]string(nil), stack...), abs)
				return nil, &LoadError{Path: from, Code: ErrCodeIncludeCycle, Message: "include cycle: " + strings.Join(chain, " -> ")}
			}
		}

		doc, err := decodePlan(target)
		if err != nil {
			return nil, err
		}
		if len(doc.Logging) > 0 {
			return nil, &LoadError{Path: target, Code: ErrCodeFragment, Message: "logging may only appear in the top-level plan"}
		}

		switch {
		case len(doc.Phases) > 0:
			if doc.Duration != nil || len(doc.Commands) > 0 {
				return nil, &LoadError{Path: target, Code: ErrCodeFragment, Message: "a fragment lists phases or is a phase, not both"}
			}
			sub, err := resolvePhases(doc.Phases, target, append(stack, abs), o)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		case doc.Duration != nil:
			pd := phaseDoc{Description: doc.Description, Duration: *doc.Duration, Commands: doc.Commands}
			out = append(out, pd.phase())
		default:
			return nil, &LoadError{Path: target, Code: ErrCodeFragment, Message: "an included phase needs a duration"}
		}
	}
	return out, nil
}

func (d *phaseDoc) phase() plan.Phase {
	ph := plan.Phase{Description: d.Description, Duration: d.Duration}
	for _, c := range d.Commands {
		ph.Commands = append(ph.Commands, plan.Command{
			Time:        c.Time,
			Kind:        plan.CommandKind(c.Command),
			Target:      c.Target,
			Data:        c.Data,
			Description: c.Description,
		})
	}
	return ph
}

func findInclude(from, name, phaseDir string) (string, error) {
	var candidates []string
	if filepath.IsAbs(name) {
		candidates = []string{name}
	} else {
		candidates = append(candidates, filepath.Join(filepath.Dir(from), name))
		if phaseDir != "" {
			candidates = append(candidates, filepath.Join(phaseDir, name))
		}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", &LoadError{
		Path:    from,
		Code:    ErrCodeIncludeNotFound,
		Message: fmt.Sprintf("phase include %q not found (tried %s)", name, strings.Join(candidates, ", ")),
	}
}

func decodePlan(path string) (*planDoc, error) {
	format, data, err := read(path)
	if err != nil {
		return nil, err
	}
	if format == FormatHCL {
		return decodeHCLPlan(path, data)
	}
	doc := &planDoc{}
	if err := decodeDoc(format, path, data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func read(path string) (Format, []byte, error) {
	format, err := FormatOf(path)
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, &LoadError{Path: path, Code: ErrCodeRead, Message: "cannot read file", Err: err}
	}
	return format, data, nil
}

func decodeDoc(format Format, path string, data []byte, v any) error {
	switch format {
	case FormatYAML:
		return decodeYAML(path, data, v)
	case FormatCUE:
		return decodeCUE(path, data, v)
	default:
		return &LoadError{Path: path, Code: ErrCodeFormat, Message: fmt.Sprintf("no decoder for %s", format)}
	}
}

func decodeYAML(path string, data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return &LoadError{Path: path, Code: ErrCodeSchema, Message: "empty document"}
		}
		var te *yaml.TypeError
		var se *shapeError
		if errors.As(err, &te) || errors.As(err, &se) {
			return &LoadError{Path: path, Code: ErrCodeSchema, Message: "invalid YAML structure", Err: err}
		}
		return &LoadError{Path: path, Code: ErrCodeSyntax, Message: "failed to parse YAML", Err: err}
	}
	return nil
}

// decodeCUE evaluates the file, requires every exported field to be
// concrete and decodes the result through its JSON form. Definitions and
// hidden fields may be used freely to constrain or share values.
func decodeCUE(path string, data []byte, v any) error {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(data, cue.Filename(path))
	if err := val.Err(); err != nil {
		return &LoadError{Path: path, Code: ErrCodeSyntax, Message: "failed to compile CUE", Err: err}
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return &LoadError{Path: path, Code: ErrCodeSchema, Message: "CUE value is not concrete", Err: err}
	}
	js, err := val.MarshalJSON()
	if err != nil {
		return &LoadError{Path: path, Code: ErrCodeSchema, Message: "cannot export CUE value", Err: err}
	}
	if err := strictJSON(js, v); err != nil {
		return &LoadError{Path: path, Code: ErrCodeSchema, Message: "invalid CUE structure", Err: err}
	}
	return nil
}
