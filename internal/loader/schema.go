package loader

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Hoorsana/Observer-2/internal/plan"
	"github.com/Hoorsana/Observer-2/internal/rangemap"
)

// The *Doc types are the file-level schema shared by the YAML and CUE
// front ends. HCL decodes into its own block structs and is converted.

type benchDoc struct {
	Devices     []deviceDoc     `yaml:"devices" json:"devices"`
	Connections []connectionDoc `yaml:"connections" json:"connections"`
}

type deviceDoc struct {
	Name  string    `yaml:"name" json:"name"`
	Kind  string    `yaml:"kind" json:"kind"`
	Ports []portDoc `yaml:"ports" json:"ports"`
	Model *modelDoc `yaml:"model" json:"model"`
}

type portDoc struct {
	Signal   string    `yaml:"signal" json:"signal"`
	Channel  string    `yaml:"channel" json:"channel"`
	Range    rangeDoc  `yaml:"range" json:"range"`
	Physical *rangeDoc `yaml:"physical" json:"physical"`
	Flags    []string  `yaml:"flags" json:"flags"`
}

type modelDoc struct {
	Type   string             `yaml:"type" json:"type"`
	Params map[string]float64 `yaml:"params" json:"params"`
}

// planDoc is a plan file or a phase include. A plan has logging and
// phases; an include is either a single phase (duration, commands) or a
// fragment listing phases of its own.
type planDoc struct {
	Description string       `yaml:"description" json:"description"`
	Logging     []loggingDoc `yaml:"logging" json:"logging"`
	Phases      []phaseRef   `yaml:"phases" json:"phases"`
	Duration    *float64     `yaml:"duration" json:"duration"`
	Commands    []commandDoc `yaml:"commands" json:"commands"`
}

type loggingDoc struct {
	Target      string  `yaml:"target" json:"target"`
	Signal      string  `yaml:"signal" json:"signal"`
	Period      float64 `yaml:"period" json:"period"`
	Kind        string  `yaml:"kind" json:"kind"`
	Description string  `yaml:"description" json:"description"`
}

type phaseDoc struct {
	Description string       `yaml:"description" json:"description"`
	Duration    float64      `yaml:"duration" json:"duration"`
	Commands    []commandDoc `yaml:"commands" json:"commands"`
}

type commandDoc struct {
	Time        float64   `yaml:"time" json:"time"`
	Command     string    `yaml:"command" json:"command"`
	Target      string    `yaml:"target" json:"target"`
	Data        plan.Data `yaml:"data" json:"data"`
	Description string    `yaml:"description" json:"description"`
}

// phaseRef is an inline phase or the path of a file holding one.
type phaseRef struct {
	Include string
	Phase   *phaseDoc
}

func (p *phaseRef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		return n.Decode(&p.Include)
	}
	p.Phase = &phaseDoc{}
	return n.Decode(p.Phase)
}

func (p *phaseRef) UnmarshalJSON(b []byte) error {
	if b = bytes.TrimSpace(b); len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &p.Include)
	}
	p.Phase = &phaseDoc{}
	return strictJSON(b, p.Phase)
}

// rangeDoc accepts {min: a, max: b}, "a..b" or [a, b].
type rangeDoc rangemap.Range

func (r *rangeDoc) UnmarshalYAML(n *yaml.Node) error {
	var raw any
	if err := n.Decode(&raw); err != nil {
		return err
	}
	parsed, err := parseRange(raw)
	if err != nil {
		return &shapeError{line: n.Line, err: err}
	}
	*r = rangeDoc(parsed)
	return nil
}

func (r *rangeDoc) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed, err := parseRange(raw)
	if err != nil {
		return err
	}
	*r = rangeDoc(parsed)
	return nil
}

func parseRange(raw any) (rangemap.Range, error) {
	switch v := raw.(type) {
	case string:
		return rangemap.Parse(v)
	case []any:
		if len(v) != 2 {
			return rangemap.Range{}, fmt.Errorf("range list needs 2 bounds, got %d", len(v))
		}
		lo, ok1 := number(v[0])
		hi, ok2 := number(v[1])
		if !ok1 || !ok2 {
			return rangemap.Range{}, fmt.Errorf("range bounds must be numbers, got %v", v)
		}
		return rangemap.Range{Min: lo, Max: hi}, nil
	case map[string]any:
		var r rangemap.Range
		for key, val := range v {
			f, ok := number(val)
			if !ok {
				return rangemap.Range{}, fmt.Errorf("range %s must be a number, got %v", key, val)
			}
			switch key {
			case "min":
				r.Min = f
			case "max":
				r.Max = f
			default:
				return rangemap.Range{}, fmt.Errorf("range: unknown field %q", key)
			}
		}
		return r, nil
	default:
		return rangemap.Range{}, fmt.Errorf("range must be a mapping, \"lo..hi\" string or [lo, hi] list, got %T", raw)
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// connectionDoc is [sourceDevice, sourceSignal, destDevice, destSignal].
type connectionDoc [4]string

func (c *connectionDoc) UnmarshalYAML(n *yaml.Node) error {
	var parts []string
	if err := n.Decode(&parts); err != nil {
		return &shapeError{line: n.Line, err: fmt.Errorf("connection must be a list of 4 names: %w", err)}
	}
	if err := c.set(parts); err != nil {
		return &shapeError{line: n.Line, err: err}
	}
	return nil
}

func (c *connectionDoc) UnmarshalJSON(b []byte) error {
	var parts []string
	if err := json.Unmarshal(b, &parts); err != nil {
		return fmt.Errorf("connection must be a list of 4 names: %w", err)
	}
	return c.set(parts)
}

func (c *connectionDoc) set(parts []string) error {
	if len(parts) != 4 {
		return fmt.Errorf("connection needs [source, signal, dest, signal], got %d elements", len(parts))
	}
	copy(c[:], parts)
	return nil
}

// shapeError is a well-formed value of the wrong shape, reported from a
// custom YAML unmarshaler.
type shapeError struct {
	line int
	err  error
}

func (e *shapeError) Error() string {
	return fmt.Sprintf("line %d: %v", e.line, e.err)
}

func (e *shapeError) Unwrap() error {
	return e.err
}

func strictJSON(b []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
