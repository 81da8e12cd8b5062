package loader

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/Hoorsana/Observer-2/internal/plan"
	"github.com/Hoorsana/Observer-2/internal/rangemap"
)

// HCL bench:
//
//	device "dac" {
//	  kind = "instrument"
//	  port "out1" {
//	    channel = "ao0"
//	    range   = [0, 5]
//	    flags   = ["output", "analog"]
//	  }
//	}
//	connection {
//	  from = ["dac", "out1"]
//	  to   = ["adder", "val1"]
//	}
type hclBench struct {
	Devices     []hclDevice     `hcl:"device,block"`
	Connections []hclConnection `hcl:"connection,block"`
}

type hclDevice struct {
	Name  string    `hcl:"name,label"`
	Kind  string    `hcl:"kind,optional"`
	Ports []hclPort `hcl:"port,block"`
	Model *hclModel `hcl:"model,block"`
}

type hclPort struct {
	Signal   string    `hcl:"signal,label"`
	Channel  string    `hcl:"channel,optional"`
	Range    []float64 `hcl:"range"`
	Physical []float64 `hcl:"physical,optional"`
	Flags    []string  `hcl:"flags"`
}

type hclModel struct {
	Type   string             `hcl:"type"`
	Params map[string]float64 `hcl:"params,optional"`
}

type hclConnection struct {
	From []string `hcl:"from"`
	To   []string `hcl:"to"`
}

// HCL plan. A phase block either declares the phase inline or names an
// include file:
//
//	logging "adder" "sum" {
//	  period = 0.5
//	}
//	phase {
//	  duration = 2
//	  command "set_signal" {
//	    target = "adder"
//	    signal = "val1"
//	    value  = 30
//	  }
//	}
//	phase {
//	  include = "cooldown.yaml"
//	}
type hclPlan struct {
	Description string       `hcl:"description,optional"`
	Logging     []hclLogging `hcl:"logging,block"`
	Phases      []hclPhase   `hcl:"phase,block"`
	Duration    *float64     `hcl:"duration,optional"`
	Commands    []hclCommand `hcl:"command,block"`
}

type hclLogging struct {
	Target      string  `hcl:"target,label"`
	Signal      string  `hcl:"signal,label"`
	Period      float64 `hcl:"period"`
	Kind        string  `hcl:"kind,optional"`
	Description string  `hcl:"description,optional"`
}

type hclPhase struct {
	Include     string       `hcl:"include,optional"`
	Description string       `hcl:"description,optional"`
	Duration    float64      `hcl:"duration,optional"`
	Commands    []hclCommand `hcl:"command,block"`
}

type hclCommand struct {
	Kind          string  `hcl:"kind,label"`
	Time          float64 `hcl:"time,optional"`
	Target        string  `hcl:"target"`
	Description   string  `hcl:"description,optional"`
	Signal        string  `hcl:"signal,optional"`
	Param         string  `hcl:"param,optional"`
	Value         float64 `hcl:"value,optional"`
	Slope         float64 `hcl:"slope,optional"`
	InitialOutput float64 `hcl:"initial_output,optional"`
	Amplitude     float64 `hcl:"amplitude,optional"`
	Frequency     float64 `hcl:"frequency,optional"`
	Phase         float64 `hcl:"phase,optional"`
	Bias          float64 `hcl:"bias,optional"`
}

func decodeHCL(path string, data []byte, v any) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return &LoadError{Path: path, Code: ErrCodeSyntax, Message: "failed to parse HCL", Err: diags}
	}
	if diags = gohcl.DecodeBody(file.Body, nil, v); diags.HasErrors() {
		return &LoadError{Path: path, Code: ErrCodeSchema, Message: "failed to decode HCL", Err: diags}
	}
	return nil
}

func decodeHCLBench(path string, data []byte) (*benchDoc, error) {
	var hb hclBench
	if err := decodeHCL(path, data, &hb); err != nil {
		return nil, err
	}

	doc := &benchDoc{}
	for _, hd := range hb.Devices {
		d := deviceDoc{Name: hd.Name, Kind: hd.Kind}
		for _, hp := range hd.Ports {
			p := portDoc{Signal: hp.Signal, Channel: hp.Channel, Flags: hp.Flags}
			r, err := hclRange(hp.Range)
			if err != nil {
				return nil, &LoadError{Path: path, Code: ErrCodeSchema, Message: fmt.Sprintf("device %s port %s range", hd.Name, hp.Signal), Err: err}
			}
			p.Range = r
			if hp.Physical != nil {
				phys, err := hclRange(hp.Physical)
				if err != nil {
					return nil, &LoadError{Path: path, Code: ErrCodeSchema, Message: fmt.Sprintf("device %s port %s physical", hd.Name, hp.Signal), Err: err}
				}
				p.Physical = &phys
			}
			d.Ports = append(d.Ports, p)
		}
		if hd.Model != nil {
			d.Model = &modelDoc{Type: hd.Model.Type, Params: hd.Model.Params}
		}
		doc.Devices = append(doc.Devices, d)
	}
	for i, hc := range hb.Connections {
		if len(hc.From) != 2 || len(hc.To) != 2 {
			return nil, &LoadError{Path: path, Code: ErrCodeSchema, Message: fmt.Sprintf("connection %d: from and to need [device, signal]", i)}
		}
		doc.Connections = append(doc.Connections, connectionDoc{hc.From[0], hc.From[1], hc.To[0], hc.To[1]})
	}
	return doc, nil
}

func hclRange(bounds []float64) (rangeDoc, error) {
	if len(bounds) != 2 {
		return rangeDoc{}, fmt.Errorf("need [lo, hi], got %d values", len(bounds))
	}
	return rangeDoc(rangemap.Range{Min: bounds[0], Max: bounds[1]}), nil
}

func decodeHCLPlan(path string, data []byte) (*planDoc, error) {
	var hp hclPlan
	if err := decodeHCL(path, data, &hp); err != nil {
		return nil, err
	}

	doc := &planDoc{Description: hp.Description, Duration: hp.Duration, Commands: hclCommands(hp.Commands)}
	for _, l := range hp.Logging {
		doc.Logging = append(doc.Logging, loggingDoc(l))
	}
	for i, ph := range hp.Phases {
		if ph.Include != "" {
			if ph.Description != "" || ph.Duration != 0 || len(ph.Commands) > 0 {
				return nil, &LoadError{Path: path, Code: ErrCodeSchema, Message: fmt.Sprintf("phase %d: include excludes inline fields", i)}
			}
			doc.Phases = append(doc.Phases, phaseRef{Include: ph.Include})
			continue
		}
		doc.Phases = append(doc.Phases, phaseRef{Phase: &phaseDoc{
			Description: ph.Description,
			Duration:    ph.Duration,
			Commands:    hclCommands(ph.Commands),
		}})
	}
	return doc, nil
}

func hclCommands(in []hclCommand) []commandDoc {
	var out []commandDoc
	for _, c := range in {
		out = append(out, commandDoc{
			Time:        c.Time,
			Command:     c.Kind,
			Target:      c.Target,
			Description: c.Description,
			Data: plan.Data{
				Signal:        c.Signal,
				Param:         c.Param,
				Value:         c.Value,
				Slope:         c.Slope,
				InitialOutput: c.InitialOutput,
				Amplitude:     c.Amplitude,
				Frequency:     c.Frequency,
				Phase:         c.Phase,
				Bias:          c.Bias,
			},
		})
	}
	return out
}
