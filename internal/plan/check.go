package plan

import (
	"fmt"
	"math"

	"github.com/Hoorsana/Observer-2/internal/network"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// Check validates plan references against a built network. Every issue is
// collected into a single *network.ValidationError.
//
// Timing rules (offsets inside phases, non-negative durations) belong to the
// scheduler and are not checked here.
func Check(p *TestPlan, n *network.Network) error {
	var issues network.Issues

	for i, ph := range p.Phases {
		for j, cmd := range ph.Commands {
			checkCommand(cmd, fmt.Sprintf("phases[%d].commands[%d]", i, j), n, &issues)
		}
	}

	seen := make(map[timeseries.Key]int, len(p.Logging))
	for i, req := range p.Logging {
		field := fmt.Sprintf("logging[%d]", i)
		if _, err := n.Resolve(req.Target, req.Signal); err != nil {
			code := network.ErrCodeUnknownSignal
			if _, ok := n.Device(req.Target); !ok {
				code = network.ErrCodeUnknownTarget
			}
			issues.Add(code, field, "%v", err)
		}
		if !(req.Period > 0) || math.IsInf(req.Period, 0) {
			issues.Add(network.ErrCodeInvalidLogging, field+".period", "period must be positive and finite, got %g", req.Period)
		}
		if _, err := timeseries.ParseInterpolation(string(req.Kind)); err != nil {
			issues.Add(network.ErrCodeInvalidLogging, field+".kind", "%v", err)
		}
		if prev, dup := seen[req.Key()]; dup {
			issues.Add(network.ErrCodeDuplicateLogging, field, "%s is already logged by logging[%d]", req.Key(), prev)
			continue
		}
		seen[req.Key()] = i
	}

	return issues.Err()
}

func checkCommand(cmd Command, field string, n *network.Network, issues *network.Issues) {
	if _, err := ParseCommandKind(string(cmd.Kind)); err != nil {
		issues.Add(network.ErrCodeInvalidCommand, field+".command", "%v", err)
		return
	}
	if _, ok := n.Device(cmd.Target); !ok {
		issues.Add(network.ErrCodeUnknownTarget, field+".target", "unknown device %q", cmd.Target)
		return
	}

	if cmd.Kind.TargetsSignal() {
		if _, err := n.Resolve(cmd.Target, cmd.Data.Signal); err != nil {
			issues.Add(network.ErrCodeUnknownSignal, field+".data.signal", "%v", err)
		}
	} else if cmd.Data.Param == "" {
		issues.Add(network.ErrCodeInvalidCommand, field+".data.param", "set_param requires a parameter name")
	}

	if cmd.Kind == SetSignalSine && cmd.Data.Frequency < 0 {
		issues.Add(network.ErrCodeInvalidCommand, field+".data.frequency", "frequency must not be negative, got %g", cmd.Data.Frequency)
	}
}
