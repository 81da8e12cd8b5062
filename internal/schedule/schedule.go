// Package schedule flattens a test plan into a single absolute-time timeline.
//
// Phases are laid end to end; each command lands at its phase's start plus its
// offset. Logging requests contribute a sample tick at every k*period within
// the plan's total duration, and every phase contributes a boundary marker at
// its end. At equal times the order is boundary, command, sample tick; within
// each kind declaration order is kept.
package schedule

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/Hoorsana/Observer-2/internal/plan"
)

// Times are rounded to nanoseconds so that equal instants computed along
// different float paths compare equal.
const (
	perSecond = 1e9
	quantum   = 1 / perSecond
)

// Quantize rounds t to the timeline resolution. The result is the float
// nearest the decimal nanosecond value, so 3*0.1 quantizes to 0.3.
func Quantize(t float64) float64 {
	return math.Round(t*perSecond) / perSecond
}

// EventKind orders events that share a time.
type EventKind int

const (
	KindPhaseBoundary EventKind = iota
	KindCommand
	KindSampleTick
)

func (k EventKind) String() string {
	switch k {
	case KindPhaseBoundary:
		return "boundary"
	case KindCommand:
		return "command"
	case KindSampleTick:
		return "sample"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one entry of the timeline.
type Event struct {
	Time float64
	Kind EventKind
	// Phase is the index of the phase a command belongs to, or the phase
	// whose end a boundary marks. Zero for sample ticks.
	Phase int
	// Index is the command's position within its phase, or the logging
	// request's position for a sample tick.
	Index int

	Command plan.Command
	Request plan.LoggingRequest
}

// Describe renders a short human-readable label.
func (e Event) Describe() string {
	switch e.Kind {
	case KindPhaseBoundary:
		return fmt.Sprintf("phase %d end", e.Phase)
	case KindCommand:
		return e.Command.String()
	case KindSampleTick:
		return "sample " + e.Request.Key().String()
	default:
		return e.Kind.String()
	}
}

// Timeline is the flattened, time-ordered event stream for a plan.
type Timeline struct {
	events   []Event
	starts   []float64
	duration float64
}

// Build flattens p. It fails with a *ScheduleError when a phase duration is
// negative or not finite, a command offset falls outside [0, duration), or a
// logging period is not positive.
func Build(p *plan.TestPlan) (*Timeline, error) {
	starts := make([]float64, len(p.Phases))
	var events []Event

	var offset float64
	for i, ph := range p.Phases {
		if math.IsNaN(ph.Duration) || math.IsInf(ph.Duration, 0) || ph.Duration < 0 {
			return nil, &ScheduleError{
				Code:    ErrCodeInvalidDuration,
				Phase:   i,
				Command: -1,
				Message: fmt.Sprintf("phase duration %g must be finite and non-negative", ph.Duration),
			}
		}
		start := Quantize(offset)
		starts[i] = start

		for j, cmd := range ph.Commands {
			if math.IsNaN(cmd.Time) || cmd.Time < 0 || cmd.Time >= ph.Duration {
				return nil, &ScheduleError{
					Code:    ErrCodeOffsetOutOfPhase,
					Phase:   i,
					Command: j,
					Message: fmt.Sprintf("offset %g outside [0, %g)", cmd.Time, ph.Duration),
				}
			}
			events = append(events, Event{
				Time:    Quantize(start + cmd.Time),
				Kind:    KindCommand,
				Phase:   i,
				Index:   j,
				Command: cmd,
			})
		}

		offset += ph.Duration
		events = append(events, Event{
			Time:  Quantize(offset),
			Kind:  KindPhaseBoundary,
			Phase: i,
		})
	}
	duration := Quantize(offset)

	for i, req := range p.Logging {
		if !(req.Period > 0) || math.IsInf(req.Period, 0) {
			return nil, &ScheduleError{
				Code:    ErrCodeInvalidPeriod,
				Phase:   -1,
				Command: -1,
				Message: fmt.Sprintf("logging[%d] period %g must be positive and finite", i, req.Period),
			}
		}
		for _, t := range TickTimes(req.Period, 0, duration) {
			events = append(events, Event{Time: t, Kind: KindSampleTick, Index: i, Request: req})
		}
	}

	sort.SliceStable(events, func(a, b int) bool {
		if events[a].Time != events[b].Time {
			return events[a].Time < events[b].Time
		}
		return events[a].Kind < events[b].Kind
	})

	return &Timeline{events: events, starts: starts, duration: duration}, nil
}

// TickTimes returns the quantized times k*period lying in [from, to].
// Multiplication rather than accumulation keeps later ticks exact.
func TickTimes(period, from, to float64) []float64 {
	if !(period > 0) {
		return nil
	}
	from, to = Quantize(from), Quantize(to)
	// Max also turns the -0 of Ceil(-quantum) into +0.
	k := math.Max(0, math.Ceil(from/period-quantum))
	var out []float64
	for ; ; k++ {
		t := Quantize(k * period)
		if t > to {
			break
		}
		if t < from {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Events returns a copy of the timeline.
func (tl *Timeline) Events() []Event {
	return append([]Event(nil), tl.events...)
}

// Len returns the number of events.
func (tl *Timeline) Len() int {
	return len(tl.events)
}

// PhaseStarts returns each phase's absolute start time.
func (tl *Timeline) PhaseStarts() []float64 {
	return append([]float64(nil), tl.starts...)
}

// Duration returns the total plan duration.
func (tl *Timeline) Duration() float64 {
	return tl.duration
}

// Render writes a header line followed by one "<time> <description>" line
// per event.
func (tl *Timeline) Render(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "duration %g phases %d events %d\n", tl.duration, len(tl.starts), len(tl.events)); err != nil {
		return err
	}
	for _, e := range tl.events {
		if _, err := fmt.Fprintf(w, "%.3f %s\n", e.Time, e.Describe()); err != nil {
			return err
		}
	}
	return nil
}
