package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/Hoorsana/Observer-2/internal/loader"
	"github.com/Hoorsana/Observer-2/internal/schedule"
)

// TimelineEvent is one scheduled event in JSON output.
type TimelineEvent struct {
	Time        float64 `json:"time"`
	Kind        string  `json:"kind"`
	Phase       int     `json:"phase"`
	Description string  `json:"description"`
}

// ScheduleResult is the flattened timeline of a plan.
type ScheduleResult struct {
	Duration    float64         `json:"duration"`
	PhaseStarts []float64       `json:"phase_starts"`
	Events      []TimelineEvent `json:"events"`

	timeline *schedule.Timeline
}

func (r ScheduleResult) renderText(w io.Writer) error {
	return r.timeline.Render(w)
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule <plan>",
		Short: "Print the timeline of a plan",
		Long: `Print the timeline a plan expands to: phase boundaries, commands and
sample ticks in the order they will be applied.

Example:
  observer schedule ./plans/adder.yaml
  observer schedule --format json ./plans/adder.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runSchedule(opts *RootOptions, planPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	p, err := loader.LoadPlan(planPath, opts.loaderOptions()...)
	if err != nil {
		return reportLoadError(formatter, "plan", err)
	}

	tl, err := schedule.Build(p)
	if err != nil {
		var se *schedule.ScheduleError
		if !errors.As(err, &se) {
			return WrapExitError(ExitCommandError, "failed to schedule plan", err)
		}
		if ferr := formatter.Error(ErrCodeSchedule, se.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitFailure, "failed to schedule plan", err)
	}

	result := ScheduleResult{
		Duration:    tl.Duration(),
		PhaseStarts: tl.PhaseStarts(),
		Events:      make([]TimelineEvent, 0, tl.Len()),
		timeline:    tl,
	}
	for _, e := range tl.Events() {
		result.Events = append(result.Events, TimelineEvent{
			Time:        e.Time,
			Kind:        e.Kind.String(),
			Phase:       e.Phase,
			Description: e.Describe(),
		})
	}
	formatter.VerboseLog("%d events over %g", tl.Len(), tl.Duration())
	return formatter.Success(result)
}
