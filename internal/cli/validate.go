package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Hoorsana/Observer-2/internal/loader"
	"github.com/Hoorsana/Observer-2/internal/network"
	"github.com/Hoorsana/Observer-2/internal/plan"
	"github.com/Hoorsana/Observer-2/internal/schedule"
)

// ValidationIssue is one problem found in a bench or plan.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool              `json:"valid"`
	Devices     int               `json:"devices"`
	Connections int               `json:"connections"`
	Phases      int               `json:"phases"`
	Commands    int               `json:"commands"`
	Events      int               `json:"events"`
	Duration    float64           `json:"duration"`
	Issues      []ValidationIssue `json:"issues,omitempty"`
}

func (r ValidationResult) renderText(w io.Writer) error {
	if !r.Valid {
		for _, is := range r.Issues {
			if is.Field == "" {
				fmt.Fprintf(w, "  %s: %s\n", is.Code, is.Message)
				continue
			}
			fmt.Fprintf(w, "  %s %s: %s\n", is.Code, is.Field, is.Message)
		}
		return nil
	}
	_, err := fmt.Fprintf(w, "✓ bench and plan are valid: %d devices, %d connections, %d phases, %d commands, %d events, duration %g\n",
		r.Devices, r.Connections, r.Phases, r.Commands, r.Events, r.Duration)
	return err
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <bench> <plan>",
		Short: "Check a bench and a plan without running them",
		Long: `Check a bench and a plan without running them.

Builds the device network, checks every plan command and logging request
against it and lays the plan out on a timeline. All issues are reported
at once.

Exit codes:
  0 - Bench and plan are valid
  1 - Validation issues found
  2 - A file could not be loaded`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, benchPath, planPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	bench, p, err := loadInputs(opts, formatter, benchPath, planPath)
	if err != nil {
		return err
	}

	result := ValidationResult{
		Devices:     len(bench.Devices),
		Connections: len(bench.Connections),
		Phases:      len(p.Phases),
		Commands:    p.CommandCount(),
	}

	n, err := network.Build(bench.Devices, bench.Connections)
	if err != nil {
		if !collectIssues(&result, err) {
			return WrapExitError(ExitCommandError, "failed to build network", err)
		}
	} else {
		formatter.VerboseLog("network built: %d devices, %d connections", len(n.Devices()), len(n.Connections()))
		if err := plan.Check(p, n); err != nil && !collectIssues(&result, err) {
			return WrapExitError(ExitCommandError, "failed to check plan", err)
		}
	}

	tl, err := schedule.Build(p)
	if err != nil {
		if !collectIssues(&result, err) {
			return WrapExitError(ExitCommandError, "failed to schedule plan", err)
		}
	} else {
		result.Events = tl.Len()
		result.Duration = tl.Duration()
	}

	if len(result.Issues) > 0 {
		if err := formatter.Error(ErrCodeValidation, fmt.Sprintf("%d issue(s) found", len(result.Issues)), result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	result.Valid = true
	return formatter.Success(result)
}

// collectIssues appends the issues carried by a network or schedule error.
// It returns false for any other error.
func collectIssues(r *ValidationResult, err error) bool {
	var ve *network.ValidationError
	if errors.As(err, &ve) {
		for _, is := range ve.Issues {
			r.Issues = append(r.Issues, ValidationIssue{Code: string(is.Code), Field: is.Field, Message: is.Message})
		}
		return true
	}
	var se *schedule.ScheduleError
	if errors.As(err, &se) {
		field := ""
		switch {
		case se.Command >= 0:
			field = fmt.Sprintf("phases[%d].commands[%d]", se.Phase, se.Command)
		case se.Phase >= 0:
			field = fmt.Sprintf("phases[%d]", se.Phase)
		}
		r.Issues = append(r.Issues, ValidationIssue{Code: string(se.Code), Field: field, Message: se.Message})
		return true
	}
	return false
}

// loadInputs loads a bench and a plan. A load failure is reported through
// formatter and returned as an ExitCommandError.
func loadInputs(opts *RootOptions, formatter *OutputFormatter, benchPath, planPath string) (*loader.Bench, *plan.TestPlan, error) {
	bench, err := loader.LoadBench(benchPath)
	if err != nil {
		return nil, nil, reportLoadError(formatter, "bench", err)
	}
	formatter.VerboseLog("loaded bench %s: %d devices", benchPath, len(bench.Devices))

	p, err := loader.LoadPlan(planPath, opts.loaderOptions()...)
	if err != nil {
		return nil, nil, reportLoadError(formatter, "plan", err)
	}
	formatter.VerboseLog("loaded plan %s: %d phases", planPath, len(p.Phases))
	return bench, p, nil
}

func reportLoadError(formatter *OutputFormatter, what string, err error) error {
	code := loader.CodeOf(err)
	if code == "" {
		code = ErrCodeGeneric
	}
	if ferr := formatter.Error(code, fmt.Sprintf("failed to load %s: %v", what, err), nil); ferr != nil {
		return ferr
	}
	return WrapExitError(ExitCommandError, "failed to load "+what, err)
}
