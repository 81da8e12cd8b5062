package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/store"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	Failed   bool
}

// RunList is the report output without a run id.
type RunList struct {
	Runs []store.Run `json:"runs"`
}

func (l RunList) renderText(w io.Writer) error {
	if len(l.Runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs stored.")
		return err
	}
	for _, r := range l.Runs {
		fmt.Fprintf(w, "%s %s reached %g of %g", r.ID, r.State, r.Reached, r.Duration)
		if r.Description != "" {
			fmt.Fprintf(w, " %q", r.Description)
		}
		fmt.Fprintln(w)
	}
	return nil
}

// SeriesReport is one stored series.
type SeriesReport struct {
	Key     string              `json:"key"`
	Samples []timeseries.Sample `json:"samples"`
}

// RunReport is a stored bundle.
type RunReport struct {
	Run     store.Run      `json:"run"`
	Logbook []engine.Entry `json:"logbook"`
	Series  []SeriesReport `json:"series"`
	// SameAs lists other stored runs with the same digest.
	SameAs []string `json:"same_as"`
}

func (r RunReport) renderText(w io.Writer) error {
	fmt.Fprintf(w, "run: %s\n", r.Run.ID)
	if r.Run.Description != "" {
		fmt.Fprintf(w, "description: %s\n", r.Run.Description)
	}
	fmt.Fprintf(w, "state: %s\n", r.Run.State)
	fmt.Fprintf(w, "reached: %g of %g\n", r.Run.Reached, r.Run.Duration)
	fmt.Fprintf(w, "digest: %s\n", r.Run.Digest)
	if len(r.SameAs) > 0 {
		fmt.Fprintf(w, "same as: %s\n", strings.Join(r.SameAs, ", "))
	}
	if r.Run.Error != "" {
		fmt.Fprintf(w, "error: %s\n", r.Run.Error)
	}
	fmt.Fprintln(w, "logbook:")
	for _, e := range r.Logbook {
		fmt.Fprintf(w, "  %d %s\n", e.Seq, e)
	}
	fmt.Fprintln(w, "series:")
	for _, s := range r.Series {
		parts := make([]string, len(s.Samples))
		for i, smp := range s.Samples {
			parts[i] = fmt.Sprintf("%g=%g", smp.Time, smp.Value)
		}
		fmt.Fprintf(w, "  %s: %s\n", s.Key, strings.Join(parts, " "))
	}
	return nil
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Show stored runs",
		Long: `Show stored runs.

Without a run id, lists every stored run in the order it was stored;
--failed keeps only runs whose logbook has an error or panic entry.
With a run id, prints its summary, logbook and timeseries.

Example:
  observer report --db ./observer.db
  observer report --db ./observer.db 0192f5c4-...
  observer report --db ./observer.db --format json 0192f5c4-...`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runReport(opts, runID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "list only runs with error or panic logbook entries")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// failedRuns keeps the runs that logged an error or a panic.
func failedRuns(ctx context.Context, st *store.Store, runs []store.Run) ([]store.Run, error) {
	failed := make(map[string]bool)
	for _, sev := range []engine.Severity{engine.SeverityError, engine.SeverityPanic} {
		ids, err := st.RunsWithSeverity(ctx, sev)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			failed[id] = true
		}
	}
	out := []store.Run{}
	for _, r := range runs {
		if failed[r.ID] {
			out = append(out, r)
		}
	}
	return out, nil
}

func runReport(opts *ReportOptions, runID string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	// Reading never creates a database.
	if _, err := os.Stat(opts.Database); err != nil {
		if ferr := formatter.Error(ErrCodeDatabase, fmt.Sprintf("database not found: %s", opts.Database), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		if ferr := formatter.Error(ErrCodeDatabase, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()

	if runID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if opts.Failed {
			if runs, err = failedRuns(ctx, st, runs); err != nil {
				return WrapExitError(ExitCommandError, "failed to list runs", err)
			}
		}
		return formatter.Success(RunList{Runs: runs})
	}

	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		if ferr := formatter.Error(ErrCodeNotFound, fmt.Sprintf("run %s not found", runID), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	res, err := st.ReadResult(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	twins, err := st.RunsWithDigest(ctx, run.Digest)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	report := RunReport{
		Run:     run,
		Logbook: res.Logbook,
		Series:  make([]SeriesReport, 0, len(res.Timeseries)),
		SameAs:  []string{},
	}
	for _, id := range twins {
		if id != run.ID {
			report.SameAs = append(report.SameAs, id)
		}
	}
	for _, k := range timeseries.Keys(res.Timeseries) {
		report.Series = append(report.Series, SeriesReport{
			Key:     k.String(),
			Samples: []timeseries.Sample(res.Timeseries[k]),
		})
	}
	formatter.VerboseLog("run %s: %d entries, %d series", runID, len(report.Logbook), len(report.Series))
	return formatter.Success(report)
}
