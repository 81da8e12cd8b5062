package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Hoorsana/Observer-2/internal/digest"
	"github.com/Hoorsana/Observer-2/internal/driver/sim"
	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/store"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Clamp       bool
	Description string

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// SeriesSummary describes one logged signal of a run.
type SeriesSummary struct {
	Key     string   `json:"key"`
	Samples int      `json:"samples"`
	Last    *float64 `json:"last,omitempty"`
}

// RunSummary is the outcome of the run command.
type RunSummary struct {
	RunID    string          `json:"run_id"`
	State    engine.State    `json:"state"`
	Duration float64         `json:"duration"`
	Reached  float64         `json:"reached"`
	Entries  int             `json:"logbook_entries"`
	Series   []SeriesSummary `json:"series"`
	Error    string          `json:"error,omitempty"`
	Digest   string          `json:"digest"`
	Stored   bool            `json:"stored"`
}

func (s RunSummary) renderText(w io.Writer) error {
	fmt.Fprintf(w, "run %s %s at t=%g of %g\n", s.RunID, s.State, s.Reached, s.Duration)
	fmt.Fprintf(w, "digest: %s\n", s.Digest)
	fmt.Fprintf(w, "logbook: %d entries\n", s.Entries)
	for _, ss := range s.Series {
		if ss.Last == nil {
			fmt.Fprintf(w, "  %s: no samples\n", ss.Key)
			continue
		}
		fmt.Fprintf(w, "  %s: %d samples, last %g\n", ss.Key, ss.Samples, *ss.Last)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "error: %s\n", s.Error)
	}
	return nil
}

func summarize(res *engine.Result) RunSummary {
	s := RunSummary{
		RunID:    res.RunID,
		State:    res.State,
		Duration: res.Duration,
		Reached:  res.Reached,
		Entries:  len(res.Logbook),
		Series:   make([]SeriesSummary, 0, len(res.Timeseries)),
		Digest:   digest.MustBundle(res),
	}
	if res.Err != nil {
		s.Error = res.Err.Error()
	}
	for _, k := range timeseries.Keys(res.Timeseries) {
		series := res.Timeseries[k]
		ss := SeriesSummary{Key: k.String(), Samples: len(series)}
		if len(series) > 0 {
			last := series[len(series)-1].Value
			ss.Last = &last
		}
		s.Series = append(s.Series, ss)
	}
	return s
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <bench> <plan>",
		Short: "Run a plan on the simulation backend",
		Long: `Run a plan against a bench on the simulation backend and store the
result bundle.

The database is created if it doesn't exist. Each run gets a time-sortable
id; the merged timeseries and the logbook are written under it. Ctrl-C
stops the run between events and stores what was collected.

Exit codes:
  0 - Run completed
  1 - Run aborted
  2 - Command error (unreadable file, database error)

Example:
  observer run --db ./observer.db ./bench.yaml ./plan.yaml
  observer run --db /tmp/test.db --clamp ./bench.yaml ./plan.yaml --verbose`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().BoolVar(&opts.Clamp, "clamp", false, "clamp out-of-range values instead of aborting")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description stored with the run (default: the plan's)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPlan(opts *RunOptions, benchPath, planPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.Logger()

	bench, p, err := loadInputs(opts.RootOptions, formatter, benchPath, planPath)
	if err != nil {
		return err
	}

	// Open database (create if not exists)
	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		if ferr := formatter.Error(ErrCodeDatabase, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	runIDs := opts.RunIDs
	if runIDs == nil {
		runIDs = engine.UUIDv7Generator{}
	}
	reg := prometheus.NewRegistry()
	coordOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithRunIDGenerator(runIDs),
		engine.WithMetrics(reg),
	}
	if opts.Clamp {
		coordOpts = append(coordOpts, engine.WithClamping())
	}
	coord := engine.New(sim.New(sim.WithLogger(logger)), coordOpts...)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	res, runErr := coord.Run(ctx, engine.Config{
		Devices:     bench.Devices,
		Connections: bench.Connections,
		Plan:        p,
	})

	description := opts.Description
	if description == "" {
		description = p.Description
	}
	// The run is over; a cancelled ctx must not lose the bundle.
	inserted, err := st.WriteResult(context.WithoutCancel(ctx), res, description)
	if err != nil {
		if ferr := formatter.Error(ErrCodeDatabase, err.Error(), nil); ferr != nil {
			return ferr
		}
		return WrapExitError(ExitCommandError, "failed to store run", err)
	}
	logger.Info("run stored", "run_id", res.RunID, "state", res.State, "inserted", inserted)
	logMetrics(formatter, reg)

	summary := summarize(res)
	summary.Stored = inserted
	if runErr != nil {
		if err := formatter.Error(ErrCodeRunAborted, runErr.Error(), summary); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "run aborted", runErr)
	}
	return formatter.Success(summary)
}

// logMetrics prints the run's counters in verbose mode.
func logMetrics(formatter *OutputFormatter, reg *prometheus.Registry) {
	if !formatter.Verbose {
		return
	}
	families, err := reg.Gather()
	if err != nil {
		formatter.VerboseLog("metrics: %v", err)
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				formatter.VerboseLog("metric %s{%s} %g", mf.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				formatter.VerboseLog("metric %s count=%d sum=%g", mf.GetName(), m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
		}
	}
}
