package harness

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Hoorsana/Observer-2/internal/engine"
	"github.com/Hoorsana/Observer-2/internal/store"
	"github.com/Hoorsana/Observer-2/internal/timeseries"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Logbook  []engine.Entry // Run logbook for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Logbook) > 0 {
		fmt.Fprintf(&buf, "\nLogbook:\n")
		for _, entry := range e.Logbook {
			fmt.Fprintf(&buf, "  [%d] %s\n", entry.Seq, entry)
		}
	}

	return buf.String()
}

// IsAssertionError returns true if err wraps an AssertionError.
func IsAssertionError(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// AssertionContext provides what assertions are evaluated against.
type AssertionContext struct {
	Ctx context.Context

	// Run is the result bundle under test.
	Run *engine.Result

	// Kinds maps each logged key to the interpolation its logging request
	// declared. Missing keys use previous-value interpolation.
	Kinds map[timeseries.Key]timeseries.Interpolation

	// Store, when set, holds the persisted run; final_state reads it back
	// from there.
	Store *store.Store
}

// EvaluateAssertions evaluates all assertions against the run.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(actx *AssertionContext, assertions []Assertion) []string {
	var failures []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertIsCloseAtTime:
			err = assertIsCloseAtTime(actx, assertion)
		case AssertIsEqualAtTime:
			err = assertIsEqualAtTime(actx, assertion)
		case AssertIsEqualOnce:
			err = assertIsEqualOnce(actx, assertion)
		case AssertFinalState:
			err = assertFinalState(actx, assertion)
		case AssertLogbookContains:
			err = assertLogbookContains(actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			failures = append(failures, err.Error())
		}
	}

	return failures
}

func (a Assertion) key() timeseries.Key {
	return timeseries.Key{Target: a.Target, Signal: a.Signal}
}

func tolerance(p *float64) float64 {
	if p == nil {
		return defaultTolerance
	}
	return *p
}

// series looks up the logged signal an assertion refers to.
func series(actx *AssertionContext, a Assertion) (timeseries.Series, error) {
	s, ok := actx.Run.Timeseries[a.key()]
	if !ok {
		var logged []string
		for _, k := range timeseries.Keys(actx.Run.Timeseries) {
			logged = append(logged, k.String())
		}
		return nil, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("logged signal %s", a.key()),
			Actual:   fmt.Sprintf("not logged; logged signals: [%s]", strings.Join(logged, ", ")),
		}
	}
	return s, nil
}

// valueAt evaluates the assertion's signal at its time.
func valueAt(actx *AssertionContext, a Assertion) (float64, error) {
	s, err := series(actx, a)
	if err != nil {
		return 0, err
	}
	kind := actx.Kinds[a.key()]
	v, err := s.At(*a.Time, kind)
	if err != nil {
		return 0, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s defined at t=%g", a.key(), *a.Time),
			Actual:   err.Error(),
		}
	}
	return v, nil
}

// assertIsCloseAtTime checks |actual - expected| <= atol + rtol*|expected|.
func assertIsCloseAtTime(actx *AssertionContext, a Assertion) error {
	actual, err := valueAt(actx, a)
	if err != nil {
		return err
	}
	rtol, atol := tolerance(a.RTol), tolerance(a.ATol)
	if math.Abs(actual-*a.Expected) <= atol+rtol*math.Abs(*a.Expected) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s(%g) = %g (rtol=%g, atol=%g)", a.key(), *a.Time, *a.Expected, rtol, atol),
		Actual:   fmt.Sprintf("%s(%g) = %g", a.key(), *a.Time, actual),
	}
}

func assertIsEqualAtTime(actx *AssertionContext, a Assertion) error {
	actual, err := valueAt(actx, a)
	if err != nil {
		return err
	}
	if actual == *a.Expected {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s(%g) = %g", a.key(), *a.Time, *a.Expected),
		Actual:   fmt.Sprintf("%s(%g) = %g", a.key(), *a.Time, actual),
	}
}

// assertIsEqualOnce checks that at least one sample taken in [lo, hi]
// equals the expected value.
func assertIsEqualOnce(actx *AssertionContext, a Assertion) error {
	s, err := series(actx, a)
	if err != nil {
		return err
	}
	var seen []string
	for _, smp := range s {
		if smp.Time < *a.Lo || smp.Time > *a.Hi {
			continue
		}
		if smp.Value == *a.Expected {
			return nil
		}
		seen = append(seen, fmt.Sprintf("%g@%g", smp.Value, smp.Time))
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s = %g once on [%g, %g]", a.key(), *a.Expected, *a.Lo, *a.Hi),
		Actual:   fmt.Sprintf("samples: [%s]", strings.Join(seen, " ")),
	}
}

func assertFinalState(actx *AssertionContext, a Assertion) error {
	state := actx.Run.State
	if actx.Store != nil {
		ctx := actx.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		run, err := actx.Store.ReadRun(ctx, actx.Run.RunID)
		if err != nil {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("stored run %s", actx.Run.RunID),
				Actual:   fmt.Sprintf("read error: %v", err),
			}
		}
		state = run.State
	}
	if state == a.State {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: string(a.State),
		Actual:   string(state),
		Logbook:  actx.Run.Logbook,
	}
}

func assertLogbookContains(actx *AssertionContext, a Assertion) error {
	for _, e := range actx.Run.Logbook {
		if a.Severity != "" && e.Severity != a.Severity {
			continue
		}
		if strings.Contains(e.What, a.What) {
			return nil
		}
	}
	expected := fmt.Sprintf("entry containing %q", a.What)
	if a.Severity != "" {
		expected += fmt.Sprintf(" with severity %s", a.Severity)
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: expected,
		Actual:   "not found in logbook",
		Logbook:  actx.Run.Logbook,
	}
}
