package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Hoorsana/Observer-2/internal/engine"
)

// Scenario is one bench + plan run with assertions over its result.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario verifies.
	Description string `yaml:"description"`

	// Bench and Plan are file paths, relative to the scenario file when
	// loaded with LoadScenario.
	Bench string `yaml:"bench"`
	Plan  string `yaml:"plan"`

	// ExpectState is the final run state. Default: completed.
	ExpectState engine.State `yaml:"expect_state,omitempty"`

	// Clamp runs the coordinator with range clamping.
	Clamp bool `yaml:"clamp,omitempty"`

	// Assertions are checked in order; every failure is reported.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion checks one property of a run result.
type Assertion struct {
	// Type specifies the assertion type:
	// - "is_close_at_time": signal value at Time within tolerance of Expected
	// - "is_equal_at_time": signal value at Time equals Expected
	// - "is_equal_once": some sample in [Lo, Hi] equals Expected
	// - "final_state": the stored run ended in State
	// - "logbook_contains": an entry's what contains What
	Type string `yaml:"type"`

	// Target and Signal name the logged signal.
	Target string `yaml:"target,omitempty"`
	Signal string `yaml:"signal,omitempty"`

	Time     *float64 `yaml:"time,omitempty"`
	Expected *float64 `yaml:"expected,omitempty"`

	// RTol and ATol default to 1e-5.
	RTol *float64 `yaml:"rtol,omitempty"`
	ATol *float64 `yaml:"atol,omitempty"`

	Lo *float64 `yaml:"lo,omitempty"`
	Hi *float64 `yaml:"hi,omitempty"`

	// State is the expected final state (used by final_state).
	State engine.State `yaml:"state,omitempty"`

	// What is a substring of an entry's what (used by logbook_contains).
	What string `yaml:"what,omitempty"`

	// Severity optionally restricts logbook_contains.
	Severity engine.Severity `yaml:"severity,omitempty"`
}

// Assertion type constants.
const (
	AssertIsCloseAtTime   = "is_close_at_time"
	AssertIsEqualAtTime   = "is_equal_at_time"
	AssertIsEqualOnce     = "is_equal_once"
	AssertFinalState      = "final_state"
	AssertLogbookContains = "logbook_contains"
)

const defaultTolerance = 1e-5

// LoadScenario reads and parses a scenario YAML file. Bench and plan paths
// are resolved relative to the scenario file.
// Returns an error if the file doesn't exist, is malformed, contains unknown
// fields or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for _, p := range []*string{&scenario.Bench, &scenario.Plan} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}

	return &scenario, nil
}

// LoadScenarios loads every .yaml scenario in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	names := make(map[string]string, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		if prev, dup := names[s.Name]; dup {
			return nil, fmt.Errorf("scenario name %q used by both %s and %s", s.Name, prev, p)
		}
		names[s.Name] = p
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Bench == "" {
		return fmt.Errorf("bench is required")
	}

	if s.Plan == "" {
		return fmt.Errorf("plan is required")
	}

	for _, p := range []string{s.Bench, s.Plan} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", p)
		}
	}

	switch s.ExpectState {
	case "", engine.StateCompleted, engine.StateAborted:
	default:
		return fmt.Errorf("expect_state must be %s or %s, got %q", engine.StateCompleted, engine.StateAborted, s.ExpectState)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needSignal := func() error {
		if a.Target == "" || a.Signal == "" {
			return fmt.Errorf("assertions[%d]: target and signal are required for %s", index, a.Type)
		}
		if a.Expected == nil {
			return fmt.Errorf("assertions[%d]: expected is required for %s", index, a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertIsCloseAtTime, AssertIsEqualAtTime:
		if err := needSignal(); err != nil {
			return err
		}
		if a.Time == nil {
			return fmt.Errorf("assertions[%d]: time is required for %s", index, a.Type)
		}
		if (a.RTol != nil && *a.RTol < 0) || (a.ATol != nil && *a.ATol < 0) {
			return fmt.Errorf("assertions[%d]: tolerances must not be negative", index)
		}
	case AssertIsEqualOnce:
		if err := needSignal(); err != nil {
			return err
		}
		if a.Lo == nil || a.Hi == nil {
			return fmt.Errorf("assertions[%d]: lo and hi are required for is_equal_once", index)
		}
		if *a.Lo > *a.Hi {
			return fmt.Errorf("assertions[%d]: lo %g exceeds hi %g", index, *a.Lo, *a.Hi)
		}
	case AssertFinalState:
		if a.State != engine.StateCompleted && a.State != engine.StateAborted {
			return fmt.Errorf("assertions[%d]: state must be %s or %s for final_state", index, engine.StateCompleted, engine.StateAborted)
		}
	case AssertLogbookContains:
		if a.What == "" {
			return fmt.Errorf("assertions[%d]: what is required for logbook_contains", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
