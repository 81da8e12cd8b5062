// Package timeseries holds per-signal sample series and the merge that
// stitches consecutive execution segments together.
package timeseries

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sample is a single logged value.
type Sample struct {
	Time  float64 `json:"time"`
	Value float64 `json:"value"`
}

// Series is a sequence of samples with strictly increasing time.
type Series []Sample

// Key identifies a logged signal.
type Key struct {
	Target string `json:"target"`
	Signal string `json:"signal"`
}

// String renders "target.signal".
func (k Key) String() string {
	return k.Target + "." + k.Signal
}

// Segment is the output of one driver advance: a series per logged signal.
type Segment map[Key]Series

// Interpolation selects how a series is evaluated between samples.
type Interpolation string

const (
	Previous Interpolation = "previous"
	Linear   Interpolation = "linear"
	Next     Interpolation = "next"
	Nearest  Interpolation = "nearest"
)

// ParseInterpolation resolves an interpolation name. Empty means Previous.
func ParseInterpolation(s string) (Interpolation, error) {
	switch k := Interpolation(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return Previous, nil
	case Previous, Linear, Next, Nearest:
		return k, nil
	default:
		return "", fmt.Errorf("unknown interpolation kind %q", s)
	}
}

// ErrOutOfRange is returned when a series is evaluated outside the span its
// interpolation kind can answer.
var ErrOutOfRange = errors.New("time outside series")

// Merge concatenates next onto prev. When next's first sample has the same
// time as prev's last, only next's sample is kept: the later segment
// observed the state after anything applied at that instant.
//
// Merge never aliases prev's backing array. It is associative, and an empty
// series on either side is an identity.
func Merge(prev, next Series) Series {
	if len(next) == 0 {
		return append(Series(nil), prev...)
	}
	n := len(prev)
	if n > 0 && prev[n-1].Time == next[0].Time {
		n--
	}
	out := make(Series, 0, n+len(next))
	out = append(out, prev[:n]...)
	return append(out, next...)
}

// MergeSegment folds seg into acc key by key.
func MergeSegment(acc map[Key]Series, seg Segment) {
	for k, s := range seg {
		acc[k] = Merge(acc[k], s)
	}
}

// Validate checks that times are strictly increasing.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if s[i].Time <= s[i-1].Time {
			return fmt.Errorf("sample %d at t=%g does not follow t=%g", i, s[i].Time, s[i-1].Time)
		}
	}
	return nil
}

// Times returns the sample times.
func (s Series) Times() []float64 {
	out := make([]float64, len(s))
	for i, smp := range s {
		out[i] = smp.Time
	}
	return out
}

// Values returns the sample values.
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, smp := range s {
		out[i] = smp.Value
	}
	return out
}

// Last returns the final sample.
func (s Series) Last() (Sample, bool) {
	if len(s) == 0 {
		return Sample{}, false
	}
	return s[len(s)-1], true
}

// At evaluates the series at t.
func (s Series) At(t float64, kind Interpolation) (float64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("evaluate empty series at t=%g: %w", t, ErrOutOfRange)
	}
	// i is the first sample with Time >= t.
	i := sort.Search(len(s), func(i int) bool { return s[i].Time >= t })
	exact := i < len(s) && s[i].Time == t
	if exact {
		return s[i].Value, nil
	}

	switch kind {
	case Previous, "":
		if i == 0 {
			return 0, fmt.Errorf("no sample at or before t=%g: %w", t, ErrOutOfRange)
		}
		return s[i-1].Value, nil
	case Next:
		if i == len(s) {
			return 0, fmt.Errorf("no sample at or after t=%g: %w", t, ErrOutOfRange)
		}
		return s[i].Value, nil
	case Linear:
		if i == 0 || i == len(s) {
			return 0, fmt.Errorf("t=%g outside [%g, %g]: %w", t, s[0].Time, s[len(s)-1].Time, ErrOutOfRange)
		}
		a, b := s[i-1], s[i]
		return a.Value + (t-a.Time)/(b.Time-a.Time)*(b.Value-a.Value), nil
	case Nearest:
		if i == 0 {
			return s[0].Value, nil
		}
		if i == len(s) {
			return s[len(s)-1].Value, nil
		}
		if t-s[i-1].Time <= s[i].Time-t {
			return s[i-1].Value, nil
		}
		return s[i].Value, nil
	default:
		return 0, fmt.Errorf("unknown interpolation kind %q", kind)
	}
}

// Keys returns the keys of m sorted by target then signal.
func Keys(m map[Key]Series) []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Target != keys[j].Target {
			return keys[i].Target < keys[j].Target
		}
		return keys[i].Signal < keys[j].Signal
	})
	return keys
}
