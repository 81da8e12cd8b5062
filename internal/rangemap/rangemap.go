package rangemap

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// tolerance is the relative slack applied to inclusive bounds checks so that
// float noise from the affine transform does not produce spurious failures.
const tolerance = 1e-9

// Range is a closed numeric interval [Min, Max].
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Width returns Max - Min.
func (r Range) Width() float64 {
	return r.Max - r.Min
}

// Degenerate reports whether the range has zero width.
func (r Range) Degenerate() bool {
	return r.Max == r.Min
}

// Contains reports whether v lies inside the range, inclusive, allowing for
// float noise proportional to the range's magnitude.
func (r Range) Contains(v float64) bool {
	eps := r.slack()
	return v >= r.Min-eps && v <= r.Max+eps
}

// Clamp returns v limited to [Min, Max].
func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Validate checks that the range is finite and Min <= Max.
func (r Range) Validate() error {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) {
		return fmt.Errorf("range %s is not finite", r)
	}
	if r.Min > r.Max {
		return fmt.Errorf("range %s has min greater than max", r)
	}
	return nil
}

// String renders the range in the "lo..hi" form accepted by configuration.
func (r Range) String() string {
	return fmt.Sprintf("%g..%g", r.Min, r.Max)
}

// Parse reads the "lo..hi" form, e.g. "0..5" or "-100..300".
func Parse(s string) (Range, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "..")
	if !ok {
		return Range{}, fmt.Errorf("range %q: expected lo..hi", s)
	}
	minV, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: bad lower bound: %w", s, err)
	}
	maxV, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: bad upper bound: %w", s, err)
	}
	r := Range{Min: minV, Max: maxV}
	if err := r.Validate(); err != nil {
		return Range{}, err
	}
	return r, nil
}

func (r Range) slack() float64 {
	scale := math.Max(math.Abs(r.Min), math.Abs(r.Max))
	return tolerance * math.Max(1, scale)
}

// snap pulls a value that is within slack of a bound exactly onto the bound.
func (r Range) snap(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Map translates v from src to dst with the affine transform
//
//	dst.Min + (v - src.Min) / src.Width() * dst.Width()
//
// and fails instead of extrapolating. A value outside src, or a result
// outside dst, is Unrepresentable. A zero-width src is DegenerateRange.
func Map(v float64, src, dst Range) (float64, error) {
	return mapValue(v, src, dst, StageDirect, false)
}

// MapDelta translates a difference (a slope or an amplitude) from src to dst.
// Only the scale factor of the affine transform applies.
func MapDelta(d float64, src, dst Range) (float64, error) {
	if src.Degenerate() {
		return 0, &RangeError{Kind: DegenerateRange, Stage: StageDirect, Value: d, Source: src, Dest: dst}
	}
	return d * dst.Width() / src.Width(), nil
}

func mapValue(v float64, src, dst Range, stage Stage, clamp bool) (float64, error) {
	if src.Degenerate() {
		return 0, &RangeError{Kind: DegenerateRange, Stage: stage, Value: v, Source: src, Dest: dst}
	}
	if !clamp && !src.Contains(v) {
		return 0, &RangeError{Kind: Unrepresentable, Stage: stage, Value: v, Source: src, Dest: dst}
	}

	frac := (v - src.Min) / src.Width()
	mapped := dst.Min + frac*dst.Width()

	if clamp {
		return dst.Clamp(mapped), nil
	}
	if !dst.Contains(mapped) {
		return 0, &RangeError{Kind: Unrepresentable, Stage: stage, Value: v, Source: src, Dest: dst}
	}
	return dst.snap(mapped), nil
}
