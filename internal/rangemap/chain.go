package rangemap

// Step is one affine stage of a Chain.
type Step struct {
	Stage Stage
	From  Range
	To    Range
}

// Inverse returns the step mapping To back onto From.
func (s Step) Inverse() Step {
	return Step{Stage: s.Stage.inverse(), From: s.To, To: s.From}
}

func (s Stage) inverse() Stage {
	switch s {
	case StagePhysicalToElectrical:
		return StageElectricalToPhysical
	case StageElectricalToPhysical:
		return StagePhysicalToElectrical
	default:
		return s
	}
}

// Chain composes affine stages. Each stage is checked independently, so a
// failure carries the tag of the stage where the value stopped fitting.
//
// A Chain with no steps is the identity.
type Chain struct {
	steps []Step
	clamp bool
}

// Option configures a Chain.
type Option func(*Chain)

// WithClamp makes every stage clamp into its destination range instead of
// failing with Unrepresentable. DegenerateRange still fails.
func WithClamp() Option {
	return func(c *Chain) {
		c.clamp = true
	}
}

// NewChain builds a chain from steps applied in order.
func NewChain(steps []Step, opts ...Option) *Chain {
	c := &Chain{steps: append([]Step(nil), steps...)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Steps returns a copy of the chain's stages.
func (c *Chain) Steps() []Step {
	return append([]Step(nil), c.steps...)
}

// Clamps reports whether the chain was built with WithClamp.
func (c *Chain) Clamps() bool {
	return c.clamp
}

// Len returns the number of stages.
func (c *Chain) Len() int {
	return len(c.steps)
}

// Then returns a new chain running c followed by next. The result clamps if
// either side does.
func (c *Chain) Then(next *Chain) *Chain {
	steps := make([]Step, 0, len(c.steps)+len(next.steps))
	steps = append(steps, c.steps...)
	steps = append(steps, next.steps...)
	return &Chain{steps: steps, clamp: c.clamp || next.clamp}
}

// Inverse returns the chain that undoes c, stage by stage in reverse order.
func (c *Chain) Inverse() *Chain {
	steps := make([]Step, len(c.steps))
	for i, s := range c.steps {
		steps[len(c.steps)-1-i] = s.Inverse()
	}
	return &Chain{steps: steps, clamp: c.clamp}
}

// Apply maps v through every stage.
func (c *Chain) Apply(v float64) (float64, error) {
	var err error
	for _, s := range c.steps {
		v, err = mapValue(v, s.From, s.To, s.Stage, c.clamp)
		if err != nil {
			return 0, err
		}
	}
	return v, nil
}

// ApplyDelta maps a difference through every stage's scale factor.
func (c *Chain) ApplyDelta(d float64) (float64, error) {
	for _, s := range c.steps {
		if s.From.Degenerate() {
			return 0, &RangeError{Kind: DegenerateRange, Stage: s.Stage, Value: d, Source: s.From, Dest: s.To}
		}
		d = d * s.To.Width() / s.From.Width()
	}
	return d, nil
}
