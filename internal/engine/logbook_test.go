package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_Monotonic(t *testing.T) {
	c := NewClockAt(0)
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	c = NewClockAt(41)
	assert.Equal(t, int64(42), c.Next())
}

func TestLogbook_AppendStampsSequence(t *testing.T) {
	lb := NewLogbook(nil)
	e1 := lb.Append(SeverityInfo, "sample adder.sum", "t=0")
	e2 := lb.Append(SeverityError, "advance to t=1", "boom")

	assert.Equal(t, int64(1), e1.Seq)
	assert.Equal(t, int64(2), e2.Seq)
	assert.Equal(t, 2, lb.Len())
	assert.True(t, lb.Failed())
}

func TestLogbook_EntriesIsCopy(t *testing.T) {
	lb := NewLogbook(nil)
	lb.Append(SeverityInfo, "a", "")

	got := lb.Entries()
	got[0].What = "mutated"
	assert.Equal(t, "a", lb.Entries()[0].What)
}

func TestLogbook_NotFailedWithInfoOnly(t *testing.T) {
	lb := NewLogbook(nil)
	lb.Append(SeverityInfo, "a", "")
	assert.False(t, lb.Failed())
}

func TestEntry_String(t *testing.T) {
	tests := []struct {
		entry Entry
		want  string
	}{
		{Entry{What: "phase 0 end", Severity: SeverityInfo, Data: "t=2"}, "info: phase 0 end; t=2"},
		{Entry{What: "cancelled", Severity: SeverityInfo}, "info: cancelled"},
		{Entry{What: "validate", Severity: SeverityPanic, Data: "bad"}, "panic: validate; bad"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.entry.String())
	}
	assert.True(t, Entry{Severity: SeverityPanic}.Failed())
	assert.False(t, Entry{Severity: SeverityInfo}.Failed())
}

func TestRunError_Helpers(t *testing.T) {
	cause := errors.New("socket closed")
	err := fmt.Errorf("wrapped: %w", &RunError{
		Code:    ErrCodeDriver,
		Message: "advance failed",
		Time:    1.5,
		Err:     &DriverError{Op: "advance", Time: 1.5, Err: cause},
	})

	assert.True(t, IsDriverError(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsCancelled(err))
	assert.False(t, IsValidationFailure(err))
	assert.Contains(t, err.Error(), "DRIVER_FAILED at t=1.5: advance failed: driver advance at t=1.5: socket closed")

	assert.True(t, IsCancelled(&RunError{Code: ErrCodeCancelled}))
	assert.True(t, IsValidationFailure(&RunError{Code: ErrCodeValidation}))
	assert.Equal(t, "RANGE_FAILED at t=0: x", (&RunError{Code: ErrCodeRange, Message: "x"}).Error())
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}

func TestUUIDv7Generator_Unique(t *testing.T) {
	var g UUIDv7Generator
	a, b := g.Generate(), g.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.False(t, StateIdle.Terminal())
}
