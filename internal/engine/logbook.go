package engine

import "fmt"

// Severity grades a logbook entry.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
	SeverityPanic Severity = "panic"
)

// Entry is one logbook record.
type Entry struct {
	// Seq is a logical timestamp, strictly increasing within a run.
	Seq      int64    `json:"seq"`
	What     string   `json:"what"`
	Severity Severity `json:"severity"`
	Data     string   `json:"data,omitempty"`
}

// String renders "severity: what; data".
func (e Entry) String() string {
	if e.Data == "" {
		return fmt.Sprintf("%s: %s", e.Severity, e.What)
	}
	return fmt.Sprintf("%s: %s; %s", e.Severity, e.What, e.Data)
}

// Failed reports whether the entry records a failure.
func (e Entry) Failed() bool {
	return e.Severity == SeverityError || e.Severity == SeverityPanic
}

// Clock is a logical clock stamping logbook entries. Ordering never depends
// on wall time, so identical runs produce identical logbooks.
//
// A run owns its clock and only the coordinator goroutine advances it.
type Clock struct {
	seq int64
}

// NewClockAt creates a clock whose next value is start+1.
func NewClockAt(start int64) *Clock {
	return &Clock{seq: start}
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	c.seq++
	return c.seq
}

// Current returns the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq
}

// Logbook is the append-only record of a run.
type Logbook struct {
	clock   *Clock
	entries []Entry
}

// NewLogbook creates an empty logbook stamped by clock.
func NewLogbook(clock *Clock) *Logbook {
	if clock == nil {
		clock = NewClockAt(0)
	}
	return &Logbook{clock: clock}
}

// Append records an entry and returns it.
func (l *Logbook) Append(sev Severity, what, data string) Entry {
	e := Entry{Seq: l.clock.Next(), What: what, Severity: sev, Data: data}
	l.entries = append(l.entries, e)
	return e
}

// Entries returns a copy of the entries in append order.
func (l *Logbook) Entries() []Entry {
	return append([]Entry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *Logbook) Len() int {
	return len(l.entries)
}

// Failed reports whether any entry is an error or panic.
func (l *Logbook) Failed() bool {
	for _, e := range l.entries {
		if e.Failed() {
			return true
		}
	}
	return false
}
