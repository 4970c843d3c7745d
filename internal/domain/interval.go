package domain

import (
	"fmt"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

type InvalidIntervalError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidIntervalError) Error() string {
	return fmt.Sprintf("invalid interval: start %s is not before end %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, &InvalidIntervalError{Start: start, End: end}
	}
	return Interval{Start: start, End: end}, nil
}

// MustInterval is NewInterval for literals known to be valid.
func MustInterval(start, end time.Time) Interval {
	iv, err := NewInterval(start, end)
	if err != nil {
		panic(err)
	}
	return iv
}

func (a Interval) Valid() bool {
	return a.Start.Before(a.End)
}

// Overlaps reports whether a and b share any instant. Touching intervals do
// not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func (a Interval) Contains(inner Interval) bool {
	return !inner.Start.Before(a.Start) && !a.End.Before(inner.End)
}

// Subtract returns the parts of a not covered by cut, in order. The result has
// zero, one or two intervals and never contains an empty one.
func (a Interval) Subtract(cut Interval) []Interval {
	if !a.Overlaps(cut) {
		return []Interval{a}
	}
	out := make([]Interval, 0, 2)
	if a.Start.Before(cut.Start) {
		out = append(out, Interval{Start: a.Start, End: cut.Start})
	}
	if cut.End.Before(a.End) {
		out = append(out, Interval{Start: cut.End, End: a.End})
	}
	return out
}

func (a Interval) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

func (a Interval) DurationMinutes() int {
	return int(a.Duration() / time.Minute)
}

func (a Interval) String() string {
	return a.Start.Format("2006-01-02T15:04") + "/" + a.End.Format("15:04")
}
