package availability

import (
	"errors"
	"fmt"
	"time"

	"medportal/backend/internal/domain"
)

const (
	DefaultMinDuration = 15 * time.Minute
	DefaultMaxDuration = 240 * time.Minute

	nearestWindowCount = 3
)

// ErrRejected is wrapped by every validator rejection.
var ErrRejected = errors.New("appointment request rejected")

type Request struct {
	DoctorID  string
	PatientID string
	Date      time.Time
	Start     time.Time
	End       time.Time
}

func (r Request) Interval() domain.Interval {
	return domain.Interval{Start: r.Start, End: r.End}
}

type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return "end must be after start"
}

func (e *InvalidRangeError) Unwrap() error { return ErrRejected }

type DurationBound string

const (
	BoundMin DurationBound = "min"
	BoundMax DurationBound = "max"
)

type DurationPolicyError struct {
	Bound   DurationBound
	Minutes int
	Limit   int
}

func (e *DurationPolicyError) Error() string {
	if e.Bound == BoundMin {
		return fmt.Sprintf("duration %d minutes is below the minimum of %d minutes", e.Minutes, e.Limit)
	}
	return fmt.Sprintf("duration %d minutes exceeds the maximum of %d minutes", e.Minutes, e.Limit)
}

func (e *DurationPolicyError) Unwrap() error { return ErrRejected }

// NotAvailableError means no free window fully contains the candidate.
// Nearest lists the closest free windows so the caller can pick another time.
type NotAvailableError struct {
	Candidate domain.Interval
	Nearest   []domain.Interval
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("requested time %s is not available", e.Candidate)
}

func (e *NotAvailableError) Unwrap() error { return ErrRejected }

type Policy struct {
	MinDuration time.Duration
	MaxDuration time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MinDuration: DefaultMinDuration, MaxDuration: DefaultMaxDuration}
}

// Allows reports whether an appointment of length d satisfies the bounds.
func (p Policy) Allows(d time.Duration) bool {
	return d >= p.MinDuration && d <= p.MaxDuration
}

type Validator struct {
	policy Policy
}

func NewValidator(p Policy) Validator {
	if p.MinDuration <= 0 {
		p.MinDuration = DefaultMinDuration
	}
	if p.MaxDuration <= 0 {
		p.MaxDuration = DefaultMaxDuration
	}
	return Validator{policy: p}
}

func (v Validator) Policy() Policy {
	return v.policy
}

// CheckShape runs the checks that need no schedule data. Callers run it
// before fetching availability so malformed requests never hit the store.
func (v Validator) CheckShape(req Request) error {
	if !req.End.After(req.Start) {
		return &InvalidRangeError{Start: req.Start, End: req.End}
	}

	d := req.Interval().Duration()
	if d < v.policy.MinDuration {
		return &DurationPolicyError{Bound: BoundMin, Minutes: int(d / time.Minute), Limit: int(v.policy.MinDuration / time.Minute)}
	}
	if d > v.policy.MaxDuration {
		minutes := int((d + time.Minute - 1) / time.Minute)
		return &DurationPolicyError{Bound: BoundMax, Minutes: minutes, Limit: int(v.policy.MaxDuration / time.Minute)}
	}
	return nil
}

// Validate accepts req when it passes CheckShape and one of windows fully
// contains it. The request is returned unchanged on success.
func (v Validator) Validate(req Request, windows []domain.Interval) (Request, error) {
	if err := v.CheckShape(req); err != nil {
		return Request{}, err
	}

	candidate := req.Interval()
	for _, w := range windows {
		if w.Contains(candidate) {
			return req, nil
		}
	}
	return Request{}, &NotAvailableError{
		Candidate: candidate,
		Nearest:   NearestWindows(windows, candidate, nearestWindowCount),
	}
}
