package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
)

// RejectedError is returned when the store refuses a reservation for a
// reason other than a lost race.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "reservation rejected: " + e.Reason
}
