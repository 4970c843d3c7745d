package booking

import (
	"errors"

	"medportal/backend/internal/availability"
	"medportal/backend/internal/store"
)

// ErrUnavailable means the schedule store could not be reached. Callers may
// retry the whole request.
var ErrUnavailable = errors.New("schedule store unavailable")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// RejectionRule names the rule behind a rejection for clients and metrics.
func RejectionRule(err error) string {
	var (
		rangeErr    *availability.InvalidRangeError
		durationErr *availability.DurationPolicyError
		naErr       *availability.NotAvailableError
		storeErr    *store.RejectedError
	)
	switch {
	case errors.As(err, &rangeErr):
		return "invalid_range"
	case errors.As(err, &durationErr):
		return "duration_" + string(durationErr.Bound)
	case errors.As(err, &naErr):
		return "not_available"
	case errors.As(err, &storeErr):
		return "store_rejected"
	default:
		return "unknown"
	}
}
