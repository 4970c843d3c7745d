package availability

import (
	"errors"
	"time"

	"medportal/backend/internal/domain"
)

var ErrInvalidSlotParams = errors.New("granularity and slot duration must be positive")

// EnumerateSlots offers slots of slotDurationMinutes starting every
// granularityMinutes from each window's start. A slot never leaves the window
// it starts in, even when the next window begins where this one ends.
func EnumerateSlots(windows []domain.Interval, granularityMinutes, slotDurationMinutes int) ([]domain.Interval, error) {
	if granularityMinutes <= 0 || slotDurationMinutes <= 0 {
		return nil, ErrInvalidSlotParams
	}
	step := time.Duration(granularityMinutes) * time.Minute
	length := time.Duration(slotDurationMinutes) * time.Minute

	var out []domain.Interval
	for _, w := range windows {
		for start := w.Start; !start.Add(length).After(w.End); start = start.Add(step) {
			out = append(out, domain.Interval{Start: start, End: start.Add(length)})
		}
	}
	return out, nil
}
