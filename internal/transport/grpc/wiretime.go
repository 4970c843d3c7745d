package grpc

import (
	"fmt"
	"time"

	"medportal/backend/internal/domain"
)

const (
	localLayout      = "2006-01-02T15:04:05"
	localShortLayout = "2006-01-02T15:04"
)

// wireClock converts wire timestamps to and from the clinic's time zone.
// Timestamps without an offset are read as clinic-local time; RFC3339
// timestamps with an offset are converted into the clinic zone.
type wireClock struct {
	loc *time.Location
}

func newWireClock(loc *time.Location) wireClock {
	if loc == nil {
		loc = time.UTC
	}
	return wireClock{loc: loc}
}

func (c wireClock) parseDate(field, s string) (time.Time, error) {
	t, err := time.ParseInLocation(time.DateOnly, s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be a date like 2006-01-02", field)
	}
	return t, nil
}

func (c wireClock) parseTimestamp(field, s string) (time.Time, error) {
	for _, layout := range []string{localLayout, localShortLayout} {
		if t, err := time.ParseInLocation(layout, s, c.loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(c.loc), nil
	}
	return time.Time{}, fmt.Errorf("%s must be a timestamp like 2006-01-02T15:04:05", field)
}

func (c wireClock) formatTimestamp(t time.Time) string {
	return t.In(c.loc).Format(localLayout)
}

// formatDate renders a civil date stored as midnight UTC.
func (c wireClock) formatDate(t time.Time) string {
	return domain.DateOf(t).Format(time.DateOnly)
}
