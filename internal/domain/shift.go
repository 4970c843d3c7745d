package domain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WorkShift is one working interval of a doctor on a calendar date.
type WorkShift struct {
	bun.BaseModel `bun:"table:work_shifts"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	DoctorID  string    `bun:"doctor_id,notnull"`
	WorkDate  time.Time `bun:"work_date,type:date,notnull"`
	StartTime time.Time `bun:"start_time,notnull"`
	EndTime   time.Time `bun:"end_time,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (s *WorkShift) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

func (s WorkShift) Interval() Interval {
	return Interval{Start: s.StartTime, End: s.EndTime}
}

// DateOf returns the civil date of t as midnight UTC. Dates are compared and
// stored in this form regardless of the zone t was expressed in.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type OverlappingShiftError struct {
	DoctorID string
	Date     time.Time
	First    Interval
	Second   Interval
}

func (e *OverlappingShiftError) Error() string {
	return fmt.Sprintf("overlapping shifts for doctor %s on %s: %s and %s",
		e.DoctorID, e.Date.Format(time.DateOnly), e.First, e.Second)
}

type dayKey struct {
	doctorID string
	date     time.Time
}

func keyFor(doctorID string, date time.Time) dayKey {
	return dayKey{doctorID: doctorID, date: DateOf(date)}
}

// ShiftCalendar holds validated shifts grouped per doctor and date. Within a
// group the shifts are sorted by start and pairwise disjoint.
type ShiftCalendar struct {
	days map[dayKey][]WorkShift
}

func NewShiftCalendar(shifts []WorkShift) (*ShiftCalendar, error) {
	days := make(map[dayKey][]WorkShift)
	for _, s := range shifts {
		if _, err := NewInterval(s.StartTime, s.EndTime); err != nil {
			return nil, err
		}
		k := keyFor(s.DoctorID, s.WorkDate)
		days[k] = append(days[k], s)
	}

	for k, group := range days {
		sort.Slice(group, func(i, j int) bool {
			return group[i].StartTime.Before(group[j].StartTime)
		})
		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1].Interval(), group[i].Interval()
			if prev.Overlaps(cur) {
				return nil, &OverlappingShiftError{
					DoctorID: k.doctorID,
					Date:     k.date,
					First:    prev,
					Second:   cur,
				}
			}
		}
	}

	return &ShiftCalendar{days: days}, nil
}

// ForDoctorDate returns the doctor's shifts on date sorted by start time. A
// doctor who is not working yields an empty slice.
func (c *ShiftCalendar) ForDoctorDate(doctorID string, date time.Time) []WorkShift {
	if c == nil {
		return nil
	}
	group := c.days[keyFor(doctorID, date)]
	out := make([]WorkShift, len(group))
	copy(out, group)
	return out
}
