package domain

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID          uuid.UUID     `bun:"id,pk,type:uuid"`
	DoctorID    string        `bun:"doctor_id,notnull"`
	PatientID   string        `bun:"patient_id,notnull"`
	BookingDate time.Time     `bun:"booking_date,type:date,notnull"`
	StartTime   time.Time     `bun:"start_time,notnull"`
	EndTime     time.Time     `bun:"end_time,notnull"`
	Status      BookingStatus `bun:"status,notnull"`
	CreatedAt   time.Time     `bun:"created_at,notnull"`
	UpdatedAt   time.Time     `bun:"updated_at,notnull"`
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.Status == "" {
			b.Status = BookingStatusPending
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// Occupies reports whether the booking blocks its time range.
func (b Booking) Occupies() bool {
	return b.Status != BookingStatusCancelled
}

// BookingLedger groups bookings per doctor and date. Overlapping bookings are
// accepted as-is; the resolver treats them as one busy range.
type BookingLedger struct {
	days map[dayKey][]Booking
}

func NewBookingLedger(bookings []Booking) (*BookingLedger, error) {
	days := make(map[dayKey][]Booking)
	for _, b := range bookings {
		if _, err := NewInterval(b.StartTime, b.EndTime); err != nil {
			return nil, err
		}
		k := keyFor(b.DoctorID, b.BookingDate)
		days[k] = append(days[k], b)
	}
	for _, group := range days {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].StartTime.Before(group[j].StartTime)
		})
	}
	return &BookingLedger{days: days}, nil
}

// ForDoctorDate returns the non-cancelled bookings of the doctor on date,
// sorted by start time.
func (l *BookingLedger) ForDoctorDate(doctorID string, date time.Time) []Booking {
	if l == nil {
		return nil
	}
	group := l.days[keyFor(doctorID, date)]
	out := make([]Booking, 0, len(group))
	for _, b := range group {
		if b.Occupies() {
			out = append(out, b)
		}
	}
	return out
}
