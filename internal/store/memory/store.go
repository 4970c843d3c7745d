// Package memory is a process-local ScheduleRepository used for development
// and tests. It applies the same reservation rules as the postgres store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"medportal/backend/internal/domain"
	"medportal/backend/internal/store"
)

type dayKey struct {
	doctorID string
	date     time.Time
}

func keyFor(doctorID string, date time.Time) dayKey {
	return dayKey{doctorID: doctorID, date: domain.DateOf(date)}
}

type Store struct {
	mu       sync.Mutex
	shifts   map[dayKey][]domain.WorkShift
	bookings map[uuid.UUID]domain.Booking
	versions map[dayKey]int64
	now      func() time.Time
}

func New() *Store {
	return &Store{
		shifts:   make(map[dayKey][]domain.WorkShift),
		bookings: make(map[uuid.UUID]domain.Booking),
		versions: make(map[dayKey]int64),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) GetWorkShifts(ctx context.Context, doctorID string, date time.Time) ([]domain.WorkShift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	group := s.shifts[keyFor(doctorID, date)]
	out := make([]domain.WorkShift, len(group))
	copy(out, group)
	return out, nil
}

func (s *Store) GetBookings(ctx context.Context, doctorID string, date time.Time) (store.DaySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return store.DaySnapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyFor(doctorID, date)
	var out []domain.Booking
	for _, b := range s.bookings {
		if b.DoctorID == doctorID && b.BookingDate.Equal(k.date) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return store.DaySnapshot{Bookings: out, Version: s.versions[k]}, nil
}

func (s *Store) ReserveBooking(ctx context.Context, r store.Reservation) (domain.Booking, error) {
	if err := store.ValidateReservation(r); err != nil {
		return domain.Booking{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Booking{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID != uuid.Nil {
		if existing, ok := s.bookings[r.ID]; ok {
			if !store.SameReservation(existing, r) {
				return domain.Booking{}, store.ErrIdempotencyConflict
			}
			return existing, nil
		}
	}

	k := keyFor(r.DoctorID, r.Date)
	if r.SnapshotVersion > s.versions[k] {
		return domain.Booking{}, &store.RejectedError{Reason: "snapshot version is ahead of the store"}
	}

	candidate := domain.Interval{Start: r.Start, End: r.End}
	for _, b := range s.bookings {
		if b.DoctorID == r.DoctorID && b.Occupies() && b.Interval().Overlaps(candidate) {
			return domain.Booking{}, store.ErrConflict
		}
	}

	id := r.ID
	if id == uuid.Nil {
		var err error
		if id, err = uuid.NewV7(); err != nil {
			return domain.Booking{}, err
		}
	}
	now := s.now()
	b := domain.Booking{
		ID:          id,
		DoctorID:    r.DoctorID,
		PatientID:   r.PatientID,
		BookingDate: k.date,
		StartTime:   r.Start,
		EndTime:     r.End,
		Status:      domain.BookingStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.bookings[id] = b
	s.versions[k]++
	return b, nil
}

func (s *Store) ReplaceWorkShifts(ctx context.Context, doctorID string, date time.Time, shifts []domain.WorkShift) ([]domain.WorkShift, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := keyFor(doctorID, date)
	now := s.now()

	rows := make([]domain.WorkShift, 0, len(shifts))
	for _, sh := range shifts {
		id := sh.ID
		if id == uuid.Nil {
			var err error
			if id, err = uuid.NewV7(); err != nil {
				return nil, err
			}
		}
		rows = append(rows, domain.WorkShift{
			ID:        id,
			DoctorID:  doctorID,
			WorkDate:  k.date,
			StartTime: sh.StartTime,
			EndTime:   sh.EndTime,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if _, err := domain.NewShiftCalendar(rows); err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].StartTime.Before(rows[j].StartTime)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.shifts[k] = rows

	out := make([]domain.WorkShift, len(rows))
	copy(out, rows)
	return out, nil
}

// SetBookingStatus changes a booking's status, standing in for the approval
// flow that confirms or cancels bookings downstream.
func (s *Store) SetBookingStatus(ctx context.Context, id uuid.UUID, status domain.BookingStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = s.now()
	s.bookings[id] = b
	s.versions[keyFor(b.DoctorID, b.BookingDate)]++
	return nil
}
