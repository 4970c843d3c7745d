package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"medportal/backend/internal/domain"
	"medportal/backend/internal/store"
)

var date = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return date.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func reservation(patientID string, start, end time.Time, version int64) store.Reservation {
	return store.Reservation{
		DoctorID:        "d1",
		PatientID:       patientID,
		Date:            date,
		Start:           start,
		End:             end,
		SnapshotVersion: version,
	}
}

func TestReserveBooking_ConcurrentSameSlotCommitsOnce(t *testing.T) {
	s := New()
	ctx := context.Background()

	snap, err := s.GetBookings(ctx, "d1", date)
	if err != nil {
		t.Fatalf("GetBookings error: %v", err)
	}

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.ReserveBooking(ctx, reservation("p", at(11, 0), at(11, 30), snap.Version))
		}(i)
	}
	wg.Wait()

	committed := 0
	for _, err := range errs {
		switch {
		case err == nil:
			committed++
		case errors.Is(err, store.ErrConflict):
		default:
			t.Fatalf("ReserveBooking error: %v", err)
		}
	}
	if committed != 1 {
		t.Fatalf("committed = %d, want 1", committed)
	}

	snap, err = s.GetBookings(ctx, "d1", date)
	if err != nil {
		t.Fatalf("GetBookings error: %v", err)
	}
	if snap.Version != 1 || len(snap.Bookings) != 1 {
		t.Fatalf("snapshot = %+v, want one booking at version 1", snap)
	}
}

func TestReserveBooking_StaleSnapshotWithoutOverlapCommits(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.ReserveBooking(ctx, reservation("p1", at(9, 0), at(9, 30), 0)); err != nil {
		t.Fatalf("ReserveBooking error: %v", err)
	}
	if _, err := s.ReserveBooking(ctx, reservation("p2", at(9, 30), at(10, 0), 0)); err != nil {
		t.Fatalf("ReserveBooking touching booking error: %v", err)
	}
	if _, err := s.ReserveBooking(ctx, reservation("p3", at(9, 15), at(9, 45), 0)); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("error = %v, want %v", err, store.ErrConflict)
	}
}

func TestReserveBooking_RejectsVersionFromTheFuture(t *testing.T) {
	s := New()
	_, err := s.ReserveBooking(context.Background(), reservation("p1", at(9, 0), at(9, 30), 5))
	var rejected *store.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want *store.RejectedError", err)
	}
}

func TestReserveBooking_CancelledBookingFreesTime(t *testing.T) {
	s := New()
	ctx := context.Background()

	b, err := s.ReserveBooking(ctx, reservation("p1", at(10, 0), at(10, 30), 0))
	if err != nil {
		t.Fatalf("ReserveBooking error: %v", err)
	}
	if err := s.SetBookingStatus(ctx, b.ID, domain.BookingStatusCancelled); err != nil {
		t.Fatalf("SetBookingStatus error: %v", err)
	}

	snap, err := s.GetBookings(ctx, "d1", date)
	if err != nil {
		t.Fatalf("GetBookings error: %v", err)
	}
	if snap.Version != 2 {
		t.Fatalf("version = %d, want 2", snap.Version)
	}
	if len(snap.Bookings) != 1 || snap.Bookings[0].Status != domain.BookingStatusCancelled {
		t.Fatalf("bookings = %+v, want the cancelled booking retained", snap.Bookings)
	}

	if _, err := s.ReserveBooking(ctx, reservation("p2", at(10, 0), at(10, 30), snap.Version)); err != nil {
		t.Fatalf("ReserveBooking over cancelled booking error: %v", err)
	}

	if err := s.SetBookingStatus(ctx, uuid.New(), domain.BookingStatusConfirmed); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestReserveBooking_IdempotentReplay(t *testing.T) {
	s := New()
	ctx := context.Background()

	r := reservation("p1", at(10, 0), at(10, 30), 0)
	r.ID = uuid.MustParse("00000000-0000-0000-0000-000000000042")

	first, err := s.ReserveBooking(ctx, r)
	if err != nil {
		t.Fatalf("ReserveBooking error: %v", err)
	}
	second, err := s.ReserveBooking(ctx, r)
	if err != nil {
		t.Fatalf("ReserveBooking replay error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("replay id = %s, want %s", second.ID, first.ID)
	}

	r.Start, r.End = at(11, 0), at(11, 30)
	if _, err := s.ReserveBooking(ctx, r); !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("error = %v, want %v", err, store.ErrIdempotencyConflict)
	}
}

func TestReplaceWorkShifts(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.ReplaceWorkShifts(ctx, "d1", date, []domain.WorkShift{
		{StartTime: at(13, 0), EndTime: at(17, 0)},
		{StartTime: at(9, 0), EndTime: at(12, 0)},
	})
	if err != nil {
		t.Fatalf("ReplaceWorkShifts error: %v", err)
	}

	got, err := s.GetWorkShifts(ctx, "d1", date.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("GetWorkShifts error: %v", err)
	}
	if len(got) != 2 || !got[0].StartTime.Equal(at(9, 0)) {
		t.Fatalf("shifts = %+v, want two sorted shifts", got)
	}
	if got[0].ID == uuid.Nil || got[0].DoctorID != "d1" {
		t.Fatalf("shift not normalised: %+v", got[0])
	}

	_, err = s.ReplaceWorkShifts(ctx, "d1", date, []domain.WorkShift{
		{StartTime: at(9, 0), EndTime: at(12, 0)},
		{StartTime: at(11, 0), EndTime: at(13, 0)},
	})
	var ovErr *domain.OverlappingShiftError
	if !errors.As(err, &ovErr) {
		t.Fatalf("error = %v, want *domain.OverlappingShiftError", err)
	}
	if got, _ := s.GetWorkShifts(ctx, "d1", date); len(got) != 2 {
		t.Fatalf("rejected replace modified shifts: %+v", got)
	}
}

func TestStore_HonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.GetBookings(ctx, "d1", date); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want %v", err, context.Canceled)
	}
}
