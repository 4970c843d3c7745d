package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"medportal/backend/internal/domain"
)

// DaySnapshot is the booking state of one doctor on one date. Version grows
// by one with every committed reservation for that doctor/date.
type DaySnapshot struct {
	Bookings []domain.Booking
	Version  int64
}

type Reservation struct {
	// ID may be preset to make the reservation idempotent.
	ID              uuid.UUID
	DoctorID        string
	PatientID       string
	Date            time.Time
	Start           time.Time
	End             time.Time
	SnapshotVersion int64
}

// ScheduleRepository is the authoritative store behind the engine.
//
// ReserveBooking must let at most one booking commit for a given doctor and
// overlapping interval. It returns ErrConflict when an overlapping booking
// was committed after the snapshot identified by SnapshotVersion was read.
type ScheduleRepository interface {
	GetWorkShifts(ctx context.Context, doctorID string, date time.Time) ([]domain.WorkShift, error)
	GetBookings(ctx context.Context, doctorID string, date time.Time) (DaySnapshot, error)
	ReserveBooking(ctx context.Context, r Reservation) (domain.Booking, error)
	ReplaceWorkShifts(ctx context.Context, doctorID string, date time.Time, shifts []domain.WorkShift) ([]domain.WorkShift, error)
}

// ValidateReservation performs the checks every store applies before taking
// a lock.
func ValidateReservation(r Reservation) error {
	switch {
	case r.DoctorID == "":
		return &RejectedError{Reason: "doctor_id is required"}
	case r.PatientID == "":
		return &RejectedError{Reason: "patient_id is required"}
	case !r.Start.Before(r.End):
		return &RejectedError{Reason: "end must be after start"}
	case r.SnapshotVersion < 0:
		return &RejectedError{Reason: "snapshot version must not be negative"}
	}
	return nil
}

// SameReservation reports whether an existing booking matches r, used to
// answer idempotent replays.
func SameReservation(b domain.Booking, r Reservation) bool {
	return b.DoctorID == r.DoctorID &&
		b.PatientID == r.PatientID &&
		b.BookingDate.Equal(domain.DateOf(r.Date)) &&
		b.StartTime.Equal(r.Start) &&
		b.EndTime.Equal(r.End)
}
