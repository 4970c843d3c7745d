package domain

import (
	"errors"
	"testing"
	"time"
)

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func shift(doctorID, start, end string) WorkShift {
	return WorkShift{DoctorID: doctorID, WorkDate: day, StartTime: at(start), EndTime: at(end)}
}

func booking(doctorID, start, end string, status BookingStatus) Booking {
	return Booking{DoctorID: doctorID, PatientID: "p1", BookingDate: day, StartTime: at(start), EndTime: at(end), Status: status}
}

func TestNewShiftCalendar_SortsPerDoctorDate(t *testing.T) {
	cal, err := NewShiftCalendar([]WorkShift{
		shift("d1", "14:00", "17:00"),
		shift("d1", "09:00", "12:00"),
		shift("d2", "08:00", "09:00"),
	})
	if err != nil {
		t.Fatalf("NewShiftCalendar error: %v", err)
	}

	got := cal.ForDoctorDate("d1", day.Add(13*time.Hour))
	if len(got) != 2 {
		t.Fatalf("len(shifts) = %d, want 2", len(got))
	}
	if !got[0].StartTime.Equal(at("09:00")) || !got[1].StartTime.Equal(at("14:00")) {
		t.Fatalf("shifts not sorted: %v then %v", got[0].StartTime, got[1].StartTime)
	}

	if other := cal.ForDoctorDate("d1", day.AddDate(0, 0, 1)); len(other) != 0 {
		t.Fatalf("len(shifts next day) = %d, want 0", len(other))
	}
	if unknown := cal.ForDoctorDate("d9", day); len(unknown) != 0 {
		t.Fatalf("len(shifts unknown doctor) = %d, want 0", len(unknown))
	}
}

func TestNewShiftCalendar_RejectsOverlap(t *testing.T) {
	_, err := NewShiftCalendar([]WorkShift{
		shift("d1", "09:00", "12:00"),
		shift("d1", "11:30", "13:00"),
	})
	var ovErr *OverlappingShiftError
	if !errors.As(err, &ovErr) {
		t.Fatalf("error = %v, want *OverlappingShiftError", err)
	}
	if ovErr.DoctorID != "d1" {
		t.Fatalf("doctor = %q, want %q", ovErr.DoctorID, "d1")
	}
}

func TestNewShiftCalendar_AllowsTouchingAndOtherDoctors(t *testing.T) {
	_, err := NewShiftCalendar([]WorkShift{
		shift("d1", "09:00", "12:00"),
		shift("d1", "12:00", "13:00"),
		shift("d2", "09:00", "12:00"),
	})
	if err != nil {
		t.Fatalf("NewShiftCalendar error: %v", err)
	}
}

func TestNewShiftCalendar_RejectsInvalidInterval(t *testing.T) {
	_, err := NewShiftCalendar([]WorkShift{shift("d1", "12:00", "09:00")})
	var ivErr *InvalidIntervalError
	if !errors.As(err, &ivErr) {
		t.Fatalf("error = %v, want *InvalidIntervalError", err)
	}
}

func TestShiftCalendar_ForDoctorDateReturnsCopy(t *testing.T) {
	cal, err := NewShiftCalendar([]WorkShift{shift("d1", "09:00", "12:00")})
	if err != nil {
		t.Fatalf("NewShiftCalendar error: %v", err)
	}
	got := cal.ForDoctorDate("d1", day)
	got[0].DoctorID = "mutated"
	if again := cal.ForDoctorDate("d1", day); again[0].DoctorID != "d1" {
		t.Fatalf("calendar mutated through returned slice")
	}
}

func TestBookingLedger_FiltersCancelledAndSorts(t *testing.T) {
	ledger, err := NewBookingLedger([]Booking{
		booking("d1", "11:00", "11:30", BookingStatusPending),
		booking("d1", "10:00", "10:30", BookingStatusConfirmed),
		booking("d1", "10:00", "10:30", BookingStatusCancelled),
		booking("d2", "10:00", "10:30", BookingStatusConfirmed),
	})
	if err != nil {
		t.Fatalf("NewBookingLedger error: %v", err)
	}

	got := ledger.ForDoctorDate("d1", day)
	if len(got) != 2 {
		t.Fatalf("len(bookings) = %d, want 2", len(got))
	}
	if got[0].Status != BookingStatusConfirmed || !got[0].StartTime.Equal(at("10:00")) {
		t.Fatalf("first booking = %+v, want confirmed at 10:00", got[0])
	}
	for _, b := range got {
		if b.Status == BookingStatusCancelled {
			t.Fatalf("cancelled booking returned")
		}
	}
}

func TestBookingLedger_KeepsOverlappingBookings(t *testing.T) {
	ledger, err := NewBookingLedger([]Booking{
		booking("d1", "10:00", "11:00", BookingStatusConfirmed),
		booking("d1", "10:30", "11:30", BookingStatusPending),
	})
	if err != nil {
		t.Fatalf("NewBookingLedger error: %v", err)
	}
	if got := ledger.ForDoctorDate("d1", day); len(got) != 2 {
		t.Fatalf("len(bookings) = %d, want 2", len(got))
	}
}

func TestBookingLedger_RejectsInvalidInterval(t *testing.T) {
	_, err := NewBookingLedger([]Booking{booking("d1", "10:00", "10:00", BookingStatusPending)})
	var ivErr *InvalidIntervalError
	if !errors.As(err, &ivErr) {
		t.Fatalf("error = %v, want *InvalidIntervalError", err)
	}
}
