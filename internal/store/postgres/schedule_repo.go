package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"medportal/backend/internal/domain"
	"medportal/backend/internal/store"
)

const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

// DayVersion is the freshness token of one doctor/date.
type DayVersion struct {
	bun.BaseModel `bun:"table:doctor_day_versions,alias:dv"`

	DoctorID  string    `bun:"doctor_id,pk"`
	WorkDate  time.Time `bun:"work_date,pk,type:date"`
	Version   int64     `bun:"version,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

type ScheduleRepo struct {
	db *bun.DB
}

func NewScheduleRepo(db *bun.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

func pgDate(t time.Time) string {
	return domain.DateOf(t).Format(time.DateOnly)
}

func (r *ScheduleRepo) GetWorkShifts(ctx context.Context, doctorID string, date time.Time) ([]domain.WorkShift, error) {
	var rows []domain.WorkShift
	err := r.db.NewSelect().
		Model(&rows).
		Where("doctor_id = ?", doctorID).
		Where("work_date = ?", pgDate(date)).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: list work shifts: %w", err)
	}
	return rows, nil
}

// GetBookings returns every booking of the day, cancelled ones included, and
// the version they were read at. Both come from one repeatable-read snapshot.
func (r *ScheduleRepo) GetBookings(ctx context.Context, doctorID string, date time.Time) (store.DaySnapshot, error) {
	var out store.DaySnapshot
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := r.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		var rows []domain.Booking
		err := tx.NewSelect().
			Model(&rows).
			Where("doctor_id = ?", doctorID).
			Where("booking_date = ?", pgDate(date)).
			OrderExpr("start_time ASC").
			Scan(ctx)
		if err != nil {
			return err
		}
		version, err := dayVersion(ctx, tx, doctorID, date)
		if err != nil {
			return err
		}
		out = store.DaySnapshot{Bookings: rows, Version: version}
		return nil
	})
	if err != nil {
		return store.DaySnapshot{}, fmt.Errorf("postgres: read bookings: %w", err)
	}
	return out, nil
}

// ReserveBooking commits a pending booking when no live booking of the same
// doctor overlaps it. The doctor/date advisory lock serialises reservations;
// the bookings_no_overlap exclusion constraint backs it up across dates.
func (r *ScheduleRepo) ReserveBooking(ctx context.Context, res store.Reservation) (domain.Booking, error) {
	if err := store.ValidateReservation(res); err != nil {
		return domain.Booking{}, err
	}

	var out domain.Booking
	err := r.InDoctorDayTransaction(ctx, res.DoctorID, res.Date, func(ctx context.Context, tx bun.Tx) error {
		if res.ID != uuid.Nil {
			existing, found, err := bookingByID(ctx, tx, res.ID)
			if err != nil {
				return err
			}
			if found {
				if !store.SameReservation(existing, res) {
					return store.ErrIdempotencyConflict
				}
				out = existing
				return nil
			}
		}

		current, err := dayVersion(ctx, tx, res.DoctorID, res.Date)
		if err != nil {
			return err
		}
		if res.SnapshotVersion > current {
			return &store.RejectedError{Reason: "snapshot version is ahead of the store"}
		}

		overlapping, err := tx.NewSelect().
			Model((*domain.Booking)(nil)).
			Where("doctor_id = ?", res.DoctorID).
			Where("status <> ?", domain.BookingStatusCancelled).
			Where("start_time < ?", res.End).
			Where("end_time > ?", res.Start).
			Count(ctx)
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return store.ErrConflict
		}

		b := domain.Booking{
			ID:          res.ID,
			DoctorID:    res.DoctorID,
			PatientID:   res.PatientID,
			BookingDate: domain.DateOf(res.Date),
			StartTime:   res.Start,
			EndTime:     res.End,
			Status:      domain.BookingStatusPending,
		}
		if _, err := tx.NewInsert().Model(&b).Exec(ctx); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				if pgErr.Code == pgExclusionViolation && pgErr.ConstraintName == "bookings_no_overlap" {
					return store.ErrConflict
				}
				if pgErr.Code == pgUniqueViolation {
					return store.ErrIdempotencyConflict
				}
			}
			return err
		}

		if err := bumpDayVersion(ctx, tx, res.DoctorID, res.Date); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

// ReplaceWorkShifts swaps the doctor's shifts for date. Callers validate the
// set with domain.NewShiftCalendar first; work_shifts_no_overlap rejects
// anything that slips through.
func (r *ScheduleRepo) ReplaceWorkShifts(ctx context.Context, doctorID string, date time.Time, shifts []domain.WorkShift) ([]domain.WorkShift, error) {
	now := time.Now().UTC()
	rows := make([]domain.WorkShift, 0, len(shifts))
	for _, s := range shifts {
		id := s.ID
		if id == uuid.Nil {
			var err error
			if id, err = uuid.NewV7(); err != nil {
				return nil, err
			}
		}
		rows = append(rows, domain.WorkShift{
			ID:        id,
			DoctorID:  doctorID,
			WorkDate:  domain.DateOf(date),
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	err := r.InDoctorDayTransaction(ctx, doctorID, date, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*domain.WorkShift)(nil)).
			Where("doctor_id = ?", doctorID).
			Where("work_date = ?", pgDate(date)).
			Exec(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation {
				return store.ErrConflict
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ScheduleRepo) InDoctorDayTransaction(ctx context.Context, doctorID string, date time.Time, fn func(ctx context.Context, tx bun.Tx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockDoctorDay(ctx, tx, doctorID, date); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

func lockDoctorDay(ctx context.Context, tx bun.Tx, doctorID string, date time.Time) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", doctorID+"|"+pgDate(date)).Exec(ctx)
	return err
}

func dayVersion(ctx context.Context, tx bun.Tx, doctorID string, date time.Time) (int64, error) {
	var version int64
	err := tx.NewSelect().
		Model((*DayVersion)(nil)).
		Column("version").
		Where("doctor_id = ?", doctorID).
		Where("work_date = ?", pgDate(date)).
		Limit(1).
		Scan(ctx, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func bumpDayVersion(ctx context.Context, tx bun.Tx, doctorID string, date time.Time) error {
	v := DayVersion{
		DoctorID:  doctorID,
		WorkDate:  domain.DateOf(date),
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := tx.NewInsert().
		Model(&v).
		On("CONFLICT (doctor_id, work_date) DO UPDATE").
		Set("version = dv.version + 1").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func bookingByID(ctx context.Context, tx bun.Tx, id uuid.UUID) (domain.Booking, bool, error) {
	var b domain.Booking
	err := tx.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Booking{}, false, nil
	}
	if err != nil {
		return domain.Booking{}, false, err
	}
	return b, true, nil
}
