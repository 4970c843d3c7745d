// Package booking drives one appointment request from validation to a
// committed, rejected or conflicted outcome.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"medportal/backend/internal/availability"
	"medportal/backend/internal/domain"
	"medportal/backend/internal/store"
)

const tracerName = "medportal/booking"

type State string

const (
	StateValidating State = "validating"
	StateReserving  State = "reserving"
	StateCommitted  State = "committed"
	StateRejected   State = "rejected"
	StateConflicted State = "conflicted"
)

// attemptError labels attempts that ended in an error instead of a state.
const attemptError = "error"

const (
	DefaultReserveTimeout      = 3 * time.Second
	DefaultReadRetryMaxElapsed = 2 * time.Second
	DefaultSlotGranularity     = 15
	DefaultSlotDuration        = 30

	maxIdempotencyKeyLen = 256
)

type Config struct {
	Policy              availability.Policy
	ReserveTimeout      time.Duration
	ReadRetryMaxElapsed time.Duration
	SlotGranularity     int
	SlotDuration        int
}

func (c Config) withDefaults() Config {
	if c.ReserveTimeout <= 0 {
		c.ReserveTimeout = DefaultReserveTimeout
	}
	if c.ReadRetryMaxElapsed <= 0 {
		c.ReadRetryMaxElapsed = DefaultReadRetryMaxElapsed
	}
	if c.SlotGranularity <= 0 {
		c.SlotGranularity = DefaultSlotGranularity
	}
	if c.SlotDuration <= 0 {
		c.SlotDuration = DefaultSlotDuration
	}
	return c
}

// Observer receives outcome and latency samples. *metrics.BookingMetrics
// implements it.
type Observer interface {
	ObserveAttempt(state string)
	ObserveRejection(rule string)
	ObserveResolve(seconds float64, windows int)
	ObserveReserve(state string, seconds float64)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string) {}
func (nopObserver) ObserveRejection(string) {}
func (nopObserver) ObserveResolve(float64, int) {}
func (nopObserver) ObserveReserve(string, float64) {}

type Request struct {
	DoctorID  string
	PatientID string
	Date      time.Time
	Start     time.Time
	End       time.Time
	// IdempotencyKey, when set, makes retries of the same request return the
	// booking created by the first attempt.
	IdempotencyKey string
}

func (r Request) candidate() availability.Request {
	return availability.Request{
		DoctorID:  r.DoctorID,
		PatientID: r.PatientID,
		Date:      r.Date,
		Start:     r.Start,
		End:       r.End,
	}
}

// Result is the outcome of Book. Reason is set for rejections. Windows holds
// the nearest free windows on rejection and the refreshed windows on conflict.
// Replayed is set when an idempotent retry returned the original booking as
// it is now stored, which may be cancelled.
type Result struct {
	State    State
	Booking  domain.Booking
	Reason   error
	Windows  []domain.Interval
	Replayed bool
}

// Day is the resolved availability of one doctor on one date.
type Day struct {
	DoctorID string
	Date     time.Time
	Windows  []domain.Interval
	Version  int64

	bookings []domain.Booking
}

func (d Day) booking(id uuid.UUID) (domain.Booking, bool) {
	for _, b := range d.bookings {
		if b.ID == id {
			return b, true
		}
	}
	return domain.Booking{}, false
}

type Coordinator struct {
	repo      store.ScheduleRepository
	validator availability.Validator
	cfg       Config
	obs       Observer
	log       *slog.Logger
	tracer    trace.Tracer
}

func NewCoordinator(repo store.ScheduleRepository, cfg Config, obs Observer, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	cfg = cfg.withDefaults()
	return &Coordinator{
		repo:      repo,
		validator: availability.NewValidator(cfg.Policy),
		cfg:       cfg,
		obs:       obs,
		log:       log.With(slog.String("component", "booking.coordinator")),
		tracer:    otel.Tracer(tracerName),
	}
}

// Book validates req against a fresh snapshot and asks the store to reserve
// it. A lost race is reported as StateConflicted, never as an error, and the
// coordinator does not retry with a different time.
func (c *Coordinator) Book(ctx context.Context, req Request) (Result, error) {
	ctx, span := c.tracer.Start(ctx, "booking.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("medportal.doctor_id", req.DoctorID),
		attribute.String("medportal.date", domain.DateOf(req.Date).Format(time.DateOnly)),
	)

	res, err := c.book(ctx, req)
	if err != nil {
		c.obs.ObserveAttempt(attemptError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	span.SetAttributes(attribute.String("booking.state", string(res.State)))
	return res, nil
}

func (c *Coordinator) book(ctx context.Context, req Request) (Result, error) {
	log := c.log.With(
		slog.String("doctor_id", req.DoctorID),
		slog.String("date", domain.DateOf(req.Date).Format(time.DateOnly)),
	)

	if strings.TrimSpace(req.DoctorID) == "" {
		return Result{}, validationError("doctor_id is required")
	}
	if strings.TrimSpace(req.PatientID) == "" {
		return Result{}, validationError("patient_id is required")
	}
	var id uuid.UUID
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		if len(key) > maxIdempotencyKeyLen {
			return Result{}, validationError("idempotency_key too long")
		}
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte("medportal:book_appointment:"+req.PatientID+":"+key))
	}

	// StateValidating
	candidate := req.candidate()
	if err := c.validator.CheckShape(candidate); err != nil {
		return c.rejected(log, err, nil), nil
	}
	if !domain.DateOf(req.Start).Equal(domain.DateOf(req.Date)) {
		return Result{}, validationError("start must fall on date")
	}

	reservation := store.Reservation{
		ID:        id,
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Date:      domain.DateOf(req.Date),
		Start:     req.Start,
		End:       req.End,
	}

	day, err := c.loadDay(ctx, req.DoctorID, req.Date)
	if err != nil {
		log.Error("load day failed", slog.Any("err", err))
		return Result{}, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("booking.snapshot_version", day.Version))
	if id != uuid.Nil {
		if prior, ok := day.booking(id); ok {
			if !store.SameReservation(prior, reservation) {
				return Result{}, store.ErrIdempotencyConflict
			}
			log.Info("booking replayed",
				slog.String("booking_id", prior.ID.String()),
				slog.String("status", string(prior.Status)),
			)
			c.obs.ObserveAttempt("replayed")
			return Result{State: StateCommitted, Booking: prior, Replayed: true}, nil
		}
	}
	if _, err := c.validator.Validate(candidate, day.Windows); err != nil {
		var naErr *availability.NotAvailableError
		var nearest []domain.Interval
		if errors.As(err, &naErr) {
			nearest = naErr.Nearest
		}
		return c.rejected(log, err, nearest), nil
	}

	// StateReserving
	reserveCtx, cancel := context.WithTimeout(ctx, c.cfg.ReserveTimeout)
	defer cancel()
	started := time.Now()
	reservation.SnapshotVersion = day.Version
	b, err := c.repo.ReserveBooking(reserveCtx, reservation)
	elapsed := time.Since(started).Seconds()

	var rejected *store.RejectedError
	switch {
	case err == nil:
		c.obs.ObserveReserve(string(StateCommitted), elapsed)
		c.obs.ObserveAttempt(string(StateCommitted))
		log.Info("booking committed", slog.String("booking_id", b.ID.String()), slog.Int64("version", day.Version))
		return Result{State: StateCommitted, Booking: b}, nil

	case errors.Is(err, store.ErrConflict),
		errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		c.obs.ObserveReserve(string(StateConflicted), elapsed)
		c.obs.ObserveAttempt(string(StateConflicted))
		log.Warn("booking conflicted", slog.Any("err", err), slog.Int64("version", day.Version))
		res := Result{State: StateConflicted}
		if fresh, ferr := c.loadDay(ctx, req.DoctorID, req.Date); ferr == nil {
			res.Windows = fresh.Windows
		} else {
			log.Warn("refresh after conflict failed", slog.Any("err", ferr))
		}
		return res, nil

	case errors.As(err, &rejected):
		c.obs.ObserveReserve(string(StateRejected), elapsed)
		return c.rejected(log, err, nil), nil

	case errors.Is(err, store.ErrIdempotencyConflict):
		return Result{}, err

	case ctx.Err() != nil:
		return Result{}, ctx.Err()

	default:
		log.Error("reserve failed", slog.Any("err", err))
		return Result{}, fmt.Errorf("%w: reserve: %w", ErrUnavailable, err)
	}
}

func (c *Coordinator) rejected(log *slog.Logger, reason error, nearest []domain.Interval) Result {
	rule := RejectionRule(reason)
	c.obs.ObserveRejection(rule)
	c.obs.ObserveAttempt(string(StateRejected))
	log.Info("booking rejected", slog.String("rule", rule), slog.String("reason", reason.Error()))
	return Result{State: StateRejected, Reason: reason, Windows: nearest}
}

// Availability returns the free windows of doctorID on date and the snapshot
// version they were computed from.
func (c *Coordinator) Availability(ctx context.Context, doctorID string, date time.Time) (Day, error) {
	if strings.TrimSpace(doctorID) == "" {
		return Day{}, validationError("doctor_id is required")
	}
	return c.loadDay(ctx, doctorID, date)
}

// Slots lists bookable slots. Zero granularity or duration fall back to the
// configured defaults. The duration must satisfy the booking policy so every
// slot returned can be booked against the same snapshot.
func (c *Coordinator) Slots(ctx context.Context, doctorID string, date time.Time, granularityMinutes, durationMinutes int) ([]domain.Interval, Day, error) {
	if granularityMinutes == 0 {
		granularityMinutes = c.cfg.SlotGranularity
	}
	if durationMinutes == 0 {
		durationMinutes = c.cfg.SlotDuration
	}
	if granularityMinutes < 0 || durationMinutes < 0 {
		return nil, Day{}, availability.ErrInvalidSlotParams
	}
	if p := c.validator.Policy(); !p.Allows(time.Duration(durationMinutes) * time.Minute) {
		return nil, Day{}, fmt.Errorf("%w: duration %d minutes is outside %s-%s",
			availability.ErrInvalidSlotParams, durationMinutes, p.MinDuration, p.MaxDuration)
	}

	day, err := c.Availability(ctx, doctorID, date)
	if err != nil {
		return nil, Day{}, err
	}
	slots, err := availability.EnumerateSlots(day.Windows, granularityMinutes, durationMinutes)
	if err != nil {
		return nil, Day{}, err
	}
	return slots, day, nil
}

// SetWorkShifts replaces the shifts of doctorID on date. The set is rejected
// as a whole when any interval is empty, leaves the date, or overlaps another.
func (c *Coordinator) SetWorkShifts(ctx context.Context, doctorID string, date time.Time, intervals []domain.Interval) ([]domain.WorkShift, error) {
	if strings.TrimSpace(doctorID) == "" {
		return nil, validationError("doctor_id is required")
	}
	workDate := domain.DateOf(date)

	shifts := make([]domain.WorkShift, 0, len(intervals))
	for _, iv := range intervals {
		if !domain.DateOf(iv.Start).Equal(workDate) {
			return nil, validationError("shift " + iv.String() + " does not start on " + workDate.Format(time.DateOnly))
		}
		shifts = append(shifts, domain.WorkShift{
			DoctorID:  doctorID,
			WorkDate:  workDate,
			StartTime: iv.Start,
			EndTime:   iv.End,
		})
	}
	if _, err := domain.NewShiftCalendar(shifts); err != nil {
		return nil, err
	}

	saved, err := c.repo.ReplaceWorkShifts(ctx, doctorID, date, shifts)
	if err != nil {
		return nil, err
	}
	c.log.Info("work shifts replaced",
		slog.String("doctor_id", doctorID),
		slog.String("date", workDate.Format(time.DateOnly)),
		slog.Int("count", len(saved)),
	)
	return saved, nil
}

func (c *Coordinator) loadDay(ctx context.Context, doctorID string, date time.Time) (Day, error) {
	ctx, span := c.tracer.Start(ctx, "booking.load_day")
	defer span.End()
	started := time.Now()

	var (
		shifts []domain.WorkShift
		snap   store.DaySnapshot
	)
	err := c.retryRead(ctx, func() error {
		var err error
		if shifts, err = c.repo.GetWorkShifts(ctx, doctorID, date); err != nil {
			return err
		}
		snap, err = c.repo.GetBookings(ctx, doctorID, date)
		return err
	})
	if err != nil {
		return Day{}, err
	}

	cal, err := domain.NewShiftCalendar(shifts)
	if err != nil {
		return Day{}, fmt.Errorf("booking: stored shifts: %w", err)
	}
	ledger, err := domain.NewBookingLedger(snap.Bookings)
	if err != nil {
		return Day{}, fmt.Errorf("booking: stored bookings: %w", err)
	}

	windows := availability.Resolve(cal, ledger, doctorID, date)
	span.SetAttributes(
		attribute.Int64("booking.snapshot_version", snap.Version),
		attribute.Int("booking.windows", len(windows)),
	)
	c.obs.ObserveResolve(time.Since(started).Seconds(), len(windows))
	return Day{
		DoctorID: doctorID,
		Date:     domain.DateOf(date),
		Windows:  windows,
		Version:  snap.Version,
		bookings: snap.Bookings,
	}, nil
}

func (c *Coordinator) retryRead(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = c.cfg.ReadRetryMaxElapsed

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := op()
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if err != nil {
			c.log.Debug("read retry", slog.Int("attempt", attempt), slog.Any("err", err))
		}
		return err
	}, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// ApplyWeeklyRoster expands roster in loc and replaces the doctor's shifts on
// every date it covers, clearing dates without blocks. The roster is
// validated as a whole first; the per-date replaces are not atomic as a set.
func (c *Coordinator) ApplyWeeklyRoster(ctx context.Context, doctorID string, roster domain.WeeklyRoster, loc *time.Location) ([]domain.WorkShift, error) {
	if strings.TrimSpace(doctorID) == "" {
		return nil, validationError("doctor_id is required")
	}
	shifts, err := domain.ExpandWeeklyRoster(doctorID, roster, loc)
	if err != nil {
		return nil, validationError(err.Error())
	}
	if _, err := domain.NewShiftCalendar(shifts); err != nil {
		return nil, err
	}

	byDate := make(map[time.Time][]domain.WorkShift)
	for _, s := range shifts {
		byDate[s.WorkDate] = append(byDate[s.WorkDate], s)
	}

	var saved []domain.WorkShift
	for _, day := range roster.Days() {
		out, err := c.repo.ReplaceWorkShifts(ctx, doctorID, day, byDate[day])
		if err != nil {
			return nil, fmt.Errorf("booking: apply roster on %s: %w", day.Format(time.DateOnly), err)
		}
		saved = append(saved, out...)
	}
	c.log.Info("weekly roster applied",
		slog.String("doctor_id", doctorID),
		slog.String("from", domain.DateOf(roster.From).Format(time.DateOnly)),
		slog.String("until", domain.DateOf(roster.Until).Format(time.DateOnly)),
		slog.Int("shifts", len(saved)),
	)
	return saved, nil
}
