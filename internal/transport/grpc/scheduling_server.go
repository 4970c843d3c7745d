package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	medportalv1 "medportal/backend/internal/api/medportal/v1"
	"medportal/backend/internal/availability"
	"medportal/backend/internal/domain"
	"medportal/backend/internal/service/booking"
	"medportal/backend/internal/store"
)

type SchedulingServer struct {
	medportalv1.UnimplementedSchedulingServiceServer

	svc   schedulingService
	clock wireClock
	log   *slog.Logger
}

type schedulingService interface {
	Availability(ctx context.Context, doctorID string, date time.Time) (booking.Day, error)
	Slots(ctx context.Context, doctorID string, date time.Time, granularityMinutes, durationMinutes int) ([]domain.Interval, booking.Day, error)
	Book(ctx context.Context, req booking.Request) (booking.Result, error)
	SetWorkShifts(ctx context.Context, doctorID string, date time.Time, intervals []domain.Interval) ([]domain.WorkShift, error)
	ApplyWeeklyRoster(ctx context.Context, doctorID string, roster domain.WeeklyRoster, loc *time.Location) ([]domain.WorkShift, error)
}

func NewSchedulingServer(svc schedulingService, loc *time.Location, log *slog.Logger) *SchedulingServer {
	if log == nil {
		log = slog.Default()
	}
	return &SchedulingServer{
		svc:   svc,
		clock: newWireClock(loc),
		log:   log.With(slog.String("component", "grpc.scheduling")),
	}
}

func (s *SchedulingServer) GetAvailability(ctx context.Context, req *medportalv1.GetAvailabilityRequest) (*medportalv1.GetAvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := s.clock.parseDate("date", req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_date"), slog.String("doctor_id", req.DoctorID))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	day, err := s.svc.Availability(ctx, req.DoctorID, date)
	if err != nil {
		return nil, s.statusFor(log, "availability failed", err)
	}

	return &medportalv1.GetAvailabilityResponse{
		DoctorID: day.DoctorID,
		Date:     s.clock.formatDate(day.Date),
		Windows:  s.windows(day.Windows),
		Version:  day.Version,
	}, nil
}

func (s *SchedulingServer) ListSlots(ctx context.Context, req *medportalv1.ListSlotsRequest) (*medportalv1.ListSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "ListSlots"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := s.clock.parseDate("date", req.Date)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_date"), slog.String("doctor_id", req.DoctorID))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	slots, day, err := s.svc.Slots(ctx, req.DoctorID, date, int(req.GranularityMinutes), int(req.DurationMinutes))
	if err != nil {
		return nil, s.statusFor(log, "list slots failed", err)
	}

	return &medportalv1.ListSlotsResponse{
		Slots:   s.windows(slots),
		Version: day.Version,
	}, nil
}

func (s *SchedulingServer) BookAppointment(ctx context.Context, req *medportalv1.BookAppointmentRequest) (*medportalv1.BookAppointmentResponse, error) {
	log := s.log.With(slog.String("rpc", "BookAppointment"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	if req.StartTime == "" || req.EndTime == "" {
		log.Warn("invalid request", slog.String("reason", "missing_times"), slog.String("doctor_id", req.DoctorID))
		return nil, status.Error(codes.InvalidArgument, "start_time and end_time are required")
	}
	start, err := s.clock.parseTimestamp("start_time", req.StartTime)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	end, err := s.clock.parseTimestamp("end_time", req.EndTime)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	date := start
	if req.Date != "" {
		if date, err = s.clock.parseDate("date", req.Date); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}

	res, err := s.svc.Book(ctx, booking.Request{
		DoctorID:       req.DoctorID,
		PatientID:      req.PatientID,
		Date:           date,
		Start:          start,
		End:            end,
		IdempotencyKey: idempotencyKey(ctx),
	})
	if err != nil {
		if errors.Is(err, store.ErrIdempotencyConflict) {
			log.Info("booking idempotency conflict", slog.String("patient_id", req.PatientID))
			return nil, status.Error(codes.FailedPrecondition, "This request key was already used for a different appointment. Try again.")
		}
		return nil, s.statusFor(log, "booking failed", err)
	}

	resp := &medportalv1.BookAppointmentResponse{
		Outcome:  medportalv1.Outcome(res.State),
		Replayed: res.Replayed,
		Windows:  s.windows(res.Windows),
	}
	switch res.State {
	case booking.StateCommitted:
		b := res.Booking
		resp.Booking = &medportalv1.Booking{
			ID:        b.ID.String(),
			DoctorID:  b.DoctorID,
			PatientID: b.PatientID,
			Date:      s.clock.formatDate(b.BookingDate),
			StartTime: s.clock.formatTimestamp(b.StartTime),
			EndTime:   s.clock.formatTimestamp(b.EndTime),
			Status:    string(b.Status),
		}
	case booking.StateRejected:
		resp.Rule = booking.RejectionRule(res.Reason)
		resp.Reason = res.Reason.Error()
	}
	return resp, nil
}

func (s *SchedulingServer) SetWorkShifts(ctx context.Context, req *medportalv1.SetWorkShiftsRequest) (*medportalv1.SetWorkShiftsResponse, error) {
	log := s.log.With(slog.String("rpc", "SetWorkShifts"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	date, err := s.clock.parseDate("date", req.Date)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	intervals := make([]domain.Interval, 0, len(req.Shifts))
	for _, w := range req.Shifts {
		start, err := s.clock.parseTimestamp("shift start", w.Start)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		end, err := s.clock.parseTimestamp("shift end", w.End)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		intervals = append(intervals, domain.Interval{Start: start, End: end})
	}

	saved, err := s.svc.SetWorkShifts(ctx, req.DoctorID, date, intervals)
	if err != nil {
		return nil, s.statusFor(log, "set work shifts failed", err)
	}

	out := s.workShifts(saved)
	log.Info("work shifts set", slog.String("doctor_id", req.DoctorID), slog.Int("count", len(out)))
	return &medportalv1.SetWorkShiftsResponse{Shifts: out}, nil
}

func (s *SchedulingServer) ApplyWeeklyRoster(ctx context.Context, req *medportalv1.ApplyWeeklyRosterRequest) (*medportalv1.ApplyWeeklyRosterResponse, error) {
	log := s.log.With(slog.String("rpc", "ApplyWeeklyRoster"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	from, err := s.clock.parseDate("from", req.From)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	until, err := s.clock.parseDate("until", req.Until)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	roster := domain.WeeklyRoster{
		EveryWeeks: int(req.EveryWeeks),
		From:       from,
		Until:      until,
	}
	for _, b := range req.Blocks {
		start, err := domain.ParseClock(b.Start)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		end, err := domain.ParseClock(b.End)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		roster.Blocks = append(roster.Blocks, domain.RosterBlock{Weekday: int16(b.Weekday), Start: start, End: end})
	}

	saved, err := s.svc.ApplyWeeklyRoster(ctx, req.DoctorID, roster, s.clock.loc)
	if err != nil {
		return nil, s.statusFor(log, "apply weekly roster failed", err)
	}
	return &medportalv1.ApplyWeeklyRosterResponse{Shifts: s.workShifts(saved)}, nil
}

// statusFor maps service errors to gRPC status codes.
func (s *SchedulingServer) statusFor(log *slog.Logger, msg string, err error) error {
	var (
		vErr       *booking.ValidationError
		ivErr      *domain.InvalidIntervalError
		overlapErr *domain.OverlappingShiftError
	)
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, vErr.Error())
	case errors.As(err, &ivErr), errors.As(err, &overlapErr), errors.Is(err, availability.ErrInvalidSlotParams):
		log.Warn("invalid request", slog.Any("err", err))
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrConflict):
		log.Info(msg, slog.Any("err", err))
		return status.Error(codes.FailedPrecondition, "The schedule changed while saving. Reload and try again.")
	case errors.Is(err, booking.ErrUnavailable):
		log.Error(msg, slog.Any("err", err))
		return status.Error(codes.Unavailable, "The schedule is temporarily unavailable. Try again.")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		log.Error(msg, slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *SchedulingServer) windows(in []domain.Interval) []medportalv1.Window {
	out := make([]medportalv1.Window, 0, len(in))
	for _, w := range in {
		out = append(out, medportalv1.Window{
			Start: s.clock.formatTimestamp(w.Start),
			End:   s.clock.formatTimestamp(w.End),
		})
	}
	return out
}

func (s *SchedulingServer) workShifts(in []domain.WorkShift) []medportalv1.WorkShift {
	out := make([]medportalv1.WorkShift, 0, len(in))
	for _, ws := range in {
		out = append(out, medportalv1.WorkShift{
			ID:    ws.ID.String(),
			Start: s.clock.formatTimestamp(ws.StartTime),
			End:   s.clock.formatTimestamp(ws.EndTime),
		})
	}
	return out
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("idempotency-key")
	if len(values) == 0 {
		values = md.Get("x-idempotency-key")
	}
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
