// Package medportalv1 is the wire contract of medportal.v1.SchedulingService.
// Messages travel as JSON over gRPC. Timestamps are local clinic time in the
// form 2006-01-02T15:04:05 and dates in the form 2006-01-02.
package medportalv1

type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeRejected   Outcome = "rejected"
	OutcomeConflicted Outcome = "conflicted"
)

type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type GetAvailabilityRequest struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
}

type GetAvailabilityResponse struct {
	DoctorID string   `json:"doctor_id"`
	Date     string   `json:"date"`
	Windows  []Window `json:"windows"`
	Version  int64    `json:"version"`
}

type ListSlotsRequest struct {
	DoctorID           string `json:"doctor_id"`
	Date               string `json:"date"`
	GranularityMinutes int32  `json:"granularity_minutes,omitempty"`
	DurationMinutes    int32  `json:"duration_minutes,omitempty"`
}

type ListSlotsResponse struct {
	Slots   []Window `json:"slots"`
	Version int64    `json:"version"`
}

type BookAppointmentRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type Booking struct {
	ID        string `json:"id"`
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

// BookAppointmentResponse carries Booking when committed, Rule and Reason
// when rejected, and Windows (nearest or refreshed) otherwise. Replayed marks
// a retry answered with the original booking; its Status may since have
// become cancelled.
type BookAppointmentResponse struct {
	Outcome  Outcome  `json:"outcome"`
	Replayed bool     `json:"replayed,omitempty"`
	Booking  *Booking `json:"booking,omitempty"`
	Rule     string   `json:"rule,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	Windows  []Window `json:"windows,omitempty"`
}

type SetWorkShiftsRequest struct {
	DoctorID string   `json:"doctor_id"`
	Date     string   `json:"date"`
	Shifts   []Window `json:"shifts"`
}

type WorkShift struct {
	ID    string `json:"id"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type SetWorkShiftsResponse struct {
	Shifts []WorkShift `json:"shifts"`
}

// RosterBlock uses ISO weekdays (1 = Monday, 7 = Sunday) and wall-clock
// times like 09:00. 24:00 is accepted as an end.
type RosterBlock struct {
	Weekday int32  `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type ApplyWeeklyRosterRequest struct {
	DoctorID   string        `json:"doctor_id"`
	From       string        `json:"from"`
	Until      string        `json:"until"`
	EveryWeeks int32         `json:"every_weeks,omitempty"`
	Blocks     []RosterBlock `json:"blocks"`
}

type ApplyWeeklyRosterResponse struct {
	Shifts []WorkShift `json:"shifts"`
}
