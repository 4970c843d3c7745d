package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// MaxRosterDays bounds how many calendar days one roster may expand into.
const MaxRosterDays = 366

// ClockTime is a wall-clock time of day. 24:00 is allowed as an end time.
type ClockTime struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (ClockTime, error) {
	if s == "24:00" {
		return ClockTime{Hour: 24}, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("clock time %q must look like 15:04", s)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c ClockTime) minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant c on the civil date of day in loc. Local wall-clock
// hours are kept across DST changes.
func (c ClockTime) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// RosterBlock is one working block on an ISO weekday (1 = Monday, 7 = Sunday).
type RosterBlock struct {
	Weekday int16
	Start   ClockTime
	End     ClockTime
}

// WeeklyRoster repeats its blocks every EveryWeeks weeks between From and
// Until, both inclusive civil dates. Weeks are counted from the Monday of
// From's week.
type WeeklyRoster struct {
	Blocks     []RosterBlock
	EveryWeeks int
	From       time.Time
	Until      time.Time
}

// Days lists every civil date the roster covers, as midnight UTC.
func (r WeeklyRoster) Days() []time.Time {
	from, until := DateOf(r.From), DateOf(r.Until)
	var out []time.Time
	for d := from; !d.After(until); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// ExpandWeeklyRoster turns r into concrete shifts for doctorID with clock
// times read in loc. Shifts are ordered by start. Overlaps between blocks are
// left to NewShiftCalendar.
func ExpandWeeklyRoster(doctorID string, r WeeklyRoster, loc *time.Location) ([]WorkShift, error) {
	if loc == nil {
		loc = time.UTC
	}
	if len(r.Blocks) == 0 {
		return nil, errors.New("at least one block is required")
	}
	for _, b := range r.Blocks {
		if b.Weekday < 1 || b.Weekday > 7 {
			return nil, errors.New("invalid weekday")
		}
		if b.End.minutes() <= b.Start.minutes() {
			return nil, fmt.Errorf("block %s-%s must end after it starts", b.Start, b.End)
		}
	}

	from, until := DateOf(r.From), DateOf(r.Until)
	if until.Before(from) {
		return nil, errors.New("until must not be before from")
	}
	if int(until.Sub(from)/(24*time.Hour)) >= MaxRosterDays {
		return nil, fmt.Errorf("roster spans more than %d days", MaxRosterDays)
	}

	every := r.EveryWeeks
	if every < 1 {
		every = 1
	}
	anchor := mondayDateUTC(from)

	var out []WorkShift
	for _, day := range r.Days() {
		weekIndex := int(mondayDateUTC(day).Sub(anchor) / (7 * 24 * time.Hour))
		if weekIndex%every != 0 {
			continue
		}
		wd := isoWeekday(day)
		for _, b := range r.Blocks {
			if b.Weekday != wd {
				continue
			}
			out = append(out, WorkShift{
				DoctorID:  doctorID,
				WorkDate:  day,
				StartTime: b.Start.On(day, loc),
				EndTime:   b.End.On(day, loc),
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func mondayDateUTC(t time.Time) time.Time {
	d := DateOf(t)
	return d.AddDate(0, 0, -int(isoWeekday(d)-1))
}

func isoWeekday(t time.Time) int16 {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int16(t.Weekday())
}
