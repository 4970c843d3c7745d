// Package availability computes free windows from shifts and bookings and
// checks appointment requests against them. Everything here is pure and safe
// for concurrent use.
package availability

import (
	"sort"
	"time"

	"medportal/backend/internal/domain"
)

// MergeBusy unions overlapping or adjacent intervals.
func MergeBusy(intervals []domain.Interval) []domain.Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]domain.Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := make([]domain.Interval, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if !next.Start.After(cur.End) {
			if next.End.After(cur.End) {
				cur.End = next.End
			}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

// Resolve returns the free windows of doctorID on date: the union of shifts
// minus the union of occupying bookings, sorted by start.
func Resolve(cal *domain.ShiftCalendar, ledger *domain.BookingLedger, doctorID string, date time.Time) []domain.Interval {
	shifts := cal.ForDoctorDate(doctorID, date)
	if len(shifts) == 0 {
		return nil
	}

	bookings := ledger.ForDoctorDate(doctorID, date)
	busyRaw := make([]domain.Interval, 0, len(bookings))
	for _, b := range bookings {
		busyRaw = append(busyRaw, b.Interval())
	}
	busy := MergeBusy(busyRaw)

	windows := make([]domain.Interval, 0, len(shifts)+len(busy))
	for _, s := range shifts {
		free := []domain.Interval{s.Interval()}
		for _, b := range busy {
			if !b.Overlaps(s.Interval()) {
				continue
			}
			next := make([]domain.Interval, 0, len(free)+1)
			for _, f := range free {
				next = append(next, f.Subtract(b)...)
			}
			free = next
		}
		windows = append(windows, free...)
	}

	sort.Slice(windows, func(i, j int) bool {
		return windows[i].Start.Before(windows[j].Start)
	})
	return windows
}

// NearestWindows returns up to n windows ordered by how far they are from
// candidate. Windows overlapping the candidate have distance zero.
func NearestWindows(windows []domain.Interval, candidate domain.Interval, n int) []domain.Interval {
	if n <= 0 || len(windows) == 0 {
		return nil
	}
	ranked := make([]domain.Interval, len(windows))
	copy(ranked, windows)
	sort.SliceStable(ranked, func(i, j int) bool {
		return gap(ranked[i], candidate) < gap(ranked[j], candidate)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].Start.Before(ranked[j].Start)
	})
	return ranked
}

func gap(w, c domain.Interval) time.Duration {
	switch {
	case w.Overlaps(c):
		return 0
	case !w.End.After(c.Start):
		return c.Start.Sub(w.End)
	default:
		return w.Start.Sub(c.End)
	}
}
