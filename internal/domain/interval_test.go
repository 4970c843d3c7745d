package domain

import (
	"errors"
	"testing"
	"time"
)

func at(hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", "2026-03-02 "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func iv(start, end string) Interval {
	return MustInterval(at(start), at(end))
}

func TestNewInterval_RejectsNonPositiveDuration(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
	}{
		{name: "equal bounds", start: "09:00", end: "09:00"},
		{name: "reversed", start: "10:00", end: "09:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInterval(at(tt.start), at(tt.end))
			var ivErr *InvalidIntervalError
			if !errors.As(err, &ivErr) {
				t.Fatalf("error = %v, want *InvalidIntervalError", err)
			}
		})
	}

	if _, err := NewInterval(at("09:00"), at("09:01")); err != nil {
		t.Fatalf("NewInterval error: %v", err)
	}
}

func TestInterval_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{name: "disjoint", a: iv("09:00", "10:00"), b: iv("11:00", "12:00"), want: false},
		{name: "touching", a: iv("09:00", "10:00"), b: iv("10:00", "11:00"), want: false},
		{name: "partial", a: iv("09:00", "10:30"), b: iv("10:00", "11:00"), want: true},
		{name: "nested", a: iv("09:00", "12:00"), b: iv("10:00", "10:30"), want: true},
		{name: "identical", a: iv("09:00", "10:00"), b: iv("09:00", "10:00"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Fatalf("Overlaps(a, b) = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Fatalf("Overlaps(b, a) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInterval_OverlapsIsSymmetric(t *testing.T) {
	base := at("08:00")
	var all []Interval
	for s := 0; s < 8; s++ {
		for e := s + 1; e <= 8; e++ {
			all = append(all, MustInterval(base.Add(time.Duration(s)*30*time.Minute), base.Add(time.Duration(e)*30*time.Minute)))
		}
	}
	for _, a := range all {
		for _, b := range all {
			if a.Overlaps(b) != b.Overlaps(a) {
				t.Fatalf("Overlaps not symmetric for %s and %s", a, b)
			}
		}
	}
}

func TestInterval_Contains(t *testing.T) {
	outer := iv("09:00", "12:00")

	if !outer.Contains(iv("09:00", "12:00")) {
		t.Fatalf("interval must contain itself")
	}
	if !outer.Contains(iv("09:00", "09:15")) {
		t.Fatalf("expected containment at start boundary")
	}
	if !outer.Contains(iv("11:45", "12:00")) {
		t.Fatalf("expected containment at end boundary")
	}
	if outer.Contains(iv("08:45", "09:15")) {
		t.Fatalf("unexpected containment across start")
	}
	if outer.Contains(iv("11:45", "12:15")) {
		t.Fatalf("unexpected containment across end")
	}
}

func TestInterval_Subtract(t *testing.T) {
	base := iv("09:00", "12:00")

	tests := []struct {
		name string
		cut  Interval
		want []Interval
	}{
		{name: "no overlap", cut: iv("13:00", "14:00"), want: []Interval{base}},
		{name: "touching end", cut: iv("12:00", "13:00"), want: []Interval{base}},
		{name: "middle", cut: iv("10:00", "10:30"), want: []Interval{iv("09:00", "10:00"), iv("10:30", "12:00")}},
		{name: "head", cut: iv("08:00", "10:00"), want: []Interval{iv("10:00", "12:00")}},
		{name: "tail", cut: iv("11:00", "13:00"), want: []Interval{iv("09:00", "11:00")}},
		{name: "exact", cut: iv("09:00", "12:00"), want: nil},
		{name: "cover", cut: iv("08:00", "13:00"), want: nil},
		{name: "same start", cut: iv("09:00", "09:30"), want: []Interval{iv("09:30", "12:00")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base.Subtract(tt.cut)
			if len(got) != len(tt.want) {
				t.Fatalf("len(Subtract) = %d, want %d (%v)", len(got), len(tt.want), got)
			}
			for i := range got {
				if !got[i].Start.Equal(tt.want[i].Start) || !got[i].End.Equal(tt.want[i].End) {
					t.Fatalf("Subtract[%d] = %s, want %s", i, got[i], tt.want[i])
				}
				if !got[i].Valid() {
					t.Fatalf("Subtract[%d] = %s is empty", i, got[i])
				}
			}
		})
	}
}

func TestInterval_DurationMinutes(t *testing.T) {
	if got := iv("09:00", "10:45").DurationMinutes(); got != 105 {
		t.Fatalf("DurationMinutes = %d, want 105", got)
	}
}
