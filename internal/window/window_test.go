package window

import (
	"testing"
	"time"
)

func TestNotification(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	start, end := Notification(now)

	if want := now.Add(-15 * time.Minute); !start.Equal(want) {
		t.Errorf("start = %s, want %s", start, want)
	}
	if want := now.Add(30 * time.Minute); !end.Equal(want) {
		t.Errorf("end = %s, want %s", end, want)
	}
}

func TestContains(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"now", now, true},
		{"lower bound inclusive", now.Add(-15 * time.Minute), true},
		{"upper bound inclusive", now.Add(30 * time.Minute), true},
		{"just before lower bound", now.Add(-15*time.Minute - time.Second), false},
		{"just after upper bound", now.Add(30*time.Minute + time.Second), false},
		{"well inside", now.Add(5 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Contains(now, tt.t); got != tt.want {
				t.Errorf("Contains(now, %s) = %v, want %v", tt.t, got, tt.want)
			}
		})
	}
}

func TestETA(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		want  time.Time
	}{
		// start in 40 minutes: fire 10 minutes before, i.e. now+30m.
		{"far future", now.Add(40 * time.Minute), now.Add(30 * time.Minute)},
		// start in 5 minutes: start-10m is in the past, clamp to now.
		{"near future clamps to now", now.Add(5 * time.Minute), now},
		{"exactly at offset", now.Add(10 * time.Minute), now},
		{"already past", now.Add(-5 * time.Minute), now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ETA(tt.start, now)
			if !got.Equal(tt.want) {
				t.Errorf("ETA(%s, now) = %s, want %s", tt.start, got, tt.want)
			}
			if got.Before(now) {
				t.Errorf("ETA(%s, now) = %s is before now", tt.start, got)
			}
		})
	}
}
