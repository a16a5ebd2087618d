// Package window computes the reminder relevance window and the execution
// ETA for an event. All functions are pure: results depend only on the
// arguments, and the caller supplies "now".
package window

import "time"

const (
	// PastGrace is how far behind now an event start may be and still be
	// worth a reminder.
	PastGrace = 15 * time.Minute

	// FutureHorizon is how far ahead of now an event start counts as
	// due soon.
	FutureHorizon = 30 * time.Minute

	// ETAOffset is how long before the event start the reminder fires.
	ETAOffset = 10 * time.Minute
)

// Notification returns the inclusive window [now-15m, now+30m] within
// which an event start time is considered due for a reminder.
func Notification(now time.Time) (start, end time.Time) {
	return now.Add(-PastGrace), now.Add(FutureHorizon)
}

// Contains reports whether t falls inside the notification window around
// now. Both bounds are inclusive.
func Contains(now, t time.Time) bool {
	start, end := Notification(now)
	return !t.Before(start) && !t.After(end)
}

// ETA returns when the reminder job for an event starting at start should
// execute: ten minutes before the start, clamped to now. The result is
// never in the past; an ETA equal to now means immediate execution.
func ETA(start, now time.Time) time.Time {
	eta := start.Add(-ETAOffset)
	if eta.Before(now) {
		return now
	}
	return eta
}
