package quiz

import "time"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a plain function, e.g. time.Now or a test stub.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// IsExpired is the single definition of "past due" used by every guard.
func IsExpired(a Assignment, now time.Time) bool {
	return a.DueDate != nil && now.After(*a.DueDate)
}

// isLive reports whether a blocks a new assignment of the same quiz to the
// same group.
func isLive(a Assignment, now time.Time) bool {
	return !a.Cancelled() && !IsExpired(a, now)
}
