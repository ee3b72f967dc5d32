package clock

import "time"

type Clock interface {
	Now() time.Time
}

// System reads the wall clock in UTC.
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant. Useful for tests and replays.
type Fixed time.Time

func (f Fixed) Now() time.Time {
	return time.Time(f)
}
