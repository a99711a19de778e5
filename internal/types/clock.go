package types

import "time"

// Clock supplies the single consistent "now" used across one request or
// transaction. Timeline rebuilds and invoice runs must never mix wall-clock
// reads mid-computation.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// RealClock returns a Clock backed by the system time in UTC.
func RealClock() Clock {
	return realClock{}
}

// FixedClock always returns the given instant. Intended for tests and
// deterministic dry runs.
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time {
	return c.Instant
}
