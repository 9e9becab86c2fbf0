package utils

import "time"

// Clock returns the current time. Components take one so tests can pin it.
type Clock func() time.Time

// SystemClock is the wall clock.
func SystemClock() time.Time {
	return time.Now()
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// TickInterval converts a rate in ticks per second into a period.
// Non-positive rates fall back to 20 TPS.
func TickInterval(ticksPerSecond int) time.Duration {
	if ticksPerSecond <= 0 {
		ticksPerSecond = 20
	}
	return time.Second / time.Duration(ticksPerSecond)
}
