package core

import "time"

// Clock abstracts time for the engine's polling loop so suspension points and
// timeout handling are testable without wall-clock waits.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the production Clock backed by the time package.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// After waits for the duration to elapse.
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
