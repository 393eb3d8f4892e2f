package domain

import "time"

// Clock abstracts wall-clock time so close-time gating can be tested
// deterministically.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }
