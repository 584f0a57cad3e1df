package cache

import "github.com/jonboulle/clockwork"

// clock is a package-level time source so tests can drive retry backoff
// deterministically. Production code uses the real clock; tests inject a
// fake via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source for backoff sleeps and fetch timing.
// Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
