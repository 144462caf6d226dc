package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock stamps NormalizedTable.LoadedAt.
var clock = clockwork.NewRealClock()

// SetClock replaces the load-time source, e.g. with a fake clock for
// reproducible snapshots. nil restores the real clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	clock = c
}

// Now returns the load time in UTC.
func Now() time.Time { return clock.Now().UTC() }
