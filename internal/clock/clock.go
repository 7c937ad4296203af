// Package clock provides the single time source used by the SLA engine.
//
// Production code receives Real(); tests receive Fake() and move time
// forward explicitly with Advance instead of sleeping.
package clock

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Ticker delivers periodic ticks on Chan. Call Stop when done.
type Ticker = clockwork.Ticker

// Clock abstracts the time operations the service needs.
type Clock interface {
	// Now returns the current time in UTC.
	Now() time.Time
	// NewTicker delivers ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) Ticker
}

// Real returns a Clock backed by the time package.
func Real() Clock { return utcClock{clockwork.NewRealClock()} }

type utcClock struct {
	clockwork.Clock
}

func (c utcClock) Now() time.Time { return c.Clock.Now().UTC() }

func (c utcClock) NewTicker(d time.Duration) Ticker {
	return c.Clock.NewTicker(d)
}

// Fake returns a FakeClock frozen at initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{fake: clockwork.NewFakeClockAt(initial.UTC())}
}

// FakeClock is a deterministic Clock. Time moves only on Advance or Set,
// and tickers fire during those calls. Like time.Ticker, a ticker channel
// holds one tick and slow readers drop the rest.
type FakeClock struct {
	fake clockwork.FakeClock
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time { return c.fake.Now().UTC() }

// NewTicker registers a ticker that fires as the fake time passes its
// deadlines.
func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	return c.fake.NewTicker(d)
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) { c.fake.Advance(d) }

// Set moves the clock forward to t. Earlier instants are ignored.
func (c *FakeClock) Set(t time.Time) {
	if d := t.Sub(c.Now()); d > 0 {
		c.fake.Advance(d)
	}
}

// BlockUntil waits until n tickers or timers are registered.
func (c *FakeClock) BlockUntil(n int) { c.fake.BlockUntil(n) }
