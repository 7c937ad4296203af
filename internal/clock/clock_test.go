package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	c := Fake(start)

	assert.Equal(t, start, c.Now())
	c.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), c.Now())
}

func TestFakeClockNormalisesToUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	c := Fake(time.Date(2026, 1, 1, 15, 30, 0, 0, ist))

	assert.Equal(t, time.UTC, c.Now().Location())
	assert.Equal(t, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), c.Now())
}

func TestFakeTickerFiresOnAdvance(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(time.Minute)
	defer ticker.Stop()

	select {
	case <-ticker.Chan():
		t.Fatal("ticker fired before advance")
	default:
	}

	c.Advance(time.Minute)
	select {
	case tick := <-ticker.Chan():
		assert.Equal(t, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), tick)
	default:
		t.Fatal("ticker did not fire")
	}
}

func TestFakeTickerDropsTicksForSlowReader(t *testing.T) {
	c := Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(time.Minute)

	c.Advance(5 * time.Minute)
	require.Len(t, ticker.Chan(), 1)
	<-ticker.Chan()

	ticker.Stop()
	c.Advance(time.Minute)
	assert.Len(t, ticker.Chan(), 0)
}

func TestFakeTickerRejectsNonPositiveInterval(t *testing.T) {
	c := Fake(time.Now())
	assert.Panics(t, func() { c.NewTicker(0) })
}

func TestFakeClockSetOnlyMovesForward(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)
	ticker := c.NewTicker(time.Hour)
	defer ticker.Stop()

	c.Set(start.Add(-time.Hour))
	assert.Equal(t, start, c.Now())

	c.Set(start.Add(time.Hour))
	assert.Equal(t, start.Add(time.Hour), c.Now())
	assert.Len(t, ticker.Chan(), 1)
}
