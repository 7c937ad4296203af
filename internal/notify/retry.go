package notify

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy spaces the redeliveries of a failed job. The wait doubles
// from Initial up to Max.
type RetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultRetryPolicy waits 5s, 10s and then 20s, so the third retry comes
// after a tripped breaker with DefaultBreakerSettings is probed again.
var DefaultRetryPolicy = RetryPolicy{Initial: 5 * time.Second, Max: time.Minute}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	if p.Initial <= 0 {
		p = DefaultRetryPolicy
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.Initial),
		backoff.WithMaxInterval(p.Max),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
}

// Delay returns the wait before retry number attempt, counting from 1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	b := p.backOff()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
