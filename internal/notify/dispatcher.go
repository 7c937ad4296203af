package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Channel is one delivery medium.
type Channel interface {
	Name() string
	// Accepts reports whether the channel can deliver job at all, for
	// example whether the recipient has an address for it.
	Accepts(job Job) bool
	Deliver(ctx context.Context, job Job) error
}

// BreakerSettings tunes the per-channel circuit breaker.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerSettings opens a channel after 60% of at least 3 requests
// failed and probes it again after 30 seconds.
var DefaultBreakerSettings = BreakerSettings{
	MaxRequests:  1,
	Interval:     time.Minute,
	Timeout:      30 * time.Second,
	FailureRatio: 0.6,
	MinRequests:  3,
}

type guardedChannel struct {
	Channel
	breaker *gobreaker.CircuitBreaker
}

// Dispatcher fans a job out to its channels, each behind a circuit breaker.
type Dispatcher struct {
	channels []guardedChannel
	logger   *zap.Logger
}

var _ Deliverer = (*Dispatcher)(nil)

// NewDispatcher wraps channels with breakers built from settings.
func NewDispatcher(logger *zap.Logger, settings BreakerSettings, channels ...Channel) *Dispatcher {
	d := &Dispatcher{logger: logger}
	for _, ch := range channels {
		d.channels = append(d.channels, guardedChannel{
			Channel: ch,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        ch.Name(),
				MaxRequests: settings.MaxRequests,
				Interval:    settings.Interval,
				Timeout:     settings.Timeout,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					if counts.Requests < settings.MinRequests {
						return false
					}
					ratio := float64(counts.TotalFailures) / float64(counts.Requests)
					return ratio >= settings.FailureRatio
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					logger.Warn("notification channel breaker state changed",
						zap.String("channel", name),
						zap.String("from", from.String()),
						zap.String("to", to.String()))
				},
			}),
		})
	}
	return d
}

// Deliver sends job through every eligible channel and returns the names
// of those that failed.
func (d *Dispatcher) Deliver(ctx context.Context, job Job) ([]string, error) {
	var (
		failed []string
		errs   []error
		tried  int
	)
	for _, ch := range d.channels {
		if len(job.Channels) > 0 && !slices.Contains(job.Channels, ch.Name()) {
			continue
		}
		if !ch.Accepts(job) {
			continue
		}
		tried++
		_, err := ch.breaker.Execute(func() (interface{}, error) {
			return nil, ch.Deliver(ctx, job)
		})
		if err != nil {
			failed = append(failed, ch.Name())
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	if tried == 0 {
		d.logger.Debug("no channel accepts notification",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.String("ticket_id", job.Ticket.ID))
	}
	return failed, errors.Join(errs...)
}
