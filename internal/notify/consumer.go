package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-sla/internal/clock"
	"github.com/spec-kit/servicedesk-sla/internal/observability"
)

// Consumer drains a Queue into a Deliverer. A failed job is deferred with
// the failing channels, growing the delay per attempt, until MaxRetries is
// reached, so delivery is at least once per channel.
type Consumer struct {
	queue        *Queue
	deliverer    Deliverer
	maxRetries   int
	retry        RetryPolicy
	blockTimeout time.Duration
	clock        clock.Clock
	logger       *zap.Logger
	metrics      *observability.Metrics
}

// ConsumerConfig tunes a Consumer. Deferred jobs are promoted between
// pops, so they may run up to BlockTimeout late.
type ConsumerConfig struct {
	MaxRetries   int
	Retry        RetryPolicy
	BlockTimeout time.Duration
	Clock        clock.Clock
}

// NewConsumer builds a consumer.
func NewConsumer(queue *Queue, deliverer Deliverer, cfg ConsumerConfig, logger *zap.Logger, metrics *observability.Metrics) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	return &Consumer{
		queue:        queue,
		deliverer:    deliverer,
		maxRetries:   cfg.MaxRetries,
		retry:        cfg.Retry,
		blockTimeout: cfg.BlockTimeout,
		clock:        cfg.Clock,
		logger:       logger,
		metrics:      metrics,
	}
}

// Run processes jobs until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("notification consumer started")
	for {
		if ctx.Err() != nil {
			c.logger.Info("notification consumer stopped")
			return
		}
		if _, err := c.ProcessOne(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("process notification job", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessOne promotes due retries and then handles a single job. It
// reports false when the wait timed out with nothing to do.
func (c *Consumer) ProcessOne(ctx context.Context) (bool, error) {
	if _, err := c.queue.PromoteDue(ctx, c.clock.Now()); err != nil {
		return false, err
	}
	job, err := c.queue.Pop(ctx, c.blockTimeout)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	failed, err := c.deliverer.Deliver(ctx, *job)
	if err == nil {
		return true, nil
	}

	fields := []zap.Field{
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("ticket_id", job.Ticket.ID),
		zap.Strings("channels", failed),
		zap.Int("retries", job.Retries),
		zap.Error(err),
	}
	if job.Retries >= c.maxRetries {
		c.logger.Error("notification dropped after retries", fields...)
		c.metrics.RecordDispatchFailure(string(job.Kind))
		return true, nil
	}

	job.Retries++
	job.Channels = failed
	wait := c.retry.Delay(job.Retries)
	c.logger.Warn("notification failed; retry deferred", append(fields, zap.Duration("wait", wait))...)
	if err := c.queue.Defer(ctx, *job, c.clock.Now().Add(wait)); err != nil {
		c.metrics.RecordDispatchFailure(string(job.Kind))
		return true, err
	}
	return true, nil
}
