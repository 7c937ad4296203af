package notify

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-sla/internal/observability"
)

// Async is the in-process Publisher used when Redis is not configured.
// Publish never blocks; a full buffer rejects the job. A worker waits out
// the retry backoff of its job before taking the next one.
type Async struct {
	deliverer   Deliverer
	jobs        chan Job
	workers     int
	maxRetries  int
	retry       RetryPolicy
	sendTimeout time.Duration
	logger      *zap.Logger
	metrics     *observability.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ Publisher = (*Async)(nil)

// AsyncConfig tunes the worker pool.
type AsyncConfig struct {
	Workers     int
	Buffer      int
	MaxRetries  int
	Retry       RetryPolicy
	SendTimeout time.Duration
}

// NewAsync builds the pool; call Start before publishing.
func NewAsync(deliverer Deliverer, cfg AsyncConfig, logger *zap.Logger, metrics *observability.Metrics) *Async {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	return &Async{
		deliverer:   deliverer,
		jobs:        make(chan Job, cfg.Buffer),
		workers:     cfg.Workers,
		maxRetries:  cfg.MaxRetries,
		retry:       cfg.Retry,
		sendTimeout: cfg.SendTimeout,
		logger:      logger,
		metrics:     metrics,
	}
}

// Start launches the workers. They exit when ctx is done or Close is
// called.
func (a *Async) Start(ctx context.Context) {
	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-a.jobs:
					if !ok {
						return
					}
					a.deliver(ctx, job)
				}
			}
		}()
	}
}

// Publish queues job for delivery.
func (a *Async) Publish(_ context.Context, job Job) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrQueueFull
	}
	select {
	case a.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.jobs)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Async) deliver(ctx context.Context, job Job) {
	retries := uint64(max(a.maxRetries-job.Retries, 0))
	policy := backoff.WithContext(backoff.WithMaxRetries(a.retry.backOff(), retries), ctx)

	err := backoff.RetryNotify(func() error {
		sendCtx, cancel := context.WithTimeout(ctx, a.sendTimeout)
		defer cancel()
		failed, err := a.deliverer.Deliver(sendCtx, job)
		if err != nil {
			job.Channels = failed
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		job.Retries++
		a.logger.Warn("notification failed; retrying",
			zap.String("job_id", job.ID),
			zap.Strings("channels", job.Channels),
			zap.Int("retries", job.Retries),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		a.logger.Error("notification dropped after retries",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.String("ticket_id", job.Ticket.ID),
			zap.Error(err))
		a.metrics.RecordDispatchFailure(string(job.Kind))
	}
}
