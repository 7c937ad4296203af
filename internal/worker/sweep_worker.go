package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/servicedesk-sla/internal/clock"
	"github.com/spec-kit/servicedesk-sla/internal/config"
	"github.com/spec-kit/servicedesk-sla/internal/service"
)

// Sweeper runs one pass over all active SLA timers.
type Sweeper interface {
	RunSweep(ctx context.Context, now time.Time) (service.SweepResult, error)
}

// Locker elects a single sweeping replica. *persistence.Redis satisfies it.
type Locker interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error
}

// SweepWorker triggers the SLA sweep on a fixed interval. With a Locker,
// only the replica holding the lock sweeps in a given round.
type SweepWorker struct {
	sweeper Sweeper
	locker  Locker
	clock   clock.Clock
	cfg     config.SLAConfig
	logger  *zap.Logger
}

// NewSweepWorker builds the worker. locker may be nil when every replica
// is allowed to sweep.
func NewSweepWorker(sweeper Sweeper, locker Locker, clk clock.Clock, cfg config.SLAConfig, logger *zap.Logger) *SweepWorker {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SweepLockTTL <= 0 {
		cfg.SweepLockTTL = cfg.SweepInterval
	}
	return &SweepWorker{
		sweeper: sweeper,
		locker:  locker,
		clock:   clk,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run sweeps every SweepInterval until ctx is cancelled.
func (w *SweepWorker) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.cfg.SweepInterval)
	defer ticker.Stop()

	w.logger.Info("sla sweep worker started", zap.Duration("interval", w.cfg.SweepInterval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sla sweep worker stopped")
			return
		case <-ticker.Chan():
			w.Tick(ctx)
		}
	}
}

// Tick runs a single round. It reports whether this replica swept.
func (w *SweepWorker) Tick(ctx context.Context) bool {
	if w.locker != nil {
		token := uuid.NewString()
		acquired, err := w.locker.TryLock(ctx, w.cfg.SweepLockKey, token, w.cfg.SweepLockTTL)
		if err != nil {
			w.logger.Warn("sla sweep lock failed", zap.Error(err))
			return false
		}
		if !acquired {
			w.logger.Debug("sla sweep held by another replica")
			return false
		}
		defer func() {
			// ctx may already be cancelled
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := w.locker.Unlock(releaseCtx, w.cfg.SweepLockKey, token); err != nil {
				w.logger.Warn("sla sweep unlock failed", zap.Error(err))
			}
		}()
	}

	result, err := w.sweeper.RunSweep(ctx, w.clock.Now())
	if err != nil {
		w.logger.Warn("sla sweep interrupted", zap.Error(err), zap.Any("result", result))
		return true
	}
	w.logger.Sugar().Infof("SLA check completed. Found %d breaches and sent %d warnings.", result.Breaches, result.Warnings)
	if result.Conflicts > 0 || result.Failed > 0 {
		w.logger.Warn("sla sweep skipped timers",
			zap.Int("conflicts", result.Conflicts),
			zap.Int("failed", result.Failed),
			zap.Int("checked", result.Checked))
	}
	return true
}
