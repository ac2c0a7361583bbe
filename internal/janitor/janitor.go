// Package janitor runs the periodic housekeeping of the server: handle
// mailbox retention and the reset of request allowances.
package janitor

import (
	"context"
	"time"

	"github.com/and161185/keyqueue/internal/limiter"
	"go.uber.org/zap"
)

// Purger deletes handle messages older than a retention period.
type Purger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// Config holds the janitor schedule.
type Config struct {
	PurgeInterval time.Duration // how often retention runs
	Retention     time.Duration // age after which handle messages are dropped
	ResetInterval time.Duration // how often allowances are refilled; 0 disables
	Allowance     int32         // tokens each client gets on reset
	RunTimeout    time.Duration // upper bound for a single pass
}

// Janitor owns the housekeeping loops.
type Janitor struct {
	cfg     Config
	handles Purger
	lim     limiter.Limiter
	log     *zap.Logger
}

// New constructs a Janitor. A nil limiter disables allowance resets.
func New(cfg Config, handles Purger, lim limiter.Limiter, log *zap.Logger) *Janitor {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Janitor{cfg: cfg, handles: handles, lim: lim, log: log}
}

// Run blocks until ctx is done, purging and resetting on their tickers.
func (j *Janitor) Run(ctx context.Context) {
	purge, stopPurge := ticker(j.cfg.PurgeInterval)
	defer stopPurge()
	resetEvery := j.cfg.ResetInterval
	if j.lim == nil {
		resetEvery = 0
	}
	reset, stopReset := ticker(resetEvery)
	defer stopReset()

	j.log.Info("janitor started",
		zap.Duration("purge_interval", j.cfg.PurgeInterval),
		zap.Duration("retention", j.cfg.Retention),
		zap.Duration("reset_interval", j.cfg.ResetInterval),
	)
	for {
		select {
		case <-ctx.Done():
			j.log.Info("janitor stopped")
			return
		case <-purge:
			_, _ = j.PurgeOnce(ctx)
		case <-reset:
			_, _ = j.ResetOnce(ctx)
		}
	}
}

// PurgeOnce runs one retention pass.
func (j *Janitor) PurgeOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.cfg.RunTimeout)
	defer cancel()
	n, err := j.handles.Purge(ctx, j.cfg.Retention)
	if err != nil {
		j.log.Warn("handle purge failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		j.log.Info("handle messages purged", zap.Int64("count", n))
	}
	return n, nil
}

// ResetOnce refills every client's allowance.
func (j *Janitor) ResetOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, j.cfg.RunTimeout)
	defer cancel()
	n, err := j.lim.ResetAll(ctx, j.cfg.Allowance)
	if err != nil {
		j.log.Warn("allowance reset failed", zap.Error(err))
		return 0, err
	}
	j.log.Debug("allowances reset", zap.Int64("clients", n), zap.Int32("allowance", j.cfg.Allowance))
	return n, nil
}

// ticker returns a channel that never fires for a non-positive interval.
func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}
