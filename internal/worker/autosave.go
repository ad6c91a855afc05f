// Package worker hosts the background maintenance loop.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Snapshotter persists the open-ticket set.
type Snapshotter interface {
	SaveSnapshot()
}

// SnapshotFunc adapts a function to the Snapshotter interface.
type SnapshotFunc func()

// SaveSnapshot calls f.
func (f SnapshotFunc) SaveSnapshot() { f() }

// Evicter drops expired tracking entries.
type Evicter interface {
	Evict()
}

// Autosave periodically snapshots open tickets and evicts expired rate-limit
// counters and surveys. It also runs one final snapshot on shutdown.
type Autosave struct {
	interval time.Duration
	snapshot Snapshotter
	evicters []Evicter
	logger   *zap.Logger
}

// NewAutosave creates the worker. An interval of zero falls back to 5m.
func NewAutosave(interval time.Duration, snapshot Snapshotter, logger *zap.Logger, evicters ...Evicter) *Autosave {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Autosave{
		interval: interval,
		snapshot: snapshot,
		evicters: evicters,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled, saving on each tick and once more on
// the way out.
func (a *Autosave) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("autosave worker started", zap.Duration("interval", a.interval))
	for {
		select {
		case <-ticker.C:
			a.tick()
		case <-ctx.Done():
			a.logger.Info("autosave worker stopping, flushing final snapshot")
			a.snapshot.SaveSnapshot()
			return
		}
	}
}

func (a *Autosave) tick() {
	a.snapshot.SaveSnapshot()
	for _, evicter := range a.evicters {
		evicter.Evict()
	}
	a.logger.Debug("autosave tick complete")
}
