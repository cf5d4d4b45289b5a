// internal/app/system/workers/repair.go
package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PendingRepairer heals users left behind by partially failed runs.
// *reconcile.Reconciler implements it.
type PendingRepairer interface {
	RepairPending(ctx context.Context, limit int64) (int, error)
}

// Repair is a background worker that replays partial reconciliation runs.
type Repair struct {
	repairer PendingRepairer
	log      *zap.Logger
	interval time.Duration
	batch    int64
	timeout  time.Duration
	afterRun func(ctx context.Context)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRepair creates a repair worker.
//
// Parameters:
//   - repairer: usually the reconciler
//   - interval: how often to look for partial runs (e.g., 1 minute)
//   - batch: the most partial runs handled per tick
//   - timeout: the deadline for one tick
func NewRepair(repairer PendingRepairer, logger *zap.Logger, interval time.Duration, batch int64, timeout time.Duration) *Repair {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repair{
		repairer: repairer,
		log:      logger,
		interval: interval,
		batch:    batch,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// AfterRun registers fn to run at the end of every tick, e.g. to refresh
// gauges. Call before Start.
func (w *Repair) AfterRun(fn func(ctx context.Context)) {
	w.afterRun = fn
}

// Start begins the background loop.
func (w *Repair) Start() {
	w.wg.Add(1)
	go w.run()
	w.log.Info("repair worker started",
		zap.Duration("interval", w.interval),
		zap.Int64("batch", w.batch))
}

// Stop signals the worker to stop and waits for it to finish.
func (w *Repair) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	w.log.Info("repair worker stopped")
}

func (w *Repair) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(context.Background())
		}
	}
}

// RunOnce performs a single repair pass.
func (w *Repair) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	n, err := w.repairer.RepairPending(ctx, w.batch)
	switch {
	case err != nil:
		w.log.Error("repair pass failed", zap.Int("repaired_runs", n), zap.Error(err))
	case n > 0:
		w.log.Info("repaired partial runs", zap.Int("count", n))
	}

	if w.afterRun != nil {
		w.afterRun(ctx)
	}
}
