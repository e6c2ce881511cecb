package task

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oskarb/kepler/config"
	"github.com/oskarb/kepler/types"
)

// PlanningRunner is the planning pipeline as the task sees it.
type PlanningRunner interface {
	Run(ctx context.Context) types.RunResult
}

// NewPlanningTask wraps one planning cycle for the scheduler. At most
// one run is in flight at a time; a trigger that arrives mid-run queues
// exactly one follow-up run, further triggers are dropped.
func NewPlanningTask(logger *slog.Logger, pipeline PlanningRunner, cnfg *config.AppConfig) func() {
	var mu sync.Mutex
	var pending atomic.Bool

	// Fetching, solving and persisting together; the solver has its own
	// tighter cap inside this budget.
	timeout := cnfg.Planner.SolveTimeout() + 2*time.Minute

	return func() {
		if !mu.TryLock() {
			if pending.CompareAndSwap(false, true) {
				logger.Info("planning busy, queued one follow-up run",
					slog.String("status", string(types.RunStatusBusy)),
					slog.String("issue", string(types.IssuePlannerBusy)))
			} else {
				logger.Warn("planning busy and a follow-up already queued, dropping trigger",
					slog.String("status", string(types.RunStatusBusy)))
			}
			return
		}
		defer mu.Unlock()

		for {
			logger.Debug("running planning task...")
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			res := pipeline.Run(ctx)
			cancel()

			logger.Info("planning task done",
				slog.String("status", string(res.Status)),
				slog.Int("slots", res.SlotCount),
				slog.Int("issues", len(res.Issues)),
				slog.Float64("objective", res.ObjectiveValue))

			if !pending.CompareAndSwap(true, false) {
				return
			}
			logger.Debug("running queued follow-up planning run")
		}
	}
}
