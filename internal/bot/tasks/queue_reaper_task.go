package tasks

import (
	"context"
	"fmt"
)

// newQueueReaperTask creates the task that returns expired job leases to the
// pending pool so crashed workers do not strand jobs.
func newQueueReaperTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "queue_reaper")

	return func(ctx context.Context) error {
		reclaimed, err := deps.Queue.ReapExpired(ctx)
		if err != nil {
			log.ErrorContext(ctx, "Queue reaper task failed", "error", err)
			return fmt.Errorf("queue reaper failed: %w", err)
		}

		if reclaimed > 0 {
			log.InfoContext(ctx, "Reclaimed expired job leases", "count", reclaimed)
		}
		return nil
	}
}
