package tasks

import (
	"context"
	"fmt"
	"time"
)

// newSQLMaintenanceTask compacts the queue database.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting SQL maintenance")
		startTime := time.Now()

		err := deps.Store.RunSQLMaintenance(ctx)
		duration := time.Since(startTime)
		if err != nil {
			log.ErrorContext(ctx, "SQL maintenance failed", "error", err, "duration", duration)
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		queued, err := deps.Store.Count(ctx)
		if err != nil {
			log.WarnContext(ctx, "SQL maintenance done but queue count failed", "error", err, "duration", duration)
			return nil
		}
		log.InfoContext(ctx, "SQL maintenance completed", "duration", duration, "queued", queued)
		return nil
	}
}
