// Package tasks implements the maintenance jobs run on cron schedules.
package tasks

import (
	"context"
	"log/slog"
)

// Store is the queue storage used by maintenance tasks.
type Store interface {
	RunSQLMaintenance(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  Store
}
