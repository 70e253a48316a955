package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/edgard/postqueue/internal/bot/tasks"
	"github.com/edgard/postqueue/internal/config"
)

const postSchedulerJob = "post_scheduler"

// Poller runs one supervised scheduling pass.
type Poller interface {
	RunOnce(ctx context.Context)
}

// Scheduler runs the post polling job and the maintenance tasks on gocron.
type Scheduler struct {
	scheduler    gocron.Scheduler
	logger       *slog.Logger
	poller       Poller
	pollInterval time.Duration
	taskCfg      map[string]config.TaskConfig
	taskMap      map[string]tasks.ScheduledTaskFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler in loc. The poller runs every pollInterval;
// tasks run on the cron expressions in taskCfg.
func NewScheduler(
	logger *slog.Logger,
	loc *time.Location,
	poller Poller,
	pollInterval time.Duration,
	taskCfg map[string]config.TaskConfig,
	taskMap map[string]tasks.ScheduledTaskFunc,
) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	return &Scheduler{
		scheduler:    s,
		logger:       logger.With("component", "scheduler"),
		poller:       poller,
		pollInterval: pollInterval,
		taskCfg:      taskCfg,
		taskMap:      taskMap,
	}, nil
}

// Start registers all jobs and starts ticking. Jobs receive a context derived
// from ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)

	if s.poller != nil {
		_, err := s.scheduler.NewJob(
			gocron.DurationJob(s.pollInterval),
			gocron.NewTask(func() { s.poller.RunOnce(runCtx) }),
			gocron.WithName(postSchedulerJob),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			return fmt.Errorf("failed to schedule post polling: %w", err)
		}
		s.logger.Info("Scheduled post polling", "interval", s.pollInterval)
	}

	scheduledCount := 0
	for taskName, taskConfig := range s.taskCfg {
		if !taskConfig.Enabled {
			s.logger.Info("Skipping disabled task", "task_name", taskName)
			continue
		}

		taskFunc, exists := s.taskMap[taskName]
		if !exists {
			s.logger.Warn("Scheduled task configured but not found in registry, skipping", "task_name", taskName)
			continue
		}

		name := taskName
		_, err := s.scheduler.NewJob(
			gocron.CronJob(taskConfig.Schedule, false),
			gocron.NewTask(func() {
				s.logger.Info("Running scheduled task", "task_name", name)
				startTime := time.Now()
				if taskErr := taskFunc(runCtx); taskErr != nil {
					s.logger.Error("Scheduled task failed", "task_name", name, "error", taskErr)
				}
				s.logger.Info("Finished scheduled task", "task_name", name, "duration", time.Since(startTime))
			}),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			s.logger.Error("Failed to schedule task", "task_name", name, "schedule", taskConfig.Schedule, "error", err)
			continue
		}

		s.logger.Info("Scheduled task", "task_name", name, "schedule", taskConfig.Schedule)
		scheduledCount++
	}

	s.scheduler.Start()
	s.running = true
	s.cancel = cancel
	s.logger.Info("Scheduler started", "tasks_scheduled", scheduledCount)

	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		s.logger.Info("Scheduler is not running, nothing to stop.")
		return nil
	}

	s.cancel()
	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped gracefully.")
	}

	s.running = false
	return err
}
