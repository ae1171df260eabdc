package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taskrelay/server/internal/modules/model"
	"github.com/taskrelay/server/internal/modules/repo"
)

const scheduleBatch = 100

// Scheduler hands due scheduled tasks to the executor, and on start picks up
// work a previous process left behind.
type Scheduler struct {
	tasks    repo.TaskRepo
	disp     Dispatcher
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewScheduler(tasks repo.TaskRepo, disp Dispatcher, interval time.Duration, log *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Scheduler{tasks: tasks, disp: disp, interval: interval, log: log, now: time.Now}
}

func (s *Scheduler) Run(ctx context.Context) error {
	if n, err := s.Recover(ctx); err != nil {
		s.log.Sugar().Warnw("recover tasks", "err", err)
	} else if n > 0 {
		s.log.Sugar().Infow("recovered tasks", "count", n)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.log.Sugar().Warnw("scheduler tick", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick enqueues every due scheduled task once and returns how many it queued.
// A task the executor refuses keeps no claim and is retried on the next tick.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.tasks.GetScheduledBefore(ctx, now, scheduleBatch)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, t := range due {
		ok, err := s.tasks.MarkQueued(ctx, t.ID, now)
		if err != nil {
			return queued, err
		}
		if !ok {
			continue
		}
		if !s.disp.Enqueue(t.ID) {
			if err := s.tasks.ClearQueued(ctx, t.ID); err != nil {
				return queued, err
			}
			s.log.Sugar().Warnw("executor refused scheduled task, will retry", "task_id", t.ID)
			continue
		}
		queued++
		s.log.Sugar().Infow("scheduled task queued", "task_id", t.ID, "scheduled_for", t.ScheduledFor)
	}
	return queued, nil
}

// Recover re-enqueues work the assistant owned when the process stopped:
// pending immediate tasks, scheduled tasks already claimed by a poll, and
// running tasks.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	items, err := s.tasks.GetByStatus(ctx, model.TaskStatusPending, model.TaskStatusRunning)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range items {
		if t.Control != model.RoleAssistant {
			continue
		}
		if t.Status == model.TaskStatusPending && t.Type != model.TaskTypeImmediate && t.QueuedAt == nil {
			continue
		}
		if s.disp.Enqueue(t.ID) {
			n++
		}
	}
	return n, nil
}
