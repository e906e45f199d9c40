package task

import (
	"context"
	"time"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/task"
	"smallbiznis-rewards/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	expiryHour   = 1
	expiryMinute = 0
)

type Scheduler struct {
	service           *Service
	loc               *time.Location
	reconcileInterval time.Duration
}

func NewScheduler(svc *Service, cfg *config.Config) *Scheduler {
	interval := cfg.Rewards.ReconcileInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		service:           svc,
		loc:               cfg.Location(),
		reconcileInterval: interval,
	}
}

// StartScheduler runs the scheduling loops for the lifetime of the fx app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.runDailyExpiry(ctx)
			go s.runReconcile(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (s *Scheduler) runDailyExpiry(ctx context.Context) {
	zap.L().Info("[Scheduler] started award expiry scheduler")

	for {
		now := time.Now().In(s.loc)
		next := nextRunTime(now, expiryHour, expiryMinute)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next expiry sweep scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.enqueue(ctx, taskname.AwardExpirySweep, task.QueueLow, 23*time.Hour)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] expiry scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) runReconcile(ctx context.Context) {
	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.enqueue(ctx, taskname.ClaimReconcileStale, task.QueueDefault, s.reconcileInterval)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] reconcile scheduler stopped")
			return
		}
	}
}

// enqueue is unique per ttl so several scheduler replicas queue one run.
func (s *Scheduler) enqueue(ctx context.Context, name, queue string, unique time.Duration) {
	start := time.Now()
	job, err := s.service.Enqueue(ctx, name, nil, asynq.Queue(queue), asynq.Unique(unique))
	if err != nil {
		zap.L().Error("[Scheduler] failed to enqueue", zap.String("task", name), zap.Error(err))
		return
	}
	zap.L().Debug("[Scheduler] enqueued",
		zap.String("task", name),
		zap.String("job_id", job.ID),
		zap.Duration("duration", time.Since(start)),
	)
}

// nextRunTime is the next occurrence of hour:minute strictly after now, in now's location.
func nextRunTime(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
