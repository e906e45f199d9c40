package task

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"smallbiznis-rewards/pkg/task"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	enqueuer task.Enqueuer
	now      func() time.Time
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		enqueuer: p.Enqueuer,
		now:      time.Now,
	}
}

// Enqueue records a pending Job and hands the task to asynq under the job's id.
func (s *Service) Enqueue(ctx context.Context, taskName string, payload any, opts ...asynq.Option) (*Job, error) {
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = b
	}

	now := s.now().UTC()
	job := &Job{
		ID:        s.node.Generate().String(),
		TaskName:  taskName,
		Status:    JobPending,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  datatypes.JSON(body),
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}

	if s.enqueuer == nil {
		return nil, s.finish(ctx, job.ID, JobFailed, errors.New("no task queue configured"))
	}

	opts = append(opts, asynq.TaskID(job.ID))
	_, err := s.enqueuer.Enqueue(ctx, asynq.NewTask(taskName, body), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			zap.L().Info("task already queued, skipping", zap.String("task", taskName), zap.String("job_id", job.ID))
			_ = s.finish(ctx, job.ID, JobDuplicate, nil)
			job.Status = JobDuplicate
			return job, nil
		}
		_ = s.finish(ctx, job.ID, JobFailed, err)
		return nil, err
	}

	zap.L().Info("enqueued job",
		zap.String("task", taskName),
		zap.String("job_id", job.ID),
	)
	return job, nil
}

// TrackJobs is asynq middleware that moves the Job row of a task through running to success or failed.
// Tasks enqueued without a Job row run untracked.
func (s *Service) TrackJobs(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		id, _ := asynq.GetTaskID(ctx)
		tracked := id != "" && s.start(ctx, id)

		err := next.ProcessTask(ctx, t)
		if !tracked {
			return err
		}

		status := JobSuccess
		if err != nil {
			status = JobFailed
		}
		if ferr := s.finish(ctx, id, status, err); ferr != nil {
			zap.L().Warn("failed to record job result", zap.String("job_id", id), zap.Error(ferr))
		}
		return err
	})
}

func (s *Service) start(ctx context.Context, id string) bool {
	now := s.now().UTC()
	res := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     JobRunning,
			"started_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		zap.L().Warn("failed to mark job running", zap.String("job_id", id), zap.Error(res.Error))
		return false
	}
	return res.RowsAffected == 1
}

func (s *Service) finish(ctx context.Context, id string, status JobStatus, cause error) error {
	now := s.now().UTC()
	updates := map[string]any{
		"status":       status,
		"completed_at": now,
		"updated_at":   now,
	}
	if cause != nil {
		updates["error_msg"] = cause.Error()
	}
	if err := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return err
	}
	return cause
}

func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}
