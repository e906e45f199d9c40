package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"smallbiznis-rewards/pkg/taskname"
	"smallbiznis-rewards/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type enqueuerStub struct {
	tasks []*asynq.Task
	err   error
}

func (e *enqueuerStub) Enqueue(ctx context.Context, t *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, t)
	return &asynq.TaskInfo{ID: "queued", Type: t.Type()}, nil
}

func newTestService(t *testing.T, enq *enqueuerStub) *Service {
	t.Helper()
	db := testutil.NewTestDB(t, &Job{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	p := Params{DB: db, Node: node}
	if enq != nil {
		p.Enqueuer = enq
	}
	return NewService(p)
}

func TestEnqueueRecordsJob(t *testing.T) {
	enq := &enqueuerStub{}
	svc := newTestService(t, enq)
	ctx := context.Background()

	job, err := svc.Enqueue(ctx, taskname.AwardExpirySweep, map[string]string{"reason": "test"})
	require.NoError(t, err)
	require.Equal(t, JobPending, job.Status)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, taskname.AwardExpirySweep, enq.tasks[0].Type())
	require.JSONEq(t, `{"reason":"test"}`, string(enq.tasks[0].Payload()))

	stored, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, JobPending, stored.Status)
}

func TestEnqueueDuplicate(t *testing.T) {
	svc := newTestService(t, &enqueuerStub{err: asynq.ErrDuplicateTask})
	ctx := context.Background()

	job, err := svc.Enqueue(ctx, taskname.ClaimReconcileStale, nil)
	require.NoError(t, err)
	require.Equal(t, JobDuplicate, job.Status)

	stored, err := svc.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, JobDuplicate, stored.Status)
	require.NotNil(t, stored.CompletedAt)
}

func TestEnqueueFailure(t *testing.T) {
	svc := newTestService(t, &enqueuerStub{err: errors.New("redis down")})

	_, err := svc.Enqueue(context.Background(), taskname.ClaimReconcileStale, nil)
	require.Error(t, err)

	var jobs []Job
	require.NoError(t, svc.db.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	require.Equal(t, JobFailed, jobs[0].Status)
	require.Equal(t, "redis down", jobs[0].ErrorMsg)
}

func TestEnqueueWithoutQueue(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Enqueue(context.Background(), taskname.ClaimReconcileStale, nil)
	require.Error(t, err)
}

func TestNextRunTime(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 10, 18, 0, 30, 0, 0, time.UTC),
			want: time.Date(2026, 10, 18, 1, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at run time",
			now:  time.Date(2026, 10, 18, 1, 0, 0, 0, time.UTC),
			want: time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC),
		},
		{
			name: "month rollover",
			now:  time.Date(2026, 10, 31, 23, 0, 0, 0, time.UTC),
			want: time.Date(2026, 11, 1, 1, 0, 0, 0, time.UTC),
		},
		{
			name: "keeps location",
			now:  time.Date(2026, 10, 18, 5, 0, 0, 0, jakarta),
			want: time.Date(2026, 10, 19, 1, 0, 0, 0, jakarta),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.want.Equal(nextRunTime(tt.now, 1, 0)))
		})
	}
}
