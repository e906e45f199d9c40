package award

import (
	"context"
	"time"

	"smallbiznis-rewards/pkg/config"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultExpiryBatch = 500

// ExpiryTask moves overdue pending awards to expired.
type ExpiryTask struct {
	store     *Store
	batchSize int
	now       func() time.Time
}

type ExpiryTaskParams struct {
	fx.In
	Store  *Store
	Config *config.Config `optional:"true"`
}

func NewExpiryTask(p ExpiryTaskParams) *ExpiryTask {
	batch := defaultExpiryBatch
	if p.Config != nil && p.Config.Rewards.ExpiryBatchSize > 0 {
		batch = p.Config.Rewards.ExpiryBatchSize
	}
	return &ExpiryTask{
		store:     p.Store,
		batchSize: batch,
		now:       time.Now,
	}
}

// Run sweeps in batches until a batch comes back short.
func (t *ExpiryTask) Run(ctx context.Context) (int64, error) {
	now := t.now().UTC()
	var total int64
	for {
		n, err := t.store.ExpirePending(ctx, now, t.batchSize)
		if err != nil {
			return total, err
		}
		total += n
		expiredTotal.Add(float64(n))
		if n < int64(t.batchSize) {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func (t *ExpiryTask) HandleExpirySweep(ctx context.Context, _ *asynq.Task) error {
	start := time.Now()
	zap.L().Info("award expiry sweep started")

	total, err := t.Run(ctx)
	if err != nil {
		zap.L().Error("award expiry sweep failed", zap.Int64("expired", total), zap.Error(err))
		return err
	}

	zap.L().Info("award expiry sweep finished", zap.Int64("expired", total), zap.Duration("duration", time.Since(start)))
	return nil
}
