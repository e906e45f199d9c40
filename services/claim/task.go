package claim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func (c *Coordinator) HandleReconcileStale(ctx context.Context, t *asynq.Task) error {
	olderThan := c.now().UTC().Add(-c.opts.reconcileAfter)
	_, err := c.ReconcileStale(ctx, olderThan)
	return err
}

func (c *Coordinator) HandleReconcileAward(ctx context.Context, t *asynq.Task) error {
	var p ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.AwardID == "" {
		zap.L().Error("malformed reconcile payload", zap.ByteString("payload", t.Payload()), zap.Error(err))
		return fmt.Errorf("decode reconcile payload: %v: %w", err, asynq.SkipRetry)
	}

	err := c.Reconcile(ctx, p)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("award %s: %w", p.AwardID, asynq.SkipRetry)
	}
	return err
}
