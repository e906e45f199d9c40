package claim

import (
	"context"

	"smallbiznis-rewards/pkg/taskname"
	"smallbiznis-rewards/services/account"
	"smallbiznis-rewards/services/crediting"
	"smallbiznis-rewards/services/ledger"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("claim.coordinator",
	fx.Provide(
		NewCoordinator,
		func(svc *account.Service) AccountDirectory { return svc },
		func(c *crediting.Client) CreditingService { return c },
		func(svc *ledger.Service) LedgerLog { return ledgerLog{svc: svc} },
	),
)

var Gateway = fx.Module("claim.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(func(r *gin.Engine, h *Handler) {
		h.Register(r)
	}),
)

var Worker = fx.Module("claim.worker",
	fx.Invoke(func(mux *asynq.ServeMux, c *Coordinator) {
		mux.HandleFunc(taskname.ClaimReconcileStale, c.HandleReconcileStale)
		mux.HandleFunc(taskname.ClaimReconcileAward, c.HandleReconcileAward)
	}),
)

type ledgerLog struct {
	svc *ledger.Service
}

func (l ledgerLog) Append(ctx context.Context, p ledger.AppendParams) (string, error) {
	return l.svc.Append(ctx, p)
}

func (l ledgerLog) WithTrx(tx *gorm.DB) LedgerLog {
	return ledgerLog{svc: l.svc.WithTrx(tx)}
}
