package award

import (
	"context"

	"smallbiznis-rewards/pkg/taskname"
	"smallbiznis-rewards/services/catalog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("award.service",
	fx.Provide(
		NewStore,
		NewSettingReferences,
	),
)

var Gateway = fx.Module("award.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(func(r *gin.Engine, h *Handler) {
		h.Register(r)
	}),
)

var Worker = fx.Module("award.worker",
	fx.Provide(NewExpiryTask),
	fx.Invoke(func(mux *asynq.ServeMux, t *ExpiryTask) {
		mux.HandleFunc(taskname.AwardExpirySweep, t.HandleExpirySweep)
	}),
)

// NewSettingReferences exposes the store as the catalog's reference counter.
func NewSettingReferences(s *Store) catalog.ReferenceCounter {
	return settingReferences{store: s}
}

type settingReferences struct {
	store *Store
}

func (r settingReferences) CountBySetting(ctx context.Context, settingID string) (int64, error) {
	return r.store.CountBySetting(ctx, settingID)
}

func (r settingReferences) WithTrx(tx *gorm.DB) catalog.ReferenceCounter {
	return settingReferences{store: r.store.WithTrx(tx)}
}
