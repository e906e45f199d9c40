package streak

import (
	"smallbiznis-rewards/services/catalog"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("streak.service",
	fx.Provide(
		NewService,
		func(svc *catalog.Service) Catalog { return svc },
	),
)

var Gateway = fx.Module("streak.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(func(r *gin.Engine, h *Handler) {
		h.Register(r)
	}),
)
