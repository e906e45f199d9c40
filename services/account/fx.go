package account

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("account.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("account.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(func(r *gin.Engine, h *Handler) {
		h.Register(r)
	}),
)
