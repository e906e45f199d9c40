package claim

import (
	"errors"
	"net/http"

	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/featureflags"
	"smallbiznis-rewards/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var errClaimsPaused = errutil.ServiceUnavailable("award claims are paused", nil, errutil.WithReason("CLAIMS_PAUSED"))

type Handler struct {
	coordinator *Coordinator
	limiter     *middleware.KeyedLimiter
	flags       featureflags.FeatureFlag
}

type HandlerParams struct {
	fx.In
	Coordinator *Coordinator
	Config      *config.Config           `optional:"true"`
	Flags       featureflags.FeatureFlag `optional:"true"`
}

func NewHandler(p HandlerParams) *Handler {
	h := &Handler{coordinator: p.Coordinator, flags: p.Flags}
	if p.Config != nil && p.Config.RateLimit.ClaimsPerMinute > 0 {
		h.limiter = middleware.NewKeyedLimiter(p.Config.RateLimit.ClaimsPerMinute, p.Config.RateLimit.Burst)
	}
	return h
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/v1/accounts/:account_id/awards/:award_id/claim",
		middleware.RateLimit(h.limiter, middleware.ParamKey("account_id")),
		h.claim,
	)
}

func (h *Handler) claim(c *gin.Context) {
	accountID := c.Param("account_id")
	if h.flags != nil && !h.flags.Enabled(c.Request.Context(), accountID, featureflags.AwardClaims) {
		c.Header("Retry-After", "300")
		_ = c.Error(errClaimsPaused)
		return
	}

	res, err := h.coordinator.Claim(c.Request.Context(), accountID, c.Param("award_id"))
	if err != nil {
		if errors.Is(err, ErrExternalService) {
			c.Header("Retry-After", "30")
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}
