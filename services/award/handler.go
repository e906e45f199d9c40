package award

import (
	"net/http"

	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/validation"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/v1/accounts/:account_id/awards", h.list)
}

func (h *Handler) list(c *gin.Context) {
	var params ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		_ = c.Error(errutil.BadRequest("malformed query", err))
		return
	}
	if err := validation.Struct(params); err != nil {
		_ = c.Error(err)
		return
	}

	awards, page, err := h.store.ListByAccount(c.Request.Context(), c.Param("account_id"), params)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"awards":    awards,
		"page_info": page,
	})
}
