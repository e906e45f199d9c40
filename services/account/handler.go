package account

import (
	"net/http"

	"smallbiznis-rewards/pkg/errutil"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/v1/accounts/:account_id/link")
	g.GET("", h.get)
	g.PUT("", h.link)
	g.DELETE("", h.unlink)
}

func (h *Handler) get(c *gin.Context) {
	acc, err := h.svc.Get(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) link(c *gin.Context) {
	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errutil.BadRequest("malformed request body", err))
		return
	}

	acc, err := h.svc.Link(c.Request.Context(), c.Param("account_id"), req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (h *Handler) unlink(c *gin.Context) {
	if err := h.svc.Unlink(c.Request.Context(), c.Param("account_id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
